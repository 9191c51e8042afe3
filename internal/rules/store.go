package rules

import (
	"fmt"
	"strings"

	"github.com/collectarr/collectarr/internal/errors"
	"github.com/collectarr/collectarr/internal/models"
	"github.com/collectarr/collectarr/internal/schedule"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store persists rules in the database.
type Store struct {
	db *gorm.DB
}

// NewStore creates a rule store backed by the given database handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// List returns all rules ordered by creation time.
func (s *Store) List() ([]models.Rule, error) {
	var rules []models.Rule
	if err := s.db.Order("created_at asc").Find(&rules).Error; err != nil {
		return nil, errors.DatabaseError("failed to list rules", err)
	}
	return rules, nil
}

// ListEnabled returns enabled rules ordered by creation time.
func (s *Store) ListEnabled() ([]models.Rule, error) {
	var rules []models.Rule
	if err := s.db.Where("enabled = ?", true).Order("created_at asc").Find(&rules).Error; err != nil {
		return nil, errors.DatabaseError("failed to list enabled rules", err)
	}
	return rules, nil
}

// Get fetches a single rule by ID.
func (s *Store) Get(id string) (*models.Rule, error) {
	var rule models.Rule
	err := s.db.First(&rule, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errors.NotFoundError("rule", id)
	}
	if err != nil {
		return nil, errors.DatabaseError("failed to fetch rule", err)
	}
	return &rule, nil
}

// GetByCollection returns all enabled rules targeting the given
// collection.
func (s *Store) GetByCollection(collectionID string) ([]models.Rule, error) {
	var rules []models.Rule
	err := s.db.Where("collection_id = ? AND enabled = ?", collectionID, true).
		Order("created_at asc").Find(&rules).Error
	if err != nil {
		return nil, errors.DatabaseError("failed to fetch rules for collection", err)
	}
	return rules, nil
}

// Create validates and persists a new rule, assigning an ID when the
// caller did not provide one.
func (s *Store) Create(rule *models.Rule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if err := s.db.Create(rule).Error; err != nil {
		return errors.DatabaseError("failed to create rule", err)
	}
	return nil
}

// Update validates and persists changes to an existing rule.
func (s *Store) Update(rule *models.Rule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	result := s.db.Model(&models.Rule{}).Where("id = ?", rule.ID).
		Select("*").Omit("id", "created_at").Updates(rule)
	if result.Error != nil {
		return errors.DatabaseError("failed to update rule", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.NotFoundError("rule", rule.ID)
	}
	return nil
}

// Delete removes a rule by ID.
func (s *Store) Delete(id string) error {
	result := s.db.Delete(&models.Rule{}, "id = ?", id)
	if result.Error != nil {
		return errors.DatabaseError("failed to delete rule", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.NotFoundError("rule", id)
	}
	return nil
}

// ReplaceMerged persists a merged rule and retires the superseded
// rules in one transaction.
func (s *Store) ReplaceMerged(merged *models.Rule, supersededIDs []string) error {
	if err := validateRule(merged); err != nil {
		return err
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, id := range supersededIDs {
			if id == merged.ID {
				continue
			}
			if err := tx.Delete(&models.Rule{}, "id = ?", id).Error; err != nil {
				return err
			}
		}
		return tx.Save(merged).Error
	})
	if err != nil {
		return errors.DatabaseError("failed to persist merged rule", err)
	}
	return nil
}

func validateRule(rule *models.Rule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return errors.ValidationError("rule name is required")
	}
	if strings.TrimSpace(rule.CollectionID) == "" {
		return errors.ValidationError("rule collection_id is required")
	}
	if len(rule.MatchTypes) == 0 {
		return errors.ValidationError("rule needs at least one match type")
	}
	for _, mt := range rule.MatchTypes {
		switch models.MatchType(mt) {
		case models.MatchTypeName, models.MatchTypeNumber, models.MatchTypeEPG:
		default:
			return errors.ValidationError(fmt.Sprintf("unknown match type %q", mt))
		}
	}
	if rule.DynamicGroupID == nil && len(rule.Patterns) == 0 {
		return errors.ValidationError("rule needs at least one pattern")
	}
	if rule.SyncIntervalMinutes != nil && *rule.SyncIntervalMinutes <= 0 {
		return errors.ValidationError("sync_interval_minutes must be positive")
	}
	if err := schedule.Validate(rule.Schedule); err != nil {
		return errors.ValidationError(err.Error())
	}
	return nil
}
