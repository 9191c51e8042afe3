package testing

import (
	"testing"
	"time"

	"github.com/collectarr/collectarr/internal/models"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB creates an in-memory SQLite database for testing
func TestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	// Run migrations
	if err := db.AutoMigrate(
		&models.Rule{},
		&models.SyncLog{},
	); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

// CleanupDB removes all records from test database tables
func CleanupDB(t *testing.T, db *gorm.DB) {
	t.Helper()

	db.Exec("DELETE FROM rules")
	db.Exec("DELETE FROM sync_logs")
}

// CreateRule creates a test rule targeting the "sports" collection
func CreateRule(db *gorm.DB, overrides ...func(*models.Rule)) *models.Rule {
	rule := &models.Rule{
		ID:           uuid.New().String(),
		Name:         "Test Rule",
		CollectionID: "sports",
		Patterns:     models.StringList{"ESPN"},
		MatchTypes:   models.StringList{string(models.MatchTypeName)},
		SortOrder:    models.SortAlphaAsc,
		Enabled:      true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	for _, override := range overrides {
		override(rule)
	}

	db.Create(rule)
	return rule
}

// NewChannel builds an inventory channel for matcher and sorter tests
func NewChannel(id, name, number string) models.Channel {
	return models.Channel{
		ID:     id,
		Name:   name,
		Number: number,
	}
}

// WithCollection sets the target collection for a rule
func WithCollection(collectionID string) func(*models.Rule) {
	return func(rule *models.Rule) {
		rule.CollectionID = collectionID
	}
}

// WithPatterns sets the pattern list for a rule
func WithPatterns(patterns ...string) func(*models.Rule) {
	return func(rule *models.Rule) {
		rule.Patterns = models.StringList(patterns)
	}
}

// WithMatchTypes sets the match types for a rule
func WithMatchTypes(types ...string) func(*models.Rule) {
	return func(rule *models.Rule) {
		rule.MatchTypes = models.StringList(types)
	}
}

// WithSortOrder sets the sort order for a rule
func WithSortOrder(order string) func(*models.Rule) {
	return func(rule *models.Rule) {
		rule.SortOrder = order
	}
}

// WithDisabled marks a rule as disabled
func WithDisabled() func(*models.Rule) {
	return func(rule *models.Rule) {
		rule.Enabled = false
	}
}

// WithSchedule sets the schedule window for a rule
func WithSchedule(days []string, start, end string) func(*models.Rule) {
	return func(rule *models.Rule) {
		rule.Schedule = models.Schedule{
			Enabled: true,
			Days:    models.StringList(days),
			Start:   start,
			End:     end,
		}
	}
}

// WithDynamicGroup binds a rule to an IPTV manager group
func WithDynamicGroup(groupID int) func(*models.Rule) {
	return func(rule *models.Rule) {
		rule.DynamicGroupID = &groupID
	}
}

// AssertCount verifies the count of records in a table
func AssertCount(t *testing.T, db *gorm.DB, model interface{}, expected int64, message string) {
	t.Helper()
	var count int64
	db.Model(model).Count(&count)
	if count != expected {
		t.Fatalf("%s: expected count %d, got %d", message, expected, count)
	}
}
