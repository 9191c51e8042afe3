package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// MatchType selects which channel attributes a rule's patterns are
// evaluated against.
type MatchType string

const (
	MatchTypeName   MatchType = "name"
	MatchTypeNumber MatchType = "number"
	MatchTypeEPG    MatchType = "epg"
)

// Sort order selectors understood by the sort engine. A custom regex
// order is encoded as "regex:<pattern>".
const (
	SortNone       = "none"
	SortAlphaAsc   = "alpha_asc"
	SortAlphaDesc  = "alpha_desc"
	SortNumberAsc  = "number_asc"
	SortNumberDesc = "number_desc"
	SortEventsLast = "events_last"

	SortRegexPrefix = "regex:"
)

// StringList is a []string stored as a JSON text column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for StringList: %T", value)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(data, (*[]string)(l))
}

// PatternMeta carries opaque per-pattern metadata keyed by pattern
// literal. The engine preserves it for UI re-editing but never
// interprets it. Stored as a JSON text column.
type PatternMeta map[string]json.RawMessage

// Value implements driver.Valuer.
func (m PatternMeta) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(map[string]json.RawMessage(m))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (m *PatternMeta) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for PatternMeta: %T", value)
	}
	if len(data) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, (*map[string]json.RawMessage)(m))
}

// Schedule restricts when a rule may run. A disabled schedule means the
// rule is always eligible; an empty day set means every day.
type Schedule struct {
	Enabled bool       `json:"enabled"`
	Days    StringList `gorm:"type:text" json:"days"` // "mon".."sun"
	Start   string     `json:"start"`                 // "HH:MM", blank = open
	End     string     `json:"end"`                   // "HH:MM", blank = open
}

// Rule is a user-authored set of patterns, match types, sort order and
// optional schedule targeting one collection.
type Rule struct {
	ID           string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name         string     `gorm:"type:varchar(255);not null" json:"name"`
	GroupLabel   string     `gorm:"type:varchar(255)" json:"group_label,omitempty"`
	CollectionID string     `gorm:"type:varchar(255);not null;index" json:"collection_id"`
	Patterns     StringList `gorm:"type:text" json:"patterns"`
	MatchTypes   StringList `gorm:"type:text" json:"match_types"`

	// PatternMeta is pass-through only; see PatternMeta.
	PatternMeta PatternMeta `gorm:"type:text" json:"pattern_meta,omitempty"`

	SortOrder      string     `gorm:"type:varchar(255)" json:"sort_order"`
	IncludeSources StringList `gorm:"type:text" json:"include_sources,omitempty"`
	ExcludeSources StringList `gorm:"type:text" json:"exclude_sources,omitempty"`
	Enabled        bool       `gorm:"not null" json:"enabled"`

	Schedule Schedule `gorm:"embedded;embeddedPrefix:schedule_" json:"schedule"`

	// DynamicGroupID, when set, refreshes the rule's patterns from the
	// IPTV manager group before each cycle.
	DynamicGroupID *int `json:"dynamic_group_id,omitempty"`

	// SyncIntervalMinutes triggers an extra per-rule sync job on top of
	// the global interval.
	SyncIntervalMinutes *int `json:"sync_interval_minutes,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// TableName specifies the table name for Rule
func (Rule) TableName() string {
	return "rules"
}

// HasMatchType reports whether the rule enables the given match type.
func (r Rule) HasMatchType(t MatchType) bool {
	for _, mt := range r.MatchTypes {
		if MatchType(mt) == t {
			return true
		}
	}
	return false
}

// MatchesSource applies the rule's include/exclude source filters to a
// channel's source identifier.
func (r Rule) MatchesSource(sourceID string) bool {
	if len(r.IncludeSources) > 0 && !contains(r.IncludeSources, sourceID) {
		return false
	}
	if contains(r.ExcludeSources, sourceID) {
		return false
	}
	return true
}

func contains(list StringList, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
