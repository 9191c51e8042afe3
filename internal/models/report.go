package models

import "time"

// SkipReason explains why a rule was not evaluated during a cycle.
type SkipReason string

const (
	SkipDisabled          SkipReason = "disabled"
	SkipOutsideSchedule   SkipReason = "outside-schedule"
	SkipCollectionMissing SkipReason = "collection-missing"
)

// CollectionResult summarizes one collection's reconciliation outcome.
type CollectionResult struct {
	CollectionID string `json:"collection_id"`
	Name         string `json:"name"`
	Total        int    `json:"total"`
	Added        int    `json:"added"`
	Removed      int    `json:"removed"`
	Additive     bool   `json:"additive"`
	SharingCount int    `json:"sharing_count"`
	Error        string `json:"error,omitempty"`
}

// SkippedRule records a rule that did not run and why.
type SkippedRule struct {
	RuleID   string     `json:"rule_id"`
	RuleName string     `json:"rule_name"`
	Reason   SkipReason `json:"reason"`
}

// SyncReport is the structured output of one sync cycle. It is created
// fresh each cycle and summarized into a SyncLog row afterwards.
type SyncReport struct {
	Timestamp   time.Time          `json:"timestamp"`
	Duration    time.Duration      `json:"duration"`
	Channels    int                `json:"channels"`
	Collections []CollectionResult `json:"collections"`
	Skipped     []SkippedRule      `json:"skipped,omitempty"`
	Warnings    []string           `json:"warnings,omitempty"`
	Errors      []string           `json:"errors,omitempty"`
}

// AddWarning appends a non-fatal warning to the report.
func (r *SyncReport) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// AddError appends a per-collection or cycle error to the report.
func (r *SyncReport) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}
