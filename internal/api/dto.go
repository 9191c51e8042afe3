package api

import "github.com/collectarr/collectarr/internal/models"

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// RuleRequest carries a rule create or update payload.
type RuleRequest struct {
	Name                string             `json:"name" binding:"required"`
	GroupLabel          string             `json:"group_label,omitempty"`
	CollectionID        string             `json:"collection_id" binding:"required"`
	Patterns            []string           `json:"patterns"`
	MatchTypes          []string           `json:"match_types" binding:"required"`
	PatternMeta         models.PatternMeta `json:"pattern_meta,omitempty"`
	SortOrder           string             `json:"sort_order"`
	IncludeSources      []string           `json:"include_sources,omitempty"`
	ExcludeSources      []string           `json:"exclude_sources,omitempty"`
	Enabled             *bool              `json:"enabled,omitempty"`
	Schedule            models.Schedule    `json:"schedule"`
	DynamicGroupID      *int               `json:"dynamic_group_id,omitempty"`
	SyncIntervalMinutes *int               `json:"sync_interval_minutes,omitempty"`
}

// toModel converts the request to a rule model.
func (r RuleRequest) toModel() models.Rule {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	sortOrder := r.SortOrder
	if sortOrder == "" {
		sortOrder = models.SortNone
	}
	return models.Rule{
		Name:                r.Name,
		GroupLabel:          r.GroupLabel,
		CollectionID:        r.CollectionID,
		Patterns:            models.StringList(r.Patterns),
		MatchTypes:          models.StringList(r.MatchTypes),
		PatternMeta:         r.PatternMeta,
		SortOrder:           sortOrder,
		IncludeSources:      models.StringList(r.IncludeSources),
		ExcludeSources:      models.StringList(r.ExcludeSources),
		Enabled:             enabled,
		Schedule:            r.Schedule,
		DynamicGroupID:      r.DynamicGroupID,
		SyncIntervalMinutes: r.SyncIntervalMinutes,
	}
}

// MergeRequest names the rules to consolidate and which one's metadata
// wins.
type MergeRequest struct {
	RuleIDs []string `json:"rule_ids" binding:"required"`
	BaseID  string   `json:"base_id" binding:"required"`
}

// PreviewRequest is an unsaved rule to evaluate against the inventory.
type PreviewRequest struct {
	Patterns       []string `json:"patterns" binding:"required"`
	MatchTypes     []string `json:"match_types"`
	SortOrder      string   `json:"sort_order"`
	IncludeSources []string `json:"include_sources,omitempty"`
	ExcludeSources []string `json:"exclude_sources,omitempty"`
}

// SourceResponse describes a DVR channel source.
type SourceResponse struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// CollectionSummary is the list view of a collection.
type CollectionSummary struct {
	Slug  string `json:"slug"`
	Name  string `json:"name"`
	Total int    `json:"total"`
}

// CollectionChannel is a member entry enriched with channel details.
type CollectionChannel struct {
	ID        string `json:"id"`
	Number    string `json:"number"`
	Name      string `json:"name"`
	Callsign  string `json:"callsign,omitempty"`
	Affiliate string `json:"affiliate,omitempty"`
}

// CollectionDetail is a collection with its members resolved against
// the channel inventory.
type CollectionDetail struct {
	Slug     string              `json:"slug"`
	Name     string              `json:"name"`
	Channels []CollectionChannel `json:"channels"`
	Total    int                 `json:"total"`
}

// StatusResponse reports service state.
type StatusResponse struct {
	Status        string             `json:"status"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	SyncRunning   bool               `json:"sync_running"`
	LastSync      *models.SyncReport `json:"last_sync,omitempty"`
}

// ConnectionTestResponse reports collaborator reachability.
type ConnectionTestResponse struct {
	DVR         ConnectionState         `json:"dvr"`
	Dispatcharr *dispatcharrTestSummary `json:"dispatcharr,omitempty"`
}

// ConnectionState is one collaborator's probe result.
type ConnectionState struct {
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
}

type dispatcharrTestSummary struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	EnabledGroups int    `json:"enabled_groups_count"`
}
