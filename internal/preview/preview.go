package preview

import (
	"time"

	"github.com/collectarr/collectarr/internal/matcher"
	"github.com/collectarr/collectarr/internal/models"
	"github.com/collectarr/collectarr/internal/sorter"
)

// PatternHits reports how many inventory channels a single pattern
// matched, so dead patterns stand out before a rule is saved.
type PatternHits struct {
	Pattern string `json:"pattern"`
	Hits    int    `json:"hits"`
}

// Result is a dry-run evaluation of one rule against the inventory.
// Nothing is written to the DVR.
type Result struct {
	Timestamp time.Time        `json:"timestamp"`
	Total     int              `json:"total"`
	SortOrder string           `json:"sort_order"`
	Channels  []models.Channel `json:"channels"`
	Patterns  []PatternHits    `json:"patterns"`
	Warnings  []string         `json:"warnings,omitempty"`
}

// Analyze evaluates a rule against the inventory and returns the
// matched channels in the order a sync would apply, plus per-pattern
// hit counts.
func Analyze(rule models.Rule, inventory []models.Channel) *Result {
	result := &Result{
		Timestamp: time.Now().UTC(),
		SortOrder: rule.SortOrder,
	}

	compiled := matcher.Compile(rule)
	result.Warnings = append(result.Warnings, compiled.Warnings...)

	matched := compiled.MatchAll(inventory)

	sorted, err := sorter.Sort(matched, rule.SortOrder)
	if err != nil {
		result.Warnings = append(result.Warnings, err.Error())
	}
	result.Channels = sorted
	result.Total = len(sorted)

	// Per-pattern counts use single-pattern sub-rules so OR semantics
	// don't hide which pattern did the work.
	for _, p := range rule.Patterns {
		sub := rule
		sub.Patterns = models.StringList{p}
		hits := len(matcher.Compile(sub).MatchAll(inventory))
		result.Patterns = append(result.Patterns, PatternHits{Pattern: p, Hits: hits})
	}

	return result
}
