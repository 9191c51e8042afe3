package reconciler

import (
	"encoding/json"

	"github.com/collectarr/collectarr/internal/models"
)

// MergeMarker is appended to the base rule's name when rules sharing a
// collection are consolidated.
const MergeMarker = " (merged)"

// Merge consolidates rules sharing one collection into a single
// replacement rule. Patterns are the deduplicated union in first-seen
// order; per-pattern metadata is merged keyed by pattern literal with
// the base rule winning on collision; every other field comes from the
// base rule. Merge performs no I/O: the caller deletes the superseded
// rules and persists the result.
func Merge(rules []models.Rule, base models.Rule) models.Rule {
	merged := base
	merged.Name = base.Name + MergeMarker

	var patterns models.StringList
	seen := make(map[string]struct{})
	meta := make(models.PatternMeta)

	add := func(r models.Rule) {
		for _, p := range r.Patterns {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				patterns = append(patterns, p)
			}
			if raw, ok := r.PatternMeta[p]; ok {
				if _, exists := meta[p]; !exists {
					meta[p] = cloneRaw(raw)
				}
			}
		}
	}

	// Base first so its metadata wins on key collision.
	add(base)
	for _, r := range rules {
		if r.ID == base.ID {
			continue
		}
		add(r)
	}

	merged.Patterns = patterns
	if len(meta) > 0 {
		merged.PatternMeta = meta
	} else {
		merged.PatternMeta = nil
	}

	return merged
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
