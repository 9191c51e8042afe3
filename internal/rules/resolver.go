package rules

import (
	"context"
	"fmt"

	"github.com/collectarr/collectarr/internal/logger"
	"github.com/collectarr/collectarr/internal/models"
)

// GroupSource fetches channel-name patterns for an IPTV manager group.
type GroupSource interface {
	FetchGroupPatterns(ctx context.Context, groupID int) ([]string, error)
}

// Resolver materializes a rule's effective patterns before evaluation.
// Rules bound to a dynamic group get their patterns refreshed from the
// IPTV manager; a fetch failure falls back to the stored patterns so a
// manager outage never empties a collection.
type Resolver struct {
	groups GroupSource
	log    *logger.Logger
}

// NewResolver creates a resolver. groups may be nil when no IPTV
// manager is configured.
func NewResolver(groups GroupSource, log *logger.Logger) *Resolver {
	return &Resolver{groups: groups, log: log}
}

// Resolve returns the rule with its effective patterns, plus any
// non-fatal warnings produced along the way.
func (r *Resolver) Resolve(ctx context.Context, rule models.Rule) (models.Rule, []string) {
	if rule.DynamicGroupID == nil {
		return rule, nil
	}

	if r.groups == nil {
		warning := fmt.Sprintf("rule %s references group %d but no IPTV manager is configured, using stored patterns",
			rule.Name, *rule.DynamicGroupID)
		return rule, []string{warning}
	}

	patterns, err := r.groups.FetchGroupPatterns(ctx, *rule.DynamicGroupID)
	if err != nil {
		if r.log != nil {
			r.log.WithFields(map[string]interface{}{
				"rule":     rule.Name,
				"group_id": *rule.DynamicGroupID,
			}).Warn("Failed to refresh dynamic patterns, using stored patterns")
		}
		warning := fmt.Sprintf("rule %s: group %d refresh failed: %v",
			rule.Name, *rule.DynamicGroupID, err)
		return rule, []string{warning}
	}

	if len(patterns) == 0 {
		warning := fmt.Sprintf("rule %s: group %d has no channels, using stored patterns",
			rule.Name, *rule.DynamicGroupID)
		return rule, []string{warning}
	}

	rule.Patterns = models.StringList(patterns)
	return rule, nil
}
