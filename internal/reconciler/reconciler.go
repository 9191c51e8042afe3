package reconciler

import (
	"github.com/collectarr/collectarr/internal/models"
	"github.com/collectarr/collectarr/internal/sorter"
)

// RuleResult is one rule's evaluated match set for a cycle.
type RuleResult struct {
	Rule    models.Rule
	Matched []models.Channel
}

// Plan is the computed membership delta for one collection. The DVR
// client applies Desired; Added and Removed exist for reporting.
type Plan struct {
	CollectionID string
	Desired      []string // ordered channel IDs
	Added        []string
	Removed      []string
	Additive     bool
	SharingCount int
	Warnings     []string
}

// Reconcile computes the desired membership for one collection from the
// rule results targeting it and the collection's current members.
//
// With a single rule the collection is replaced: desired membership is
// exactly the rule's matched set in the rule's sort order. With more
// than one rule the collection is shared and reconciliation is
// additive: existing members are never removed, and the union of all
// matched sets is appended.
func Reconcile(collectionID string, results []RuleResult, current []string) Plan {
	plan := Plan{
		CollectionID: collectionID,
		SharingCount: len(results),
	}
	if len(results) == 0 {
		plan.Desired = append([]string(nil), current...)
		return plan
	}

	if len(results) == 1 {
		plan.Desired = sortedIDs(results[0], &plan)
	} else {
		plan.Additive = true
		plan.Desired = additiveMembers(results, current, &plan)
	}

	currentSet := toSet(current)
	desiredSet := toSet(plan.Desired)

	for _, id := range plan.Desired {
		if _, ok := currentSet[id]; !ok {
			plan.Added = append(plan.Added, id)
		}
	}
	for _, id := range current {
		if _, ok := desiredSet[id]; !ok {
			plan.Removed = append(plan.Removed, id)
		}
	}

	return plan
}

// sortedIDs orders a single rule's matched set by its declared sort
// order and returns the deduplicated ID sequence.
func sortedIDs(result RuleResult, plan *Plan) []string {
	ordered, err := sorter.Sort(result.Matched, result.Rule.SortOrder)
	if err != nil {
		plan.Warnings = append(plan.Warnings, err.Error())
	}

	seen := make(map[string]struct{}, len(ordered))
	ids := make([]string, 0, len(ordered))
	for _, ch := range ordered {
		if _, ok := seen[ch.ID]; ok {
			continue
		}
		seen[ch.ID] = struct{}{}
		ids = append(ids, ch.ID)
	}
	return ids
}

// additiveMembers keeps the current members in their existing order and
// appends newly matched channels, ordered by the first rule's sort
// order. Shared collections never lose members during sync.
func additiveMembers(results []RuleResult, current []string, plan *Plan) []string {
	desired := make([]string, 0, len(current))
	seen := make(map[string]struct{}, len(current))
	for _, id := range current {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		desired = append(desired, id)
	}

	// Union of all matched sets, first-seen order across rules.
	var union []models.Channel
	inUnion := make(map[string]struct{})
	for _, result := range results {
		for _, ch := range result.Matched {
			if _, ok := inUnion[ch.ID]; ok {
				continue
			}
			inUnion[ch.ID] = struct{}{}
			union = append(union, ch)
		}
	}

	ordered, err := sorter.Sort(union, results[0].Rule.SortOrder)
	if err != nil {
		plan.Warnings = append(plan.Warnings, err.Error())
	}

	for _, ch := range ordered {
		if _, ok := seen[ch.ID]; ok {
			continue
		}
		seen[ch.ID] = struct{}{}
		desired = append(desired, ch.ID)
	}

	return desired
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
