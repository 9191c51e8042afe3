package reconciler

import (
	"encoding/json"
	"testing"

	"github.com/collectarr/collectarr/internal/models"
)

func ch(id, name string) models.Channel {
	return models.Channel{ID: id, Name: name}
}

func TestReplaceMode(t *testing.T) {
	rule := models.Rule{ID: "r1", Name: "sports", SortOrder: models.SortAlphaAsc}
	results := []RuleResult{{
		Rule:    rule,
		Matched: []models.Channel{ch("2", "FOX"), ch("1", "ESPN")},
	}}

	plan := Reconcile("sports", results, []string{"1", "9"})

	if plan.Additive {
		t.Error("single rule must use replace mode")
	}
	if plan.SharingCount != 1 {
		t.Errorf("sharing count = %d, want 1", plan.SharingCount)
	}
	if len(plan.Desired) != 2 || plan.Desired[0] != "1" || plan.Desired[1] != "2" {
		t.Errorf("desired = %v, want [1 2] (alpha order)", plan.Desired)
	}
	if len(plan.Added) != 1 || plan.Added[0] != "2" {
		t.Errorf("added = %v, want [2]", plan.Added)
	}
	if len(plan.Removed) != 1 || plan.Removed[0] != "9" {
		t.Errorf("removed = %v, want [9]", plan.Removed)
	}
}

func TestAdditiveModeScenario(t *testing.T) {
	// Two rules both targeting "sports": A matches {1,2}, B matches {2,3},
	// current members {1} -> desired {1,2,3}, added {2,3}, removed {}.
	ruleA := models.Rule{ID: "a", Name: "A", SortOrder: models.SortNone}
	ruleB := models.Rule{ID: "b", Name: "B", SortOrder: models.SortNone}
	results := []RuleResult{
		{Rule: ruleA, Matched: []models.Channel{ch("1", "ESPN"), ch("2", "ESPN2")}},
		{Rule: ruleB, Matched: []models.Channel{ch("2", "ESPN2"), ch("3", "FOX")}},
	}

	plan := Reconcile("sports", results, []string{"1"})

	if !plan.Additive {
		t.Error("shared collection must use additive mode")
	}
	if plan.SharingCount != 2 {
		t.Errorf("sharing count = %d, want 2", plan.SharingCount)
	}
	if len(plan.Desired) != 3 || plan.Desired[0] != "1" || plan.Desired[1] != "2" || plan.Desired[2] != "3" {
		t.Errorf("desired = %v, want [1 2 3]", plan.Desired)
	}
	if len(plan.Added) != 2 {
		t.Errorf("added = %v, want [2 3]", plan.Added)
	}
	if len(plan.Removed) != 0 {
		t.Errorf("removed must be empty in additive mode, got %v", plan.Removed)
	}
}

func TestAdditiveNeverRemovesCurrent(t *testing.T) {
	// Current members absent from every rule's match set survive.
	results := []RuleResult{
		{Rule: models.Rule{ID: "a"}, Matched: []models.Channel{ch("10", "X")}},
		{Rule: models.Rule{ID: "b"}, Matched: []models.Channel{ch("11", "Y")}},
	}

	plan := Reconcile("c", results, []string{"1", "2", "3"})

	if len(plan.Removed) != 0 {
		t.Fatalf("removed = %v, want empty", plan.Removed)
	}
	desired := make(map[string]struct{})
	for _, id := range plan.Desired {
		desired[id] = struct{}{}
	}
	for _, id := range []string{"1", "2", "3"} {
		if _, ok := desired[id]; !ok {
			t.Errorf("current member %s dropped by additive sync", id)
		}
	}
}

func TestReconcileIdempotent(t *testing.T) {
	rule := models.Rule{ID: "r1", SortOrder: models.SortAlphaAsc}
	results := []RuleResult{{
		Rule:    rule,
		Matched: []models.Channel{ch("2", "FOX"), ch("1", "ESPN")},
	}}

	first := Reconcile("c", results, []string{"9"})
	second := Reconcile("c", results, first.Desired)

	if len(second.Added) != 0 || len(second.Removed) != 0 {
		t.Errorf("second reconcile must yield empty delta, got added=%v removed=%v",
			second.Added, second.Removed)
	}
}

func TestReplaceModeDeduplicates(t *testing.T) {
	results := []RuleResult{{
		Rule:    models.Rule{ID: "r1", SortOrder: models.SortNone},
		Matched: []models.Channel{ch("1", "A"), ch("1", "A"), ch("2", "B")},
	}}

	plan := Reconcile("c", results, nil)
	if len(plan.Desired) != 2 {
		t.Errorf("desired = %v, want deduplicated [1 2]", plan.Desired)
	}
}

func TestMergeScenario(t *testing.T) {
	a := models.Rule{ID: "a", Name: "Sports A", CollectionID: "sports",
		Patterns: models.StringList{"ESPN"}, SortOrder: models.SortAlphaAsc}
	b := models.Rule{ID: "b", Name: "Sports B", CollectionID: "sports",
		Patterns: models.StringList{"FOX"}}

	merged := Merge([]models.Rule{a, b}, a)

	if merged.Name != "Sports A"+MergeMarker {
		t.Errorf("merged name = %q", merged.Name)
	}
	if merged.ID != "a" {
		t.Errorf("merged rule must keep the base ID, got %q", merged.ID)
	}
	if len(merged.Patterns) != 2 || merged.Patterns[0] != "ESPN" || merged.Patterns[1] != "FOX" {
		t.Errorf("merged patterns = %v, want [ESPN FOX]", merged.Patterns)
	}
	if merged.SortOrder != models.SortAlphaAsc {
		t.Errorf("sort order must come from the base rule, got %q", merged.SortOrder)
	}
	if merged.CollectionID != "sports" {
		t.Errorf("collection target must come from the base rule, got %q", merged.CollectionID)
	}
}

func TestMergeDeduplicatesPatterns(t *testing.T) {
	a := models.Rule{ID: "a", Name: "A", Patterns: models.StringList{"ESPN", "FOX"}}
	b := models.Rule{ID: "b", Name: "B", Patterns: models.StringList{"FOX", "NBC"}}

	merged := Merge([]models.Rule{a, b}, a)

	want := []string{"ESPN", "FOX", "NBC"}
	if len(merged.Patterns) != len(want) {
		t.Fatalf("patterns = %v, want %v", merged.Patterns, want)
	}
	for i, p := range want {
		if merged.Patterns[i] != p {
			t.Errorf("patterns[%d] = %q, want %q", i, merged.Patterns[i], p)
		}
	}
}

func TestMergeMetadataBaseWins(t *testing.T) {
	a := models.Rule{ID: "a", Name: "A",
		Patterns:    models.StringList{"ESPN"},
		PatternMeta: models.PatternMeta{"ESPN": json.RawMessage(`{"from":"a"}`)}}
	b := models.Rule{ID: "b", Name: "B",
		Patterns: models.StringList{"ESPN", "FOX"},
		PatternMeta: models.PatternMeta{
			"ESPN": json.RawMessage(`{"from":"b"}`),
			"FOX":  json.RawMessage(`{"from":"b"}`),
		}}

	merged := Merge([]models.Rule{a, b}, a)

	if string(merged.PatternMeta["ESPN"]) != `{"from":"a"}` {
		t.Errorf("base metadata must win on collision, got %s", merged.PatternMeta["ESPN"])
	}
	if string(merged.PatternMeta["FOX"]) != `{"from":"b"}` {
		t.Errorf("non-colliding metadata must be carried, got %s", merged.PatternMeta["FOX"])
	}
}
