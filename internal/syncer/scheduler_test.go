package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/collectarr/collectarr/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intervalRule(id, collection string, minutes int, patterns ...string) models.Rule {
	rule := nameRule(id, collection, patterns...)
	rule.SyncIntervalMinutes = &minutes
	return rule
}

func TestDueAnchorsFirstSighting(t *testing.T) {
	rules := &fakeRules{rules: []models.Rule{intervalRule("a", "sports", 15, "ESPN")}}
	sc := NewScheduler(newTestSyncer(newFakeDVR(), rules), rules, nil, time.Hour)

	rule := rules.rules[0]
	now := time.Now()

	assert.False(t, sc.due(rule, now), "first sighting should anchor, not fire")
	assert.False(t, sc.due(rule, now.Add(14*time.Minute)))
	assert.True(t, sc.due(rule, now.Add(15*time.Minute)))
}

func TestRunDueRulesFiresOnlyElapsedIntervalRules(t *testing.T) {
	dvr := newFakeDVR()
	rules := &fakeRules{rules: []models.Rule{
		intervalRule("a", "sports", 5, "^ESPN"),
		nameRule("b", "news", "CNN"),
	}}
	sc := NewScheduler(newTestSyncer(dvr, rules), rules, nil, time.Hour)

	sc.lastRuleRun["a"] = time.Now().Add(-10 * time.Minute)
	sc.runDueRules(context.Background())

	assert.Equal(t, []string{"1", "2"}, dvr.applied["sports"])
	assert.NotContains(t, dvr.applied, "news", "rules without their own interval ride the global cycle")
	assert.WithinDuration(t, time.Now(), sc.lastRuleRun["a"], time.Minute)
}

func TestRunDueRulesSkipsFreshRules(t *testing.T) {
	dvr := newFakeDVR()
	rules := &fakeRules{rules: []models.Rule{intervalRule("a", "sports", 60, "^ESPN")}}
	sc := NewScheduler(newTestSyncer(dvr, rules), rules, nil, time.Hour)

	sc.lastRuleRun["a"] = time.Now().Add(-30 * time.Minute)
	sc.runDueRules(context.Background())

	assert.Empty(t, dvr.applied)
}

func TestRunGlobalSkipsWhileCycleRunning(t *testing.T) {
	dvr := newFakeDVR()
	rules := &fakeRules{rules: []models.Rule{nameRule("a", "sports", "^ESPN")}}
	s := newTestSyncer(dvr, rules)
	sc := NewScheduler(s, rules, nil, time.Hour)

	<-s.slot
	sc.runGlobal(context.Background())
	s.slot <- struct{}{}

	assert.Empty(t, dvr.applied)
}

func TestSchedulerStartStop(t *testing.T) {
	rules := &fakeRules{}
	sc := NewScheduler(newTestSyncer(newFakeDVR(), rules), rules, nil, time.Hour)

	sc.Start(context.Background())
	require.NotNil(t, sc.done)
	sc.Stop()

	select {
	case <-sc.done:
	default:
		t.Fatal("loop still running after Stop")
	}
}
