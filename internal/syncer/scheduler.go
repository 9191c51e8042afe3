package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/collectarr/collectarr/internal/errors"
	"github.com/collectarr/collectarr/internal/logger"
	"github.com/collectarr/collectarr/internal/models"
)

// schedulerTick is the resolution for per-rule interval checks.
const schedulerTick = time.Minute

// Scheduler drives periodic syncs: a global cycle on a fixed interval,
// plus extra per-rule cycles for rules carrying their own
// SyncIntervalMinutes.
type Scheduler struct {
	syncer   *Syncer
	rules    RuleSource
	log      *logger.Logger
	interval time.Duration

	mu          sync.Mutex
	lastRuleRun map[string]time.Time
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewScheduler creates a scheduler around the syncer.
func NewScheduler(s *Syncer, rules RuleSource, log *logger.Logger, interval time.Duration) *Scheduler {
	if log == nil {
		log = logger.Default()
	}
	return &Scheduler{
		syncer:      s,
		rules:       rules,
		log:         log,
		interval:    interval,
		lastRuleRun: make(map[string]time.Time),
	}
}

// Start launches the scheduler loop. It returns immediately.
func (sc *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	sc.cancel = cancel
	sc.done = make(chan struct{})

	go sc.loop(ctx)
	sc.log.WithFields(map[string]interface{}{
		"interval_minutes": sc.interval.Minutes(),
	}).Info("Scheduler started")
}

// Stop halts the scheduler and waits for the loop to exit. In-flight
// sync cycles finish on their own.
func (sc *Scheduler) Stop() {
	if sc.cancel == nil {
		return
	}
	sc.cancel()
	<-sc.done
	sc.log.Info("Scheduler stopped")
}

func (sc *Scheduler) loop(ctx context.Context) {
	defer close(sc.done)

	global := time.NewTicker(sc.interval)
	defer global.Stop()
	perRule := time.NewTicker(schedulerTick)
	defer perRule.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-global.C:
			sc.runGlobal(ctx)
		case <-perRule.C:
			sc.runDueRules(ctx)
		}
	}
}

func (sc *Scheduler) runGlobal(ctx context.Context) {
	_, err := sc.syncer.SyncAll(ctx, "interval")
	if err != nil {
		if errors.GetErrorCode(err) == errors.CodeSyncInProgress {
			sc.log.Warn("Skipping scheduled sync, previous cycle still running")
			return
		}
		sc.log.Error("Scheduled sync failed", err)
	}
}

// runDueRules fires per-rule syncs whose own interval has elapsed.
func (sc *Scheduler) runDueRules(ctx context.Context) {
	rules, err := sc.rules.ListEnabled()
	if err != nil {
		sc.log.Error("Failed to list rules for per-rule scheduling", err)
		return
	}

	now := time.Now()
	for _, rule := range rules {
		if rule.SyncIntervalMinutes == nil {
			continue
		}
		if !sc.due(rule, now) {
			continue
		}

		sc.mu.Lock()
		sc.lastRuleRun[rule.ID] = now
		sc.mu.Unlock()

		if _, err := sc.syncer.SyncRule(ctx, rule.ID); err != nil {
			if errors.GetErrorCode(err) == errors.CodeSyncInProgress {
				// Another cycle holds the slot; the rule stays marked as
				// run so it waits a full interval rather than hammering.
				continue
			}
			sc.log.WithFields(map[string]interface{}{
				"rule": rule.Name,
			}).Error("Per-rule sync failed", err)
		}
	}
}

func (sc *Scheduler) due(rule models.Rule, now time.Time) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	last, ok := sc.lastRuleRun[rule.ID]
	if !ok {
		// First sighting: anchor the interval instead of firing
		// immediately, the startup sync already covered it.
		sc.lastRuleRun[rule.ID] = now
		return false
	}
	return now.Sub(last) >= time.Duration(*rule.SyncIntervalMinutes)*time.Minute
}
