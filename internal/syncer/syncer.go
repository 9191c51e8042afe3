package syncer

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/collectarr/collectarr/internal/errors"
	"github.com/collectarr/collectarr/internal/logger"
	"github.com/collectarr/collectarr/internal/matcher"
	"github.com/collectarr/collectarr/internal/models"
	"github.com/collectarr/collectarr/internal/reconciler"
	"github.com/collectarr/collectarr/internal/schedule"
	"gorm.io/gorm"
)

// DVR is the collection server the engine reconciles against.
type DVR interface {
	FetchInventory(ctx context.Context) ([]models.Channel, []string, error)
	FetchCollections(ctx context.Context) ([]models.Collection, error)
	CreateCollection(ctx context.Context, name string) (*models.Collection, error)
	ApplyCollection(ctx context.Context, collection models.Collection) error
}

// RuleSource provides the rules to evaluate.
type RuleSource interface {
	ListEnabled() ([]models.Rule, error)
	Get(id string) (*models.Rule, error)
	GetByCollection(collectionID string) ([]models.Rule, error)
}

// Resolver materializes a rule's effective patterns before evaluation.
type Resolver interface {
	Resolve(ctx context.Context, rule models.Rule) (models.Rule, []string)
}

// Config holds syncer settings
type Config struct {
	Concurrency           int
	AutoCreateCollections bool
}

// Syncer runs sync cycles: evaluate rules against the channel
// inventory, reconcile collection membership, and push changes to the
// DVR. At most one cycle runs at a time.
type Syncer struct {
	dvr      DVR
	rules    RuleSource
	resolver Resolver
	db       *gorm.DB
	log      *logger.Logger

	concurrency int
	autoCreate  bool
	now         func() time.Time

	slot chan struct{}

	mu         sync.RWMutex
	lastReport *models.SyncReport
}

// New creates a syncer. db may be nil to skip sync-log persistence;
// resolver may be nil when no dynamic pattern source is configured.
func New(dvr DVR, rules RuleSource, resolver Resolver, db *gorm.DB, log *logger.Logger, cfg Config) *Syncer {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	if log == nil {
		log = logger.Default()
	}

	s := &Syncer{
		dvr:         dvr,
		rules:       rules,
		resolver:    resolver,
		db:          db,
		log:         log,
		concurrency: concurrency,
		autoCreate:  cfg.AutoCreateCollections,
		now:         time.Now,
		slot:        make(chan struct{}, 1),
	}
	s.slot <- struct{}{}
	return s
}

// LastReport returns the most recent cycle's report, or nil before the
// first cycle.
func (s *Syncer) LastReport() *models.SyncReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport
}

// Running reports whether a cycle is in flight.
func (s *Syncer) Running() bool {
	return len(s.slot) == 0
}

// SyncAll runs one full cycle over every enabled rule.
func (s *Syncer) SyncAll(ctx context.Context, trigger string) (*models.SyncReport, error) {
	release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	rules, err := s.rules.ListEnabled()
	if err != nil {
		return nil, err
	}
	return s.run(ctx, trigger, rules)
}

// SyncRule runs one cycle scoped to a single rule. Rules sharing the
// target collection are evaluated too so additive semantics hold.
func (s *Syncer) SyncRule(ctx context.Context, ruleID string) (*models.SyncReport, error) {
	release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	rule, err := s.rules.Get(ruleID)
	if err != nil {
		return nil, err
	}

	if !rule.Enabled {
		report := s.newReport()
		report.Skipped = append(report.Skipped, models.SkippedRule{
			RuleID: rule.ID, RuleName: rule.Name, Reason: models.SkipDisabled,
		})
		s.finish(ctx, report, "rule")
		return report, nil
	}

	siblings, err := s.rules.GetByCollection(rule.CollectionID)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, "rule", siblings)
}

func (s *Syncer) acquire() (func(), error) {
	select {
	case <-s.slot:
		return func() { s.slot <- struct{}{} }, nil
	default:
		return nil, errors.New(errors.CodeSyncInProgress, "a sync cycle is already running")
	}
}

func (s *Syncer) newReport() *models.SyncReport {
	return &models.SyncReport{Timestamp: s.now().UTC()}
}

// run is the cycle body. The caller holds the slot.
func (s *Syncer) run(ctx context.Context, trigger string, rules []models.Rule) (*models.SyncReport, error) {
	report := s.newReport()
	started := s.now()

	s.log.WithFields(map[string]interface{}{
		"trigger": trigger,
		"rules":   len(rules),
	}).Info("Starting sync cycle")

	inventory, warnings, err := s.dvr.FetchInventory(ctx)
	if err != nil {
		report.AddError(fmt.Sprintf("failed to fetch channel inventory: %v", err))
		report.Duration = s.now().Sub(started)
		s.finish(ctx, report, trigger)
		return report, err
	}
	for _, w := range warnings {
		report.AddWarning(w)
	}
	report.Channels = len(inventory)

	// Evaluate rules, grouping results by collection target.
	byCollection := make(map[string][]reconciler.RuleResult)
	now := s.now()
	for _, rule := range rules {
		if !rule.Enabled {
			report.Skipped = append(report.Skipped, models.SkippedRule{
				RuleID: rule.ID, RuleName: rule.Name, Reason: models.SkipDisabled,
			})
			continue
		}
		if !schedule.IsActive(rule.Schedule, now) {
			report.Skipped = append(report.Skipped, models.SkippedRule{
				RuleID: rule.ID, RuleName: rule.Name, Reason: models.SkipOutsideSchedule,
			})
			continue
		}

		effective := rule
		if s.resolver != nil {
			var resolveWarnings []string
			effective, resolveWarnings = s.resolver.Resolve(ctx, rule)
			for _, w := range resolveWarnings {
				report.AddWarning(w)
			}
		}

		compiled := matcher.Compile(effective)
		for _, w := range compiled.Warnings {
			report.AddWarning(w)
		}

		byCollection[rule.CollectionID] = append(byCollection[rule.CollectionID],
			reconciler.RuleResult{Rule: effective, Matched: compiled.MatchAll(inventory)})
	}

	// Deterministic collection order for reporting.
	targets := make([]string, 0, len(byCollection))
	for target := range byCollection {
		targets = append(targets, target)
	}
	sort.Strings(targets)

	// One collection snapshot per cycle; workers resolve against it.
	var snapshot []models.Collection
	if len(targets) > 0 {
		snapshot, err = s.dvr.FetchCollections(ctx)
		if err != nil {
			report.AddError(fmt.Sprintf("failed to fetch collections: %v", err))
			report.Duration = s.now().Sub(started)
			s.finish(ctx, report, trigger)
			return report, err
		}
	}

	results := s.reconcileAll(ctx, targets, byCollection, snapshot)
	for _, res := range results {
		report.Collections = append(report.Collections, res.result)
		for _, w := range res.warnings {
			report.AddWarning(w)
		}
		if res.result.Error != "" {
			report.AddError(fmt.Sprintf("collection %s: %s", res.result.CollectionID, res.result.Error))
		}
	}

	report.Duration = s.now().Sub(started)
	s.finish(ctx, report, trigger)

	s.log.WithFields(map[string]interface{}{
		"collections": len(report.Collections),
		"errors":      len(report.Errors),
		"duration_ms": report.Duration.Milliseconds(),
	}).Info("Sync cycle complete")

	return report, nil
}

type collectionOutcome struct {
	result   models.CollectionResult
	warnings []string
}

// reconcileAll processes collections with a bounded worker pool.
func (s *Syncer) reconcileAll(ctx context.Context, targets []string, byCollection map[string][]reconciler.RuleResult, snapshot []models.Collection) []collectionOutcome {
	jobs := make(chan string, len(targets))
	for _, target := range targets {
		jobs <- target
	}
	close(jobs)

	outcomes := make(map[string]collectionOutcome, len(targets))
	var mu sync.Mutex
	var wg sync.WaitGroup

	workers := s.concurrency
	if workers > len(targets) {
		workers = len(targets)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for target := range jobs {
				var outcome collectionOutcome
				select {
				case <-ctx.Done():
					outcome = collectionOutcome{result: models.CollectionResult{
						CollectionID: target,
						Error:        ctx.Err().Error(),
					}}
				default:
					outcome = s.reconcileCollection(ctx, target, byCollection[target], snapshot)
				}
				mu.Lock()
				outcomes[target] = outcome
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	ordered := make([]collectionOutcome, 0, len(targets))
	for _, target := range targets {
		ordered = append(ordered, outcomes[target])
	}
	return ordered
}

// reconcileCollection resolves one collection target against the cycle
// snapshot, computes the membership plan and applies it when it changes
// anything.
func (s *Syncer) reconcileCollection(ctx context.Context, target string, results []reconciler.RuleResult, snapshot []models.Collection) collectionOutcome {
	collection := findCollection(snapshot, target)
	if collection == nil {
		if !s.autoCreate {
			return collectionOutcome{result: models.CollectionResult{
				CollectionID: target,
				SharingCount: len(results),
				Error:        fmt.Sprintf("collection not found: %s", target),
			}}
		}
		created, err := s.dvr.CreateCollection(ctx, target)
		if err != nil {
			return collectionOutcome{result: models.CollectionResult{
				CollectionID: target,
				SharingCount: len(results),
				Error:        err.Error(),
			}}
		}
		collection = created
	}

	plan := reconciler.Reconcile(collection.ID, results, collection.Members)

	result := models.CollectionResult{
		CollectionID: collection.ID,
		Name:         collection.Name,
		Total:        len(plan.Desired),
		Added:        len(plan.Added),
		Removed:      len(plan.Removed),
		Additive:     plan.Additive,
		SharingCount: plan.SharingCount,
	}

	if membersEqual(collection.Members, plan.Desired) {
		return collectionOutcome{result: result, warnings: plan.Warnings}
	}

	updated := *collection
	updated.Members = plan.Desired
	if err := s.dvr.ApplyCollection(ctx, updated); err != nil {
		result.Error = err.Error()
	}
	return collectionOutcome{result: result, warnings: plan.Warnings}
}

// findCollection matches a rule's target against the snapshot, by slug
// first and then by case-insensitive name.
func findCollection(snapshot []models.Collection, target string) *models.Collection {
	for i := range snapshot {
		if snapshot[i].ID == target {
			col := snapshot[i]
			return &col
		}
	}
	for i := range snapshot {
		if strings.EqualFold(snapshot[i].Name, target) {
			col := snapshot[i]
			return &col
		}
	}
	return nil
}

func membersEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// finish stores the report and persists a sync-log summary.
func (s *Syncer) finish(ctx context.Context, report *models.SyncReport, trigger string) {
	s.mu.Lock()
	s.lastReport = report
	s.mu.Unlock()

	if s.db == nil {
		return
	}

	status := "success"
	var errorText *string
	if len(report.Errors) > 0 {
		status = "completed_with_errors"
		if report.Channels == 0 && len(report.Collections) == 0 {
			status = "failed"
		}
		joined := ""
		for i, e := range report.Errors {
			if i > 0 {
				joined += "; "
			}
			joined += e
		}
		errorText = &joined
	}

	added, removed := 0, 0
	for _, col := range report.Collections {
		added += col.Added
		removed += col.Removed
	}

	log := models.SyncLog{
		Trigger:     trigger,
		Status:      status,
		Channels:    report.Channels,
		Collections: len(report.Collections),
		Added:       added,
		Removed:     removed,
		Warnings:    len(report.Warnings),
		ErrorText:   errorText,
		StartedAt:   report.Timestamp,
		DurationMS:  report.Duration.Milliseconds(),
	}
	if err := s.db.WithContext(ctx).Create(&log).Error; err != nil {
		s.log.Error("Failed to persist sync log", err)
	}
}

// History returns the most recent sync-log rows, newest first.
func (s *Syncer) History(limit int) ([]models.SyncLog, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	var logs []models.SyncLog
	err := s.db.Order("started_at desc").Limit(limit).Find(&logs).Error
	if err != nil {
		return nil, errors.DatabaseError("failed to fetch sync history", err)
	}
	return logs, nil
}
