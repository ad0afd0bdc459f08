// Package scheduler owns the set of active per-target jobs, reconciles
// against Store, and triggers Probe through CircuitBreaker, persisting
// outcomes via Store, per spec.md §4.1.
//
// Firing is driven by github.com/robfig/cron/v3: each Target gets one
// cron.Entry on a custom everyInterval Schedule (Next(prev) = prev.Add(interval)),
// so a backlog of missed firings coalesces to a single due firing rather
// than queuing, and the entry is wrapped in cron.SkipIfStillRunning so at
// most one probe per target is ever in flight — the library's own
// mechanisms satisfy spec.md §4.1's coalescing/non-overlap requirements
// instead of the hand-rolled activeTargets claim/release map the teacher
// uses in internal/controlplane/jobs/scheduler.go (which this package is
// otherwise structurally grounded on: store-backed reconcile, per-target job
// handle map, lifecycle logging).
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/sitewatch/monitor/internal/breaker"
	"github.com/sitewatch/monitor/internal/model"
	"github.com/sitewatch/monitor/internal/probe"
	"github.com/sitewatch/monitor/internal/store"
	"github.com/sitewatch/monitor/internal/telemetry"
)

// DebugSessionLookup resolves whether a Target currently has an active
// DebugSession and, if so, the sink its captured NetworkEvents should be
// forwarded to. Implemented by internal/debugsession.Engine.
type DebugSessionLookup interface {
	ActiveSink(ctx context.Context, targetID int64) (probe.NetworkEventSink, bool)
}

// Scheduler maintains target-id -> cron.EntryID and fires Probe through
// CircuitBreaker on each due tick.
type Scheduler struct {
	store        *store.Store
	breaker      *breaker.Breaker
	httpProbe    *probe.HTTPProbe
	browserProbe *probe.BrowserProbe
	debugLookup  DebugSessionLookup
	logger       *zap.Logger
	graceSeconds int

	cronRunner *cron.Cron

	mu      sync.Mutex
	entries map[int64]jobEntry
}

// jobEntry is the last interval a target's cron.Entry was scheduled with,
// kept alongside the entry id so Reconcile can detect configuration drift
// (a Target's interval changed by something other than UpsertJob) and
// re-schedule rather than silently keep firing at the stale interval.
type jobEntry struct {
	id              cron.EntryID
	intervalSeconds int
}

// New creates a Scheduler. browserProbe and debugLookup may both be nil, in
// which case every check uses the HTTP probe.
func New(st *store.Store, br *breaker.Breaker, httpProbe *probe.HTTPProbe, browserProbe *probe.BrowserProbe, debugLookup DebugSessionLookup, graceSeconds int, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		store:        st,
		breaker:      br,
		httpProbe:    httpProbe,
		browserProbe: browserProbe,
		debugLookup:  debugLookup,
		logger:       logger,
		graceSeconds: graceSeconds,
		cronRunner:   cron.New(cron.WithLocation(time.UTC)),
		entries:      make(map[int64]jobEntry),
	}
}

// Start reads all enabled Targets from Store, registers one job per Target,
// and begins firing.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Reconcile(ctx); err != nil {
		return fmt.Errorf("initial reconcile: %w", err)
	}
	s.cronRunner.Start()
	s.logger.Info("scheduler started")
	return nil
}

// Stop drains in-flight jobs and releases resources. cron.Cron.Stop()
// returns a context that completes once all running jobs have returned,
// which is what lets Stop satisfy spec.md §5's "awaits in-flight probes"
// cancellation requirement.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cronRunner.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reconcile idempotently diffs the active job set against Store: adds jobs
// for newly enabled Targets, removes jobs for disabled/deleted Targets, and
// replaces jobs whose interval changed — including drift introduced by
// anything other than UpsertJob, such as a direct Store mutation.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	targets, err := s.store.ListTargets(ctx, true)
	if err != nil {
		return fmt.Errorf("list enabled targets: %w", err)
	}

	wanted := make(map[int64]model.Target, len(targets))
	for _, t := range targets {
		wanted[t.ID] = t
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.entries {
		if _, ok := wanted[id]; !ok {
			s.removeJobLocked(id)
		}
	}

	for id, t := range wanted {
		existing, ok := s.entries[id]
		if !ok || existing.intervalSeconds != t.IntervalSeconds {
			s.upsertJobLocked(t)
		}
	}

	return nil
}

// UpsertJob removes any existing job for target.ID and adds a fresh one —
// used both by Reconcile for new targets and directly when a target's
// interval or enabled flag changes.
func (s *Scheduler) UpsertJob(target model.Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertJobLocked(target)
}

func (s *Scheduler) upsertJobLocked(target model.Target) {
	if entry, ok := s.entries[target.ID]; ok {
		s.cronRunner.Remove(entry.id)
		delete(s.entries, target.ID)
	}
	if !target.Enabled {
		return
	}

	schedule := everyInterval{interval: time.Duration(target.IntervalSeconds) * time.Second}
	targetID := target.ID

	job := cron.NewChain(cron.SkipIfStillRunning(cronLogAdapter{s.logger})).
		Then(cron.FuncJob(func() { s.runCheck(context.Background(), targetID) }))

	entryID := s.cronRunner.Schedule(schedule, job)
	s.entries[target.ID] = jobEntry{id: entryID, intervalSeconds: target.IntervalSeconds}
}

// RemoveJob removes the job for targetID, if any.
func (s *Scheduler) RemoveJob(targetID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeJobLocked(targetID)
}

func (s *Scheduler) removeJobLocked(targetID int64) {
	if entry, ok := s.entries[targetID]; ok {
		s.cronRunner.Remove(entry.id)
		delete(s.entries, targetID)
	}
}

// runCheck executes the job firing sequence of spec.md §4.1 for one target.
func (s *Scheduler) runCheck(ctx context.Context, targetID int64) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in scheduled check recovered", zap.Int64("target_id", targetID), zap.Any("panic", r))
		}
	}()

	if s.breaker.IsBlocked(targetID) {
		s.logger.Debug("target blocked by circuit breaker, skipping", zap.Int64("target_id", targetID))
		return
	}

	target, err := s.store.GetTarget(ctx, targetID)
	if err != nil {
		s.logger.Info("target vanished, removing job", zap.Int64("target_id", targetID), zap.Error(err))
		s.RemoveJob(targetID)
		return
	}
	if !target.Enabled {
		s.RemoveJob(targetID)
		return
	}

	timeout := probe.Timeout(target.IntervalSeconds)
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outcome := s.runProbe(checkCtx, *target)

	check, err := s.store.RecordCheck(ctx, outcome.ToCheck(target.ID))
	if err != nil {
		s.logger.Error("failed to record check", zap.Int64("target_id", target.ID), zap.Error(err))
		return
	}

	outcomeLabel := "success"
	if check.Available {
		s.breaker.RecordSuccess(target.ID)
		if err := s.store.SetConsecutiveFailures(ctx, target.ID, 0); err != nil {
			s.logger.Warn("failed to reset consecutive failures", zap.Int64("target_id", target.ID), zap.Error(err))
		}
	} else {
		outcomeLabel = "failure"
		s.breaker.RecordFailure(target.ID)
		if err := s.store.SetConsecutiveFailures(ctx, target.ID, target.ConsecutiveFailures+1); err != nil {
			s.logger.Warn("failed to persist consecutive failures", zap.Int64("target_id", target.ID), zap.Error(err))
		}
	}
	telemetry.RecordCheck(target.Name, outcomeLabel, time.Duration(outcome.ResponseTimeMs*float64(time.Millisecond)))
}

// RunForeground implements `Monitoring: triggerCheck`: runs one probe and
// records it exactly like a scheduled firing, but bypasses the breaker's
// IsBlocked gate and the cron entry entirely — it still reports the
// outcome to the breaker afterward, it just never consults it beforehand.
// This is a direct, synchronous request, not a scheduled job run.
func (s *Scheduler) RunForeground(ctx context.Context, target model.Target) (*model.Check, error) {
	outcome := s.runProbe(ctx, target)
	check, err := s.store.RecordCheck(ctx, outcome.ToCheck(target.ID))
	if err != nil {
		return nil, fmt.Errorf("record foreground check: %w", err)
	}

	outcomeLabel := "success"
	if check.Available {
		s.breaker.RecordSuccess(target.ID)
		if err := s.store.SetConsecutiveFailures(ctx, target.ID, 0); err != nil {
			s.logger.Warn("failed to reset consecutive failures", zap.Int64("target_id", target.ID), zap.Error(err))
		}
	} else {
		outcomeLabel = "failure"
		s.breaker.RecordFailure(target.ID)
		if err := s.store.SetConsecutiveFailures(ctx, target.ID, target.ConsecutiveFailures+1); err != nil {
			s.logger.Warn("failed to persist consecutive failures", zap.Int64("target_id", target.ID), zap.Error(err))
		}
	}
	telemetry.RecordCheck(target.Name, outcomeLabel, time.Duration(outcome.ResponseTimeMs*float64(time.Millisecond)))
	return check, nil
}

// runProbe picks the HTTP probe by default, switching to the browser probe
// when a DebugSession is active for this target (required by spec.md §4.2),
// recovering from any panic inside the chosen prober into an "unexpected"
// outcome per spec.md §4.1 item 3.
func (s *Scheduler) runProbe(ctx context.Context, target model.Target) (out probe.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = probe.Outcome{
				Available: false, ErrorKind: model.ErrorKindUnexpected,
				ErrorDetail: fmt.Sprintf("probe panic: %v", r), ObservedAt: time.Now().UTC(),
			}
		}
	}()

	ctx, span := telemetry.StartCheckSpan(ctx, target.ID, target.URL)
	defer span.End()

	if s.debugLookup != nil && s.browserProbe != nil {
		if sink, active := s.debugLookup.ActiveSink(ctx, target.ID); active {
			return s.browserProbe.Check(ctx, target, sink)
		}
	}
	return s.httpProbe.Check(ctx, target)
}

// everyInterval is a cron.Schedule whose next firing is always exactly one
// interval after the previous firing, so a process restart or a backlog of
// missed ticks collapses to the single next due time instead of firing once
// per missed tick.
type everyInterval struct {
	interval time.Duration
}

func (e everyInterval) Next(prev time.Time) time.Time {
	return prev.Add(e.interval)
}

// cronLogAdapter lets cron.SkipIfStillRunning log through zap instead of
// the standard library logger.
type cronLogAdapter struct {
	logger *zap.Logger
}

func (a cronLogAdapter) Info(msg string, keysAndValues ...any) {
	a.logger.Sugar().Infow(msg, keysAndValues...)
}

func (a cronLogAdapter) Error(err error, msg string, keysAndValues ...any) {
	a.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
