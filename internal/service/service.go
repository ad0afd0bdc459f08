// Package service composes Store, Scheduler, DebugSessionEngine, SLA
// Analytics and Broadcaster into the inbound operations spec.md §6 names,
// exposed as plain Go methods. The REST/API surface itself is out of
// scope (spec.md §6): this package is the contract a transport layer would
// sit in front of, grounded on the teacher's top-level wiring in
// cmd/control-plane/main.go rather than any one teacher service type.
package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/sitewatch/monitor/internal/broadcast"
	"github.com/sitewatch/monitor/internal/debugsession"
	"github.com/sitewatch/monitor/internal/model"
	"github.com/sitewatch/monitor/internal/probe"
	"github.com/sitewatch/monitor/internal/scheduler"
	"github.com/sitewatch/monitor/internal/sla"
	"github.com/sitewatch/monitor/internal/store"
)

// Target interval bounds, per spec.md §3.
const (
	minIntervalSeconds = 60
	maxIntervalSeconds = 3600
)

// Service is the top-level facade wiring every subsystem together.
type Service struct {
	Store       *store.Store
	Scheduler   *scheduler.Scheduler
	Debug       *debugsession.Engine
	SLA         *sla.Analytics
	Broadcaster *broadcast.Broadcaster

	logger *zap.Logger
}

// New assembles a Service from already-constructed subsystems.
func New(st *store.Store, sched *scheduler.Scheduler, dbg *debugsession.Engine, analytics *sla.Analytics, bc *broadcast.Broadcaster, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{Store: st, Scheduler: sched, Debug: dbg, SLA: analytics, Broadcaster: bc, logger: logger}
}

// validateURL requires an absolute http/https URL, per spec.md §3's
// `Targets: create(...) → ... | invalid(url-format)`.
func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("url %q is not an absolute URL: %w", raw, model.ErrInvalidInput)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url %q must use http or https: %w", raw, model.ErrInvalidInput)
	}
	return nil
}

// validateInterval enforces spec.md §3's check-interval bounds (≥ 60, ≤ 3600).
func validateInterval(intervalSeconds int) error {
	if intervalSeconds < minIntervalSeconds || intervalSeconds > maxIntervalSeconds {
		return fmt.Errorf("interval %d seconds must be between %d and %d: %w",
			intervalSeconds, minIntervalSeconds, maxIntervalSeconds, model.ErrInvalidInput)
	}
	return nil
}

// CreateTarget implements `Targets: create(url,name,interval,enabled)`.
func (s *Service) CreateTarget(ctx context.Context, targetURL, name string, intervalSeconds int, enabled bool) (*model.Target, error) {
	if err := validateURL(targetURL); err != nil {
		return nil, err
	}
	if err := validateInterval(intervalSeconds); err != nil {
		return nil, err
	}
	target, err := s.Store.CreateTarget(ctx, model.Target{URL: targetURL, Name: name, IntervalSeconds: intervalSeconds, Enabled: enabled})
	if err != nil {
		return nil, err
	}
	if enabled {
		s.Scheduler.UpsertJob(*target)
	}
	return target, nil
}

// ListTargets implements `Targets: list(skip,limit)`. skip/limit are
// applied in-memory over every target Store.ListTargets returns.
func (s *Service) ListTargets(ctx context.Context, skip, limit int) ([]model.Target, error) {
	targets, err := s.Store.ListTargets(ctx, false)
	if err != nil {
		return nil, err
	}
	if skip < 0 {
		skip = 0
	}
	if skip >= len(targets) {
		return []model.Target{}, nil
	}
	targets = targets[skip:]
	if limit > 0 && limit < len(targets) {
		targets = targets[:limit]
	}
	return targets, nil
}

// GetTarget implements `Targets: get(id)`.
func (s *Service) GetTarget(ctx context.Context, id int64) (*model.Target, error) {
	return s.Store.GetTarget(ctx, id)
}

// TargetPatch carries the optional fields of `Targets: update(id, patch)`.
type TargetPatch struct {
	Name            *string
	IntervalSeconds *int
	Enabled         *bool
}

// UpdateTarget implements `Targets: update(id, patch)`, then reconciles the
// Scheduler job so interval/enabled changes take effect immediately rather
// than at the next full Reconcile.
func (s *Service) UpdateTarget(ctx context.Context, id int64, patch TargetPatch) (*model.Target, error) {
	target, err := s.Store.GetTarget(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		target.Name = *patch.Name
	}
	if patch.IntervalSeconds != nil {
		if err := validateInterval(*patch.IntervalSeconds); err != nil {
			return nil, err
		}
		target.IntervalSeconds = *patch.IntervalSeconds
	}
	if patch.Enabled != nil {
		target.Enabled = *patch.Enabled
	}

	updated, err := s.Store.UpdateTarget(ctx, *target)
	if err != nil {
		return nil, err
	}
	s.Scheduler.UpsertJob(*updated)
	return updated, nil
}

// DeleteTarget implements `Targets: delete(id)`.
func (s *Service) DeleteTarget(ctx context.Context, id int64) error {
	if err := s.Store.DeleteTarget(ctx, id); err != nil {
		return err
	}
	s.Scheduler.RemoveJob(id)
	return nil
}

// TriggerCheck implements `Monitoring: triggerCheck(targetId)`: bypasses
// the Scheduler and runs a probe immediately in the foreground. A blocked
// CircuitBreaker does not prevent it; its outcome is still reported to the
// breaker and recorded through Store like any scheduled firing.
func (s *Service) TriggerCheck(ctx context.Context, targetID int64) (*model.Check, error) {
	target, err := s.Store.GetTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}

	timeout := probe.Timeout(target.IntervalSeconds)
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return s.Scheduler.RunForeground(checkCtx, *target)
}

// TargetMetrics is one element of `SLA: metrics(...)`'s result array.
type TargetMetrics struct {
	TargetID      int64
	UptimePercent float64
	TotalChecks   int
	FailureCount  int
	Mean          *float64
	Percentiles   map[int]float64
}

// Metrics implements `SLA: metrics(targetId?, start?, end?)`. A nil
// targetID computes metrics for every target; a zero start/end defaults to
// the last 30 days, per spec.md §6.
func (s *Service) Metrics(ctx context.Context, targetID *int64, start, end time.Time) ([]TargetMetrics, error) {
	if end.IsZero() {
		end = time.Now().UTC()
	}
	if start.IsZero() {
		start = end.AddDate(0, 0, -30)
	}

	var targetIDs []int64
	if targetID != nil {
		targetIDs = []int64{*targetID}
	} else {
		targets, err := s.Store.ListTargets(ctx, false)
		if err != nil {
			return nil, err
		}
		for _, t := range targets {
			targetIDs = append(targetIDs, t.ID)
		}
	}

	out := make([]TargetMetrics, 0, len(targetIDs))
	for _, id := range targetIDs {
		m, err := s.SLA.Metrics(ctx, id, start, end)
		if err != nil {
			return nil, err
		}
		out = append(out, TargetMetrics{
			TargetID: id, UptimePercent: m.AvailabilityPercent,
			TotalChecks: m.TotalChecks, FailureCount: m.FailureCount,
			Mean: m.MeanResponseTimeMs, Percentiles: m.PercentileResponses,
		})
	}
	return out, nil
}

// CreateDebugSession implements `Debug: createSession(targetId, durationLimit?)`.
func (s *Service) CreateDebugSession(ctx context.Context, targetID int64, durationLimitSeconds *int) (*model.DebugSession, error) {
	return s.Debug.CreateSession(ctx, targetID, durationLimitSeconds)
}

// StartDebugSession implements the session's start transition.
func (s *Service) StartDebugSession(ctx context.Context, sessionID int64) error {
	return s.Debug.StartSession(ctx, sessionID)
}

// StopDebugSession implements the session's stop transition.
func (s *Service) StopDebugSession(ctx context.Context, sessionID int64) error {
	return s.Debug.StopSession(ctx, sessionID)
}

// GetDebugSession returns a session's current persisted state.
func (s *Service) GetDebugSession(ctx context.Context, sessionID int64) (*model.DebugSession, error) {
	return s.Debug.GetSession(ctx, sessionID)
}

// ListNetworkEvents returns the persisted NetworkEvents for a session.
func (s *Service) ListNetworkEvents(ctx context.Context, sessionID int64) ([]model.NetworkEvent, error) {
	return s.Debug.ListNetworkEvents(ctx, sessionID)
}

// ListConsoleMessages returns the persisted ConsoleMessages for a session.
func (s *Service) ListConsoleMessages(ctx context.Context, sessionID int64) ([]model.ConsoleMessage, error) {
	return s.Debug.ListConsoleMessages(ctx, sessionID)
}

// SubscribeDebugSession attaches a live viewer to a session's broadcast
// stream of NetworkEvents, ConsoleMessages and status updates.
func (s *Service) SubscribeDebugSession(sessionID int64) *broadcast.Subscription {
	return s.Debug.Subscribe(sessionID)
}
