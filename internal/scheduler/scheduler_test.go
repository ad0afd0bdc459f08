package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sitewatch/monitor/internal/breaker"
	"github.com/sitewatch/monitor/internal/model"
	"github.com/sitewatch/monitor/internal/probe"
	"github.com/sitewatch/monitor/internal/store"
)

func TestEveryIntervalNextIsExactlyOneIntervalLater(t *testing.T) {
	sched := everyInterval{interval: 5 * time.Minute}
	prev := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	got := sched.Next(prev)
	want := prev.Add(5 * time.Minute)
	if !got.Equal(want) {
		t.Fatalf("Next(%v) = %v, want %v", prev, got, want)
	}
}

func TestEveryIntervalCoalescesMissedTicksToOneNextFiring(t *testing.T) {
	sched := everyInterval{interval: time.Minute}
	// Even if "prev" is far in the past (a long outage), Next only advances
	// by one interval — cron's own loop re-evaluates against wall clock on
	// every pass, so a backlog never queues multiple catch-up firings.
	prev := time.Now().Add(-time.Hour)
	got := sched.Next(prev)
	if !got.Equal(prev.Add(time.Minute)) {
		t.Fatalf("Next should advance by exactly one interval regardless of how stale prev is")
	}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "sitewatch.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestReconcileAddsAndRemovesJobsForEnabledTargets(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	br := breaker.New(5, time.Minute, nil)
	httpProbe := probe.NewHTTPProbe(0, nil)

	enabled, err := st.CreateTarget(ctx, model.Target{URL: "https://a.example", Name: "a", IntervalSeconds: 60, Enabled: true})
	if err != nil {
		t.Fatalf("create target: %v", err)
	}
	disabled, err := st.CreateTarget(ctx, model.Target{URL: "https://b.example", Name: "b", IntervalSeconds: 60, Enabled: false})
	if err != nil {
		t.Fatalf("create target: %v", err)
	}

	s := New(st, br, httpProbe, nil, nil, 0, nil)
	if err := s.Reconcile(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	s.mu.Lock()
	_, hasEnabled := s.entries[enabled.ID]
	_, hasDisabled := s.entries[disabled.ID]
	s.mu.Unlock()

	if !hasEnabled {
		t.Fatal("expected a job registered for the enabled target")
	}
	if hasDisabled {
		t.Fatal("expected no job registered for the disabled target")
	}
}

func TestRemoveJobForDeletedTarget(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	br := breaker.New(5, time.Minute, nil)
	httpProbe := probe.NewHTTPProbe(0, nil)

	target, err := st.CreateTarget(ctx, model.Target{URL: "https://c.example", Name: "c", IntervalSeconds: 60, Enabled: true})
	if err != nil {
		t.Fatalf("create target: %v", err)
	}

	s := New(st, br, httpProbe, nil, nil, 0, nil)
	if err := s.Reconcile(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if err := st.DeleteTarget(ctx, target.ID); err != nil {
		t.Fatalf("delete target: %v", err)
	}
	if err := s.Reconcile(ctx); err != nil {
		t.Fatalf("reconcile after delete: %v", err)
	}

	s.mu.Lock()
	_, has := s.entries[target.ID]
	s.mu.Unlock()
	if has {
		t.Fatal("expected job removed after target deletion")
	}
}

// TestReconcileReschedulesOnIntervalDriftFromStore covers configuration
// drift: a Target's interval changed by something other than
// Scheduler.UpsertJob (e.g. a direct Store mutation) must still be picked
// up and rescheduled on the next Reconcile, not left firing at the stale
// interval forever.
func TestReconcileReschedulesOnIntervalDriftFromStore(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	br := breaker.New(5, time.Minute, nil)
	httpProbe := probe.NewHTTPProbe(0, nil)

	target, err := st.CreateTarget(ctx, model.Target{URL: "https://d.example", Name: "d", IntervalSeconds: 60, Enabled: true})
	if err != nil {
		t.Fatalf("create target: %v", err)
	}

	s := New(st, br, httpProbe, nil, nil, 0, nil)
	if err := s.Reconcile(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	s.mu.Lock()
	firstEntry := s.entries[target.ID]
	s.mu.Unlock()
	if firstEntry.intervalSeconds != 60 {
		t.Fatalf("expected initial interval 60, got %d", firstEntry.intervalSeconds)
	}

	// Mutate the interval directly through Store, bypassing UpsertJob
	// entirely — this is the drift scenario Reconcile exists to catch.
	target.IntervalSeconds = 120
	if _, err := st.UpdateTarget(ctx, *target); err != nil {
		t.Fatalf("update target: %v", err)
	}

	if err := s.Reconcile(ctx); err != nil {
		t.Fatalf("reconcile after drift: %v", err)
	}

	s.mu.Lock()
	secondEntry, ok := s.entries[target.ID]
	s.mu.Unlock()
	if !ok {
		t.Fatal("expected job still registered after interval drift")
	}
	if secondEntry.intervalSeconds != 120 {
		t.Fatalf("expected rescheduled interval 120, got %d", secondEntry.intervalSeconds)
	}
	if secondEntry.id == firstEntry.id {
		t.Fatal("expected a new cron entry id after reschedule")
	}
}
