package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sitewatch/monitor/internal/breaker"
	"github.com/sitewatch/monitor/internal/model"
	"github.com/sitewatch/monitor/internal/probe"
	"github.com/sitewatch/monitor/internal/scheduler"
	"github.com/sitewatch/monitor/internal/sla"
	"github.com/sitewatch/monitor/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "sitewatch.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	br := breaker.New(5, time.Minute, nil)
	httpProbe := probe.NewHTTPProbe(0, nil)
	sched := scheduler.New(st, br, httpProbe, nil, nil, 5, nil)
	analytics := sla.New(st, sla.DefaultPercentiles, 0)

	return New(st, sched, nil, analytics, nil, nil)
}

func TestCreateTargetRejectsInvalidURLFormat(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []string{
		"",
		"not-a-url",
		"ftp://example.com",
		"//example.com",
		"example.com",
	}
	for _, u := range cases {
		if _, err := svc.CreateTarget(ctx, u, "name", 60, false); !model.IsInvalidInput(err) {
			t.Errorf("CreateTarget(%q): expected ErrInvalidInput, got %v", u, err)
		}
	}
}

func TestCreateTargetRejectsIntervalOutOfBounds(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, interval := range []int{-1, 0, 1, 59, 3601, 999999999} {
		if _, err := svc.CreateTarget(ctx, "https://example.com", "name", interval, false); !model.IsInvalidInput(err) {
			t.Errorf("CreateTarget with interval %d: expected ErrInvalidInput, got %v", interval, err)
		}
	}
}

func TestCreateTargetAcceptsIntervalAtBothBounds(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateTarget(ctx, "https://example.com/min", "min", 60, false); err != nil {
		t.Errorf("expected interval 60 (lower bound) accepted, got %v", err)
	}
	if _, err := svc.CreateTarget(ctx, "https://example.com/max", "max", 3600, false); err != nil {
		t.Errorf("expected interval 3600 (upper bound) accepted, got %v", err)
	}
}

func TestUpdateTargetRejectsIntervalOutOfBounds(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	target, err := svc.CreateTarget(ctx, "https://example.com", "example", 60, false)
	if err != nil {
		t.Fatalf("create target: %v", err)
	}

	tooSmall := 10
	if _, err := svc.UpdateTarget(ctx, target.ID, TargetPatch{IntervalSeconds: &tooSmall}); !model.IsInvalidInput(err) {
		t.Fatalf("expected ErrInvalidInput for interval below bound, got %v", err)
	}
	tooBig := 10000
	if _, err := svc.UpdateTarget(ctx, target.ID, TargetPatch{IntervalSeconds: &tooBig}); !model.IsInvalidInput(err) {
		t.Fatalf("expected ErrInvalidInput for interval above bound, got %v", err)
	}
}

func TestCreateListGetUpdateDeleteTarget(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateTarget(ctx, "https://example.com", "example", 60, true)
	if err != nil {
		t.Fatalf("create target: %v", err)
	}

	fetched, err := svc.GetTarget(ctx, created.ID)
	if err != nil {
		t.Fatalf("get target: %v", err)
	}
	if fetched.Name != "example" {
		t.Fatalf("expected name 'example', got %q", fetched.Name)
	}

	list, err := svc.ListTargets(ctx, 0, 10)
	if err != nil {
		t.Fatalf("list targets: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 target, got %d", len(list))
	}

	renamed := "renamed"
	updated, err := svc.UpdateTarget(ctx, created.ID, TargetPatch{Name: &renamed})
	if err != nil {
		t.Fatalf("update target: %v", err)
	}
	if updated.Name != "renamed" {
		t.Fatalf("expected updated name 'renamed', got %q", updated.Name)
	}

	if err := svc.DeleteTarget(ctx, created.ID); err != nil {
		t.Fatalf("delete target: %v", err)
	}
	if _, err := svc.GetTarget(ctx, created.ID); !model.IsNotFound(err) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestListTargetsAppliesSkipAndLimit(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		t.Cleanup(srv.Close)
		if _, err := svc.CreateTarget(ctx, srv.URL, "t", 60, false); err != nil {
			t.Fatalf("create target %d: %v", i, err)
		}
	}

	page, err := svc.ListTargets(ctx, 2, 2)
	if err != nil {
		t.Fatalf("list targets: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page))
	}

	past, err := svc.ListTargets(ctx, 100, 10)
	if err != nil {
		t.Fatalf("list targets: %v", err)
	}
	if len(past) != 0 {
		t.Fatalf("expected empty page when skip exceeds total, got %d", len(past))
	}
}

func TestTriggerCheckRecordsAForegroundCheck(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	target, err := svc.CreateTarget(ctx, srv.URL, "up", 60, false)
	if err != nil {
		t.Fatalf("create target: %v", err)
	}

	check, err := svc.TriggerCheck(ctx, target.ID)
	if err != nil {
		t.Fatalf("trigger check: %v", err)
	}
	if !check.Available {
		t.Fatalf("expected the triggered check to be available")
	}
}

func TestMetricsDefaultsToTrailingThirtyDays(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	target, err := svc.CreateTarget(ctx, "https://example.com", "example", 60, false)
	if err != nil {
		t.Fatalf("create target: %v", err)
	}

	results, err := svc.Metrics(ctx, &target.ID, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly 1 result for a single target id, got %d", len(results))
	}
	if results[0].TargetID != target.ID {
		t.Fatalf("expected target id %d, got %d", target.ID, results[0].TargetID)
	}
	if results[0].TotalChecks != 0 {
		t.Fatalf("expected 0 checks for a target with no recorded checks, got %d", results[0].TotalChecks)
	}
}
