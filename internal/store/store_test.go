package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sitewatch/monitor/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sitewatch.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createTestTarget(t *testing.T, s *Store) *model.Target {
	t.Helper()
	ctx := context.Background()
	target, err := s.CreateTarget(ctx, model.Target{
		URL:             "https://example.com",
		Name:            "example",
		IntervalSeconds: 60,
		Enabled:         true,
	})
	if err != nil {
		t.Fatalf("create target: %v", err)
	}
	return target
}

func TestCreateGetUpdateDeleteTarget(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created := createTestTarget(t, s)
	if created.ID == 0 {
		t.Fatal("expected generated id")
	}

	fetched, err := s.GetTarget(ctx, created.ID)
	if err != nil {
		t.Fatalf("get target: %v", err)
	}
	if fetched.Name != "example" {
		t.Fatalf("expected name 'example', got %q", fetched.Name)
	}

	updated, err := s.UpdateTarget(ctx, model.Target{
		ID: created.ID, URL: "https://example.com", Name: "renamed",
		IntervalSeconds: 120, Enabled: false,
	})
	if err != nil {
		t.Fatalf("update target: %v", err)
	}
	if updated.Name != "renamed" || updated.IntervalSeconds != 120 || updated.Enabled {
		t.Fatalf("update did not apply: %+v", updated)
	}

	if err := s.DeleteTarget(ctx, created.ID); err != nil {
		t.Fatalf("delete target: %v", err)
	}
	if _, err := s.GetTarget(ctx, created.ID); !model.IsNotFound(err) {
		t.Fatalf("expected not-found after delete, got %v", err)
	}
}

func TestCreateTargetDuplicateURLConflicts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	createTestTarget(t, s)

	_, err := s.CreateTarget(ctx, model.Target{
		URL: "https://example.com", Name: "dup", IntervalSeconds: 60, Enabled: true,
	})
	if !model.IsConflict(err) {
		t.Fatalf("expected conflict for duplicate URL, got %v", err)
	}
}

func TestRecordCheckOpensAndClosesDowntimeWindow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	target := createTestTarget(t, s)

	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := s.RecordCheck(ctx, model.Check{
		TargetID: target.ID, Timestamp: t1, Available: false, ErrorKind: model.ErrorKindTimeout,
	}); err != nil {
		t.Fatalf("record failing check: %v", err)
	}

	open, err := s.GetOpenDowntimeWindow(ctx, target.ID)
	if err != nil {
		t.Fatalf("get open window: %v", err)
	}
	if open == nil {
		t.Fatal("expected an open downtime window after failing check")
	}

	t2 := t1.Add(30 * time.Second)
	status := 200
	if _, err := s.RecordCheck(ctx, model.Check{
		TargetID: target.ID, Timestamp: t2, Available: true, Status: &status,
	}); err != nil {
		t.Fatalf("record recovering check: %v", err)
	}

	open, err = s.GetOpenDowntimeWindow(ctx, target.ID)
	if err != nil {
		t.Fatalf("get open window after recovery: %v", err)
	}
	if open != nil {
		t.Fatal("expected no open downtime window after recovery")
	}

	windows, err := s.ListDowntimeWindows(ctx, target.ID, t1.Add(-time.Hour), t2.Add(time.Hour))
	if err != nil {
		t.Fatalf("list downtime windows: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("expected exactly one downtime window, got %d", len(windows))
	}
	if windows[0].EndedAt == nil || !windows[0].EndedAt.Equal(t2) {
		t.Fatalf("expected window closed at %v, got %+v", t2, windows[0])
	}
}

func TestDebugSessionLifecycleAndUniqueActivePerTarget(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	target := createTestTarget(t, s)

	session, err := s.CreateDebugSession(ctx, target.ID, nil)
	if err != nil {
		t.Fatalf("create debug session: %v", err)
	}

	active, err := s.TransitionDebugSession(ctx, session.ID,
		[]model.DebugSessionStatus{model.DebugSessionPending}, model.DebugSessionActive, "")
	if err != nil {
		t.Fatalf("transition to active: %v", err)
	}
	if active.StartedAt == nil {
		t.Fatal("expected started_at set on transition to active")
	}

	// A second session for the same target must be rejected while one is active.
	if _, err := s.CreateDebugSession(ctx, target.ID, nil); !model.IsConflict(err) {
		t.Fatalf("expected conflict creating a second active session, got %v", err)
	}

	stopped, err := s.TransitionDebugSession(ctx, session.ID,
		[]model.DebugSessionStatus{model.DebugSessionActive}, model.DebugSessionStopped, "")
	if err != nil {
		t.Fatalf("transition to stopped: %v", err)
	}
	if stopped.StoppedAt == nil {
		t.Fatal("expected stopped_at set on terminal transition")
	}

	// An invalid transition out of a terminal state is rejected.
	if _, err := s.TransitionDebugSession(ctx, session.ID,
		[]model.DebugSessionStatus{model.DebugSessionActive}, model.DebugSessionStopped, ""); !model.IsConflict(err) {
		t.Fatalf("expected conflict re-transitioning a terminal session, got %v", err)
	}
}

func TestNetworkEventsAndConsoleMessagesBatchInsertAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	target := createTestTarget(t, s)
	session, err := s.CreateDebugSession(ctx, target.ID, nil)
	if err != nil {
		t.Fatalf("create debug session: %v", err)
	}

	now := time.Now().UTC()
	status := 200
	events := []model.NetworkEvent{
		{SessionID: session.ID, Kind: model.NetworkEventRequest, URL: "https://example.com/a", Method: "GET", ResourceType: model.ResourceDocument, Timestamp: now},
		{SessionID: session.ID, Kind: model.NetworkEventResponse, URL: "https://example.com/a", Status: &status, ResourceType: model.ResourceDocument, Timestamp: now.Add(time.Millisecond)},
	}
	if err := s.InsertNetworkEventsBatch(ctx, events); err != nil {
		t.Fatalf("insert network events: %v", err)
	}

	msgs := []model.ConsoleMessage{
		{SessionID: session.ID, Level: model.ConsoleError, Message: "boom", Timestamp: now},
	}
	if err := s.InsertConsoleMessagesBatch(ctx, msgs); err != nil {
		t.Fatalf("insert console messages: %v", err)
	}

	gotEvents, err := s.ListNetworkEvents(ctx, session.ID)
	if err != nil {
		t.Fatalf("list network events: %v", err)
	}
	if len(gotEvents) != 2 {
		t.Fatalf("expected 2 network events, got %d", len(gotEvents))
	}

	gotMsgs, err := s.ListConsoleMessages(ctx, session.ID)
	if err != nil {
		t.Fatalf("list console messages: %v", err)
	}
	if len(gotMsgs) != 1 || gotMsgs[0].Level != model.ConsoleError {
		t.Fatalf("unexpected console messages: %+v", gotMsgs)
	}
}
