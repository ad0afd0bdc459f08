package breaker

import (
	"testing"
	"time"
)

func TestRecordFailureOpensAtThreshold(t *testing.T) {
	b := New(3, time.Minute, nil)

	b.RecordFailure(1)
	b.RecordFailure(1)
	if b.IsBlocked(1) {
		t.Fatal("expected target not blocked before threshold reached")
	}

	b.RecordFailure(1)
	if !b.IsBlocked(1) {
		t.Fatal("expected target blocked once threshold reached")
	}
}

func TestRecordSuccessClearsState(t *testing.T) {
	b := New(2, time.Minute, nil)

	b.RecordFailure(1)
	b.RecordFailure(1)
	if !b.IsBlocked(1) {
		t.Fatal("expected target blocked")
	}

	b.RecordSuccess(1)
	if b.IsBlocked(1) {
		t.Fatal("expected block cleared after success")
	}

	// failure count should also have reset, not just the block
	b.RecordFailure(1)
	if b.IsBlocked(1) {
		t.Fatal("expected a single post-reset failure to not reopen the breaker")
	}
}

func TestIsBlockedExpiresAfterCooldown(t *testing.T) {
	b := New(1, 10*time.Millisecond, nil)

	b.RecordFailure(1)
	if !b.IsBlocked(1) {
		t.Fatal("expected target blocked immediately")
	}

	time.Sleep(20 * time.Millisecond)
	if b.IsBlocked(1) {
		t.Fatal("expected block to have expired")
	}
}

func TestTargetsAreIndependent(t *testing.T) {
	b := New(1, time.Minute, nil)

	b.RecordFailure(1)
	if !b.IsBlocked(1) {
		t.Fatal("expected target 1 blocked")
	}
	if b.IsBlocked(2) {
		t.Fatal("expected target 2 unaffected by target 1's failures")
	}
}
