package downtime

import (
	"testing"
	"time"
)

func TestFold(t *testing.T) {
	cases := []struct {
		name             string
		openWindowExists bool
		available        bool
		want             Action
	}{
		{"no window, becomes unavailable: opens", false, false, Open},
		{"no window, stays available: no-op", false, true, NoOp},
		{"open window, still down: no-op", true, false, NoOp},
		{"open window, recovers: closes", true, true, Close},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Fold(tc.openWindowExists, tc.available); got != tc.want {
				t.Errorf("Fold(%v, %v) = %v, want %v", tc.openWindowExists, tc.available, got, tc.want)
			}
		})
	}
}

func TestDurationOpenWindowClampsToNow(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(90 * time.Second)

	got := Duration(start, nil, now)
	if got != 90*time.Second {
		t.Fatalf("Duration = %v, want 90s", got)
	}
}

func TestDurationClosedWindowUsesEndedAt(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Second)
	now := start.Add(time.Hour)

	got := Duration(start, &end, now)
	if got != 30*time.Second {
		t.Fatalf("Duration = %v, want 30s", got)
	}
}

func TestDurationClampsNegativeSpanToZero(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 10, 0, time.UTC)
	end := start.Add(-5 * time.Second) // clock skew: ended before started

	got := Duration(start, &end, start)
	if got != 0 {
		t.Fatalf("Duration = %v, want 0 under clock skew", got)
	}
}
