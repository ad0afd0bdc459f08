// Package probe implements the two probe contracts of spec.md §4.2: a
// lightweight HTTP probe and a browser-backed probe, both producing a
// ProbeOutcome for a Target.
package probe

import (
	"context"
	"time"

	"github.com/sitewatch/monitor/internal/model"
)

// Outcome is the shared result contract: { available, status?,
// response_time_ms, error_kind?, error_detail?, observed_at } per spec.md §4.2.
type Outcome struct {
	Available      bool
	Status         *int
	ResponseTimeMs float64
	ErrorKind      model.ErrorKind
	ErrorDetail    string
	ObservedAt     time.Time
}

// ToCheck converts an Outcome into a persistable Check for targetID.
func (o Outcome) ToCheck(targetID int64) model.Check {
	c := model.Check{
		TargetID:    targetID,
		Timestamp:   o.ObservedAt,
		Available:   o.Available,
		Status:      o.Status,
		ErrorKind:   o.ErrorKind,
		ErrorDetail: o.ErrorDetail,
	}
	if o.ResponseTimeMs > 0 || o.Available {
		rt := o.ResponseTimeMs
		c.ResponseTimeMs = &rt
	}
	return c
}

// Timeout computes the probe's time budget per spec.md §4.2: the larger of
// (interval-1s) and a 30s floor, whichever is smaller — i.e.
// min(max(interval-1s, 0), 30s) when the interval is short, but never less
// than the interval itself would allow. Concretely: the smaller of
// (interval-1s) and 30s, with a minimum of 1s.
func Timeout(intervalSeconds int) time.Duration {
	budget := time.Duration(intervalSeconds-1) * time.Second
	floor := 30 * time.Second
	if budget > floor {
		return floor
	}
	if budget < time.Second {
		return time.Second
	}
	return budget
}

// Prober performs one check against a Target.
type Prober interface {
	Check(ctx context.Context, target model.Target) Outcome
}
