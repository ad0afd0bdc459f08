// Package breaker implements a per-target circuit breaker: a failure
// counter with time-gated blocking. Grounded on the teacher's
// cmdtracker.Tracker TTL-expiry shape (internal/controlplane/cmdtracker/tracker.go),
// simplified to lazy inline expiry on read — a breaker block is O(1) to
// check and clear, unlike the tracker's externally-driven completions which
// need a background reaper to catch abandoned entries.
package breaker

import (
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sitewatch/monitor/internal/telemetry"
)

type state struct {
	failureCount int
	blockedUntil time.Time
}

// Breaker tracks failure counts and time-gated blocks per target id.
type Breaker struct {
	mu        sync.Mutex
	states    map[int64]*state
	threshold int
	cooldown  time.Duration
	logger    *zap.Logger
}

// New creates a Breaker with the given failure threshold and cooldown.
func New(threshold int, cooldown time.Duration, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 300 * time.Second
	}
	return &Breaker{
		states:    make(map[int64]*state),
		threshold: threshold,
		cooldown:  cooldown,
		logger:    logger,
	}
}

// RecordFailure increments the failure count for id. Once the count reaches
// the threshold the target is blocked for the cooldown duration.
func (b *Breaker) RecordFailure(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stateLocked(id)
	s.failureCount++
	if s.failureCount >= b.threshold {
		s.blockedUntil = time.Now().UTC().Add(b.cooldown)
		b.logger.Warn("circuit breaker opened",
			zap.Int64("target_id", id),
			zap.Int("failure_count", s.failureCount),
			zap.Time("blocked_until", s.blockedUntil),
		)
		telemetry.RecordCircuitBreakerOpen(strconv.FormatInt(id, 10))
	}
}

// RecordSuccess clears both the failure count and any active block for id.
func (b *Breaker) RecordSuccess(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.states, id)
}

// IsBlocked reports whether id is currently blocked. A block that has
// expired is cleared as a side effect, per spec.
func (b *Breaker) IsBlocked(id int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.states[id]
	if !ok || s.blockedUntil.IsZero() {
		return false
	}
	if time.Now().UTC().Before(s.blockedUntil) {
		return true
	}
	// Block expired: clear state entirely.
	delete(b.states, id)
	return false
}

func (b *Breaker) stateLocked(id int64) *state {
	s, ok := b.states[id]
	if !ok {
		s = &state{}
		b.states[id] = s
	}
	return s
}
