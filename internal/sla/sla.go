// Package sla computes availability and response-time analytics over Checks
// and DowntimeWindows, per spec.md §4.7. The scoring shape — point metrics
// built from explicit thresholds/samples, independently recomposed per
// bucket — is grounded on the teacher's
// internal/controlplane/reliability/scorecard.go (BuildScorecard's
// percentage/indicator construction), generalized from a fixed SLO panel to
// arbitrary (target, time range) queries and extended with percentile
// response-time statistics and a TTL cache, neither of which the teacher's
// scorecard needed.
package sla

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sitewatch/monitor/internal/model"
	"github.com/sitewatch/monitor/internal/store"
	"github.com/sitewatch/monitor/internal/telemetry"
)

// DefaultPercentiles are the percentile points computed when the caller
// does not request a specific set.
var DefaultPercentiles = []int{50, 75, 90, 95, 99}

// Metrics is the result of a point-in-time SLA query for one target.
type Metrics struct {
	TargetID             int64
	Start                time.Time
	End                  time.Time
	AvailabilityPercent  float64
	MeanResponseTimeMs   *float64
	PercentileResponses  map[int]float64
	TotalChecks          int
	SuccessfulChecks     int
	FailureCount         int
	TotalDowntimeSeconds float64
}

// Bucket names the supported bucketing granularities.
type Bucket string

const (
	BucketDay   Bucket = "day"
	BucketWeek  Bucket = "week"
	BucketMonth Bucket = "month"
)

// BucketMetrics pairs one bucket's clipped time range with its Metrics.
type BucketMetrics struct {
	BucketStart time.Time
	BucketEnd   time.Time
	Metrics     Metrics
}

// Analytics answers SLA queries over a Store, with an optional in-memory
// TTL cache for repeat queries over the same (target, range); bucketed
// queries are cached per bucket range through Metrics.
type Analytics struct {
	store       *store.Store
	percentiles []int
	cache       *ttlCache
}

// New creates an Analytics reader. percentiles, if empty, defaults to
// DefaultPercentiles. cacheTTL of zero disables caching.
func New(st *store.Store, percentiles []int, cacheTTL time.Duration) *Analytics {
	if len(percentiles) == 0 {
		percentiles = DefaultPercentiles
	}
	var c *ttlCache
	if cacheTTL > 0 {
		c = newTTLCache(cacheTTL)
	}
	return &Analytics{store: st, percentiles: percentiles, cache: c}
}

// ClearCache drops all cached entries.
func (a *Analytics) ClearCache() {
	if a.cache != nil {
		a.cache.clear()
	}
}

// Metrics computes point-in-time availability and response-time statistics
// for one target over [start, end], per spec.md §4.7's three documented
// assumptions: missing Checks are not downtime, ongoing windows extend to
// the query's end, and response-time statistics exclude failed Checks.
func (a *Analytics) Metrics(ctx context.Context, targetID int64, start, end time.Time) (Metrics, error) {
	key := cacheKey{targetID: targetID, start: start, end: end}
	if a.cache != nil {
		if cached, ok := a.cache.get(key); ok {
			return cached, nil
		}
	}

	ctx, span := telemetry.StartSLARangeSpan(ctx, targetID)
	defer span.End()

	checks, err := a.store.ListChecks(ctx, targetID, start, end)
	if err != nil {
		return Metrics{}, fmt.Errorf("list checks: %w", err)
	}
	windows, err := a.store.ListDowntimeWindows(ctx, targetID, start, end)
	if err != nil {
		return Metrics{}, fmt.Errorf("list downtime windows: %w", err)
	}

	m := computeMetrics(targetID, start, end, checks, windows, a.percentiles)

	if a.cache != nil {
		a.cache.set(key, m)
	}
	return m, nil
}

// BucketedMetrics recomputes Metrics independently for each aligned bucket
// of the given granularity within [start, end], per spec.md §4.7's
// bucketing rule: boundaries falling outside the query range are clipped.
func (a *Analytics) BucketedMetrics(ctx context.Context, targetID int64, start, end time.Time, bucket Bucket) ([]BucketMetrics, error) {
	bounds := bucketBounds(start, end, bucket)
	out := make([]BucketMetrics, 0, len(bounds))
	for _, b := range bounds {
		m, err := a.Metrics(ctx, targetID, b.start, b.end)
		if err != nil {
			return nil, err
		}
		out = append(out, BucketMetrics{BucketStart: b.start, BucketEnd: b.end, Metrics: m})
	}
	return out, nil
}

// WorstBySuccessRate ranks targetIDs by ascending availability over
// [start, end] and returns the worst count of them. This is a new
// supplemented helper with no counterpart in the original service (see
// SPEC_FULL.md), built by repeated calls into Metrics rather than a
// bespoke query.
func (a *Analytics) WorstBySuccessRate(ctx context.Context, targetIDs []int64, start, end time.Time, count int) ([]Metrics, error) {
	results := make([]Metrics, 0, len(targetIDs))
	for _, id := range targetIDs {
		m, err := a.Metrics(ctx, id, start, end)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].AvailabilityPercent < results[j].AvailabilityPercent
	})
	if count > 0 && count < len(results) {
		results = results[:count]
	}
	return results, nil
}

func computeMetrics(targetID int64, start, end time.Time, checks []model.Check, windows []model.DowntimeWindow, percentiles []int) Metrics {
	total := end.Sub(start)

	downtime := time.Duration(0)
	for _, w := range windows {
		windowEnd := end
		if w.EndedAt != nil && w.EndedAt.Before(end) {
			windowEnd = *w.EndedAt
		}
		windowStart := w.StartedAt
		if windowStart.Before(start) {
			windowStart = start
		}
		span := windowEnd.Sub(windowStart)
		if span > 0 {
			downtime += span
		}
	}

	availability := 100.0
	if total > 0 {
		availability = ((total - downtime).Seconds() / total.Seconds()) * 100
		if availability < 0 {
			availability = 0
		}
		if availability > 100 {
			availability = 100
		}
	}

	var (
		successCount int
		failureCount int
		samples      []float64
	)
	for _, c := range checks {
		if c.Available {
			successCount++
			if c.ResponseTimeMs != nil {
				samples = append(samples, *c.ResponseTimeMs)
			}
		} else {
			failureCount++
		}
	}

	var mean *float64
	if len(samples) > 0 {
		sum := 0.0
		for _, v := range samples {
			sum += v
		}
		m := sum / float64(len(samples))
		mean = &m
	}

	pct := make(map[int]float64, len(percentiles))
	if len(samples) > 0 {
		sorted := append([]float64(nil), samples...)
		sort.Float64s(sorted)
		for _, p := range percentiles {
			pct[p] = percentile(sorted, p)
		}
	}

	return Metrics{
		TargetID:             targetID,
		Start:                start,
		End:                  end,
		AvailabilityPercent:  availability,
		MeanResponseTimeMs:   mean,
		PercentileResponses:  pct,
		TotalChecks:          len(checks),
		SuccessfulChecks:     successCount,
		FailureCount:         failureCount,
		TotalDowntimeSeconds: downtime.Seconds(),
	}
}

// percentile computes the p-th percentile of a pre-sorted sample using
// linear interpolation between order statistics, per spec.md §4.7.
func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := (float64(p) / 100.0) * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

type bucketRange struct {
	start time.Time
	end   time.Time
}

// bucketBounds produces the aligned bucket boundaries of the given
// granularity overlapping [start, end], clipping the first and last
// buckets to the query range.
func bucketBounds(start, end time.Time, bucket Bucket) []bucketRange {
	if !end.After(start) {
		return nil
	}
	var bounds []bucketRange
	cursor := alignBucketStart(start, bucket)
	for cursor.Before(end) {
		next := advanceBucket(cursor, bucket)
		bStart := cursor
		if bStart.Before(start) {
			bStart = start
		}
		bEnd := next
		if bEnd.After(end) {
			bEnd = end
		}
		bounds = append(bounds, bucketRange{start: bStart, end: bEnd})
		cursor = next
	}
	return bounds
}

func alignBucketStart(t time.Time, bucket Bucket) time.Time {
	t = t.UTC()
	switch bucket {
	case BucketWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		// ISO week starts Monday; time.Weekday Sunday=0.
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case BucketMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default: // BucketDay
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

func advanceBucket(t time.Time, bucket Bucket) time.Time {
	switch bucket {
	case BucketWeek:
		return t.AddDate(0, 0, 7)
	case BucketMonth:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

type cacheKey struct {
	targetID int64
	start    time.Time
	end      time.Time
}

type cacheEntry struct {
	value     Metrics
	expiresAt time.Time
}

// ttlCache is a minimal process-local TTL cache, keyed on
// (target_id, start, end) per spec.md §4.7. Entries past their TTL are
// evicted lazily on read.
type ttlCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[cacheKey]cacheEntry
}

func newTTLCache(ttl time.Duration) *ttlCache {
	return &ttlCache{ttl: ttl, entries: make(map[cacheKey]cacheEntry)}
}

func (c *ttlCache) get(key cacheKey) (Metrics, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return Metrics{}, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return Metrics{}, false
	}
	return entry.value, true
}

func (c *ttlCache) set(key cacheKey, value Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, expiresAt: time.Now().Add(c.ttl)}
}

func (c *ttlCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]cacheEntry)
}
