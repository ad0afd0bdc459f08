package sla

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sitewatch/monitor/internal/model"
)

func respTime(ms float64) *float64 { return &ms }

var _ = Describe("computeMetrics", func() {
	day0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	day1 := day0.Add(24 * time.Hour)

	It("reports full availability for an uptime-only day (S1)", func() {
		var checks []model.Check
		for h := 0; h < 24; h++ {
			checks = append(checks, model.Check{
				Timestamp: day0.Add(time.Duration(h) * time.Hour),
				Available: true, ResponseTimeMs: respTime(100),
			})
		}

		m := computeMetrics(1, day0, day1, checks, nil, DefaultPercentiles)

		Expect(m.AvailabilityPercent).To(BeNumerically("==", 100.0))
		Expect(m.TotalChecks).To(Equal(24))
		Expect(m.FailureCount).To(Equal(0))
		Expect(*m.MeanResponseTimeMs).To(BeNumerically("==", 100.0))
	})

	It("accounts for a closed 2-hour outage (S2)", func() {
		windowStart := day0.Add(6 * time.Hour)
		windowEnd := day0.Add(8 * time.Hour)
		windows := []model.DowntimeWindow{{StartedAt: windowStart, EndedAt: &windowEnd}}

		m := computeMetrics(1, day0, day1, nil, windows, DefaultPercentiles)

		Expect(m.AvailabilityPercent).To(BeNumerically("~", 91.666, 0.01))
		Expect(m.TotalDowntimeSeconds).To(BeNumerically("==", 7200))
	})

	It("extends an ongoing window to the query end (S3)", func() {
		windowStart := day0.Add(12 * time.Hour)
		windows := []model.DowntimeWindow{{StartedAt: windowStart, EndedAt: nil}}

		m := computeMetrics(1, day0, day1, nil, windows, DefaultPercentiles)

		Expect(m.AvailabilityPercent).To(BeNumerically("==", 50.0))
		Expect(m.TotalDowntimeSeconds).To(BeNumerically("==", 43200))
	})

	It("excludes failed checks from response-time statistics", func() {
		checks := []model.Check{
			{Timestamp: day0, Available: true, ResponseTimeMs: respTime(100)},
			{Timestamp: day0.Add(time.Hour), Available: false},
		}

		m := computeMetrics(1, day0, day1, checks, nil, DefaultPercentiles)

		Expect(m.SuccessfulChecks).To(Equal(1))
		Expect(m.FailureCount).To(Equal(1))
		Expect(*m.MeanResponseTimeMs).To(BeNumerically("==", 100.0))
	})

	It("returns 100 for a zero-duration range", func() {
		m := computeMetrics(1, day0, day0, nil, nil, DefaultPercentiles)
		Expect(m.AvailabilityPercent).To(BeNumerically("==", 100.0))
	})

	It("produces monotonic percentiles for a varied sample", func() {
		var checks []model.Check
		for i := 1; i <= 100; i++ {
			checks = append(checks, model.Check{
				Timestamp: day0.Add(time.Duration(i) * time.Minute),
				Available: true, ResponseTimeMs: respTime(float64(i)),
			})
		}

		m := computeMetrics(1, day0, day1, checks, nil, DefaultPercentiles)

		Expect(m.PercentileResponses[50]).To(BeNumerically("<=", m.PercentileResponses[75]))
		Expect(m.PercentileResponses[75]).To(BeNumerically("<=", m.PercentileResponses[90]))
		Expect(m.PercentileResponses[90]).To(BeNumerically("<=", m.PercentileResponses[95]))
		Expect(m.PercentileResponses[95]).To(BeNumerically("<=", m.PercentileResponses[99]))
	})
})

var _ = Describe("bucketBounds", func() {
	It("clips the first and last day buckets to the query range", func() {
		start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
		end := time.Date(2026, 1, 3, 6, 0, 0, 0, time.UTC)

		bounds := bucketBounds(start, end, BucketDay)

		Expect(bounds).To(HaveLen(3))
		Expect(bounds[0].start).To(Equal(start))
		Expect(bounds[len(bounds)-1].end).To(Equal(end))
	})

	It("aligns week buckets to Monday 00:00 UTC", func() {
		// 2026-01-01 is a Thursday.
		thursday := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		aligned := alignBucketStart(thursday, BucketWeek)
		Expect(aligned.Weekday()).To(Equal(time.Monday))
		Expect(aligned).To(BeTemporally("<=", thursday))
	})

	It("aligns month buckets to the first of the month", func() {
		mid := time.Date(2026, 3, 17, 5, 0, 0, 0, time.UTC)
		aligned := alignBucketStart(mid, BucketMonth)
		Expect(aligned).To(Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
	})
})

var _ = Describe("ttlCache", func() {
	It("expires entries past their TTL", func() {
		c := newTTLCache(10 * time.Millisecond)
		key := cacheKey{targetID: 1}
		c.set(key, Metrics{AvailabilityPercent: 100})

		_, ok := c.get(key)
		Expect(ok).To(BeTrue())

		time.Sleep(20 * time.Millisecond)
		_, ok = c.get(key)
		Expect(ok).To(BeFalse())
	})

	It("clears all entries on demand", func() {
		c := newTTLCache(time.Minute)
		c.set(cacheKey{targetID: 1}, Metrics{})
		c.clear()
		_, ok := c.get(cacheKey{targetID: 1})
		Expect(ok).To(BeFalse())
	})
})
