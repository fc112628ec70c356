// Package metrics provides lightweight in-memory instrumentation for bb:
// timing of backend round-trips and hit/miss tracking for the reference
// cache. Collection uses atomics and is enabled by default; set BB_METRICS=0
// to disable.
package metrics

import (
	"os"
	"sync/atomic"
	"time"
)

var enabled = os.Getenv("BB_METRICS") != "0"

// Enabled returns whether metrics collection is enabled.
func Enabled() bool {
	return enabled
}

// SetEnabled allows programmatic control of metrics collection.
func SetEnabled(e bool) {
	enabled = e
}

// TimingMetric tracks timing statistics for a named operation.
// All methods are safe for concurrent use.
type TimingMetric struct {
	name    string
	count   atomic.Int64
	totalNs atomic.Int64
	maxNs   atomic.Int64
}

func newTimingMetric(name string) *TimingMetric {
	return &TimingMetric{name: name}
}

// Record records a single timing measurement.
func (m *TimingMetric) Record(d time.Duration) {
	if !enabled {
		return
	}
	ns := d.Nanoseconds()
	m.count.Add(1)
	m.totalNs.Add(ns)
	for {
		old := m.maxNs.Load()
		if ns <= old || m.maxNs.CompareAndSwap(old, ns) {
			break
		}
	}
}

// Name returns the metric name.
func (m *TimingMetric) Name() string { return m.name }

// Count returns the number of recorded measurements.
func (m *TimingMetric) Count() int64 { return m.count.Load() }

// AvgMs returns the average recorded time in milliseconds, or 0 when nothing
// has been recorded.
func (m *TimingMetric) AvgMs() float64 {
	n := m.count.Load()
	if n == 0 {
		return 0
	}
	return float64(m.totalNs.Load()) / float64(n) / 1e6
}

// MaxMs returns the maximum recorded time in milliseconds.
func (m *TimingMetric) MaxMs() float64 {
	return float64(m.maxNs.Load()) / 1e6
}

// Reset clears all recorded measurements.
func (m *TimingMetric) Reset() {
	m.count.Store(0)
	m.totalNs.Store(0)
	m.maxNs.Store(0)
}

// Timer returns a function that records elapsed time when called.
// Use with defer:
//
//	defer metrics.Timer(metrics.PollRequest)()
func Timer(m *TimingMetric) func() {
	if !enabled || m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.Record(time.Since(start))
	}
}

// Counter is a named monotonically increasing counter.
type Counter struct {
	name string
	n    atomic.Int64
}

func newCounter(name string) *Counter {
	return &Counter{name: name}
}

// Inc increments the counter.
func (c *Counter) Inc() {
	if !enabled {
		return
	}
	c.n.Add(1)
}

// Name returns the counter name.
func (c *Counter) Name() string { return c.name }

// Value returns the current count.
func (c *Counter) Value() int64 { return c.n.Load() }

// Reset zeroes the counter.
func (c *Counter) Reset() { c.n.Store(0) }

// Global metrics for hot paths.
var (
	PollRequest   = newTimingMetric("poll_request")
	SubmitRequest = newTimingMetric("submit_request")
	RefFetch      = newTimingMetric("ref_fetch")
	DetectEvents  = newTimingMetric("detect_events")

	CacheHits    = newCounter("cache_hits")
	CacheMisses  = newCounter("cache_misses")
	PollRetries  = newCounter("poll_retries")
	PollVanished = newCounter("poll_vanished")
)
