// Package slo tracks service level indicators of the analysis endpoint.
//
// A Tracker keeps the most recent analyses in a ring buffer and republishes
// availability, error rate and latency quantiles as gauges after every
// recorded analysis. Client errors (quota, bad language) count as available;
// only server side failures burn the error budget.
package slo

import (
	"math"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Targets for a full analysis, stream included.
const (
	AvailabilitySLO = 99.5
	LatencyP95SLO   = 15.0
	LatencyP99SLO   = 30.0
	ErrorRateSLO    = 0.005
)

// DefaultWindow is the number of analyses the default tracker remembers.
const DefaultWindow = 1000

var (
	SLOAvailability = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slo_analysis_availability_ratio",
		Help: "Share of recent analyses without a server side failure, target: 0.995",
	})
	SLOErrorRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slo_analysis_error_rate_ratio",
		Help: "Share of recent analyses with a server side failure, target: 0.005",
	})
	SLOLatencyP95 = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slo_analysis_latency_p95_seconds",
		Help: "p95 duration of recent analyses in seconds, target: 15",
	})
	SLOLatencyP99 = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slo_analysis_latency_p99_seconds",
		Help: "p99 duration of recent analyses in seconds, target: 30",
	})
)

type sample struct {
	failed   bool
	duration time.Duration
}

// Snapshot is the state of a Tracker.
type Snapshot struct {
	Count        int
	Availability float64
	ErrorRate    float64
	P95          time.Duration
	P99          time.Duration
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	samples []sample
	next    int
	full    bool
	publish bool
}

// NewTracker remembers the last window analyses. It does not touch the
// package gauges; use Default for that.
func NewTracker(window int) *Tracker {
	return &Tracker{samples: make([]sample, max(window, 1))}
}

var defaultTracker = &Tracker{samples: make([]sample, DefaultWindow), publish: true}

// Default returns the tracker that feeds the exported gauges.
func Default() *Tracker { return defaultTracker }

// Record adds one analysis. failed marks a server side failure. The gauges
// are set under the lock so the last write always carries the newest state.
func (t *Tracker) Record(duration time.Duration, failed bool) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.samples[t.next] = sample{failed: failed, duration: duration}
	t.next = (t.next + 1) % len(t.samples)
	if t.next == 0 {
		t.full = true
	}
	snap := t.snapshotLocked()

	if t.publish {
		SLOAvailability.Set(snap.Availability)
		SLOErrorRate.Set(snap.ErrorRate)
		SLOLatencyP95.Set(snap.P95.Seconds())
		SLOLatencyP99.Set(snap.P99.Seconds())
	}
	return snap
}

// Snapshot returns the current indicators. An empty tracker is fully available.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	n := t.next
	if t.full {
		n = len(t.samples)
	}
	if n == 0 {
		return Snapshot{Availability: 1}
	}

	failures := 0
	durations := make([]time.Duration, n)
	for i := range n {
		s := t.samples[i]
		if s.failed {
			failures++
		}
		durations[i] = s.duration
	}
	slices.Sort(durations)

	errRate := float64(failures) / float64(n)
	return Snapshot{
		Count:        n,
		Availability: 1 - errRate,
		ErrorRate:    errRate,
		P95:          quantile(durations, 0.95),
		P99:          quantile(durations, 0.99),
	}
}

// quantile uses the nearest-rank method on sorted.
func quantile(sorted []time.Duration, q float64) time.Duration {
	rank := int(math.Ceil(q*float64(len(sorted)) - 1e-9))
	rank = min(max(rank, 1), len(sorted))
	return sorted[rank-1]
}
