package slo

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &io_prometheus_client.Metric{}
	require.NoError(t, g.Write(m))
	return m.GetGauge().GetValue()
}

func TestTracker_Empty(t *testing.T) {
	snap := NewTracker(10).Snapshot()
	assert.Equal(t, Snapshot{Availability: 1}, snap)
}

func TestTracker_RatiosAndQuantiles(t *testing.T) {
	tr := NewTracker(100)
	for i := 1; i <= 100; i++ {
		tr.Record(time.Duration(i)*time.Second, i%20 == 0)
	}

	snap := tr.Snapshot()
	assert.Equal(t, 100, snap.Count)
	assert.InDelta(t, 0.95, snap.Availability, 1e-9)
	assert.InDelta(t, 0.05, snap.ErrorRate, 1e-9)
	assert.Equal(t, 95*time.Second, snap.P95)
	assert.Equal(t, 99*time.Second, snap.P99)
}

func TestTracker_WindowForgetsOldSamples(t *testing.T) {
	tr := NewTracker(3)
	tr.Record(time.Minute, true)
	tr.Record(time.Second, false)
	tr.Record(time.Second, false)
	assert.InDelta(t, 1.0/3, tr.Snapshot().ErrorRate, 1e-9)

	snap := tr.Record(time.Second, false)
	assert.Equal(t, 3, snap.Count)
	assert.Zero(t, snap.ErrorRate)
	assert.Equal(t, time.Second, snap.P99)
}

func TestTracker_NonPositiveWindow(t *testing.T) {
	tr := NewTracker(0)
	tr.Record(time.Second, false)
	snap := tr.Record(2*time.Second, true)
	assert.Equal(t, 1, snap.Count)
	assert.Equal(t, 2*time.Second, snap.P95)
}

func TestDefault_PublishesGauges(t *testing.T) {
	Default().Record(2*time.Second, false)

	snap := Default().Snapshot()
	assert.Equal(t, snap.Availability, gaugeValue(t, SLOAvailability))
	assert.Equal(t, snap.ErrorRate, gaugeValue(t, SLOErrorRate))
	assert.Equal(t, snap.P95.Seconds(), gaugeValue(t, SLOLatencyP95))
	assert.Equal(t, snap.P99.Seconds(), gaugeValue(t, SLOLatencyP99))
}

func TestTargets(t *testing.T) {
	assert.InDelta(t, 1-AvailabilitySLO/100, ErrorRateSLO, 1e-9)
	assert.Less(t, LatencyP95SLO, LatencyP99SLO)
}

func TestDefault_ConcurrentRecordsLeaveLatestGauges(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				Default().Record(time.Duration(i*20+j)*time.Millisecond, (i+j)%7 == 0)
			}
		}(i)
	}
	wg.Wait()

	snap := Default().Snapshot()
	assert.Equal(t, snap.Availability, gaugeValue(t, SLOAvailability))
	assert.Equal(t, snap.ErrorRate, gaugeValue(t, SLOErrorRate))
	assert.Equal(t, snap.P95.Seconds(), gaugeValue(t, SLOLatencyP95))
	assert.Equal(t, snap.P99.Seconds(), gaugeValue(t, SLOLatencyP99))
}
