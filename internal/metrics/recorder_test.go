package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopRecorderIsSafe(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObservePassDuration(time.Second)
	r.IncPassOutcome(PassSuccess)
	r.SetTrackedPages(3)
	r.IncEvictions(2)
	r.IncPings()
	r.IncInvalidPings()
}

func TestPrometheusRecorderCounters(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.IncPassOutcome(PassSuccess)
	pr.IncPassOutcome(PassSuccess)
	pr.IncPassOutcome(PassFailed)
	pr.SetTrackedPages(4)
	pr.IncEvictions(3)
	pr.IncPings()
	pr.IncInvalidPings()
	pr.ObservePassDuration(120 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(pr.passOutcome.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pr.passOutcome.WithLabelValues("failed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(pr.trackedPages))
	assert.Equal(t, 3.0, testutil.ToFloat64(pr.evictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(pr.pings))
	assert.Equal(t, 1.0, testutil.ToFloat64(pr.invalidPings))

	require.NotNil(t, pr.Handler())
}
