package metrics

import (
	"net/http"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once         sync.Once
	registry     *prom.Registry
	passDuration prom.Histogram
	passOutcome  *prom.CounterVec
	trackedPages prom.Gauge
	evictions    prom.Counter
	pings        prom.Counter
	invalidPings prom.Counter
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{registry: reg}
	pr.once.Do(func() {
		pr.passDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "ondemand",
			Name:      "pass_duration_seconds",
			Help:      "Duration of compilation passes",
			Buckets:   prom.DefBuckets,
		})
		pr.passOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "ondemand",
			Name:      "pass_outcomes_total",
			Help:      "Compilation pass outcomes by final status",
		}, []string{"outcome"})
		pr.trackedPages = prom.NewGauge(prom.GaugeOpts{
			Namespace: "ondemand",
			Name:      "tracked_pages",
			Help:      "Pages currently tracked by the entry registry",
		})
		pr.evictions = prom.NewCounter(prom.CounterOpts{
			Namespace: "ondemand",
			Name:      "evicted_pages_total",
			Help:      "Pages evicted by the idle sweeper",
		})
		pr.pings = prom.NewCounter(prom.CounterOpts{
			Namespace: "ondemand",
			Name:      "liveness_pings_total",
			Help:      "Liveness pings that refreshed a built page",
		})
		pr.invalidPings = prom.NewCounter(prom.CounterOpts{
			Namespace: "ondemand",
			Name:      "liveness_invalid_pings_total",
			Help:      "Liveness pings referencing an unknown page",
		})
		reg.MustRegister(pr.passDuration, pr.passOutcome, pr.trackedPages, pr.evictions, pr.pings, pr.invalidPings)
	})
	return pr
}

func (pr *PrometheusRecorder) ObservePassDuration(d time.Duration) {
	pr.passDuration.Observe(d.Seconds())
}

func (pr *PrometheusRecorder) IncPassOutcome(outcome PassOutcome) {
	pr.passOutcome.WithLabelValues(string(outcome)).Inc()
}

func (pr *PrometheusRecorder) SetTrackedPages(n int) {
	pr.trackedPages.Set(float64(n))
}

func (pr *PrometheusRecorder) IncEvictions(n int) {
	pr.evictions.Add(float64(n))
}

func (pr *PrometheusRecorder) IncPings() {
	pr.pings.Inc()
}

func (pr *PrometheusRecorder) IncInvalidPings() {
	pr.invalidPings.Inc()
}

// Handler returns an http.Handler serving the recorder's registry.
func (pr *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(pr.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
