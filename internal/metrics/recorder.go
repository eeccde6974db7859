package metrics

import "time"

// PassOutcome enumerates compilation pass result categories for counters.
type PassOutcome string

const (
	PassSuccess PassOutcome = "success"
	PassFailed  PassOutcome = "failed"
)

// Recorder defines observability hooks for the coordinator. Implementations
// may forward to Prometheus; the NoopRecorder is the default when metrics are
// not configured.
type Recorder interface {
	ObservePassDuration(d time.Duration)
	IncPassOutcome(outcome PassOutcome)
	SetTrackedPages(n int)
	IncEvictions(n int)
	IncPings()
	IncInvalidPings()
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObservePassDuration(time.Duration) {}
func (NoopRecorder) IncPassOutcome(PassOutcome)        {}
func (NoopRecorder) SetTrackedPages(int)               {}
func (NoopRecorder) IncEvictions(int)                  {}
func (NoopRecorder) IncPings()                         {}
func (NoopRecorder) IncInvalidPings()                  {}
