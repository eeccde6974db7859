package builder

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/ondemand/internal/events"
	"git.home.luguber.info/inful/ondemand/internal/logfields"
	"git.home.luguber.info/inful/ondemand/internal/metrics"
)

// DefaultBatchWindow is how long a pass start absorbs further invalidations
// so a burst of page requests compiles in one pass.
const DefaultBatchWindow = 50 * time.Millisecond

// Batcher turns invalidation requests into compilation passes. One goroutine
// (Run) services passes sequentially; Invalidate is safe from any goroutine
// and collapses while a pass is already pending.
type Batcher struct {
	log         *slog.Logger
	compiler    Compiler
	source      TargetSource
	sink        PassSink
	bus         *events.Bus
	rec         metrics.Recorder
	batchWindow time.Duration
	kick        chan struct{}
}

// BatcherOption customizes a Batcher.
type BatcherOption func(*Batcher)

// WithBatchWindow overrides the invalidation-absorption window.
func WithBatchWindow(d time.Duration) BatcherOption {
	return func(b *Batcher) {
		if d > 0 {
			b.batchWindow = d
		}
	}
}

// WithRecorder injects a metrics recorder.
func WithRecorder(rec metrics.Recorder) BatcherOption {
	return func(b *Batcher) {
		if rec != nil {
			b.rec = rec
		}
	}
}

func NewBatcher(log *slog.Logger, compiler Compiler, source TargetSource, sink PassSink, bus *events.Bus, opts ...BatcherOption) *Batcher {
	b := &Batcher{
		log:         log,
		compiler:    compiler,
		source:      source,
		sink:        sink,
		bus:         bus,
		rec:         metrics.NoopRecorder{},
		batchWindow: DefaultBatchWindow,
		kick:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Invalidate requests a new compilation pass. Fire-and-forget: it never
// blocks, and repeated calls while a pass is pending collapse into one.
func (b *Batcher) Invalidate() {
	select {
	case b.kick <- struct{}{}:
	default:
	}
}

// Run services compilation passes until ctx is canceled.
func (b *Batcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.kick:
		}

		// Absorb the rest of the burst before claiming targets.
		timer := time.NewTimer(b.batchWindow)
	absorb:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-b.kick:
			case <-timer.C:
				break absorb
			}
		}

		b.runPass(ctx)
	}
}

func (b *Batcher) runPass(ctx context.Context) {
	passID := uuid.NewString()
	targets := b.source.ClaimPending(passID)
	if len(targets) == 0 {
		b.log.Debug("pass skipped, nothing pending", logfields.PassID(passID))
		return
	}

	pages := make([]string, len(targets))
	for i, t := range targets {
		pages[i] = t.PageID
	}

	start := time.Now()
	b.log.Info("compilation pass started", logfields.PassID(passID), slog.Int("targets", len(targets)))
	b.publish(ctx, events.PassStarted{PassID: passID, Pages: pages, StartedAt: start})

	err := b.compiler.Compile(ctx, targets)
	duration := time.Since(start)
	b.rec.ObservePassDuration(duration)

	// Waiters are released inside CompletePass, before the completion event
	// goes out.
	b.sink.CompletePass(passID, targets, err)

	if err != nil {
		b.rec.IncPassOutcome(metrics.PassFailed)
		b.log.Error("compilation pass failed",
			logfields.PassID(passID),
			logfields.DurationMS(float64(duration.Milliseconds())),
			logfields.Error(err))
	} else {
		b.rec.IncPassOutcome(metrics.PassSuccess)
		b.log.Info("compilation pass completed",
			logfields.PassID(passID),
			logfields.DurationMS(float64(duration.Milliseconds())))
	}

	b.publish(ctx, events.PassCompleted{PassID: passID, Pages: pages, Err: err, CompletedAt: time.Now()})
}

func (b *Batcher) publish(ctx context.Context, evt any) {
	if b.bus == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := b.bus.Publish(pubCtx, evt); err != nil {
		b.log.Warn("event publish failed", logfields.Error(err))
	}
}
