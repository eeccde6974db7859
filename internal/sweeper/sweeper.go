// Package sweeper ages out idle built pages so the build graph stays small.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/ondemand/internal/builder"
	"git.home.luguber.info/inful/ondemand/internal/events"
	"git.home.luguber.info/inful/ondemand/internal/logfields"
	"git.home.luguber.info/inful/ondemand/internal/metrics"
	"git.home.luguber.info/inful/ondemand/internal/registry"
)

const (
	// DefaultInterval is how often the sweep runs.
	DefaultInterval = 5 * time.Second
	// DefaultMaxInactiveAge is how long a built page may go without a
	// liveness ping before it is evicted.
	DefaultMaxInactiveAge = 25 * time.Second
)

// Sweeper periodically scans the registry and deletes built pages idle longer
// than the inactivity threshold, excluding the most-recently-active page.
// Eviction never raises user-visible errors; the sweep interval itself is the
// retry mechanism for failed invalidations.
type Sweeper struct {
	log       *slog.Logger
	reg       *registry.Registry
	inv       builder.Invalidator
	bus       *events.Bus
	rec       metrics.Recorder
	interval  time.Duration
	maxAgeNS  atomic.Int64
	scheduler gocron.Scheduler
}

func New(log *slog.Logger, reg *registry.Registry, inv builder.Invalidator, bus *events.Bus, rec metrics.Recorder, interval, maxInactiveAge time.Duration) (*Sweeper, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxInactiveAge <= 0 {
		maxInactiveAge = DefaultMaxInactiveAge
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	s := &Sweeper{
		log:       log,
		reg:       reg,
		inv:       inv,
		bus:       bus,
		rec:       rec,
		interval:  interval,
		scheduler: scheduler,
	}
	s.maxAgeNS.Store(int64(maxInactiveAge))
	return s, nil
}

// Start schedules the periodic sweep.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.Sweep),
		gocron.WithName("entry-sweep"),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule entry sweep: %w", err)
	}

	s.log.Info("starting eviction sweeper",
		slog.Duration("interval", s.interval),
		slog.Duration("max_inactive_age", s.MaxInactiveAge()))
	s.scheduler.Start()
	return nil
}

// Stop shuts the scheduler down.
func (s *Sweeper) Stop() error {
	s.log.Info("stopping eviction sweeper")
	return s.scheduler.Shutdown()
}

// MaxInactiveAge returns the current inactivity threshold.
func (s *Sweeper) MaxInactiveAge() time.Duration {
	return time.Duration(s.maxAgeNS.Load())
}

// SetMaxInactiveAge updates the inactivity threshold; the next tick picks it
// up. Used by config hot reload.
func (s *Sweeper) SetMaxInactiveAge(d time.Duration) {
	if d <= 0 {
		return
	}
	s.maxAgeNS.Store(int64(d))
	s.log.Info("inactivity threshold updated", slog.Duration("max_inactive_age", d))
}

// Sweep runs one eviction pass. Exported for the scheduler task and tests.
func (s *Sweeper) Sweep() {
	evicted := s.reg.SweepIdle(time.Now(), s.MaxInactiveAge())
	if len(evicted) == 0 {
		return
	}

	s.log.Info("evicted idle pages", logfields.Evicted(len(evicted)), slog.Any("pages", evicted))
	s.rec.IncEvictions(len(evicted))
	s.rec.SetTrackedPages(s.reg.Len())

	if s.bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := s.bus.Publish(ctx, events.PagesEvicted{Pages: evicted, EvictedAt: time.Now()}); err != nil {
			s.log.Warn("eviction event publish failed", logfields.Error(err))
		}
		cancel()
	}

	// One invalidation per sweep so the next pass drops the evicted pages
	// from the build graph.
	s.inv.Invalidate()
}
