package coordinator

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"git.home.luguber.info/inful/ondemand/internal/announce"
	"git.home.luguber.info/inful/ondemand/internal/builder"
	"git.home.luguber.info/inful/ondemand/internal/config"
	"git.home.luguber.info/inful/ondemand/internal/events"
	"git.home.luguber.info/inful/ondemand/internal/liveness"
	"git.home.luguber.info/inful/ondemand/internal/logfields"
	"git.home.luguber.info/inful/ondemand/internal/metrics"
	"git.home.luguber.info/inful/ondemand/internal/registry"
	"git.home.luguber.info/inful/ondemand/internal/resolver"
	"git.home.luguber.info/inful/ondemand/internal/sweeper"
)

// Service wires the coordinator, batcher, liveness tracker and sweeper into
// one lifecycle. It is the public surface of the package: EnsurePage,
// Middleware, Close.
type Service struct {
	cfg     *config.Config
	log     *slog.Logger
	bus     *events.Bus
	reg     *registry.Registry
	coord   *Coordinator
	batcher *builder.Batcher
	tracker *liveness.Tracker
	sweep   *sweeper.Sweeper

	announcer *announce.Announcer
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// NewService builds the full component graph. The compiler is the external
// build system boundary and must be provided by the caller.
func NewService(log *slog.Logger, cfg *config.Config, compiler builder.Compiler, rec metrics.Recorder) (*Service, error) {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}

	bus := events.NewBus()
	reg := registry.New()
	res := resolver.NewFSResolver(filepath.Join(cfg.Root, cfg.PagesDir), cfg.Extensions)

	coord := New(log, reg, res, rec)
	batcher := builder.NewBatcher(log, compiler, coord, coord, bus,
		builder.WithBatchWindow(cfg.BatchWindow.Std()),
		builder.WithRecorder(rec))
	coord.SetInvalidator(batcher)

	tracker := liveness.NewTracker(log, reg, rec)

	sweep, err := sweeper.New(log, reg, batcher, bus, rec, cfg.SweepInterval.Std(), cfg.MaxInactiveAge.Std())
	if err != nil {
		bus.Close()
		return nil, err
	}

	return &Service{
		cfg:     cfg,
		log:     log,
		bus:     bus,
		reg:     reg,
		coord:   coord,
		batcher: batcher,
		tracker: tracker,
		sweep:   sweep,
	}, nil
}

// Start binds the control channel and launches the batcher and sweeper.
func (s *Service) Start(ctx context.Context) error {
	if err := s.tracker.Start(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.batcher.Run(runCtx)
	}()

	if err := s.sweep.Start(runCtx); err != nil {
		cancel()
		closeErr := s.tracker.Close()
		return stdErrors.Join(err, closeErr)
	}

	if s.cfg.NATS.Enabled {
		announcer, err := announce.New(s.log, s.cfg.NATS, s.bus)
		if err != nil {
			// The coordinator works without external announcements.
			s.log.Warn("lifecycle announcer unavailable", logfields.Error(err))
		} else {
			s.announcer = announcer
		}
	}

	s.log.Info("on-demand coordinator started",
		logfields.Port(s.tracker.Port()),
		slog.Duration("max_inactive_age", s.cfg.MaxInactiveAge.Std()),
		slog.Duration("sweep_interval", s.cfg.SweepInterval.Std()))
	return nil
}

// EnsurePage guarantees a compiled artifact exists for the page.
func (s *Service) EnsurePage(ctx context.Context, rawPageID string) error {
	return s.coord.EnsurePage(ctx, rawPageID)
}

// Middleware answers the control-channel port-discovery endpoint and passes
// everything else through.
func (s *Service) Middleware() func(http.Handler) http.Handler {
	return liveness.PortMiddleware(s.tracker.Port)
}

// ApplyConfig picks up hot-reloadable tunables from a reloaded configuration.
func (s *Service) ApplyConfig(cfg *config.Config) {
	if d := cfg.MaxInactiveAge.Std(); d > 0 {
		s.sweep.SetMaxInactiveAge(d)
	}
}

// Registry exposes the entry registry for diagnostics.
func (s *Service) Registry() *registry.Registry {
	return s.reg
}

// Close stops every component and resolves only after the control-channel
// server close completes, returning its error if any.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}

		var errs []error
		if err := s.sweep.Stop(); err != nil {
			errs = append(errs, err)
		}
		if s.announcer != nil {
			s.announcer.Close()
		}

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			s.log.Warn("batcher did not stop in time")
		}

		s.bus.Close()

		if err := s.tracker.Close(); err != nil {
			errs = append(errs, err)
		}
		s.closeErr = stdErrors.Join(errs...)
	})
	return s.closeErr
}
