package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"git.home.luguber.info/inful/ondemand/internal/builder"
	"git.home.luguber.info/inful/ondemand/internal/config"
	"git.home.luguber.info/inful/ondemand/internal/coordinator"
	"git.home.luguber.info/inful/ondemand/internal/logfields"
	"git.home.luguber.info/inful/ondemand/internal/metrics"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"ondemand.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Serve struct {
		Root string `short:"r" help:"Application root directory (overrides config)"`
		Addr string `short:"a" help:"HTTP listen address (overrides config)"`
	} `cmd:"" help:"Start the on-demand build coordinator"`
}

func main() {
	ctx := kong.Parse(&CLI)

	// Local overrides, same convention as the config loader's env keys.
	_ = godotenv.Load()

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	if CLI.Serve.Root != "" {
		cfg.Root = CLI.Serve.Root
	}
	if CLI.Serve.Addr != "" {
		cfg.Addr = CLI.Serve.Addr
	}

	logger := buildLogger(cfg, CLI.Verbose)
	slog.SetDefault(logger)

	switch ctx.Command() {
	case "serve":
		if err := runServe(logger, cfg); err != nil {
			logger.Error("serve failed", logfields.Error(err))
			os.Exit(1)
		}
	default:
		ctx.FatalIfErrorf(fmt.Errorf("unknown command: %s", ctx.Command()))
	}
}

func buildLogger(cfg *config.Config, verbose bool) *slog.Logger {
	level := cfg.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func runServe(logger *slog.Logger, cfg *config.Config) error {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rec metrics.Recorder = metrics.NoopRecorder{}
	var promRec *metrics.PrometheusRecorder
	if cfg.Metrics.Enabled {
		promRec = metrics.NewPrometheusRecorder(nil)
		rec = promRec
	}

	compiler := builder.NewCommandCompiler(logger, cfg.Build.Command, cfg.Build.Args, cfg.Root)

	svc, err := coordinator.NewService(logger, cfg, compiler, rec)
	if err != nil {
		return err
	}
	if err := svc.Start(runCtx); err != nil {
		return err
	}
	defer func() {
		if closeErr := svc.Close(); closeErr != nil {
			logger.Error("coordinator close failed", logfields.Error(closeErr))
		}
	}()

	// Hot reload for the sweep tunables.
	watcher, err := config.NewWatcher(logger, CLI.Config, svc.ApplyConfig)
	if err != nil {
		logger.Warn("config watcher unavailable", logfields.Error(err))
	} else if err := watcher.Start(runCtx); err != nil {
		logger.Warn("config watcher failed to start", logfields.Error(err))
	} else {
		defer func() { _ = watcher.Stop() }()
	}

	mux := http.NewServeMux()
	mux.Handle("/", pageHandler(logger, svc))
	if promRec != nil {
		mux.Handle("/metrics", promRec.Handler())
	}

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: svc.Middleware()(mux),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dev server listening", slog.String("addr", cfg.Addr))
		if serveErr := srv.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			errCh <- serveErr
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-runCtx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// pageHandler ensures the requested page is built before the downstream asset
// pipeline would serve it. The compiled output itself is served by the build
// system's own dev pipeline; this endpoint reports build state.
func pageHandler(logger *slog.Logger, svc *coordinator.Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := svc.EnsurePage(r.Context(), r.URL.Path); err != nil {
			logger.Warn("ensure page failed", logfields.Page(r.URL.Path), logfields.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, "{\"page\":%q,\"status\":\"built\"}\n", r.URL.Path)
	})
}
