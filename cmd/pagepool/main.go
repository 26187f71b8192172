// Command pagepool runs the browser-session lifecycle daemon: a bounded
// pool of headless-browser sessions with idle eviction, launch retry, and
// an HTTP surface for session control, page operations, and status.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"

	"github.com/entrhq/pagepool/pkg/config"
	"github.com/entrhq/pagepool/pkg/engine"
	"github.com/entrhq/pagepool/pkg/ops"
	"github.com/entrhq/pagepool/pkg/retry"
	"github.com/entrhq/pagepool/pkg/session"
	"github.com/entrhq/pagepool/pkg/status"
	"github.com/entrhq/pagepool/pkg/usage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	isDebug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// A local .env is optional.
	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *isDebug || cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	}))
	slog.SetDefault(logger)
	logger.Info("logger initialized", "level", level.String())

	provider := newProvider(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := provider.Start(ctx); err != nil {
		logger.Error("failed to start engine provider", "error", err)
		os.Exit(1)
	}

	monitor := usage.NewMonitor()
	executor := retry.NewExecutor(retry.Policy{
		MaxRetries: cfg.Retry.MaxAttempts,
		BaseDelay:  cfg.Retry.BaseDelay(),
		MaxDelay:   cfg.Retry.MaxDelay(),
	}, logger)

	controller := session.NewController(provider, executor, monitor, logger, engine.LaunchConfig{
		Headless:       cfg.Browser.Headless,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		DefaultTimeout: cfg.Sessions.OperationTimeout(),
	})
	controller.SetReleaseTimeout(cfg.Sessions.ReleaseTimeout())

	registry := session.NewRegistry(session.Config{
		MaxSessions:           cfg.Sessions.MaxConcurrentSessions,
		MaxRequestsPerSession: cfg.Sessions.MaxRequestsPerSession,
		SessionTimeout:        cfg.Sessions.SessionTimeout(),
		OperationTimeout:      cfg.Sessions.OperationTimeout(),
	}, controller, monitor, logger)

	reaper := session.NewReaper(registry, cfg.Sessions.IdleReaperInterval(), logger)
	runner := ops.NewRunner(registry, monitor)
	server := status.NewServer(cfg.Server.Port, registry, runner, monitor, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		reaper.Run(gctx)
		return nil
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case <-gctx.Done():
		logger.Info("component failed, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	registry.Shutdown(shutdownCtx)

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("error stopping status server", "error", err)
	}
	if err := provider.Shutdown(); err != nil {
		logger.Error("error stopping engine provider", "error", err)
	}

	cancel()
	if err := g.Wait(); err != nil {
		logger.Error("shutdown finished with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// loadConfig reads the config file, falling back to defaults when the
// default path does not exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil && errors.Is(err, os.ErrNotExist) && path == "config.yaml" {
		return config.Default(), nil
	}
	return cfg, err
}

// newProvider constructs the engine backend once, from configuration.
func newProvider(cfg *config.Config, logger *slog.Logger) engine.Provider {
	if cfg.Browser.Backend == config.BackendMock {
		logger.Warn("using mock engine backend")
		return engine.NewMockProvider()
	}
	return engine.NewPlaywrightProvider(logger)
}
