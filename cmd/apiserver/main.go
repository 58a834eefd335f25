// Command apiserver serves occurrence matrix statistics over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/turtacn/occurrence-matrix/internal/bootstrap"
	"github.com/turtacn/occurrence-matrix/internal/config"
	"github.com/turtacn/occurrence-matrix/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/occurrence-matrix/internal/interfaces/http"
	"github.com/turtacn/occurrence-matrix/internal/interfaces/http/handlers"
)

const defaultConfigPath = "configs/config.yaml"

// Build-time variables injected via ldflags.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	httpPort := flag.Int("http-port", 0, "HTTP server port (overrides config)")
	flag.Parse()

	cfg, configFile, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *httpPort > 0 {
		cfg.Server.HTTP.Port = *httpPort
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()
	logging.SetDefault(logger)

	collector, metrics, err := newMetrics(cfg.Metrics, logger)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	comps, err := bootstrap.New(cfg, logger, metrics)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer comps.Close()

	router := httpserver.NewRouter(httpserver.RouterConfig{
		Mode:             cfg.Server.HTTP.Mode,
		AnalystHandler:   handlers.NewAnalystHandler(comps.Service, logger),
		HealthHandler:    handlers.NewHealthHandler(version, metrics, healthCheckers(comps.Checkers())...),
		Logger:           logger,
		Metrics:          metrics,
		MetricsCollector: collector,
		MetricsPath:      cfg.Metrics.Path,
	})
	srv := httpserver.NewServer(cfg.Server.HTTP, router, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if configFile != "" {
		err := config.Watch(ctx, configFile, func(next *config.Config) {
			level, err := logging.ParseLevel(next.Log.Level)
			if err != nil {
				logger.Warn("ignoring reloaded log level", logging.Err(err))
				return
			}
			logger.SetLevel(level)
			logger.Info("config reloaded", logging.String("log_level", string(level)))
		}, func(err error) {
			logger.Warn("config reload failed", logging.Err(err))
		})
		if err != nil {
			logger.Warn("config watch disabled", logging.Err(err))
		}
	}

	logger.Info("starting occurrence matrix API server",
		logging.String("version", version),
		logging.String("addr", cfg.Server.HTTP.Addr()),
		logging.String(logging.FieldTable, string(cfg.Table())),
		logging.Bool("minio", cfg.MinIO.Enabled),
		logging.Bool("redis", cfg.Redis.Enabled))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("HTTP server shutdown error", logging.Err(err))
		return err
	}
	return <-errCh
}

// loadConfig reads path when it exists and falls back to environment and
// defaults otherwise.  The returned file name is empty in the fallback case.
func loadConfig(path string) (*config.Config, string, error) {
	cfg, err := config.LoadFromFile(path)
	if err == nil {
		return cfg, path, nil
	}
	if !errors.Is(err, config.ErrConfigFileNotFound) {
		return nil, "", err
	}
	fmt.Fprintf(os.Stderr, "warning: %v; using environment and defaults\n", err)
	cfg, err = config.LoadFromEnv()
	return cfg, "", err
}
