package main

import (
	"github.com/turtacn/occurrence-matrix/internal/bootstrap"
	"github.com/turtacn/occurrence-matrix/internal/config"
	"github.com/turtacn/occurrence-matrix/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/occurrence-matrix/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/occurrence-matrix/internal/interfaces/http/handlers"
)

// newLogger maps the log config section onto the zap-backed logger.
func newLogger(c config.LogConfig) (logging.Logger, error) {
	level, err := logging.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(logging.LogConfig{
		Level:       level,
		Format:      c.Format,
		OutputPaths: c.OutputPaths,
	})
}

// newMetrics builds the Prometheus collector, or no-op metrics when
// exposition is disabled.
func newMetrics(c config.MetricsConfig, logger logging.Logger) (prometheus.MetricsCollector, *prometheus.AppMetrics, error) {
	if !c.Enabled {
		return nil, prometheus.NewNoopAppMetrics(), nil
	}
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            c.Namespace,
		Subsystem:            c.Subsystem,
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return collector, prometheus.NewAppMetrics(collector), nil
}

// healthCheckers exposes the connected backends to the readiness probe.
func healthCheckers(checkers []bootstrap.Checker) []handlers.HealthChecker {
	out := make([]handlers.HealthChecker, len(checkers))
	for i, c := range checkers {
		out[i] = c
	}
	return out
}
