// Package http exposes the query service over a gin router.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/occurrence-matrix/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/occurrence-matrix/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/occurrence-matrix/internal/interfaces/http/handlers"
	"github.com/turtacn/occurrence-matrix/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handler and middleware dependencies of the
// route tree.
type RouterConfig struct {
	// Mode is the gin mode: debug, release or test.
	Mode string

	AnalystHandler *handlers.AnalystHandler
	HealthHandler  *handlers.HealthHandler

	CORS    *middleware.CORSConfig
	Logging *middleware.LoggingConfig

	Logger           logging.Logger
	Metrics          *prometheus.AppMetrics
	MetricsCollector prometheus.MetricsCollector
	// MetricsPath defaults to /metrics.
	MetricsPath string
}

// NewRouter constructs the route tree.  Nil handlers leave their routes
// unregistered.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}
	logCfg := middleware.DefaultLoggingConfig()
	if cfg.Logging != nil {
		logCfg = *cfg.Logging
	}
	corsCfg := middleware.DefaultCORSConfig()
	if cfg.CORS != nil {
		corsCfg = *cfg.CORS
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true

	// Global middleware, outermost first.
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogging(cfg.Logger.Named("http"), logCfg))
	r.Use(middleware.Recovery(cfg.Logger.Named("http")))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	r.Use(middleware.CORS(corsCfg))

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterRoutes(r)
	}
	if cfg.MetricsCollector != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(cfg.MetricsCollector.Handler()))
	}

	api := r.Group("/api/v1")
	if cfg.AnalystHandler != nil {
		cfg.AnalystHandler.RegisterRoutes(api)
	}
	return r
}
