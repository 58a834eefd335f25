// Package config defines the configuration structures for the occurrence
// matrix services.  No I/O or parsing logic lives here, only plain data types
// and validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/turtacn/occurrence-matrix/internal/domain/matrix"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// HTTPServerConfig holds HTTP server tunables.
type HTTPServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns host:port.
func (c HTTPServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ServerConfig groups the listeners.
type ServerConfig struct {
	HTTP HTTPServerConfig `mapstructure:"http"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level       string   `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format      string   `mapstructure:"format"` // "json" | "console"
	OutputPaths []string `mapstructure:"output_paths"`
}

// MatrixConfig selects the table and local working directory.
type MatrixConfig struct {
	TableType string `mapstructure:"table_type"`
	// WorkDir holds built and downloaded archives and their extracted files.
	WorkDir string `mapstructure:"work_dir"`
	// DefaultDate is used when a query names no date; empty means the most
	// recent date found in the store.
	DefaultDate string `mapstructure:"default_date"`
	// RankLimit is the ranking size when a request gives none.
	RankLimit    int `mapstructure:"rank_limit"`
	MaxRankLimit int `mapstructure:"max_rank_limit"`
	// MaxSnapshots bounds how many dated snapshots stay in memory.
	MaxSnapshots int `mapstructure:"max_snapshots"`
}

// MinIOConfig holds S3-compatible object-storage parameters.
type MinIOConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
}

// RedisConfig holds the query cache connection parameters.
type RedisConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Mode       string        `mapstructure:"mode"` // "standalone" | "sentinel" | "cluster"
	Addr       string        `mapstructure:"addr"`
	Addrs      []string      `mapstructure:"addrs"`
	MasterName string        `mapstructure:"master_name"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	TTL        time.Duration `mapstructure:"ttl"`
	KeyPrefix  string        `mapstructure:"key_prefix"`
}

// MetricsConfig holds Prometheus exposition parameters.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`
	Path      string `mapstructure:"path"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Matrix  MatrixConfig  `mapstructure:"matrix"`
	MinIO   MinIOConfig   `mapstructure:"minio"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered.
func (c *Config) Validate() error {
	// Server
	h := c.Server.HTTP
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("config: server.http.port %d is out of range [1, 65535]", h.Port)
	}
	switch h.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.http.mode %q is invalid; expected debug|release|test", h.Mode)
	}
	if h.ShutdownTimeout < 0 {
		return fmt.Errorf("config: server.http.shutdown_timeout must not be negative")
	}

	// Log
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	// Matrix
	t, err := matrix.ParseTableType(c.Matrix.TableType)
	if err != nil {
		return fmt.Errorf("config: matrix.table_type: %w", err)
	}
	if meta, _ := t.Meta(); meta.IsSummary() {
		return fmt.Errorf("config: matrix.table_type %q is a summary table", c.Matrix.TableType)
	}
	if c.Matrix.WorkDir == "" {
		return fmt.Errorf("config: matrix.work_dir is required")
	}
	if c.Matrix.DefaultDate != "" {
		if _, err := matrix.ParseDateStamp(c.Matrix.DefaultDate); err != nil {
			return fmt.Errorf("config: matrix.default_date: %w", err)
		}
	}
	if c.Matrix.MaxRankLimit < 1 {
		return fmt.Errorf("config: matrix.max_rank_limit must be ≥ 1, got %d", c.Matrix.MaxRankLimit)
	}
	if c.Matrix.RankLimit < 1 || c.Matrix.RankLimit > c.Matrix.MaxRankLimit {
		return fmt.Errorf("config: matrix.rank_limit %d is out of range [1, %d]", c.Matrix.RankLimit, c.Matrix.MaxRankLimit)
	}
	if c.Matrix.MaxSnapshots < 1 {
		return fmt.Errorf("config: matrix.max_snapshots must be ≥ 1, got %d", c.Matrix.MaxSnapshots)
	}

	// MinIO
	if c.MinIO.Enabled {
		if c.MinIO.Endpoint == "" {
			return fmt.Errorf("config: minio.endpoint is required when minio is enabled")
		}
		if c.MinIO.Bucket == "" {
			return fmt.Errorf("config: minio.bucket is required when minio is enabled")
		}
	}

	// Redis
	if c.Redis.Enabled {
		switch c.Redis.Mode {
		case "standalone":
			if c.Redis.Addr == "" {
				return fmt.Errorf("config: redis.addr is required in standalone mode")
			}
		case "sentinel":
			if c.Redis.MasterName == "" || len(c.Redis.Addrs) == 0 {
				return fmt.Errorf("config: redis sentinel mode needs master_name and addrs")
			}
		case "cluster":
			if len(c.Redis.Addrs) == 0 {
				return fmt.Errorf("config: redis.addrs must contain at least one node in cluster mode")
			}
		default:
			return fmt.Errorf("config: redis.mode %q is invalid; expected standalone|sentinel|cluster", c.Redis.Mode)
		}
		if c.Redis.DB < 0 {
			return fmt.Errorf("config: redis.db must be ≥ 0, got %d", c.Redis.DB)
		}
	}

	// Metrics
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("config: metrics.path %q must start with /", c.Metrics.Path)
	}

	return nil
}

// Table returns the configured matrix table type.  It assumes Validate has
// succeeded.
func (c *Config) Table() matrix.TableType {
	t, _ := matrix.ParseTableType(c.Matrix.TableType)
	return t
}
