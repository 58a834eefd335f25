package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultHTTPHost        = "0.0.0.0"
	DefaultHTTPPort        = 8080
	DefaultHTTPMode        = "release"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultTableType    = "species_dataset_matrix"
	DefaultRankLimit    = 10
	DefaultMaxRankLimit = 1000
	DefaultMaxSnapshots = 4

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "occurrence-matrix"
	DefaultMinIORegion   = "us-east-1"

	DefaultRedisMode   = "standalone"
	DefaultRedisAddr   = "localhost:6379"
	DefaultRedisTTL    = 15 * time.Minute
	DefaultRedisPrefix = "occmtx:"

	DefaultMetricsNamespace = "occmtx"
	DefaultMetricsPath      = "/metrics"
)

// DefaultWorkDir is <os temp dir>/occmtx.
func DefaultWorkDir() string {
	return filepath.Join(os.TempDir(), "occmtx")
}

// ApplyDefaults fills every zero-value field in cfg with its default.
// Fields that have already been set are left unchanged so that explicit
// configuration always wins.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	h := &cfg.Server.HTTP
	if h.Host == "" {
		h.Host = DefaultHTTPHost
	}
	if h.Port == 0 {
		h.Port = DefaultHTTPPort
	}
	if h.Mode == "" {
		h.Mode = DefaultHTTPMode
	}
	if h.ReadTimeout == 0 {
		h.ReadTimeout = DefaultReadTimeout
	}
	if h.WriteTimeout == 0 {
		h.WriteTimeout = DefaultWriteTimeout
	}
	if h.ShutdownTimeout == 0 {
		h.ShutdownTimeout = DefaultShutdownTimeout
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if len(cfg.Log.OutputPaths) == 0 {
		cfg.Log.OutputPaths = []string{"stdout"}
	}

	// ── Matrix ────────────────────────────────────────────────────────────────
	if cfg.Matrix.TableType == "" {
		cfg.Matrix.TableType = DefaultTableType
	}
	if cfg.Matrix.WorkDir == "" {
		cfg.Matrix.WorkDir = DefaultWorkDir()
	}
	if cfg.Matrix.MaxRankLimit == 0 {
		cfg.Matrix.MaxRankLimit = DefaultMaxRankLimit
	}
	if cfg.Matrix.RankLimit == 0 {
		cfg.Matrix.RankLimit = DefaultRankLimit
	}
	if cfg.Matrix.MaxSnapshots == 0 {
		cfg.Matrix.MaxSnapshots = DefaultMaxSnapshots
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}
	if cfg.MinIO.Region == "" {
		cfg.MinIO.Region = DefaultMinIORegion
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Mode == "" {
		cfg.Redis.Mode = DefaultRedisMode
	}
	if cfg.Redis.Addr == "" && len(cfg.Redis.Addrs) == 0 {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = DefaultRedisTTL
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisPrefix
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
}

// registerKeys declares every key with viper so that OCCMTX_* variables are
// honoured by Unmarshal even when the file omits the key.
func registerKeys(v *viper.Viper) {
	var cfg Config
	ApplyDefaults(&cfg)

	v.SetDefault("server.http.host", cfg.Server.HTTP.Host)
	v.SetDefault("server.http.port", cfg.Server.HTTP.Port)
	v.SetDefault("server.http.mode", cfg.Server.HTTP.Mode)
	v.SetDefault("server.http.read_timeout", cfg.Server.HTTP.ReadTimeout)
	v.SetDefault("server.http.write_timeout", cfg.Server.HTTP.WriteTimeout)
	v.SetDefault("server.http.shutdown_timeout", cfg.Server.HTTP.ShutdownTimeout)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.output_paths", cfg.Log.OutputPaths)

	v.SetDefault("matrix.table_type", cfg.Matrix.TableType)
	v.SetDefault("matrix.work_dir", cfg.Matrix.WorkDir)
	v.SetDefault("matrix.default_date", "")
	v.SetDefault("matrix.rank_limit", cfg.Matrix.RankLimit)
	v.SetDefault("matrix.max_rank_limit", cfg.Matrix.MaxRankLimit)
	v.SetDefault("matrix.max_snapshots", cfg.Matrix.MaxSnapshots)

	v.SetDefault("minio.enabled", false)
	v.SetDefault("minio.endpoint", cfg.MinIO.Endpoint)
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.bucket", cfg.MinIO.Bucket)
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.region", cfg.MinIO.Region)
	v.SetDefault("minio.prefix", "")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.mode", cfg.Redis.Mode)
	v.SetDefault("redis.addr", cfg.Redis.Addr)
	v.SetDefault("redis.addrs", []string{})
	v.SetDefault("redis.master_name", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", cfg.Redis.TTL)
	v.SetDefault("redis.key_prefix", cfg.Redis.KeyPrefix)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", cfg.Metrics.Namespace)
	v.SetDefault("metrics.subsystem", "")
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
