// Package bootstrap turns a loaded Config into the wired components shared by
// the API server and the CLI.
package bootstrap

import (
	"context"

	"github.com/turtacn/occurrence-matrix/internal/application/analyst"
	"github.com/turtacn/occurrence-matrix/internal/config"
	rediscache "github.com/turtacn/occurrence-matrix/internal/infrastructure/database/redis"
	"github.com/turtacn/occurrence-matrix/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/occurrence-matrix/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/occurrence-matrix/internal/infrastructure/storage/minio"
)

// Checker reports the health of one backing service.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// Components holds everything built from one Config.  Store, Redis and Cache
// are nil when the matching section is disabled.
type Components struct {
	Config  *config.Config
	Logger  logging.Logger
	Metrics *prometheus.AppMetrics

	MinIO *minio.Client
	Store *minio.ArchiveStore
	Redis *rediscache.Client
	Cache rediscache.Cache

	Catalog *analyst.Catalog
	Service analyst.Service
	Builder *analyst.Builder
}

// New connects the enabled backends and assembles the catalog, the query
// service and the builder.  metrics may be nil.
func New(cfg *config.Config, logger logging.Logger, metrics *prometheus.AppMetrics) (*Components, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if metrics == nil {
		metrics = prometheus.NewNoopAppMetrics()
	}
	c := &Components{Config: cfg, Logger: logger, Metrics: metrics}

	if cfg.MinIO.Enabled {
		mc, err := minio.NewClient(MinIOConfig(cfg.MinIO), logger)
		if err != nil {
			return nil, err
		}
		c.MinIO = mc
		c.Store = minio.NewArchiveStore(mc, logger)
	}

	if cfg.Redis.Enabled {
		rc, err := rediscache.NewClient(RedisConfig(cfg.Redis), logger)
		if err != nil {
			return nil, err
		}
		c.Redis = rc
		c.Cache = rediscache.NewRedisCache(rc, logger, rediscache.WithDefaultTTL(cfg.Redis.TTL))
	}

	var store analyst.ArchiveStore
	if c.Store != nil {
		store = c.Store
	}
	c.Catalog = analyst.NewCatalog(analyst.CatalogConfig{
		WorkDir:      cfg.Matrix.WorkDir,
		MaxSnapshots: cfg.Matrix.MaxSnapshots,
	}, store, metrics, logger)

	c.Service = analyst.NewService(analyst.ServiceConfig{
		Table:        cfg.Table(),
		DefaultDate:  cfg.Matrix.DefaultDate,
		CacheTTL:     cfg.Redis.TTL,
		RankLimit:    cfg.Matrix.RankLimit,
		MaxRankLimit: cfg.Matrix.MaxRankLimit,
	}, c.Catalog, c.Cache, metrics, logger)

	opts := []analyst.BuilderOption{
		analyst.WithCatalog(c.Catalog),
		analyst.WithBuilderMetrics(metrics),
	}
	if store != nil {
		opts = append(opts, analyst.WithArchiveStore(store))
	}
	if c.Redis != nil {
		opts = append(opts, analyst.WithBuildLock(RedisLockFactory(c.Redis)))
	}
	c.Builder = analyst.NewBuilder(cfg.Matrix.WorkDir, logger, opts...)
	return c, nil
}

// Checkers returns the health checkers of the connected backends.
func (c *Components) Checkers() []Checker {
	var out []Checker
	if c.MinIO != nil {
		out = append(out, c.MinIO)
	}
	if c.Redis != nil {
		out = append(out, c.Redis)
	}
	return out
}

// Close releases backend connections.
func (c *Components) Close() error {
	if c.Redis != nil {
		return c.Redis.Close()
	}
	return nil
}

// MinIOConfig maps the minio config section onto the client settings.
func MinIOConfig(m config.MinIOConfig) minio.MinIOConfig {
	return minio.MinIOConfig{
		Endpoint:        m.Endpoint,
		AccessKeyID:     m.AccessKey,
		SecretAccessKey: m.SecretKey,
		Bucket:          m.Bucket,
		UseSSL:          m.UseSSL,
		Region:          m.Region,
		Prefix:          m.Prefix,
	}
}

// RedisConfig maps the redis config section onto the client settings.
func RedisConfig(r config.RedisConfig) rediscache.RedisConfig {
	return rediscache.RedisConfig{
		Enabled:    r.Enabled,
		Mode:       r.Mode,
		Addr:       r.Addr,
		Addrs:      r.Addrs,
		MasterName: r.MasterName,
		Password:   r.Password,
		DB:         r.DB,
		TTL:        r.TTL,
		KeyPrefix:  r.KeyPrefix,
	}
}

// RedisLockFactory hands out one Redis mutex per build name.
func RedisLockFactory(client *rediscache.Client) analyst.LockFactory {
	return func(name string) analyst.Locker {
		return rediscache.NewMutex(client, name)
	}
}
