package analyst

import (
	"context"
	"fmt"
	"time"

	"github.com/turtacn/occurrence-matrix/internal/domain/matrix"
	rediscache "github.com/turtacn/occurrence-matrix/internal/infrastructure/database/redis"
	"github.com/turtacn/occurrence-matrix/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/occurrence-matrix/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/occurrence-matrix/pkg/errors"
)

// Operation names used for cache keys and metrics.
const (
	OpRowStats    = "row_stats"
	OpColumnStats = "column_stats"
	OpRank        = "rank"
	OpCompare     = "compare"
)

// Service is the query interface served over HTTP and the CLI.  An empty
// date selects the configured default date or, failing that, the latest
// available snapshot.  An empty label selects every label of the axis.
type Service interface {
	GetRowStats(ctx context.Context, date, label string) (*StatsResult, error)
	GetColumnStats(ctx context.Context, date, label string) (*StatsResult, error)
	Rank(ctx context.Context, date string, axis matrix.Axis, by matrix.SortField, order matrix.SortOrder, limit int) (*RankResult, error)
	Compare(ctx context.Context, date, label string, axis matrix.Axis) (*StatsResult, error)
}

// StatsResult carries one rendered statistics document.  Stats keys come
// from the table's key dictionary for Axis.
type StatsResult struct {
	Table string                 `json:"table"`
	Date  string                 `json:"date"`
	Axis  string                 `json:"axis"`
	Label string                 `json:"label,omitempty"`
	Stats map[string]interface{} `json:"stats"`
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Table        matrix.TableType
	DefaultDate  string
	CacheTTL     time.Duration
	RankLimit    int
	MaxRankLimit int
}

type serviceImpl struct {
	cfg     ServiceConfig
	source  SnapshotSource
	ranking *RankingEngine
	cache   rediscache.Cache
	metrics *prometheus.AppMetrics
	logger  logging.Logger
}

// NewService creates the query service.  cache and metrics may be nil.
func NewService(cfg ServiceConfig, source SnapshotSource, cache rediscache.Cache, metrics *prometheus.AppMetrics, logger logging.Logger) Service {
	if cache == nil {
		cache = rediscache.NewNoopCache()
	}
	if metrics == nil {
		metrics = prometheus.NewNoopAppMetrics()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &serviceImpl{
		cfg:     cfg,
		source:  source,
		ranking: NewRankingEngine(cfg.RankLimit, cfg.MaxRankLimit),
		cache:   cache,
		metrics: metrics,
		logger:  logger.Named("analyst"),
	}
}

func (s *serviceImpl) GetRowStats(ctx context.Context, date, label string) (*StatsResult, error) {
	return s.axisStats(ctx, OpRowStats, date, label, matrix.Row)
}

func (s *serviceImpl) GetColumnStats(ctx context.Context, date, label string) (*StatsResult, error) {
	return s.axisStats(ctx, OpColumnStats, date, label, matrix.Column)
}

func (s *serviceImpl) axisStats(ctx context.Context, op, date, label string, axis matrix.Axis) (*StatsResult, error) {
	var out StatsResult
	err := s.run(ctx, op, date, label, &out, s.onSnapshot(func(snap *Snapshot, keys matrix.KeySet) (interface{}, error) {
		res := &StatsResult{Table: string(snap.Table), Date: snap.Date, Axis: axis.String(), Label: label}
		if label == "" {
			agg, err := snap.Stats.ForAll(axis)
			if err != nil {
				return nil, err
			}
			res.Stats = agg.Render(keys)
			return res, nil
		}
		one, err := snap.Stats.ForLabel(label, axis)
		if err != nil {
			return nil, err
		}
		res.Stats = one.Render(keys)
		return res, nil
	}), axis)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *serviceImpl) Rank(ctx context.Context, date string, axis matrix.Axis, by matrix.SortField, order matrix.SortOrder, limit int) (*RankResult, error) {
	req, err := s.ranking.Normalize(RankRequest{Axis: axis, By: by, Order: order, Limit: limit})
	if err != nil {
		s.metrics.RecordQuery(OpRank, 0, err)
		return nil, err
	}
	args := fmt.Sprintf("%s:%s:%s:%d", req.Axis, req.By, req.Order, req.Limit)

	var out RankResult
	err = s.run(ctx, OpRank, date, args, &out, func(ctx context.Context, date string, _ matrix.KeySet) (interface{}, error) {
		if src, ok := s.source.(SummarySource); ok {
			sum, err := src.LoadSummary(ctx, s.cfg.Table, date, req.Axis)
			if err != nil {
				return nil, err
			}
			return s.ranking.RankSummary(s.cfg.Table, date, sum, req)
		}
		snap, err := s.source.Load(ctx, s.cfg.Table, date)
		if err != nil {
			return nil, err
		}
		return s.ranking.Rank(snap, req)
	}, axis)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *serviceImpl) Compare(ctx context.Context, date, label string, axis matrix.Axis) (*StatsResult, error) {
	if label == "" {
		err := errors.InvalidParam("compare needs a label")
		s.metrics.RecordQuery(OpCompare, 0, err)
		return nil, err
	}
	var out StatsResult
	err := s.run(ctx, OpCompare, date, axis.String()+":"+label, &out, s.onSnapshot(func(snap *Snapshot, keys matrix.KeySet) (interface{}, error) {
		cmp, err := snap.Stats.Compare(label, axis)
		if err != nil {
			return nil, err
		}
		return &StatsResult{
			Table: string(snap.Table),
			Date:  snap.Date,
			Axis:  axis.String(),
			Label: label,
			Stats: cmp.Render(keys),
		}, nil
	}), axis)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type computeFunc func(ctx context.Context, date string, keys matrix.KeySet) (interface{}, error)

// onSnapshot adapts fn to a computeFunc that loads the full snapshot.
func (s *serviceImpl) onSnapshot(fn func(snap *Snapshot, keys matrix.KeySet) (interface{}, error)) computeFunc {
	return func(ctx context.Context, date string, keys matrix.KeySet) (interface{}, error) {
		snap, err := s.source.Load(ctx, s.cfg.Table, date)
		if err != nil {
			return nil, err
		}
		return fn(snap, keys)
	}
}

// run resolves the date, then serves dest from the cache or computes it.  Every call is timed and counted under op.
func (s *serviceImpl) run(ctx context.Context, op, date, args string, dest interface{}, compute computeFunc, axis matrix.Axis) (err error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordQuery(op, time.Since(start), err)
		if err != nil {
			s.metrics.RecordError("analyst", string(errors.GetCode(err)))
			s.logger.Debug("query failed",
				logging.String("op", op),
				logging.String(logging.FieldDate, date),
				logging.String(logging.FieldErrorCode, string(errors.GetCode(err))),
				logging.Err(err))
		}
	}()

	if !axis.Valid() {
		return errors.Newf(errors.ErrCodeInvalidAxis, "axis %d is not row or column", int(axis))
	}
	keys, err := matrix.KeysFor(s.cfg.Table)
	if err != nil {
		return err
	}
	if date, err = s.resolveDate(ctx, date); err != nil {
		return err
	}

	key := fmt.Sprintf("stats:%s:%s:%s:%s", s.cfg.Table, date, op, args)
	hit, err := s.cache.GetOrSet(ctx, key, dest, s.cfg.CacheTTL, func(ctx context.Context) (interface{}, error) {
		return compute(ctx, date, keys.For(axis))
	})
	if err != nil {
		return err
	}
	s.metrics.RecordCacheAccess(op, hit)
	return nil
}

func (s *serviceImpl) resolveDate(ctx context.Context, date string) (string, error) {
	if date == "" {
		date = s.cfg.DefaultDate
	}
	if date == "" {
		return s.source.Latest(ctx, s.cfg.Table)
	}
	if _, err := matrix.ParseDateStamp(date); err != nil {
		return "", err
	}
	return date, nil
}
