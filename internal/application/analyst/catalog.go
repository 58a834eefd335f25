// Package analyst answers statistics and ranking queries over dated matrix
// snapshots and builds new snapshots from stacked record tables.
package analyst

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/turtacn/occurrence-matrix/internal/domain/matrix"
	"github.com/turtacn/occurrence-matrix/internal/infrastructure/archive"
	"github.com/turtacn/occurrence-matrix/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/occurrence-matrix/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/occurrence-matrix/pkg/errors"
)

// ArchiveStore is the remote archive storage used by the catalog and the
// builder.  It is satisfied by the MinIO archive store.
type ArchiveStore interface {
	Bucket() string
	ArchiveKey(date, fileName string) string
	Upload(ctx context.Context, localPath, bucket, key string) error
	Download(ctx context.Context, bucket, key, localPath string, overwrite bool) (string, error)
	Dates(ctx context.Context, t matrix.TableType) ([]string, error)
}

// Snapshot is one loaded, immutable matrix together with its derived views.
type Snapshot struct {
	Table         matrix.TableType
	Date          string
	Matrix        *matrix.SparseMatrix
	Stats         *matrix.Statistics
	RowSummary    *matrix.Summary
	ColumnSummary *matrix.Summary
	LoadedAt      time.Time
}

// NewSnapshot derives the statistics calculator and both summaries from m.
func NewSnapshot(t matrix.TableType, date string, m *matrix.SparseMatrix) (*Snapshot, error) {
	rows, err := matrix.NewSummary(m, matrix.Row)
	if err != nil {
		return nil, err
	}
	cols, err := matrix.NewSummary(m, matrix.Column)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Table:         t,
		Date:          date,
		Matrix:        m,
		Stats:         matrix.NewStatistics(m),
		RowSummary:    rows,
		ColumnSummary: cols,
		LoadedAt:      time.Now().UTC(),
	}, nil
}

// Summary returns the projection along axis a.
func (s *Snapshot) Summary(a matrix.Axis) *matrix.Summary {
	if a == matrix.Column {
		return s.ColumnSummary
	}
	return s.RowSummary
}

// SnapshotSource resolves snapshots by table and date.
type SnapshotSource interface {
	Load(ctx context.Context, t matrix.TableType, date string) (*Snapshot, error)
	Latest(ctx context.Context, t matrix.TableType) (string, error)
}

// SummarySource resolves a single-axis summary without requiring the full
// matrix to be resident.
type SummarySource interface {
	LoadSummary(ctx context.Context, t matrix.TableType, date string, a matrix.Axis) (*matrix.Summary, error)
}

// CatalogConfig configures a Catalog.
type CatalogConfig struct {
	// WorkDir receives downloaded archives under <WorkDir>/<date>/.
	WorkDir string
	// MaxSnapshots bounds how many snapshots stay resident.
	MaxSnapshots int
	// Overwrite forces re-download and re-extraction of archives already
	// present in WorkDir.
	Overwrite bool
}

type snapshotKey struct {
	table matrix.TableType
	date  string
}

func (k snapshotKey) String() string { return string(k.table) + "/" + k.date }

// catalogEntry holds either a matrix snapshot or a summary read from its
// own archive.
type catalogEntry struct {
	snap     *Snapshot
	summary  *matrix.Summary
	lastUsed time.Time
}

// Catalog keeps recently used snapshots and summaries in memory.
// Concurrent loads of the same archive share one download and decode.
// Without a store, archives are read from WorkDir only.
type Catalog struct {
	cfg       CatalogConfig
	store     ArchiveStore
	codec     *archive.Codec
	summaries *archive.SummaryCodec
	metrics   *prometheus.AppMetrics
	logger  logging.Logger

	mu      sync.Mutex
	entries map[snapshotKey]*catalogEntry
	group   singleflight.Group
}

// NewCatalog creates a catalog.  store may be nil.
func NewCatalog(cfg CatalogConfig, store ArchiveStore, metrics *prometheus.AppMetrics, logger logging.Logger) *Catalog {
	if cfg.MaxSnapshots < 1 {
		cfg.MaxSnapshots = 1
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if metrics == nil {
		metrics = prometheus.NewNoopAppMetrics()
	}
	return &Catalog{
		cfg:     cfg,
		store:   store,
		codec:     archive.NewCodec(logger),
		summaries: archive.NewSummaryCodec(logger),
		metrics:   metrics,
		logger:    logger.Named("catalog"),
		entries:   make(map[snapshotKey]*catalogEntry),
	}
}

// Load returns the snapshot of table t at date, loading it on first use.
func (c *Catalog) Load(ctx context.Context, t matrix.TableType, date string) (*Snapshot, error) {
	base, err := matrixFileBase(t, date)
	if err != nil {
		return nil, err
	}
	key := snapshotKey{table: t, date: date}
	if snap := c.get(key); snap != nil {
		return snap, nil
	}

	v, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		if snap := c.get(key); snap != nil {
			return snap, nil
		}
		snap, err := c.load(context.WithoutCancel(ctx), t, date, base)
		c.metrics.SnapshotLoads.WithLabelValues(string(t), loadStatus(err)).Inc()
		if err != nil {
			return nil, err
		}
		c.Put(snap)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// LoadSummary returns the summary of table t at date along axis a.  A
// resident matrix snapshot answers directly; otherwise the summary archive
// is read on its own, and the matrix archive is loaded only when no
// summary archive exists for that date.
func (c *Catalog) LoadSummary(ctx context.Context, t matrix.TableType, date string, a matrix.Axis) (*matrix.Summary, error) {
	if _, err := matrixFileBase(t, date); err != nil {
		return nil, err
	}
	st, err := t.SummaryFor(a)
	if err != nil {
		return nil, err
	}
	if snap := c.get(snapshotKey{table: t, date: date}); snap != nil {
		return snap.Summary(a), nil
	}
	key := snapshotKey{table: st, date: date}
	if e := c.touch(key); e != nil && e.summary != nil {
		return e.summary, nil
	}

	v, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		if e := c.touch(key); e != nil && e.summary != nil {
			return e.summary, nil
		}
		s, err := c.loadSummary(context.WithoutCancel(ctx), st, date)
		c.metrics.SnapshotLoads.WithLabelValues(string(st), loadStatus(err)).Inc()
		if err != nil {
			return nil, err
		}
		c.put(key, &catalogEntry{summary: s})
		return s, nil
	})
	if err == nil {
		return v.(*matrix.Summary), nil
	}
	if !errors.IsCode(err, errors.ErrCodeMissingArchiveFile) {
		return nil, err
	}

	c.logger.Debug("summary archive unavailable, loading matrix",
		logging.String(logging.FieldTable, string(st)),
		logging.String(logging.FieldDate, date))
	snap, err := c.Load(ctx, t, date)
	if err != nil {
		return nil, err
	}
	return snap.Summary(a), nil
}

func (c *Catalog) loadSummary(ctx context.Context, st matrix.TableType, date string) (*matrix.Summary, error) {
	base, err := matrix.FileBase(st, date)
	if err != nil {
		return nil, err
	}
	localPath, err := c.fetch(ctx, date, base+".zip")
	if err != nil {
		return nil, err
	}
	arc, err := c.summaries.Deserialize(localPath, filepath.Dir(localPath), c.cfg.Overwrite)
	if err != nil {
		return nil, err
	}
	c.logger.Info("summary loaded",
		logging.String(logging.FieldTable, string(st)),
		logging.String(logging.FieldDate, date),
		logging.Int("labels", arc.Summary.Len()))
	return arc.Summary, nil
}

// fetch makes <WorkDir>/<date>/<fileName> available locally, downloading
// it when a store is configured.
func (c *Catalog) fetch(ctx context.Context, date, fileName string) (string, error) {
	localPath := filepath.Join(c.cfg.WorkDir, date, fileName)
	if c.store != nil {
		return c.store.Download(ctx, c.store.Bucket(), c.store.ArchiveKey(date, fileName), localPath, c.cfg.Overwrite)
	}
	if _, err := os.Stat(localPath); err != nil {
		return "", errors.New(errors.ErrCodeMissingArchiveFile, "archive not found in work dir").
			WithDetail(localPath)
	}
	return localPath, nil
}

func (c *Catalog) load(ctx context.Context, t matrix.TableType, date, base string) (*Snapshot, error) {
	start := time.Now()
	localPath, err := c.fetch(ctx, date, base+".zip")
	if err != nil {
		return nil, err
	}

	arc, err := c.codec.Deserialize(localPath, filepath.Dir(localPath), c.cfg.Overwrite)
	if err != nil {
		return nil, err
	}
	snap, err := NewSnapshot(t, date, arc.Matrix)
	if err != nil {
		return nil, err
	}

	rows, cols := arc.Matrix.Shape()
	c.metrics.RecordMatrixShape(string(t), date, rows, cols, arc.Matrix.Nnz())
	c.logger.Info("snapshot loaded",
		logging.String(logging.FieldTable, string(t)),
		logging.String(logging.FieldDate, date),
		logging.Int("rows", rows),
		logging.Int("columns", cols),
		logging.Int("nnz", arc.Matrix.Nnz()),
		logging.Duration("elapsed", time.Since(start)))
	return snap, nil
}

// Put registers an already built snapshot, evicting the least recently used
// entry when the catalog is full.  Summaries held separately for the same
// date are dropped.
func (c *Catalog) Put(snap *Snapshot) {
	for _, a := range []matrix.Axis{matrix.Row, matrix.Column} {
		if st, err := snap.Table.SummaryFor(a); err == nil {
			c.Evict(st, snap.Date)
		}
	}
	c.put(snapshotKey{table: snap.Table, date: snap.Date}, &catalogEntry{snap: snap})
}

func (c *Catalog) put(key snapshotKey, entry *catalogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry.lastUsed = time.Now()
	c.entries[key] = entry
	for len(c.entries) > c.cfg.MaxSnapshots {
		var oldest snapshotKey
		var oldestAt time.Time
		first := true
		for k, e := range c.entries {
			if k == key {
				continue
			}
			if first || e.lastUsed.Before(oldestAt) {
				oldest, oldestAt, first = k, e.lastUsed, false
			}
		}
		delete(c.entries, oldest)
		c.logger.Debug("catalog entry evicted",
			logging.String(logging.FieldTable, string(oldest.table)),
			logging.String(logging.FieldDate, oldest.date))
	}
	c.metrics.SnapshotsHeld.WithLabelValues().Set(float64(len(c.entries)))
}

// Evict drops the entry of t at date, if resident.
func (c *Catalog) Evict(t matrix.TableType, date string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, snapshotKey{table: t, date: date})
	c.metrics.SnapshotsHeld.WithLabelValues().Set(float64(len(c.entries)))
}

// Len returns the number of resident snapshots and summaries.
func (c *Catalog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Catalog) get(key snapshotKey) *Snapshot {
	if e := c.touch(key); e != nil {
		return e.snap
	}
	return nil
}

func (c *Catalog) touch(key snapshotKey) *catalogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	e.lastUsed = time.Now()
	return e
}

// Latest returns the most recent date for which an archive of t exists,
// asking the store when there is one and scanning WorkDir otherwise.
func (c *Catalog) Latest(ctx context.Context, t matrix.TableType) (string, error) {
	var dates []string
	if c.store != nil {
		var err error
		if dates, err = c.store.Dates(ctx, t); err != nil {
			return "", err
		}
	} else {
		dates = c.localDates(t)
	}
	if len(dates) == 0 {
		return "", errors.Newf(errors.ErrCodeMissingArchiveFile, "no %s archive is available", t)
	}
	sort.Strings(dates)
	return dates[len(dates)-1], nil
}

func (c *Catalog) localDates(t matrix.TableType) []string {
	dirs, err := os.ReadDir(c.cfg.WorkDir)
	if err != nil {
		return nil
	}
	var dates []string
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		base, err := matrix.FileBase(t, d.Name())
		if err != nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(c.cfg.WorkDir, d.Name(), base+".zip")); err == nil {
			dates = append(dates, d.Name())
		}
	}
	return dates
}

// matrixFileBase validates that t is a matrix table and date a stamp.
func matrixFileBase(t matrix.TableType, date string) (string, error) {
	meta, err := t.Meta()
	if err != nil {
		return "", err
	}
	if meta.IsSummary() {
		return "", errors.Newf(errors.ErrCodeUnknownTableType, "table %s is a summary table", t)
	}
	return matrix.FileBase(t, date)
}

func loadStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
