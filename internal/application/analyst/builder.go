package analyst

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/occurrence-matrix/internal/domain/matrix"
	"github.com/turtacn/occurrence-matrix/internal/infrastructure/archive"
	"github.com/turtacn/occurrence-matrix/internal/infrastructure/ingest"
	"github.com/turtacn/occurrence-matrix/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/occurrence-matrix/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/occurrence-matrix/pkg/errors"
)

// Locker serialises builds of the same table and date across processes.
type Locker interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// LockFactory returns the lock guarding name.
type LockFactory func(name string) Locker

// BuildRequest describes one build.
type BuildRequest struct {
	// InputPath is a CSV or TSV stacked record table.
	InputPath string
	Table     matrix.TableType
	// Date defaults to today (UTC).
	Date string
	// OutDir defaults to <work dir>/<date>.
	OutDir string
	// Upload sends the archives to the store.
	Upload bool
}

// BuiltArchive is one archive produced by a build.
type BuiltArchive struct {
	Table     matrix.TableType `json:"table"`
	LocalPath string           `json:"local_path"`
	RemoteKey string           `json:"remote_key,omitempty"`
	Bytes     int64            `json:"bytes"`
}

// BuildResult reports a finished build.
type BuildResult struct {
	RunID       string             `json:"run_id"`
	Table       matrix.TableType   `json:"table"`
	Date        string             `json:"date"`
	Lines       int                `json:"lines"`
	BlankKeys   int                `json:"blank_keys"`
	BlankValues int                `json:"blank_values"`
	Report      matrix.BuildReport `json:"report"`
	Rows        int                `json:"rows"`
	Columns     int                `json:"columns"`
	Nnz         int                `json:"nnz"`
	Archives    []BuiltArchive     `json:"archives"`
	Elapsed     time.Duration      `json:"elapsed"`
}

// BuilderOption customises a Builder.
type BuilderOption func(*Builder)

// WithArchiveStore enables uploads.
func WithArchiveStore(store ArchiveStore) BuilderOption {
	return func(b *Builder) { b.store = store }
}

// WithBuildLock guards every build with a lock named
// "build:<table>:<date>".
func WithBuildLock(f LockFactory) BuilderOption {
	return func(b *Builder) { b.locks = f }
}

// WithCatalog registers each built snapshot so that it is queryable without
// a reload.
func WithCatalog(c *Catalog) BuilderOption {
	return func(b *Builder) { b.catalog = c }
}

// WithBuilderMetrics records build metrics.
func WithBuilderMetrics(m *prometheus.AppMetrics) BuilderOption {
	return func(b *Builder) { b.metrics = m }
}

// Builder turns a stacked record table into matrix and summary archives.
type Builder struct {
	workDir      string
	store        ArchiveStore
	locks        LockFactory
	catalog      *Catalog
	codec        *archive.Codec
	summaryCodec *archive.SummaryCodec
	metrics      *prometheus.AppMetrics
	logger       logging.Logger
}

// NewBuilder creates a builder writing under workDir.
func NewBuilder(workDir string, logger logging.Logger, opts ...BuilderOption) *Builder {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	b := &Builder{
		workDir:      workDir,
		codec:        archive.NewCodec(logger),
		summaryCodec: archive.NewSummaryCodec(logger),
		metrics:      prometheus.NewNoopAppMetrics(),
		logger:       logger.Named("builder"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build reads req.InputPath, builds the matrix and writes its archive and
// both summary archives.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (res *BuildResult, err error) {
	start := time.Now()
	if req.Date == "" {
		req.Date = matrix.FormatDateStamp(time.Now().UTC())
	}
	if _, err := matrixFileBase(req.Table, req.Date); err != nil {
		return nil, err
	}
	if req.InputPath == "" {
		return nil, errors.InvalidParam("input path is required")
	}
	if req.Upload && b.store == nil {
		return nil, errors.InvalidParam("upload requested but no archive store is configured")
	}
	if req.OutDir == "" {
		req.OutDir = filepath.Join(b.workDir, req.Date)
	}

	runID := uuid.New().String()
	log := b.logger.With(
		logging.String(logging.FieldRunID, runID),
		logging.String(logging.FieldTable, string(req.Table)),
		logging.String(logging.FieldDate, req.Date))

	var collisions int
	defer func() {
		b.metrics.RecordBuild(string(req.Table), time.Since(start), collisions, err)
		if err != nil {
			log.Error("build failed", logging.Err(err))
		}
	}()

	if b.locks != nil {
		lock := b.locks("build:" + string(req.Table) + ":" + req.Date)
		if err := lock.Lock(ctx); err != nil {
			return nil, err
		}
		defer func() {
			if uerr := lock.Unlock(context.Background()); uerr != nil {
				log.Warn("release build lock", logging.Err(uerr))
			}
		}()
	}

	meta, err := req.Table.Meta()
	if err != nil {
		return nil, err
	}
	opts, err := ingest.OptionsFor(req.Table)
	if err != nil {
		return nil, err
	}
	input, err := ingest.NewReader(opts, b.logger).ReadFile(ctx, req.InputPath)
	if err != nil {
		return nil, err
	}

	m, report, err := matrix.NewFromStacked(input.Records, meta.RowField, meta.ColumnField)
	if err != nil {
		return nil, err
	}
	collisions = report.Collisions
	if report.Collisions > 0 {
		log.Warn("duplicate coordinates overwritten, last record wins",
			logging.Int("collisions", report.Collisions),
			logging.Int("records", report.Records))
	}

	snap, err := NewSnapshot(req.Table, req.Date, m)
	if err != nil {
		return nil, err
	}
	archives, err := b.writeArchives(ctx, snap, req.OutDir)
	if err != nil {
		return nil, err
	}
	if req.Upload {
		if err := b.upload(ctx, req.Date, archives); err != nil {
			return nil, err
		}
	}
	if b.catalog != nil {
		b.catalog.Put(snap)
	}

	rows, cols := m.Shape()
	b.metrics.RecordMatrixShape(string(req.Table), req.Date, rows, cols, m.Nnz())
	res = &BuildResult{
		RunID:       runID,
		Table:       req.Table,
		Date:        req.Date,
		Lines:       input.Lines,
		BlankKeys:   input.BlankKeys,
		BlankValues: input.BlankValues,
		Report:      report,
		Rows:        rows,
		Columns:     cols,
		Nnz:         m.Nnz(),
		Archives:    archives,
		Elapsed:     time.Since(start),
	}
	log.Info("build finished",
		logging.Int("rows", rows),
		logging.Int("columns", cols),
		logging.Int("nnz", m.Nnz()),
		logging.Bool("uploaded", req.Upload),
		logging.Duration("elapsed", res.Elapsed))
	return res, nil
}

// writeArchives serialises the matrix and its two summaries concurrently.
func (b *Builder) writeArchives(ctx context.Context, snap *Snapshot, outDir string) ([]BuiltArchive, error) {
	rowTable, err := snap.Table.SummaryFor(matrix.Row)
	if err != nil {
		return nil, err
	}
	colTable, err := snap.Table.SummaryFor(matrix.Column)
	if err != nil {
		return nil, err
	}

	out := []BuiltArchive{{Table: snap.Table}, {Table: rowTable}, {Table: colTable}}
	g, gctx := errgroup.WithContext(ctx)
	write := func(i int, fn func() (string, error)) {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			path, err := fn()
			if err != nil {
				return err
			}
			out[i].LocalPath = path
			if fi, err := os.Stat(path); err == nil {
				out[i].Bytes = fi.Size()
				b.metrics.ArchiveBytesTotal.WithLabelValues(string(out[i].Table), "write").Add(float64(fi.Size()))
			}
			return nil
		})
	}
	write(0, func() (string, error) { return b.codec.Serialize(snap.Matrix, snap.Table, snap.Date, outDir) })
	write(1, func() (string, error) { return b.summaryCodec.Serialize(snap.RowSummary, rowTable, snap.Date, outDir) })
	write(2, func() (string, error) { return b.summaryCodec.Serialize(snap.ColumnSummary, colTable, snap.Date, outDir) })
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Builder) upload(ctx context.Context, date string, archives []BuiltArchive) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := range archives {
		i := i
		key := b.store.ArchiveKey(date, filepath.Base(archives[i].LocalPath))
		archives[i].RemoteKey = key
		g.Go(func() error {
			return b.store.Upload(gctx, archives[i].LocalPath, b.store.Bucket(), key)
		})
	}
	return g.Wait()
}
