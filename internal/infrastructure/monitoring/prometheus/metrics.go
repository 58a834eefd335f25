package prometheus

import (
	"strconv"
	"time"
)

// AppMetrics holds every metric family recorded by the engine.
type AppMetrics struct {
	// HTTP adapter
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec

	// Matrix build
	BuildsTotal       CounterVec
	BuildDuration     HistogramVec
	MatrixNonZeros    GaugeVec
	MatrixAxisSize    GaugeVec
	BuildCollisions   CounterVec
	ArchiveBytesTotal CounterVec

	// Query service
	QueriesTotal   CounterVec
	QueryDuration  HistogramVec
	SnapshotLoads  CounterVec
	SnapshotsHeld  GaugeVec
	CacheHitsTotal CounterVec
	CacheMissTotal CounterVec

	// Health
	HealthCheckStatus GaugeVec
	ErrorsTotal       CounterVec
}

var (
	DefaultHTTPDurationBuckets  = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultBuildDurationBuckets = []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300, 600}
	DefaultQueryDurationBuckets = []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5}
)

// NewAppMetrics registers all families on collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "route", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "route")

	m.BuildsTotal = collector.RegisterCounter("matrix_builds_total", "Matrix builds by outcome", "table", "status")
	m.BuildDuration = collector.RegisterHistogram("matrix_build_duration_seconds", "Matrix build duration", DefaultBuildDurationBuckets, "table")
	m.MatrixNonZeros = collector.RegisterGauge("matrix_nonzero_entries", "Stored entries of the last built or loaded matrix", "table", "date")
	m.MatrixAxisSize = collector.RegisterGauge("matrix_axis_labels", "Number of labels per axis", "table", "date", "axis")
	m.BuildCollisions = collector.RegisterCounter("matrix_build_collisions_total", "Duplicate coordinates overwritten during build", "table")
	m.ArchiveBytesTotal = collector.RegisterCounter("archive_bytes_total", "Bytes of archives written or read", "table", "direction")

	m.QueriesTotal = collector.RegisterCounter("queries_total", "Analyst queries by operation and outcome", "op", "status")
	m.QueryDuration = collector.RegisterHistogram("query_duration_seconds", "Analyst query duration", DefaultQueryDurationBuckets, "op")
	m.SnapshotLoads = collector.RegisterCounter("snapshot_loads_total", "Archive snapshot loads", "table", "status")
	m.SnapshotsHeld = collector.RegisterGauge("snapshots_loaded", "Snapshots resident in the catalog")
	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Result cache hits", "op")
	m.CacheMissTotal = collector.RegisterCounter("cache_misses_total", "Result cache misses", "op")

	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component")
	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Errors by component and code", "component", "code")

	return m
}

// NewNoopAppMetrics returns metrics that record nothing.
func NewNoopAppMetrics() *AppMetrics {
	return NewAppMetrics(NewNoopCollector())
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordHTTPRequest records one served request.
func (m *AppMetrics) RecordHTTPRequest(method, route string, statusCode int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordQuery records one analyst operation.
func (m *AppMetrics) RecordQuery(op string, d time.Duration, err error) {
	m.QueriesTotal.WithLabelValues(op, statusLabel(err)).Inc()
	m.QueryDuration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordBuild records one matrix build.
func (m *AppMetrics) RecordBuild(table string, d time.Duration, collisions int, err error) {
	m.BuildsTotal.WithLabelValues(table, statusLabel(err)).Inc()
	m.BuildDuration.WithLabelValues(table).Observe(d.Seconds())
	if collisions > 0 {
		m.BuildCollisions.WithLabelValues(table).Add(float64(collisions))
	}
}

// RecordMatrixShape publishes the size of a built or loaded matrix.
func (m *AppMetrics) RecordMatrixShape(table, date string, rows, cols, nnz int) {
	m.MatrixNonZeros.WithLabelValues(table, date).Set(float64(nnz))
	m.MatrixAxisSize.WithLabelValues(table, date, "row").Set(float64(rows))
	m.MatrixAxisSize.WithLabelValues(table, date, "column").Set(float64(cols))
}

// RecordCacheAccess counts a cache lookup for op.
func (m *AppMetrics) RecordCacheAccess(op string, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues(op).Inc()
		return
	}
	m.CacheMissTotal.WithLabelValues(op).Inc()
}

// RecordError counts an error by component and error code.
func (m *AppMetrics) RecordError(component, code string) {
	m.ErrorsTotal.WithLabelValues(component, code).Inc()
}
