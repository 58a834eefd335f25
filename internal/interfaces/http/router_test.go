package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/occurrence-matrix/internal/application/analyst"
	"github.com/turtacn/occurrence-matrix/internal/domain/matrix"
	"github.com/turtacn/occurrence-matrix/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/occurrence-matrix/internal/interfaces/http/handlers"
	"github.com/turtacn/occurrence-matrix/internal/interfaces/http/middleware"
	"github.com/turtacn/occurrence-matrix/pkg/errors"
)

const testDate = "2024_02_01"

const stackedCSV = "taxonkey_species,datasetkey,occ_count\n" +
	"sp1,ds1,10\n" +
	"sp1,ds2,3\n" +
	"sp2,ds1,5\n" +
	"sp3,ds2,5\n"

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestRouter builds a real archive into a temp work dir and serves it.
func newTestRouter(t *testing.T) (http.Handler, prometheus.MetricsCollector) {
	t.Helper()
	workDir := t.TempDir()
	input := filepath.Join(workDir, "input.csv")
	require.NoError(t, os.WriteFile(input, []byte(stackedCSV), 0o644))

	b := analyst.NewBuilder(workDir, nil)
	_, err := b.Build(context.Background(), analyst.BuildRequest{
		InputPath: input,
		Table:     matrix.SpeciesDatasetMatrix,
		Date:      testDate,
	})
	require.NoError(t, err)

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "occmtx"}, nil)
	require.NoError(t, err)
	metrics := prometheus.NewAppMetrics(collector)

	catalog := analyst.NewCatalog(analyst.CatalogConfig{WorkDir: workDir, MaxSnapshots: 2}, nil, metrics, nil)
	svc := analyst.NewService(analyst.ServiceConfig{
		Table:        matrix.SpeciesDatasetMatrix,
		RankLimit:    10,
		MaxRankLimit: 100,
	}, catalog, nil, metrics, nil)

	return NewRouter(RouterConfig{
		Mode:             gin.TestMode,
		AnalystHandler:   handlers.NewAnalystHandler(svc, nil),
		HealthHandler:    handlers.NewHealthHandler("test", metrics),
		Metrics:          metrics,
		MetricsCollector: collector,
	}), collector
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_HealthEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)

	assert.Equal(t, http.StatusOK, get(r, "/healthz").Code)
	assert.Equal(t, http.StatusOK, get(r, "/readyz").Code)
}

func TestRouter_RowStats(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := get(r, "/api/v1/"+testDate+"/stats/rows?label=sp1")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Data analyst.StatsResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "row", body.Data.Axis)
	assert.Equal(t, "sp1", body.Data.Label)
	assert.Equal(t, float64(2), body.Data.Stats["total_datasets_for_species"])
	assert.Equal(t, float64(13), body.Data.Stats["total_occurrences_for_species"])
	assert.NotEmpty(t, rec.Header().Get(middleware.HeaderRequestID))
}

func TestRouter_RankLatest(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := get(r, "/api/v1/latest/rank?axis=column&by=total&limit=1")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Data analyst.RankResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, testDate, body.Data.Date)
	require.Len(t, body.Data.Rows, 1)
	assert.Equal(t, "ds1", body.Data.Rows[0].Label)
	assert.Equal(t, float64(15), body.Data.Rows[0].Total)
}

func TestRouter_Errors(t *testing.T) {
	r, _ := newTestRouter(t)

	tests := []struct {
		name   string
		target string
		status int
		code   errors.ErrorCode
	}{
		{"unknown label", "/api/v1/" + testDate + "/stats/columns?label=ds9", http.StatusNotFound, errors.ErrCodeLabelNotFound},
		{"missing date", "/api/v1/2020_01_01/stats/rows", http.StatusNotFound, errors.ErrCodeMissingArchiveFile},
		{"bad sort field", "/api/v1/" + testDate + "/rank?by=name", http.StatusBadRequest, errors.ErrCodeInvalidSortField},
		{"limit too large", "/api/v1/" + testDate + "/rank?limit=1000", http.StatusBadRequest, errors.CodeInvalidParam},
		{"compare without label", "/api/v1/" + testDate + "/compare", http.StatusBadRequest, errors.CodeInvalidParam},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(r, tt.target)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			var body handlers.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, string(tt.code), body.Code)
		})
	}
}

func TestRouter_Metrics(t *testing.T) {
	r, _ := newTestRouter(t)
	get(r, "/api/v1/"+testDate+"/stats/rows")

	rec := get(r, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "occmtx_http_requests_total")
	assert.Contains(t, rec.Body.String(), `route="/api/v1/:date/stats/rows"`)
	assert.Contains(t, rec.Body.String(), "occmtx_queries_total")
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	r, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/"+testDate+"/rank", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouter_NilHandlers(t *testing.T) {
	r := NewRouter(RouterConfig{Mode: gin.TestMode})

	assert.Equal(t, http.StatusNotFound, get(r, "/healthz").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/latest/rank").Code)
}
