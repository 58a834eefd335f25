package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/occurrence-matrix/internal/application/analyst"
	"github.com/turtacn/occurrence-matrix/internal/domain/matrix"
	"github.com/turtacn/occurrence-matrix/internal/infrastructure/monitoring/logging"
)

// AnalystHandler serves statistics, ranking and comparison queries.
type AnalystHandler struct {
	svc    analyst.Service
	logger logging.Logger
}

// NewAnalystHandler creates a new AnalystHandler.
func NewAnalystHandler(svc analyst.Service, logger logging.Logger) *AnalystHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &AnalystHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers the query routes under rg.  Every route is scoped
// by a date stamp such as 2024_02_01, or "latest".
//
//	GET /:date/stats/rows?label=
//	GET /:date/stats/columns?label=
//	GET /:date/rank?axis=&by=&order=&limit=
//	GET /:date/compare?axis=&label=
func (h *AnalystHandler) RegisterRoutes(rg *gin.RouterGroup) {
	d := rg.Group("/:date")
	d.GET("/stats/rows", h.RowStats)
	d.GET("/stats/columns", h.ColumnStats)
	d.GET("/rank", h.Rank)
	d.GET("/compare", h.Compare)
}

// RowStats handles GET /:date/stats/rows.
func (h *AnalystHandler) RowStats(c *gin.Context) {
	res, err := h.svc.GetRowStats(c.Request.Context(), dateParam(c), c.Query("label"))
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

// ColumnStats handles GET /:date/stats/columns.
func (h *AnalystHandler) ColumnStats(c *gin.Context) {
	res, err := h.svc.GetColumnStats(c.Request.Context(), dateParam(c), c.Query("label"))
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

// Rank handles GET /:date/rank.  Defaults: rows, by total, descending.
func (h *AnalystHandler) Rank(c *gin.Context) {
	axis, err := queryAxis(c, matrix.Row)
	if err != nil {
		writeAppError(c, err)
		return
	}
	limit, err := queryLimit(c)
	if err != nil {
		writeAppError(c, err)
		return
	}
	res, err := h.svc.Rank(c.Request.Context(), dateParam(c), axis,
		matrix.SortField(c.Query("by")), matrix.SortOrder(c.Query("order")), limit)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

// Compare handles GET /:date/compare.
func (h *AnalystHandler) Compare(c *gin.Context) {
	axis, err := queryAxis(c, matrix.Row)
	if err != nil {
		writeAppError(c, err)
		return
	}
	res, err := h.svc.Compare(c.Request.Context(), dateParam(c), c.Query("label"), axis)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}
