package analyst

import (
	"fmt"

	"github.com/turtacn/occurrence-matrix/internal/domain/matrix"
	"github.com/turtacn/occurrence-matrix/pkg/errors"
)

// RankRequest selects the axis, measure, direction and size of a ranking.
type RankRequest struct {
	Axis  matrix.Axis
	By    matrix.SortField
	Order matrix.SortOrder
	// Limit of zero means the engine's default limit.
	Limit int
}

// RankedRow is one ranked label.  Tied rows share a rank.
type RankedRow struct {
	Rank  int     `json:"rank"`
	Label string  `json:"label"`
	Count int     `json:"count"`
	Total float64 `json:"total"`
}

// RankResult is an ordered ranking.  Rows may outnumber Limit when labels
// tie with the last ranked value.
type RankResult struct {
	Table string      `json:"table"`
	Date  string      `json:"date"`
	Axis  string      `json:"axis"`
	Type  string      `json:"type"`
	By    string      `json:"sort_by"`
	Order string      `json:"order"`
	Limit int         `json:"limit"`
	Rows  []RankedRow `json:"rows"`
}

// RankingEngine orders summary rows for "top N by measure" queries.
type RankingEngine struct {
	defaultLimit int
	maxLimit     int
}

// NewRankingEngine returns an engine that uses defaultLimit when a request
// has none and rejects limits above maxLimit.
func NewRankingEngine(defaultLimit, maxLimit int) *RankingEngine {
	if maxLimit < 1 {
		maxLimit = 1
	}
	if defaultLimit < 1 || defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &RankingEngine{defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// Normalize fills defaults and validates req.
func (e *RankingEngine) Normalize(req RankRequest) (RankRequest, error) {
	if !req.Axis.Valid() {
		return req, errors.Newf(errors.ErrCodeInvalidAxis, "axis %d is not row or column", int(req.Axis))
	}
	if req.By == "" {
		req.By = matrix.SortByTotal
	}
	if req.Order == "" {
		req.Order = matrix.Descending
	}
	by, err := matrix.ParseSortField(string(req.By))
	if err != nil {
		return req, err
	}
	order, err := matrix.ParseSortOrder(string(req.Order))
	if err != nil {
		return req, err
	}
	req.By, req.Order = by, order

	switch {
	case req.Limit == 0:
		req.Limit = e.defaultLimit
	case req.Limit < 0:
		return req, errors.InvalidParam(fmt.Sprintf("limit must be positive, got %d", req.Limit))
	case req.Limit > e.maxLimit:
		return req, errors.InvalidParam(fmt.Sprintf("limit %d exceeds the maximum of %d", req.Limit, e.maxLimit))
	}
	return req, nil
}

// Rank orders the snapshot summary along req.Axis.
func (e *RankingEngine) Rank(snap *Snapshot, req RankRequest) (*RankResult, error) {
	return e.RankSummary(snap.Table, snap.Date, snap.Summary(req.Axis), req)
}

// RankSummary orders s, the req.Axis summary of table t at date.
func (e *RankingEngine) RankSummary(t matrix.TableType, date string, s *matrix.Summary, req RankRequest) (*RankResult, error) {
	req, err := e.Normalize(req)
	if err != nil {
		return nil, err
	}
	if s.Axis() != req.Axis {
		return nil, errors.Newf(errors.ErrCodeInvalidAxis, "summary is along %s, ranking asked for %s", s.Axis(), req.Axis)
	}
	rows, err := s.Rank(req.By, req.Order, req.Limit)
	if err != nil {
		return nil, err
	}

	keys, err := matrix.KeysFor(t)
	if err != nil {
		return nil, err
	}
	out := &RankResult{
		Table: string(t),
		Date:  date,
		Axis:  req.Axis.String(),
		Type:  keys.For(req.Axis).Name(matrix.KeyType),
		By:    string(req.By),
		Order: string(req.Order),
		Limit: req.Limit,
		Rows:  make([]RankedRow, len(rows)),
	}
	rank := 0
	for i, r := range rows {
		if i == 0 || measureOf(r, req.By) != measureOf(rows[i-1], req.By) {
			rank = i + 1
		}
		out.Rows[i] = RankedRow{Rank: rank, Label: r.Label, Count: r.Count, Total: r.Total}
	}
	return out, nil
}

func measureOf(r matrix.SummaryRow, by matrix.SortField) float64 {
	if by == matrix.SortByCount {
		return float64(r.Count)
	}
	return r.Total
}
