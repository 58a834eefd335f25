package client

import (
	"context"
	"net/url"
	"strconv"
)

// LatestDate asks the server for its default date resolution.
const LatestDate = "latest"

// StatsResult is one rendered statistics document.  The keys of Stats
// depend on the axis, e.g. "total_datasets_for_species" for rows of the
// species × dataset matrix.
type StatsResult struct {
	Table string                 `json:"table"`
	Date  string                 `json:"date"`
	Axis  string                 `json:"axis"`
	Label string                 `json:"label,omitempty"`
	Stats map[string]interface{} `json:"stats"`
}

// RankedRow is one ranked label.  Tied rows share a rank.
type RankedRow struct {
	Rank  int     `json:"rank"`
	Label string  `json:"label"`
	Count int     `json:"count"`
	Total float64 `json:"total"`
}

// RankResult is an ordered ranking.
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

// RankOptions selects a ranking.  Zero values use the server defaults:
// rows, by total, descending, the configured limit.
type RankOptions struct {
	Axis  string
	By    string
	Order string
	Limit int
}

// RowStats returns the statistics of one row label, or of all rows when
// label is empty.  An empty date means LatestDate.
func (c *Client) RowStats(ctx context.Context, date, label string) (*StatsResult, error) {
	return c.stats(ctx, date, "rows", label)
}

// ColumnStats is RowStats for the column axis.
func (c *Client) ColumnStats(ctx context.Context, date, label string) (*StatsResult, error) {
	return c.stats(ctx, date, "columns", label)
}

func (c *Client) stats(ctx context.Context, date, axis, label string) (*StatsResult, error) {
	q := url.Values{}
	if label != "" {
		q.Set("label", label)
	}
	var resp APIResponse[StatsResult]
	if err := c.do(ctx, datePath(date)+"/stats/"+axis, q, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// Rank returns the top labels of an axis.
func (c *Client) Rank(ctx context.Context, date string, opts RankOptions) (*RankResult, error) {
	q := url.Values{}
	if opts.Axis != "" {
		q.Set("axis", opts.Axis)
	}
	if opts.By != "" {
		q.Set("by", opts.By)
	}
	if opts.Order != "" {
		q.Set("order", opts.Order)
	}
	if opts.Limit != 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	var resp APIResponse[RankResult]
	if err := c.do(ctx, datePath(date)+"/rank", q, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// Compare returns the statistics of label beside the aggregate of its axis.
func (c *Client) Compare(ctx context.Context, date, axis, label string) (*StatsResult, error) {
	q := url.Values{}
	q.Set("label", label)
	if axis != "" {
		q.Set("axis", axis)
	}
	var resp APIResponse[StatsResult]
	if err := c.do(ctx, datePath(date)+"/compare", q, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func datePath(date string) string {
	if date == "" {
		date = LatestDate
	}
	return "/api/v1/" + url.PathEscape(date)
}
