package cli

import (
	"context"

	"github.com/turtacn/occurrence-matrix/internal/application/analyst"
	"github.com/turtacn/occurrence-matrix/internal/domain/matrix"
	"github.com/turtacn/occurrence-matrix/pkg/client"
)

// remoteService answers analyst queries through the HTTP API.
type remoteService struct {
	c *client.Client
}

func newRemoteService(c *client.Client) analyst.Service {
	return &remoteService{c: c}
}

func (r *remoteService) GetRowStats(ctx context.Context, date, label string) (*analyst.StatsResult, error) {
	res, err := r.c.RowStats(ctx, date, label)
	if err != nil {
		return nil, err
	}
	return toStats(res), nil
}

func (r *remoteService) GetColumnStats(ctx context.Context, date, label string) (*analyst.StatsResult, error) {
	res, err := r.c.ColumnStats(ctx, date, label)
	if err != nil {
		return nil, err
	}
	return toStats(res), nil
}

func (r *remoteService) Rank(ctx context.Context, date string, axis matrix.Axis, by matrix.SortField, order matrix.SortOrder, limit int) (*analyst.RankResult, error) {
	res, err := r.c.Rank(ctx, date, client.RankOptions{
		Axis:  axis.String(),
		By:    string(by),
		Order: string(order),
		Limit: limit,
	})
	if err != nil {
		return nil, err
	}
	out := &analyst.RankResult{
		Table: res.Table,
		Date:  res.Date,
		Axis:  res.Axis,
		Type:  res.Type,
		By:    res.By,
		Order: res.Order,
		Limit: res.Limit,
		Rows:  make([]analyst.RankedRow, len(res.Rows)),
	}
	for i, row := range res.Rows {
		out.Rows[i] = analyst.RankedRow{Rank: row.Rank, Label: row.Label, Count: row.Count, Total: row.Total}
	}
	return out, nil
}

func (r *remoteService) Compare(ctx context.Context, date, label string, axis matrix.Axis) (*analyst.StatsResult, error) {
	res, err := r.c.Compare(ctx, date, axis.String(), label)
	if err != nil {
		return nil, err
	}
	return toStats(res), nil
}

func toStats(res *client.StatsResult) *analyst.StatsResult {
	return &analyst.StatsResult{
		Table: res.Table,
		Date:  res.Date,
		Axis:  res.Axis,
		Label: res.Label,
		Stats: res.Stats,
	}
}
