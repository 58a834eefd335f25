package matrix

import (
	"fmt"
	"sort"
	"strings"

	"github.com/turtacn/occurrence-matrix/pkg/errors"
)

// SortField selects the measure a Summary is ranked by.
type SortField string

const (
	SortByCount SortField = FieldCount
	SortByTotal SortField = FieldTotal
)

// ParseSortField validates s as a summary measure.
func ParseSortField(s string) (SortField, error) {
	switch f := SortField(strings.ToLower(strings.TrimSpace(s))); f {
	case SortByCount, SortByTotal:
		return f, nil
	}
	return "", errors.Newf(errors.ErrCodeInvalidSortField,
		"field %q does not exist; sort by one of [%s %s]", s, FieldCount, FieldTotal)
}

// SortOrder selects top-down or bottom-up ranking.
type SortOrder string

const (
	Ascending  SortOrder = "ascending"
	Descending SortOrder = "descending"
)

// ParseSortOrder validates s; "asc" and "desc" are accepted as shorthands.
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ascending", "asc":
		return Ascending, nil
	case "descending", "desc":
		return Descending, nil
	}
	return "", errors.Newf(errors.ErrCodeInvalidSortOrder,
		"order %q does not exist, use 'ascending' or 'descending'", s)
}

// SummaryRow holds the measures of one label.
type SummaryRow struct {
	Label string  `json:"label"`
	Count int     `json:"count"`
	Total float64 `json:"total"`
}

// Summary is the per-label projection (label → count, total) of one matrix
// axis.  It is small enough to rank without touching the matrix.
type Summary struct {
	axis   Axis
	labels *CategoricalAxis
	counts []int
	totals []float64
}

// NewSummary projects m along axis a using the bulk reductions.
func NewSummary(m *SparseMatrix, a Axis) (*Summary, error) {
	totals, err := m.AxisTotals(a)
	if err != nil {
		return nil, err
	}
	counts, err := m.AxisCounts(a)
	if err != nil {
		return nil, err
	}
	return &Summary{axis: a, labels: m.axis(a), counts: counts, totals: totals}, nil
}

// NewSummaryFromRows rebuilds a projection from stored rows.  Labels must be
// unique and non-empty.
func NewSummaryFromRows(name string, a Axis, rows []SummaryRow) (*Summary, error) {
	values := make([]string, len(rows))
	for i, r := range rows {
		values[i] = r.Label
	}
	labels := NewCategoricalAxis(name, values)
	if labels.Size() != len(rows) {
		return nil, errors.DataIntegrity("summary labels must be unique and non-empty").
			WithDetail(fmt.Sprintf("%d rows, %d distinct labels", len(rows), labels.Size()))
	}
	s := &Summary{
		axis:   a,
		labels: labels,
		counts: make([]int, len(rows)),
		totals: make([]float64, len(rows)),
	}
	for i, r := range rows {
		s.counts[i] = r.Count
		s.totals[i] = r.Total
	}
	return s, nil
}

// Axis returns the matrix axis the summary was projected from.
func (s *Summary) Axis() Axis { return s.axis }

// Labels returns the summarised axis.
func (s *Summary) Labels() *CategoricalAxis { return s.labels }

// Len returns the number of rows.
func (s *Summary) Len() int { return len(s.counts) }

// Rows returns every row in axis order.
func (s *Summary) Rows() []SummaryRow {
	out := make([]SummaryRow, len(s.counts))
	for i := range s.counts {
		out[i] = s.row(i)
	}
	return out
}

func (s *Summary) row(i int) SummaryRow {
	return SummaryRow{Label: s.labels.label(i), Count: s.counts[i], Total: s.totals[i]}
}

// Measures returns the row for label.
func (s *Summary) Measures(label string) (SummaryRow, error) {
	i, err := s.labels.CodeOf(label)
	if err != nil {
		return SummaryRow{}, err
	}
	return s.row(i), nil
}

func (s *Summary) measure(by SortField, i int) float64 {
	if by == SortByCount {
		return float64(s.counts[i])
	}
	return s.totals[i]
}

// Rank orders rows by the chosen measure and returns the first limit of
// them.  Every row tied with the limit-th value is kept as well, so the
// result may be longer than limit.  Tied rows keep axis order.
func (s *Summary) Rank(by SortField, order SortOrder, limit int) ([]SummaryRow, error) {
	by, err := ParseSortField(string(by))
	if err != nil {
		return nil, err
	}
	order, err = ParseSortOrder(string(order))
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, errors.InvalidParam(fmt.Sprintf("limit must be positive, got %d", limit))
	}

	idx := make([]int, s.Len())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		va, vb := s.measure(by, idx[a]), s.measure(by, idx[b])
		if order == Descending {
			return va > vb
		}
		return va < vb
	})

	n := limit
	if n >= len(idx) {
		n = len(idx)
	} else {
		boundary := s.measure(by, idx[n-1])
		for n < len(idx) && s.measure(by, idx[n]) == boundary {
			n++
		}
	}

	out := make([]SummaryRow, n)
	for i := 0; i < n; i++ {
		out[i] = s.row(idx[i])
	}
	return out, nil
}
