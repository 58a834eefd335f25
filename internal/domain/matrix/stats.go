package matrix

import (
	"sort"
)

// AxisStats describes a single row or column.
type AxisStats struct {
	Axis  Axis   `json:"axis"`
	Label string `json:"label"`
	Index int    `json:"index"`
	// Total is the sum of the vector's values.
	Total float64 `json:"total"`
	// Count is the number of non-zero elements.
	Count int `json:"count"`
	// Min is the smallest non-zero value; MinNumber is how many opposite-axis
	// labels hold it.
	Min       float64  `json:"min"`
	MinNumber int      `json:"min_number"`
	MinLabels []string `json:"min_labels"`
	// Max is the largest value, held by every label in MaxLabels.
	Max       float64  `json:"max"`
	MaxLabels []string `json:"max_labels"`
}

// Distribution summarises one per-label reduction vector across an axis.
type Distribution struct {
	Sum       float64  `json:"sum"`
	Min       float64  `json:"min"`
	MinNumber int      `json:"min_number"`
	MinLabels []string `json:"min_labels"`
	Mean      float64  `json:"mean"`
	Median    float64  `json:"median"`
	Max       float64  `json:"max"`
	MaxLabels []string `json:"max_labels"`
}

// AggregateStats describes every label of one axis at once.
type AggregateStats struct {
	Axis Axis `json:"axis"`
	// Count is the number of labels on the axis.
	Count int `json:"count"`
	// Totals is the distribution of per-label value totals.
	Totals Distribution `json:"totals"`
	// Counts is the distribution of per-label non-zero counts.
	Counts Distribution `json:"counts"`
}

// Comparison juxtaposes one label's measures with its axis distribution.
type Comparison struct {
	Label     string         `json:"label"`
	One       AxisStats      `json:"one"`
	Aggregate AggregateStats `json:"all"`
}

// Statistics computes AxisStats and AggregateStats over a matrix.
type Statistics struct {
	m *SparseMatrix
}

// NewStatistics binds a Statistics calculator to m.
func NewStatistics(m *SparseMatrix) *Statistics {
	return &Statistics{m: m}
}

// ForLabel returns the statistics of the row or column named label.
func (s *Statistics) ForLabel(label string, a Axis) (AxisStats, error) {
	v, err := s.m.Vector(label, a)
	if err != nil {
		return AxisStats{}, err
	}
	maxVal, maxLabels, err := s.m.extremeOf(v, true)
	if err != nil {
		return AxisStats{}, err
	}
	minVal, minLabels, err := s.m.extremeOf(v, false)
	if err != nil {
		return AxisStats{}, err
	}
	return AxisStats{
		Axis:      a,
		Label:     label,
		Index:     v.Index,
		Total:     v.Sum(),
		Count:     v.Nnz(),
		Min:       minVal,
		MinNumber: len(minLabels),
		MinLabels: minLabels,
		Max:       maxVal,
		MaxLabels: maxLabels,
	}, nil
}

// ForAll returns the distribution of totals and counts over every label of
// axis a.  It works only from the bulk reductions, so it never fails on an
// individual label.
func (s *Statistics) ForAll(a Axis) (AggregateStats, error) {
	totals, err := s.m.AxisTotals(a)
	if err != nil {
		return AggregateStats{}, err
	}
	counts, err := s.m.AxisCounts(a)
	if err != nil {
		return AggregateStats{}, err
	}
	countVals := make([]float64, len(counts))
	for i, c := range counts {
		countVals[i] = float64(c)
	}
	ax := s.m.axis(a)
	return AggregateStats{
		Axis:   a,
		Count:  ax.Size(),
		Totals: distribution(totals, ax),
		Counts: distribution(countVals, ax),
	}, nil
}

// Compare returns the statistics of one label alongside those of its axis.
func (s *Statistics) Compare(label string, a Axis) (Comparison, error) {
	one, err := s.ForLabel(label, a)
	if err != nil {
		return Comparison{}, err
	}
	all, err := s.ForAll(a)
	if err != nil {
		return Comparison{}, err
	}
	return Comparison{Label: label, One: one, Aggregate: all}, nil
}

// distribution reduces values, indexed by code on ax, to its summary.
func distribution(values []float64, ax *CategoricalAxis) Distribution {
	var d Distribution
	if len(values) == 0 {
		return d
	}
	d.Min, d.Max = values[0], values[0]
	for _, v := range values {
		d.Sum += v
		if v < d.Min {
			d.Min = v
		}
		if v > d.Max {
			d.Max = v
		}
	}
	for code, v := range values {
		if v == d.Min {
			d.MinLabels = append(d.MinLabels, ax.label(code))
		}
		if v == d.Max {
			d.MaxLabels = append(d.MaxLabels, ax.label(code))
		}
	}
	d.MinNumber = len(d.MinLabels)
	d.Mean = d.Sum / float64(len(values))
	d.Median = median(values)
	return d
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// ─────────────────────────────────────────────────────────────────────────────
// Rendering
// ─────────────────────────────────────────────────────────────────────────────

// Render lays the statistics out under the names in keys.
func (s AxisStats) Render(keys KeySet) map[string]interface{} {
	return map[string]interface{}{
		keys.Name(KeyLabel):          s.Label,
		keys.Name(KeyCount):          s.Count,
		keys.Name(KeyTotal):          s.Total,
		keys.Name(KeyMinTotal):       s.Min,
		keys.Name(KeyMinTotalNumber): s.MinNumber,
		keys.Name(KeyMaxTotal):       s.Max,
		keys.Name(KeyMaxTotalLabels): s.MaxLabels,
	}
}

// Render lays the aggregate out under the names in keys.
func (s AggregateStats) Render(keys KeySet) map[string]interface{} {
	return map[string]interface{}{
		keys.Name(KeyAllTotal):          s.Totals.Sum,
		keys.Name(KeyAllMinTotal):       s.Totals.Min,
		keys.Name(KeyAllMinTotalNumber): s.Totals.MinNumber,
		keys.Name(KeyAllMeanTotal):      s.Totals.Mean,
		keys.Name(KeyAllMedianTotal):    s.Totals.Median,
		keys.Name(KeyAllMaxTotal):       s.Totals.Max,
		keys.Name(KeyAllMaxTotalLabels): s.Totals.MaxLabels,

		keys.Name(KeyAllCount):          s.Count,
		keys.Name(KeyAllMinCount):       int(s.Counts.Min),
		keys.Name(KeyAllMinCountNumber): s.Counts.MinNumber,
		keys.Name(KeyAllMeanCount):      s.Counts.Mean,
		keys.Name(KeyAllMedianCount):    s.Counts.Median,
		keys.Name(KeyAllMaxCount):       int(s.Counts.Max),
		keys.Name(KeyAllMaxCountLabels): s.Counts.MaxLabels,
	}
}

// Render lays the comparison out as a "totals" section (the label's value
// total against the axis distribution) and a "counts" section (its non-zero
// count against the axis distribution).
func (c Comparison) Render(keys KeySet) map[string]interface{} {
	return map[string]interface{}{
		keys.Name(KeyType): c.Label,
		"totals": map[string]interface{}{
			keys.Name(KeyTotal):          c.One.Total,
			keys.Name(KeyAllTotal):       c.Aggregate.Totals.Sum,
			keys.Name(KeyAllMinTotal):    c.Aggregate.Totals.Min,
			keys.Name(KeyAllMaxTotal):    c.Aggregate.Totals.Max,
			keys.Name(KeyAllMeanTotal):   c.Aggregate.Totals.Mean,
			keys.Name(KeyAllMedianTotal): c.Aggregate.Totals.Median,
		},
		"counts": map[string]interface{}{
			keys.Name(KeyCount):          c.One.Count,
			keys.Name(KeyAllCount):       c.Aggregate.Count,
			keys.Name(KeyAllMinCount):    int(c.Aggregate.Counts.Min),
			keys.Name(KeyAllMaxCount):    int(c.Aggregate.Counts.Max),
			keys.Name(KeyAllMeanCount):   c.Aggregate.Counts.Mean,
			keys.Name(KeyAllMedianCount): c.Aggregate.Counts.Median,
		},
	}
}
