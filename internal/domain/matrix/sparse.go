package matrix

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/turtacn/occurrence-matrix/pkg/errors"
)

// StackedRecord is one un-pivoted observation: the value relating a row key
// (e.g. a species) to a column key (e.g. a dataset).
type StackedRecord struct {
	RowKey string
	ColKey string
	Value  float64
}

// Entry is one stored coordinate of the matrix.  Value is always > 0.
type Entry struct {
	Row   int
	Col   int
	Value float64
}

// BuildReport describes what happened to the input while building a matrix.
type BuildReport struct {
	// Records is the number of input records seen.
	Records int
	// Stored is the number of non-zero coordinates in the result.
	Stored int
	// Collisions counts records that overwrote an earlier record with the
	// same (row, column) pair.  The later record always wins.
	Collisions int
	// SkippedZero counts coordinates whose final value was zero.
	SkippedZero int
	// SkippedMissingKey counts records with an empty row or column key.
	SkippedMissingKey int
}

// SparseMatrix is an immutable coordinate-list matrix over two categorical
// axes.  Entries are kept row-major with a CSR-style row pointer, plus a
// column-major permutation so that both row and column vectors are sliced
// without scanning the whole matrix.
type SparseMatrix struct {
	rows *CategoricalAxis
	cols *CategoricalAxis

	entries  []Entry
	rowPtr   []int
	colOrder []int
	colPtr   []int
}

type coord struct {
	r, c int
}

// BuildFromRecords pivots records onto the given axes.  A duplicate (row,
// column) pair replaces the earlier value; callers are expected to aggregate
// upstream.  Records with an empty key are skipped, zero values are not
// stored, and negative or non-finite values fail with a DataIntegrity error.
func BuildFromRecords(records []StackedRecord, rows, cols *CategoricalAxis) (*SparseMatrix, BuildReport, error) {
	report := BuildReport{Records: len(records)}
	values := make(map[coord]float64, len(records))

	for i, rec := range records {
		if rec.RowKey == "" || rec.ColKey == "" {
			report.SkippedMissingKey++
			continue
		}
		if math.IsNaN(rec.Value) || math.IsInf(rec.Value, 0) || rec.Value < 0 {
			return nil, report, errors.DataIntegrity("record value must be a non-negative number").
				WithDetail(fmt.Sprintf("record %d (%s, %s) = %v", i, rec.RowKey, rec.ColKey, rec.Value))
		}
		r, err := rows.CodeOf(rec.RowKey)
		if err != nil {
			return nil, report, err
		}
		c, err := cols.CodeOf(rec.ColKey)
		if err != nil {
			return nil, report, err
		}
		k := coord{r, c}
		if _, dup := values[k]; dup {
			report.Collisions++
		}
		values[k] = rec.Value
	}

	entries := make([]Entry, 0, len(values))
	for k, v := range values {
		if v == 0 {
			report.SkippedZero++
			continue
		}
		entries = append(entries, Entry{Row: k.r, Col: k.c, Value: v})
	}
	sortRowMajor(entries)
	report.Stored = len(entries)

	return newSparseMatrix(rows, cols, entries), report, nil
}

// NewFromStacked builds both axes from the record keys, in first-seen order,
// and then the matrix.
func NewFromStacked(records []StackedRecord, rowName, colName string) (*SparseMatrix, BuildReport, error) {
	rowKeys := make([]string, len(records))
	colKeys := make([]string, len(records))
	for i, rec := range records {
		rowKeys[i] = rec.RowKey
		colKeys[i] = rec.ColKey
	}
	return BuildFromRecords(records,
		NewCategoricalAxis(rowName, rowKeys),
		NewCategoricalAxis(colName, colKeys))
}

// NewFromEntries reconstructs a matrix from stored coordinates, validating
// that every coordinate is in range, unique, and holds a positive value.
func NewFromEntries(rows, cols *CategoricalAxis, entries []Entry) (*SparseMatrix, error) {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sortRowMajor(sorted)

	for i, e := range sorted {
		if e.Row < 0 || e.Row >= rows.Size() {
			return nil, errors.CodeOutOfRange(rows.Name(), e.Row, rows.Size())
		}
		if e.Col < 0 || e.Col >= cols.Size() {
			return nil, errors.CodeOutOfRange(cols.Name(), e.Col, cols.Size())
		}
		if !(e.Value > 0) || math.IsInf(e.Value, 0) {
			return nil, errors.DataIntegrity("stored value must be positive").
				WithDetail(fmt.Sprintf("(%d, %d) = %v", e.Row, e.Col, e.Value))
		}
		if i > 0 && sorted[i-1].Row == e.Row && sorted[i-1].Col == e.Col {
			return nil, errors.DataIntegrity("duplicate stored coordinate").
				WithDetail(fmt.Sprintf("(%d, %d)", e.Row, e.Col))
		}
	}
	return newSparseMatrix(rows, cols, sorted), nil
}

func sortRowMajor(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Row != entries[j].Row {
			return entries[i].Row < entries[j].Row
		}
		return entries[i].Col < entries[j].Col
	})
}

// newSparseMatrix indexes entries, which must already be sorted row-major.
func newSparseMatrix(rows, cols *CategoricalAxis, entries []Entry) *SparseMatrix {
	m := &SparseMatrix{
		rows:    rows,
		cols:    cols,
		entries: entries,
		rowPtr:  make([]int, rows.Size()+1),
		colPtr:  make([]int, cols.Size()+1),
	}
	for _, e := range entries {
		m.rowPtr[e.Row+1]++
		m.colPtr[e.Col+1]++
	}
	for i := 1; i < len(m.rowPtr); i++ {
		m.rowPtr[i] += m.rowPtr[i-1]
	}
	for i := 1; i < len(m.colPtr); i++ {
		m.colPtr[i] += m.colPtr[i-1]
	}

	// Stable counting sort by column keeps rows ascending within a column.
	m.colOrder = make([]int, len(entries))
	next := make([]int, cols.Size())
	copy(next, m.colPtr[:cols.Size()])
	for i, e := range entries {
		m.colOrder[next[e.Col]] = i
		next[e.Col]++
	}
	return m
}

// ─────────────────────────────────────────────────────────────────────────────
// Shape and raw access
// ─────────────────────────────────────────────────────────────────────────────

// Rows returns the row axis.
func (m *SparseMatrix) Rows() *CategoricalAxis { return m.rows }

// Columns returns the column axis.
func (m *SparseMatrix) Columns() *CategoricalAxis { return m.cols }

// AxisOf returns the categorical axis for a.
func (m *SparseMatrix) AxisOf(a Axis) (*CategoricalAxis, error) {
	if err := checkAxis(a); err != nil {
		return nil, err
	}
	return m.axis(a), nil
}

func (m *SparseMatrix) axis(a Axis) *CategoricalAxis {
	if a == Row {
		return m.rows
	}
	return m.cols
}

// Shape returns (rows, columns).
func (m *SparseMatrix) Shape() (int, int) {
	return m.rows.Size(), m.cols.Size()
}

// Nnz returns the number of stored entries.
func (m *SparseMatrix) Nnz() int { return len(m.entries) }

// Entries returns a row-major copy of the stored coordinates.
func (m *SparseMatrix) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Total returns the sum of every stored value.
func (m *SparseMatrix) Total() float64 {
	var sum float64
	for _, e := range m.entries {
		sum += e.Value
	}
	return sum
}

// At returns the value stored at (rowLabel, colLabel), or 0.
func (m *SparseMatrix) At(rowLabel, colLabel string) (float64, error) {
	r, err := m.rows.CodeOf(rowLabel)
	if err != nil {
		return 0, err
	}
	c, err := m.cols.CodeOf(colLabel)
	if err != nil {
		return 0, err
	}
	seg := m.entries[m.rowPtr[r]:m.rowPtr[r+1]]
	i := sort.Search(len(seg), func(i int) bool { return seg[i].Col >= c })
	if i < len(seg) && seg[i].Col == c {
		return seg[i].Value, nil
	}
	return 0, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Vectors
// ─────────────────────────────────────────────────────────────────────────────

// VectorEntry is one non-zero element of a row or column.  Code indexes the
// opposite axis.
type VectorEntry struct {
	Code  int
	Value float64
}

// Vector holds the non-zero elements of one row or column.
type Vector struct {
	Axis    Axis
	Index   int
	Label   string
	Entries []VectorEntry
}

// Sum returns the total of the vector's values.
func (v Vector) Sum() float64 {
	var sum float64
	for _, e := range v.Entries {
		sum += e.Value
	}
	return sum
}

// Nnz returns the number of non-zero elements.
func (v Vector) Nnz() int { return len(v.Entries) }

// Vector returns the non-zero entries of the row or column named label, along
// with its resolved index.
func (m *SparseMatrix) Vector(label string, a Axis) (Vector, error) {
	if err := checkAxis(a); err != nil {
		return Vector{}, err
	}
	idx, err := m.axis(a).CodeOf(label)
	if err != nil {
		return Vector{}, err
	}
	return Vector{Axis: a, Index: idx, Label: label, Entries: m.vectorAt(a, idx)}, nil
}

func (m *SparseMatrix) vectorAt(a Axis, idx int) []VectorEntry {
	if a == Row {
		seg := m.entries[m.rowPtr[idx]:m.rowPtr[idx+1]]
		out := make([]VectorEntry, len(seg))
		for i, e := range seg {
			out[i] = VectorEntry{Code: e.Col, Value: e.Value}
		}
		return out
	}
	seg := m.colOrder[m.colPtr[idx]:m.colPtr[idx+1]]
	out := make([]VectorEntry, len(seg))
	for i, ei := range seg {
		e := m.entries[ei]
		out[i] = VectorEntry{Code: e.Row, Value: e.Value}
	}
	return out
}

// SumVector returns the total of one row or column.
func (m *SparseMatrix) SumVector(label string, a Axis) (float64, error) {
	v, err := m.Vector(label, a)
	if err != nil {
		return 0, err
	}
	return v.Sum(), nil
}

// CountNonZero returns the number of non-zero elements of one row or column.
func (m *SparseMatrix) CountNonZero(label string, a Axis) (int, error) {
	v, err := m.Vector(label, a)
	if err != nil {
		return 0, err
	}
	return v.Nnz(), nil
}

// Extreme returns the minimum or maximum non-zero value of one row or column
// and every opposite-axis label holding that value.
func (m *SparseMatrix) Extreme(label string, a Axis, wantMax bool) (float64, []string, error) {
	v, err := m.Vector(label, a)
	if err != nil {
		return 0, nil, err
	}
	return m.extremeOf(v, wantMax)
}

func (m *SparseMatrix) extremeOf(v Vector, wantMax bool) (float64, []string, error) {
	if len(v.Entries) == 0 {
		return 0, nil, errors.DataIntegrity("vector has no non-zero values").
			WithDetail(fmt.Sprintf("%s %q", v.Axis, v.Label))
	}
	target := v.Entries[0].Value
	for _, e := range v.Entries[1:] {
		if (wantMax && e.Value > target) || (!wantMax && e.Value < target) {
			target = e.Value
		}
	}
	if target <= 0 {
		return 0, nil, errors.DataIntegrity("extreme of non-zero values is zero").
			WithDetail(fmt.Sprintf("%s %q", v.Axis, v.Label))
	}
	return target, m.labelsWithValue(v, target), nil
}

func (m *SparseMatrix) labelsWithValue(v Vector, target float64) []string {
	other := m.axis(v.Axis.Other())
	var labels []string
	for _, e := range v.Entries {
		if e.Value == target {
			labels = append(labels, other.label(e.Code))
		}
	}
	return labels
}

// LabelsForValue returns the opposite-axis labels whose value in the named
// row or column equals value.
func (m *SparseMatrix) LabelsForValue(label string, a Axis, value float64) ([]string, error) {
	v, err := m.Vector(label, a)
	if err != nil {
		return nil, err
	}
	return m.labelsWithValue(v, value), nil
}

// CountValue returns how many elements of the named row or column equal value.
func (m *SparseMatrix) CountValue(label string, a Axis, value float64) (int, error) {
	v, err := m.Vector(label, a)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range v.Entries {
		if e.Value == value {
			n++
		}
	}
	return n, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Bulk reductions
// ─────────────────────────────────────────────────────────────────────────────

// AxisTotals returns the sum of every row (Row) or every column (Column),
// indexed by code.
func (m *SparseMatrix) AxisTotals(a Axis) ([]float64, error) {
	if err := checkAxis(a); err != nil {
		return nil, err
	}
	totals := make([]float64, m.axis(a).Size())
	for _, e := range m.entries {
		if a == Row {
			totals[e.Row] += e.Value
		} else {
			totals[e.Col] += e.Value
		}
	}
	return totals, nil
}

// AxisCounts returns the number of non-zero elements of every row or column,
// indexed by code.
func (m *SparseMatrix) AxisCounts(a Axis) ([]int, error) {
	if err := checkAxis(a); err != nil {
		return nil, err
	}
	ptr := m.rowPtr
	if a == Column {
		ptr = m.colPtr
	}
	counts := make([]int, len(ptr)-1)
	for i := range counts {
		counts[i] = ptr[i+1] - ptr[i]
	}
	return counts, nil
}

// RandomLabels samples n distinct labels from axis a.
func (m *SparseMatrix) RandomLabels(n int, a Axis, rng *rand.Rand) ([]string, error) {
	if err := checkAxis(a); err != nil {
		return nil, err
	}
	ax := m.axis(a)
	if n < 0 || n > ax.Size() {
		return nil, errors.InvalidParam(fmt.Sprintf("cannot sample %d labels from %d", n, ax.Size()))
	}
	perm := rng.Perm(ax.Size())[:n]
	out := make([]string, n)
	for i, code := range perm {
		out[i] = ax.label(code)
	}
	return out, nil
}
