package matrix

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/occurrence-matrix/pkg/errors"
)

func scenarioRecords() []StackedRecord {
	return []StackedRecord{
		{RowKey: "sp1", ColKey: "ds1", Value: 10},
		{RowKey: "sp2", ColKey: "ds1", Value: 5},
		{RowKey: "sp1", ColKey: "ds2", Value: 3},
	}
}

func mustBuild(t *testing.T, records []StackedRecord) *SparseMatrix {
	t.Helper()
	m, _, err := NewFromStacked(records, "taxonkey_species", "datasetkey")
	require.NoError(t, err)
	return m
}

// gridRecords produces a deterministic set of records with unique pairs.
func gridRecords() []StackedRecord {
	var recs []StackedRecord
	for i := 0; i < 20; i++ {
		for j := 0; j < 15; j++ {
			if (i*7+j*3)%4 == 0 {
				recs = append(recs, StackedRecord{
					RowKey: fmt.Sprintf("sp%02d", i),
					ColKey: fmt.Sprintf("ds%02d", j),
					Value:  float64(i + j + 1),
				})
			}
		}
	}
	return recs
}

func TestScenario_TwoSpeciesTwoDatasets(t *testing.T) {
	m := mustBuild(t, scenarioRecords())

	rows, cols := m.Shape()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 2, cols)
	assert.Equal(t, 3, m.Nnz())

	sum, err := m.SumVector("ds1", Column)
	require.NoError(t, err)
	assert.Equal(t, 15.0, sum)

	val, labels, err := m.Extreme("ds1", Column, true)
	require.NoError(t, err)
	assert.Equal(t, 10.0, val)
	assert.Equal(t, []string{"sp1"}, labels)

	val, labels, err = m.Extreme("ds1", Column, false)
	require.NoError(t, err)
	assert.Equal(t, 5.0, val)
	assert.Equal(t, []string{"sp2"}, labels)
}

func TestVector_ReturnsEntriesAndIndex(t *testing.T) {
	m := mustBuild(t, scenarioRecords())

	v, err := m.Vector("sp1", Row)
	require.NoError(t, err)
	assert.Equal(t, 0, v.Index)
	assert.Equal(t, Row, v.Axis)
	assert.Equal(t, []VectorEntry{{Code: 0, Value: 10}, {Code: 1, Value: 3}}, v.Entries)

	v, err = m.Vector("ds2", Column)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Index)
	assert.Equal(t, []VectorEntry{{Code: 0, Value: 3}}, v.Entries)
}

func TestVector_UnknownLabel(t *testing.T) {
	m := mustBuild(t, scenarioRecords())

	_, err := m.Vector("unknown-label", Row)
	require.Error(t, err)
	assert.True(t, errors.IsLabelNotFound(err))

	_, err = m.SumVector("unknown-label", Column)
	assert.True(t, errors.IsLabelNotFound(err))
	_, err = m.CountNonZero("sp1", Column)
	assert.True(t, errors.IsLabelNotFound(err), "row label looked up on the column axis")
	_, _, err = m.Extreme("nope", Row, true)
	assert.True(t, errors.IsLabelNotFound(err))
}

func TestVector_InvalidAxis(t *testing.T) {
	m := mustBuild(t, scenarioRecords())

	_, err := m.Vector("sp1", Axis(3))
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidAxis))
	_, err = m.AxisTotals(Axis(-1))
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidAxis))
	_, err = m.AxisCounts(Axis(2))
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidAxis))
}

func TestExtreme_ReturnsFullTieSet(t *testing.T) {
	m := mustBuild(t, []StackedRecord{
		{RowKey: "sp1", ColKey: "dsT", Value: 7},
		{RowKey: "sp2", ColKey: "dsT", Value: 7},
		{RowKey: "sp3", ColKey: "dsT", Value: 2},
		{RowKey: "sp4", ColKey: "dsT", Value: 7},
		{RowKey: "sp5", ColKey: "dsT", Value: 2},
	})

	val, labels, err := m.Extreme("dsT", Column, true)
	require.NoError(t, err)
	assert.Equal(t, 7.0, val)
	assert.Equal(t, []string{"sp1", "sp2", "sp4"}, labels)

	val, labels, err = m.Extreme("dsT", Column, false)
	require.NoError(t, err)
	assert.Equal(t, 2.0, val)
	assert.Equal(t, []string{"sp3", "sp5"}, labels)
}

func TestExtreme_ZeroMinimumIsDataIntegrityError(t *testing.T) {
	// sp1 is on the row axis but its only record carries a zero, so its
	// vector has no non-zero values.
	m, report, err := NewFromStacked([]StackedRecord{
		{RowKey: "sp1", ColKey: "ds1", Value: 0},
		{RowKey: "sp2", ColKey: "ds1", Value: 5},
	}, "taxonkey_species", "datasetkey")
	require.NoError(t, err)
	assert.Equal(t, 1, report.SkippedZero)

	_, _, err = m.Extreme("sp1", Row, false)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDataIntegrity))

	_, _, err = m.Extreme("sp1", Row, true)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDataIntegrity))
}

func TestBuildFromRecords_CollisionLastWins(t *testing.T) {
	m, report, err := NewFromStacked([]StackedRecord{
		{RowKey: "sp1", ColKey: "ds1", Value: 4},
		{RowKey: "sp2", ColKey: "ds1", Value: 1},
		{RowKey: "sp1", ColKey: "ds1", Value: 9},
	}, "r", "c")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Collisions)
	assert.Equal(t, 3, report.Records)
	assert.Equal(t, 2, report.Stored)

	v, err := m.At("sp1", "ds1")
	require.NoError(t, err)
	assert.Equal(t, 9.0, v, "later record replaces the earlier one")
	assert.Equal(t, 10.0, m.Total())
}

func TestBuildFromRecords_CollisionToZeroRemovesEntry(t *testing.T) {
	m, report, err := NewFromStacked([]StackedRecord{
		{RowKey: "sp1", ColKey: "ds1", Value: 4},
		{RowKey: "sp1", ColKey: "ds1", Value: 0},
		{RowKey: "sp1", ColKey: "ds2", Value: 2},
	}, "r", "c")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Collisions)
	assert.Equal(t, 1, report.SkippedZero)
	assert.Equal(t, 1, m.Nnz())
}

func TestBuildFromRecords_SkipsMissingKeys(t *testing.T) {
	m, report, err := NewFromStacked([]StackedRecord{
		{RowKey: "", ColKey: "ds1", Value: 4},
		{RowKey: "sp1", ColKey: "", Value: 4},
		{RowKey: "sp1", ColKey: "ds1", Value: 2},
	}, "r", "c")
	require.NoError(t, err)
	assert.Equal(t, 2, report.SkippedMissingKey)
	rows, cols := m.Shape()
	assert.Equal(t, 1, rows)
	assert.Equal(t, 1, cols)
}

func TestBuildFromRecords_RejectsInvalidValues(t *testing.T) {
	for _, v := range []float64{-1, math.NaN(), math.Inf(1)} {
		_, _, err := NewFromStacked([]StackedRecord{{RowKey: "a", ColKey: "b", Value: v}}, "r", "c")
		assert.True(t, errors.IsCode(err, errors.ErrCodeDataIntegrity), "value %v", v)
	}
}

func TestBuildFromRecords_LabelMissingFromSuppliedAxis(t *testing.T) {
	rows := NewCategoricalAxis("r", []string{"sp1"})
	cols := NewCategoricalAxis("c", []string{"ds1"})
	_, _, err := BuildFromRecords([]StackedRecord{{RowKey: "sp2", ColKey: "ds1", Value: 1}}, rows, cols)
	assert.True(t, errors.IsLabelNotFound(err))
}

func TestConservationOfTotals(t *testing.T) {
	recs := gridRecords()
	m := mustBuild(t, recs)

	var want float64
	for _, r := range recs {
		want += r.Value
	}
	assert.Equal(t, want, m.Total())

	rowTotals, err := m.AxisTotals(Row)
	require.NoError(t, err)
	colTotals, err := m.AxisTotals(Column)
	require.NoError(t, err)

	var rs, cs float64
	for _, v := range rowTotals {
		rs += v
	}
	for _, v := range colTotals {
		cs += v
	}
	assert.Equal(t, want, rs)
	assert.Equal(t, want, cs)
}

func TestPerAxisConsistency(t *testing.T) {
	recs := gridRecords()
	m := mustBuild(t, recs)

	byRow := map[string]float64{}
	byCol := map[string]float64{}
	nnzCol := map[string]int{}
	for _, r := range recs {
		byRow[r.RowKey] += r.Value
		byCol[r.ColKey] += r.Value
		nnzCol[r.ColKey]++
	}
	for label, want := range byRow {
		got, err := m.SumVector(label, Row)
		require.NoError(t, err)
		assert.Equal(t, want, got, label)
	}
	counts, err := m.AxisCounts(Column)
	require.NoError(t, err)
	for label, want := range byCol {
		got, err := m.SumVector(label, Column)
		require.NoError(t, err)
		assert.Equal(t, want, got, label)

		n, err := m.CountNonZero(label, Column)
		require.NoError(t, err)
		assert.Equal(t, nnzCol[label], n, label)

		code, _ := m.Columns().CodeOf(label)
		assert.Equal(t, nnzCol[label], counts[code], label)
	}
}

func TestNewFromEntries_RoundTripsEntries(t *testing.T) {
	orig := mustBuild(t, gridRecords())

	rebuilt, err := NewFromEntries(orig.Rows(), orig.Columns(), orig.Entries())
	require.NoError(t, err)
	assert.Equal(t, orig.Entries(), rebuilt.Entries())
}

func TestNewFromEntries_Validation(t *testing.T) {
	rows := NewCategoricalAxis("r", []string{"a", "b"})
	cols := NewCategoricalAxis("c", []string{"x"})

	tests := []struct {
		name    string
		entries []Entry
		code    errors.ErrorCode
	}{
		{"row out of range", []Entry{{Row: 2, Col: 0, Value: 1}}, errors.ErrCodeCodeOutOfRange},
		{"col out of range", []Entry{{Row: 0, Col: 1, Value: 1}}, errors.ErrCodeCodeOutOfRange},
		{"stored zero", []Entry{{Row: 0, Col: 0, Value: 0}}, errors.ErrCodeDataIntegrity},
		{"duplicate", []Entry{{Row: 1, Col: 0, Value: 1}, {Row: 1, Col: 0, Value: 2}}, errors.ErrCodeDataIntegrity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFromEntries(rows, cols, tt.entries)
			assert.True(t, errors.IsCode(err, tt.code), "%v", err)
		})
	}
}

func TestAt(t *testing.T) {
	m := mustBuild(t, scenarioRecords())

	v, err := m.At("sp2", "ds2")
	require.NoError(t, err)
	assert.Zero(t, v)

	v, err = m.At("sp1", "ds2")
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	_, err = m.At("sp1", "ds9")
	assert.True(t, errors.IsLabelNotFound(err))
}

func TestLabelsForValueAndCountValue(t *testing.T) {
	m := mustBuild(t, []StackedRecord{
		{RowKey: "sp1", ColKey: "ds1", Value: 1},
		{RowKey: "sp2", ColKey: "ds1", Value: 1},
		{RowKey: "sp3", ColKey: "ds1", Value: 4},
	})

	labels, err := m.LabelsForValue("ds1", Column, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"sp1", "sp2"}, labels)

	n, err := m.CountValue("ds1", Column, 4)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = m.CountValue("ds1", Column, 99)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRandomLabels(t *testing.T) {
	m := mustBuild(t, gridRecords())
	rng := rand.New(rand.NewSource(42))

	labels, err := m.RandomLabels(5, Row, rng)
	require.NoError(t, err)
	assert.Len(t, labels, 5)

	seen := map[string]bool{}
	for _, l := range labels {
		assert.True(t, m.Rows().Contains(l))
		assert.False(t, seen[l], "duplicate sample %s", l)
		seen[l] = true
	}

	_, err = m.RandomLabels(1000, Column, rng)
	assert.True(t, errors.IsValidation(err))
}
