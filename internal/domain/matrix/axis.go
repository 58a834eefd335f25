// Package matrix implements the categorical-indexed sparse count matrix that
// pivots stacked (row-key, column-key, value) records into a two-dimensional
// structure, together with the per-axis statistics, summary projections and
// tie-preserving rankings computed from it.
//
// Every type in this package is immutable after construction.  Read
// operations never mutate, so a built matrix may be shared freely between
// goroutines.
package matrix

import (
	"strings"

	"github.com/turtacn/occurrence-matrix/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Axis selector
// ─────────────────────────────────────────────────────────────────────────────

// Axis selects one of the two dimensions of a SparseMatrix.
type Axis int

const (
	// Row is axis 0 (species in the species × dataset table).
	Row Axis = 0
	// Column is axis 1 (datasets in the species × dataset table).
	Column Axis = 1
)

// String returns "row" or "column".
func (a Axis) String() string {
	switch a {
	case Row:
		return "row"
	case Column:
		return "column"
	default:
		return "invalid"
	}
}

// Valid reports whether a is Row or Column.
func (a Axis) Valid() bool {
	return a == Row || a == Column
}

// Other returns the opposite axis.
func (a Axis) Other() Axis {
	if a == Row {
		return Column
	}
	return Row
}

// ParseAxis accepts "row"/"rows"/"0" and "column"/"columns"/"col"/"1".
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "row", "rows", "0":
		return Row, nil
	case "column", "columns", "col", "1":
		return Column, nil
	}
	return Row, errors.Newf(errors.ErrCodeInvalidAxis, "axis %q must be row or column", s)
}

func checkAxis(a Axis) error {
	if !a.Valid() {
		return errors.Newf(errors.ErrCodeInvalidAxis, "2D sparse matrix does not have axis %d", int(a))
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// CategoricalAxis
// ─────────────────────────────────────────────────────────────────────────────

// CategoricalAxis is an ordered set of unique labels, each assigned the
// zero-based integer code of its position.
type CategoricalAxis struct {
	name   string
	labels []string
	index  map[string]int
}

// NewCategoricalAxis builds an axis from raw values.  Empty values are treated
// as missing and dropped; duplicates keep their first-seen position.
func NewCategoricalAxis(name string, values []string) *CategoricalAxis {
	a := &CategoricalAxis{
		name:  name,
		index: make(map[string]int, len(values)),
	}
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, seen := a.index[v]; seen {
			continue
		}
		a.index[v] = len(a.labels)
		a.labels = append(a.labels, v)
	}
	return a
}

// Name returns the field name the axis was built from.
func (a *CategoricalAxis) Name() string { return a.name }

// Size returns the number of labels.
func (a *CategoricalAxis) Size() int { return len(a.labels) }

// Labels returns a copy of the ordered labels.
func (a *CategoricalAxis) Labels() []string {
	out := make([]string, len(a.labels))
	copy(out, a.labels)
	return out
}

// Contains reports whether label is on the axis.
func (a *CategoricalAxis) Contains(label string) bool {
	_, ok := a.index[label]
	return ok
}

// CodeOf returns the code of label, or a LabelNotFound error.
func (a *CategoricalAxis) CodeOf(label string) (int, error) {
	code, ok := a.index[label]
	if !ok {
		return -1, errors.LabelNotFound(a.name, label)
	}
	return code, nil
}

// LabelOf returns the label at code, or a CodeOutOfRange error.
func (a *CategoricalAxis) LabelOf(code int) (string, error) {
	if code < 0 || code >= len(a.labels) {
		return "", errors.CodeOutOfRange(a.name, code, len(a.labels))
	}
	return a.labels[code], nil
}

// LabelsOf maps a list of codes to labels, failing on the first bad code.
func (a *CategoricalAxis) LabelsOf(codes []int) ([]string, error) {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		l, err := a.LabelOf(c)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// Equal reports whether both axes hold the same labels in the same order.
func (a *CategoricalAxis) Equal(b *CategoricalAxis) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.labels) != len(b.labels) {
		return false
	}
	for i := range a.labels {
		if a.labels[i] != b.labels[i] {
			return false
		}
	}
	return true
}

// label is LabelOf for codes already known to be in range.
func (a *CategoricalAxis) label(code int) string {
	return a.labels[code]
}
