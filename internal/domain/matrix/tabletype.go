package matrix

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/turtacn/occurrence-matrix/pkg/errors"
)

// TableType identifies one kind of aggregate table.  The set is closed; use
// ParseTableType to convert untrusted strings.
type TableType string

const (
	SpeciesDatasetMatrix  TableType = "species_dataset_matrix"
	SpeciesDatasetSummary TableType = "species_dataset_summary"
	DatasetSpeciesSummary TableType = "dataset_species_summary"
)

// Summary field names shared by every summary table.
const (
	FieldCount = "count"
	FieldTotal = "total"
)

// DateLayout is the date-stamp layout embedded in every archive filename.
const DateLayout = "2006_01_02"

// TableMeta is the static description of a table type.
type TableMeta struct {
	Code            TableType `json:"code"`
	FilePrefix      string    `json:"file_prefix"`
	TableFormat     string    `json:"table_format"`
	MatrixExtension string    `json:"matrix_extension"`
	RowField        string    `json:"row_field"`
	ColumnField     string    `json:"column_field"`
	ValueField      string    `json:"value_field"`
	// RowSummary and ColumnSummary name the projections built from a matrix.
	RowSummary    TableType `json:"row_summary_table,omitempty"`
	ColumnSummary TableType `json:"column_summary_table,omitempty"`
	// Fields lists the measures of a summary table.
	Fields []string `json:"fields,omitempty"`
}

// IsSummary reports whether the table is a per-axis summary projection.
func (m TableMeta) IsSummary() bool { return len(m.Fields) > 0 }

var tables = map[TableType]TableMeta{
	SpeciesDatasetMatrix: {
		Code:            SpeciesDatasetMatrix,
		FilePrefix:      "speciesxdataset_matrix",
		TableFormat:     "Zip",
		MatrixExtension: ".coo",
		RowField:        "taxonkey_species",
		ColumnField:     "datasetkey",
		ValueField:      "occ_count",
		RowSummary:      SpeciesDatasetSummary,
		ColumnSummary:   DatasetSpeciesSummary,
	},
	SpeciesDatasetSummary: {
		Code:            SpeciesDatasetSummary,
		FilePrefix:      "speciesxdataset_summary",
		TableFormat:     "Zip",
		MatrixExtension: ".csv",
		RowField:        "taxonkey_species",
		ColumnField:     "measurement_type",
		ValueField:      "measure",
		Fields:          []string{FieldCount, FieldTotal},
	},
	DatasetSpeciesSummary: {
		Code:            DatasetSpeciesSummary,
		FilePrefix:      "datasetxspecies_summary",
		TableFormat:     "Zip",
		MatrixExtension: ".csv",
		RowField:        "datasetkey",
		ColumnField:     "measurement_type",
		ValueField:      "measure",
		Fields:          []string{FieldCount, FieldTotal},
	},
}

// TableTypes returns every known table type in a stable order.
func TableTypes() []TableType {
	return []TableType{SpeciesDatasetMatrix, SpeciesDatasetSummary, DatasetSpeciesSummary}
}

// ParseTableType validates s against the closed set of table codes.
func ParseTableType(s string) (TableType, error) {
	t := TableType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := tables[t]; !ok {
		return "", errors.Newf(errors.ErrCodeUnknownTableType, "table type %q is not defined", s)
	}
	return t, nil
}

// Meta returns a copy of the table's static description.
func (t TableType) Meta() (TableMeta, error) {
	m, ok := tables[t]
	if !ok {
		return TableMeta{}, errors.Newf(errors.ErrCodeUnknownTableType, "table type %q is not defined", string(t))
	}
	m.Fields = append([]string(nil), m.Fields...)
	return m, nil
}

// SummaryFor returns the summary table projected from t along axis a.
func (t TableType) SummaryFor(a Axis) (TableType, error) {
	m, err := t.Meta()
	if err != nil {
		return "", err
	}
	if err := checkAxis(a); err != nil {
		return "", err
	}
	st := m.RowSummary
	if a == Column {
		st = m.ColumnSummary
	}
	if st == "" {
		return "", errors.Newf(errors.ErrCodeUnknownTableType, "table %s has no %s summary", t, a)
	}
	return st, nil
}

// SummaryAxis returns the matrix axis a summary table was projected along.
func (t TableType) SummaryAxis() (Axis, error) {
	for _, m := range tables {
		switch t {
		case m.RowSummary:
			return Row, nil
		case m.ColumnSummary:
			return Column, nil
		}
	}
	return Row, errors.Newf(errors.ErrCodeUnknownTableType, "table %s is not a summary table", t)
}

// ─────────────────────────────────────────────────────────────────────────────
// Date stamps and filenames
// ─────────────────────────────────────────────────────────────────────────────

// FormatDateStamp renders t as YYYY_MM_DD.
func FormatDateStamp(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDateStamp parses a YYYY_MM_DD stamp.
func ParseDateStamp(s string) (time.Time, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 3 || len(parts[0]) != 4 || len(parts[1]) != 2 || len(parts[2]) != 2 {
		return time.Time{}, errors.Newf(errors.ErrCodeInvalidArchiveName,
			"date stamp %q must be YYYY_MM_DD", s)
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, errors.Wrap(err, errors.ErrCodeInvalidArchiveName,
			fmt.Sprintf("date stamp %q is not a calendar date", s))
	}
	return t, nil
}

// FileBase returns "<prefix>_<YYYY_MM_DD>" for table t.
func FileBase(t TableType, date string) (string, error) {
	m, err := t.Meta()
	if err != nil {
		return "", err
	}
	if _, err := ParseDateStamp(date); err != nil {
		return "", err
	}
	return m.FilePrefix + "_" + date, nil
}

// ParseFileName recovers the table type and date stamp from a filename of
// the form <contents>_<type>_<YYYY>_<MM>_<DD>[_rest][.ext].  Directories
// and extensions are ignored.
func ParseFileName(name string) (TableType, string, error) {
	base := filepath.Base(name)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	parts := strings.Split(base, "_")
	if len(parts) < 5 {
		return "", "", errors.Newf(errors.ErrCodeInvalidArchiveName,
			"filename %q does not match <contents>_<type>_<YYYY_MM_DD>", name)
	}
	prefix := parts[0] + "_" + parts[1]
	date := strings.Join(parts[2:5], "_")
	if _, err := ParseDateStamp(date); err != nil {
		return "", "", err
	}
	for _, t := range TableTypes() {
		if tables[t].FilePrefix == prefix {
			return t, date, nil
		}
	}
	return "", "", errors.Newf(errors.ErrCodeUnknownTableType,
		"no table type for filename prefix %q", prefix)
}
