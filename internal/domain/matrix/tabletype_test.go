package matrix

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/occurrence-matrix/pkg/errors"
)

func TestParseTableType(t *testing.T) {
	for _, tt := range TableTypes() {
		got, err := ParseTableType(string(tt))
		require.NoError(t, err)
		assert.Equal(t, tt, got)
	}

	_, err := ParseTableType("dataset_counts")
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnknownTableType))
}

func TestTableType_Meta(t *testing.T) {
	m, err := SpeciesDatasetMatrix.Meta()
	require.NoError(t, err)
	assert.Equal(t, "taxonkey_species", m.RowField)
	assert.Equal(t, "datasetkey", m.ColumnField)
	assert.Equal(t, "occ_count", m.ValueField)
	assert.False(t, m.IsSummary())

	s, err := DatasetSpeciesSummary.Meta()
	require.NoError(t, err)
	assert.True(t, s.IsSummary())
	s.Fields[0] = "mutated"
	again, _ := DatasetSpeciesSummary.Meta()
	assert.Equal(t, FieldCount, again.Fields[0], "Meta returns a copy")

	_, err = TableType("nope").Meta()
	assert.Error(t, err)
}

func TestTableType_SummaryFor(t *testing.T) {
	st, err := SpeciesDatasetMatrix.SummaryFor(Row)
	require.NoError(t, err)
	assert.Equal(t, SpeciesDatasetSummary, st)

	st, err = SpeciesDatasetMatrix.SummaryFor(Column)
	require.NoError(t, err)
	assert.Equal(t, DatasetSpeciesSummary, st)

	_, err = DatasetSpeciesSummary.SummaryFor(Row)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnknownTableType))
}

func TestFileBaseAndParseFileName(t *testing.T) {
	base, err := FileBase(SpeciesDatasetMatrix, "2024_02_01")
	require.NoError(t, err)
	assert.Equal(t, "speciesxdataset_matrix_2024_02_01", base)

	tests := []struct {
		name     string
		wantType TableType
		wantDate string
	}{
		{"/tmp/speciesxdataset_matrix_2024_02_01.zip", SpeciesDatasetMatrix, "2024_02_01"},
		{"datasetxspecies_summary_2023_12_31.csv", DatasetSpeciesSummary, "2023_12_31"},
		{"speciesxdataset_summary_2024_05_01_000.zip", SpeciesDatasetSummary, "2024_05_01"},
	}
	for _, tt := range tests {
		tp, date, err := ParseFileName(tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.wantType, tp)
		assert.Equal(t, tt.wantDate, date)
	}
}

func TestParseFileName_Invalid(t *testing.T) {
	bad := map[string]errors.ErrorCode{
		"matrix.zip":                            errors.ErrCodeInvalidArchiveName,
		"speciesxdataset_matrix_24_02_01.zip":   errors.ErrCodeInvalidArchiveName,
		"speciesxdataset_matrix_2024_2_01.zip":  errors.ErrCodeInvalidArchiveName,
		"speciesxdataset_matrix_2024_13_01.zip": errors.ErrCodeInvalidArchiveName,
		"dataset_counts_2024_02_01.zip":         errors.ErrCodeUnknownTableType,
	}
	for name, code := range bad {
		_, _, err := ParseFileName(name)
		assert.True(t, errors.IsCode(err, code), "%s: %v", name, err)
	}
}

func TestDateStamps(t *testing.T) {
	d := time.Date(2024, time.March, 7, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024_03_07", FormatDateStamp(d))

	got, err := ParseDateStamp("2024_03_07")
	require.NoError(t, err)
	assert.True(t, got.Equal(d))

	_, err = FileBase(SpeciesDatasetMatrix, "2024-03-07")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArchiveName))
}

func TestKeysFor(t *testing.T) {
	keys, err := KeysFor(SpeciesDatasetMatrix)
	require.NoError(t, err)
	assert.Equal(t, "species_label", keys.For(Row).Name(KeyLabel))
	assert.Equal(t, "dataset_label", keys.For(Column).Name(KeyLabel))

	sum, err := KeysFor(DatasetSpeciesSummary)
	require.NoError(t, err)
	assert.Equal(t, "total_occurrences_of_all_datasets", sum.For(Row).Name(KeyAllTotal))

	_, err = KeysFor("bogus")
	assert.Error(t, err)

	// Every key set names every StatKey exactly once.
	for _, ks := range []KeySet{speciesKeys, datasetKeys} {
		seen := map[string]bool{}
		for k := KeyType; k <= KeyAllMaxCountLabels; k++ {
			name := ks.Name(k)
			assert.NotEmpty(t, name, "key %d", k)
			assert.False(t, seen[name], "duplicate name %s", name)
			seen[name] = true
		}
	}
}
