package ingest

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/occurrence-matrix/internal/domain/matrix"
	"github.com/turtacn/occurrence-matrix/pkg/errors"
)

func matrixOptions(t *testing.T) Options {
	t.Helper()
	opts, err := OptionsFor(matrix.SpeciesDatasetMatrix)
	require.NoError(t, err)
	return opts
}

func TestOptionsFor(t *testing.T) {
	opts := matrixOptions(t)
	assert.Equal(t, "taxonkey_species", opts.RowField)
	assert.Equal(t, "datasetkey", opts.ColumnField)
	assert.Equal(t, "occ_count", opts.ValueField)

	_, err := OptionsFor(matrix.DatasetSpeciesSummary)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnknownTableType))
}

func TestRead_CSV(t *testing.T) {
	in := "datasetkey,extra,taxonkey_species,occ_count\n" +
		"ds1,x,sp1,10\n" +
		"ds2,x,sp1,3\n" +
		",x,sp2,4\n" +
		"ds1,x,,4\n" +
		"ds1,x,sp2,\n" +
		"ds1,x,sp2, 5 \n"

	res, err := NewReader(matrixOptions(t), nil).Read(context.Background(), strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, 6, res.Lines)
	assert.Equal(t, 2, res.BlankKeys)
	assert.Equal(t, 1, res.BlankValues)
	assert.Equal(t, []matrix.StackedRecord{
		{RowKey: "sp1", ColKey: "ds1", Value: 10},
		{RowKey: "sp1", ColKey: "ds2", Value: 3},
		{RowKey: "sp2", ColKey: "ds1", Value: 5},
	}, res.Records)
}

func TestRead_Errors(t *testing.T) {
	r := NewReader(matrixOptions(t), nil)
	ctx := context.Background()

	_, err := r.Read(ctx, strings.NewReader(""))
	assert.True(t, errors.IsValidation(err))

	_, err = r.Read(ctx, strings.NewReader("taxonkey_species,occ_count\nsp1,1\n"))
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, err.Error(), "datasetkey")

	_, err = r.Read(ctx, strings.NewReader("taxonkey_species,datasetkey,occ_count\nsp1,ds1,ten\n"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
	assert.Contains(t, err.Error(), "line 2")

	_, err = r.Read(ctx, strings.NewReader("taxonkey_species,datasetkey,occ_count\nsp1,ds1\n"))
	assert.True(t, errors.IsValidation(err))
}

func TestRead_RejectsInvalidUTF8Keys(t *testing.T) {
	r := NewReader(matrixOptions(t), nil)
	in := "taxonkey_species,datasetkey,occ_count\n" +
		"sp1,ds1,1\n" +
		"Quercus r\xf6bur,ds1,2\n"

	_, err := r.Read(context.Background(), strings.NewReader(in))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
	assert.Contains(t, err.Error(), "line 3")

	_, err = r.Read(context.Background(), strings.NewReader("taxonkey_species,datasetkey,occ_count\nsp1,ds\xe9,1\n"))
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestRead_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewReader(matrixOptions(t), nil).
		Read(ctx, strings.NewReader("taxonkey_species,datasetkey,occ_count\nsp1,ds1,1\n"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadFile_TSVAndGzip(t *testing.T) {
	dir := t.TempDir()
	body := "taxonkey_species\tdatasetkey\tocc_count\nsp1\tds1\t2\nsp2\tds1\t7\n"

	tsv := filepath.Join(dir, "records.tsv")
	require.NoError(t, os.WriteFile(tsv, []byte(body), 0o644))

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	gz := filepath.Join(dir, "records.tsv.gz")
	require.NoError(t, os.WriteFile(gz, buf.Bytes(), 0o644))

	r := NewReader(matrixOptions(t), nil)
	for _, path := range []string{tsv, gz} {
		res, err := r.ReadFile(context.Background(), path)
		require.NoError(t, err, path)
		assert.Len(t, res.Records, 2)
		assert.Equal(t, 7.0, res.Records[1].Value)
	}
}

func TestReadFile_Missing(t *testing.T) {
	_, err := NewReader(matrixOptions(t), nil).ReadFile(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	assert.True(t, errors.IsNotFound(err))
}

func TestReadFile_BadGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.csv.gz")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o644))
	_, err := NewReader(matrixOptions(t), nil).ReadFile(context.Background(), path)
	assert.True(t, errors.IsValidation(err))
}
