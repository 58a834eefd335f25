package analyst

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/occurrence-matrix/internal/domain/matrix"
	"github.com/turtacn/occurrence-matrix/internal/testutil"
	"github.com/turtacn/occurrence-matrix/pkg/errors"
)

func TestBuilder_Build_WritesThreeArchives(t *testing.T) {
	workDir := t.TempDir()
	locks := &fakeLock{}
	catalog := NewCatalog(CatalogConfig{WorkDir: workDir, MaxSnapshots: 2}, nil, nil, nil)
	b := NewBuilder(workDir, nil, WithBuildLock(locks.factory), WithCatalog(catalog))

	res, err := b.Build(context.Background(), BuildRequest{
		InputPath: writeInput(t, testCSV),
		Table:     matrix.SpeciesDatasetMatrix,
		Date:      testDate,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 4, res.Lines)
	assert.Equal(t, 3, res.Rows)
	assert.Equal(t, 2, res.Columns)
	assert.Equal(t, 4, res.Nnz)
	assert.Zero(t, res.Report.Collisions)

	require.Len(t, res.Archives, 3)
	dir := filepath.Join(workDir, testDate)
	assert.Equal(t, filepath.Join(dir, "speciesxdataset_matrix_2024_02_01.zip"), res.Archives[0].LocalPath)
	assert.Equal(t, matrix.SpeciesDatasetSummary, res.Archives[1].Table)
	assert.Equal(t, matrix.DatasetSpeciesSummary, res.Archives[2].Table)
	for _, a := range res.Archives {
		fi, err := os.Stat(a.LocalPath)
		require.NoError(t, err, a.LocalPath)
		assert.Equal(t, fi.Size(), a.Bytes)
		assert.Empty(t, a.RemoteKey)
	}

	assert.Equal(t, []string{"build:species_dataset_matrix:2024_02_01"}, locks.names)
	assert.Equal(t, 1, locks.locked)
	assert.Equal(t, 1, locks.unlocked)
	assert.Equal(t, 1, catalog.Len())
}

func TestBuilder_Build_LogsCollisions(t *testing.T) {
	logger := testutil.NewMockLogger()
	b := NewBuilder(t.TempDir(), logger)

	res, err := b.Build(context.Background(), BuildRequest{
		InputPath: writeInput(t, testCSV+"sp1,ds1,7\n"),
		Table:     matrix.SpeciesDatasetMatrix,
		Date:      testDate,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Report.Collisions)
	assert.True(t, logger.HasMessage("warn", "duplicate coordinates overwritten, last record wins"))
	v, ok := logger.FieldValue("warn", "duplicate coordinates overwritten, last record wins", "collisions")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestBuilder_Build_Uploads(t *testing.T) {
	store := new(MockArchiveStore)
	store.On("Upload", mock.Anything, mock.AnythingOfType("string"), "archives", mock.MatchedBy(func(key string) bool {
		return filepath.Dir(key) == "occ/"+testDate
	})).Return(nil).Times(3)

	b := NewBuilder(t.TempDir(), nil, WithArchiveStore(store))
	res, err := b.Build(context.Background(), BuildRequest{
		InputPath: writeInput(t, testCSV),
		Table:     matrix.SpeciesDatasetMatrix,
		Date:      testDate,
		Upload:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "occ/2024_02_01/speciesxdataset_matrix_2024_02_01.zip", res.Archives[0].RemoteKey)
	store.AssertExpectations(t)
}

func TestBuilder_Build_UploadFailure(t *testing.T) {
	store := new(MockArchiveStore)
	store.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New(errors.ErrCodeStorageError, "bucket gone"))

	b := NewBuilder(t.TempDir(), nil, WithArchiveStore(store))
	_, err := b.Build(context.Background(), BuildRequest{
		InputPath: writeInput(t, testCSV),
		Table:     matrix.SpeciesDatasetMatrix,
		Date:      testDate,
		Upload:    true,
	})
	assert.True(t, errors.IsCode(err, errors.ErrCodeStorageError))
}

func TestBuilder_Build_Validation(t *testing.T) {
	b := NewBuilder(t.TempDir(), nil)
	ctx := context.Background()
	input := writeInput(t, testCSV)

	_, err := b.Build(ctx, BuildRequest{InputPath: input, Table: matrix.SpeciesDatasetSummary, Date: testDate})
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnknownTableType))

	_, err = b.Build(ctx, BuildRequest{InputPath: input, Table: matrix.SpeciesDatasetMatrix, Date: "2024-02-01"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArchiveName))

	_, err = b.Build(ctx, BuildRequest{Table: matrix.SpeciesDatasetMatrix, Date: testDate})
	assert.True(t, errors.IsValidation(err))

	_, err = b.Build(ctx, BuildRequest{InputPath: input, Table: matrix.SpeciesDatasetMatrix, Date: testDate, Upload: true})
	assert.True(t, errors.IsValidation(err))

	_, err = b.Build(ctx, BuildRequest{InputPath: filepath.Join(t.TempDir(), "missing.csv"), Table: matrix.SpeciesDatasetMatrix, Date: testDate})
	assert.True(t, errors.IsNotFound(err))
}

func TestBuilder_Build_LockHeld(t *testing.T) {
	locks := &fakeLock{lockErr: errors.New(errors.ErrCodeConflict, "lock not acquired")}
	b := NewBuilder(t.TempDir(), nil, WithBuildLock(locks.factory))

	_, err := b.Build(context.Background(), BuildRequest{
		InputPath: writeInput(t, testCSV),
		Table:     matrix.SpeciesDatasetMatrix,
		Date:      testDate,
	})
	assert.True(t, errors.IsCode(err, errors.ErrCodeConflict))
	assert.Zero(t, locks.unlocked)
}

func TestBuilder_Build_DefaultsDate(t *testing.T) {
	b := NewBuilder(t.TempDir(), nil)
	res, err := b.Build(context.Background(), BuildRequest{
		InputPath: writeInput(t, testCSV),
		Table:     matrix.SpeciesDatasetMatrix,
	})
	require.NoError(t, err)
	_, err = matrix.ParseDateStamp(res.Date)
	assert.NoError(t, err)
}
