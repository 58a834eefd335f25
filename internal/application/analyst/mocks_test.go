package analyst

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/occurrence-matrix/internal/domain/matrix"
)

const testDate = "2024_02_01"

// testCSV holds three species over two datasets.  sp2 and sp3 tie on
// both measures.
const testCSV = `taxonkey_species,datasetkey,occ_count
sp1,ds1,10
sp1,ds2,3
sp2,ds1,5
sp3,ds2,5
`

func writeInput(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "occurrences.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	m, _, err := matrix.NewFromStacked([]matrix.StackedRecord{
		{RowKey: "sp1", ColKey: "ds1", Value: 10},
		{RowKey: "sp1", ColKey: "ds2", Value: 3},
		{RowKey: "sp2", ColKey: "ds1", Value: 5},
		{RowKey: "sp3", ColKey: "ds2", Value: 5},
	}, "taxonkey_species", "datasetkey")
	require.NoError(t, err)
	snap, err := NewSnapshot(matrix.SpeciesDatasetMatrix, testDate, m)
	require.NoError(t, err)
	return snap
}

// MockArchiveStore is a mock implementation of ArchiveStore.
type MockArchiveStore struct {
	mock.Mock
}

func (m *MockArchiveStore) Bucket() string {
	return "archives"
}

func (m *MockArchiveStore) ArchiveKey(date, fileName string) string {
	return "occ/" + date + "/" + fileName
}

func (m *MockArchiveStore) Upload(ctx context.Context, localPath, bucket, key string) error {
	args := m.Called(ctx, localPath, bucket, key)
	return args.Error(0)
}

func (m *MockArchiveStore) Download(ctx context.Context, bucket, key, localPath string, overwrite bool) (string, error) {
	args := m.Called(ctx, bucket, key, localPath, overwrite)
	return args.String(0), args.Error(1)
}

func (m *MockArchiveStore) Dates(ctx context.Context, t matrix.TableType) ([]string, error) {
	args := m.Called(ctx, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockSnapshotSource is a mock implementation of SnapshotSource.
type MockSnapshotSource struct {
	mock.Mock
}

func (m *MockSnapshotSource) Load(ctx context.Context, t matrix.TableType, date string) (*Snapshot, error) {
	args := m.Called(ctx, t, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Snapshot), args.Error(1)
}

func (m *MockSnapshotSource) Latest(ctx context.Context, t matrix.TableType) (string, error) {
	args := m.Called(ctx, t)
	return args.String(0), args.Error(1)
}

// fakeLock records lock usage by name.
type fakeLock struct {
	mu       sync.Mutex
	names    []string
	locked   int
	unlocked int
	lockErr  error
}

func (f *fakeLock) factory(name string) Locker {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, name)
	return f
}

func (f *fakeLock) Lock(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lockErr != nil {
		return f.lockErr
	}
	f.locked++
	return nil
}

func (f *fakeLock) Unlock(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unlocked++
	return nil
}
