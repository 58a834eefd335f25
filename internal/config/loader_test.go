package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigYAML = `
server:
  http:
    host: "localhost"
    port: 8080
log:
  level: "debug"
  format: "console"
matrix:
  table_type: "species_dataset_matrix"
  work_dir: "/tmp/occmtx-test"
  default_date: "2024_02_01"
  rank_limit: 20
minio:
  enabled: true
  endpoint: "localhost:9000"
  access_key: "key"
  secret_key: "secret"
  bucket: "archives"
redis:
  enabled: true
  addr: "localhost:6379"
  ttl: 5m
`

func createTempConfigFile(t *testing.T, content string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(path, []byte(content), 0644)
	require.NoError(t, err)
	return path
}

func setEnvVars(t *testing.T, vars map[string]string) {
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func TestLoad_FromFile_ValidConfig(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	cfg, err := Load(WithConfigPath(path))
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Server.HTTP.Host)
	assert.Equal(t, 8080, cfg.Server.HTTP.Port)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "2024_02_01", cfg.Matrix.DefaultDate)
	assert.Equal(t, 20, cfg.Matrix.RankLimit)
	assert.True(t, cfg.MinIO.Enabled)
	assert.Equal(t, "archives", cfg.MinIO.Bucket)
	assert.Equal(t, 5*time.Minute, cfg.Redis.TTL)
}

func TestLoad_FromFile_FileNotFound(t *testing.T) {
	_, err := Load(WithConfigPath("non_existent_config.yaml"))
	assert.ErrorIs(t, err, ErrConfigFileNotFound)
}

func TestLoad_FromFile_InvalidYAML(t *testing.T) {
	path := createTempConfigFile(t, "invalid_yaml: [")
	_, err := Load(WithConfigPath(path))
	assert.ErrorIs(t, err, ErrConfigParseError)
}

func TestLoad_FromFile_ValidationFailure(t *testing.T) {
	invalidConfig := `
server:
  http:
    port: 70000
`
	path := createTempConfigFile(t, invalidConfig)
	_, err := Load(WithConfigPath(path))
	assert.ErrorIs(t, err, ErrConfigValidation)
}

func TestLoad_SummaryTableRejected(t *testing.T) {
	path := createTempConfigFile(t, "matrix:\n  table_type: species_dataset_summary\n")
	_, err := Load(WithConfigPath(path))
	assert.ErrorIs(t, err, ErrConfigValidation)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	setEnvVars(t, map[string]string{
		"OCCMTX_SERVER_HTTP_PORT": "9999",
	})

	cfg, err := Load(WithConfigPath(path))
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.HTTP.Port)
}

func TestLoad_EnvOverride_NestedKey(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	setEnvVars(t, map[string]string{
		"OCCMTX_REDIS_KEY_PREFIX": "custom:",
	})

	cfg, err := Load(WithConfigPath(path))
	require.NoError(t, err)
	assert.Equal(t, "custom:", cfg.Redis.KeyPrefix)
}

func TestLoad_DefaultValues(t *testing.T) {
	path := createTempConfigFile(t, "server:\n  http:\n    port: 8081\n")
	cfg, err := Load(WithConfigPath(path))
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.HTTP.Port)
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, DefaultTableType, cfg.Matrix.TableType)
	assert.Equal(t, DefaultWorkDir(), cfg.Matrix.WorkDir)
	assert.Equal(t, DefaultMaxSnapshots, cfg.Matrix.MaxSnapshots)
	assert.False(t, cfg.MinIO.Enabled)
	assert.False(t, cfg.Redis.Enabled)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, DefaultMetricsPath, cfg.Metrics.Path)
}

func TestLoad_WithSearchPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(path, []byte(validConfigYAML), 0644)
	require.NoError(t, err)

	cfg, err := Load(WithSearchPaths(t.TempDir(), dir))
	require.NoError(t, err)
	assert.Equal(t, "archives", cfg.MinIO.Bucket)
}

func TestLoad_WithSearchPaths_NotFound(t *testing.T) {
	_, err := Load(WithSearchPaths(t.TempDir()))
	assert.ErrorIs(t, err, ErrConfigFileNotFound)
}

func TestLoad_WithOverrides(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	cfg, err := Load(WithConfigPath(path), WithOverrides(map[string]interface{}{
		"server.http.port": 7777,
	}))
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.HTTP.Port)
}

func TestLoadFromFile_Convenience(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}

func TestLoadFromEnv_NoFile(t *testing.T) {
	setEnvVars(t, map[string]string{
		"OCCMTX_SERVER_HTTP_PORT":    "8181",
		"OCCMTX_MATRIX_WORK_DIR":     "/var/lib/occmtx",
		"OCCMTX_MINIO_ENABLED":       "true",
		"OCCMTX_MINIO_ENDPOINT":      "minio:9000",
		"OCCMTX_MATRIX_MAX_SNAPSHOTS": "2",
	})

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 8181, cfg.Server.HTTP.Port)
	assert.Equal(t, "/var/lib/occmtx", cfg.Matrix.WorkDir)
	assert.True(t, cfg.MinIO.Enabled)
	assert.Equal(t, "minio:9000", cfg.MinIO.Endpoint)
	assert.Equal(t, 2, cfg.Matrix.MaxSnapshots)
}

func TestMustLoad_Success(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	assert.NotPanics(t, func() {
		MustLoad(WithConfigPath(path))
	})
}

func TestMustLoad_Panic(t *testing.T) {
	assert.Panics(t, func() {
		MustLoad(WithConfigPath("non_existent.yaml"))
	})
}

func TestLoad_SetsGlobalConfig(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	cfg, err := Load(WithConfigPath(path))
	require.NoError(t, err)

	global := Get()
	assert.Equal(t, cfg, global)
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu     sync.Mutex
		ports  []int
		errors []error
	)
	err := Watch(ctx, path, func(c *Config) {
		mu.Lock()
		ports = append(ports, c.Server.HTTP.Port)
		mu.Unlock()
	}, func(err error) {
		mu.Lock()
		errors = append(errors, err)
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("server:\n  http:\n    port: 9100\n"), 0644))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ports) > 0 && ports[len(ports)-1] == 9100
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("server:\n  http:\n    port: 70000\n"), 0644))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(errors) > 0
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.ErrorIs(t, errors[len(errors)-1], ErrConfigValidation)
	mu.Unlock()
}

func TestWatch_MissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "config.yaml"), func(*Config) {}, nil)
	assert.Error(t, err)
}
