package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"exectrack/internal/domain"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadFrom(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "etcd", cfg.Backend)
	assert.Equal(t, "etcd", cfg.ExecutionStore)
	assert.Equal(t, []string{"localhost:2379"}, cfg.Etcd.Endpoints)
	assert.Equal(t, 5*time.Second, cfg.Etcd.Timeout)
	assert.Equal(t, ":8080", cfg.HTTP.ListenAddr)
	assert.Equal(t, ":9090", cfg.GRPC.ListenAddr)
	assert.Equal(t, "@every 1m", cfg.Reports.Schedule)
	assert.Equal(t, "store", cfg.TestCaseSource.Kind)
	assert.True(t, cfg.Etcd.Enabled)
	assert.False(t, cfg.Postgres.Enabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("EXECTRACK_BACKEND", "memory")
	t.Setenv("EXECTRACK_EXECUTION_STORE", "postgres")
	t.Setenv("EXECTRACK_POSTGRES_DSN", "postgres://tracker@localhost/exectrack")
	t.Setenv("EXECTRACK_ETCD_ENDPOINTS", "a:2379,b:2379")
	t.Setenv("EXECTRACK_LOCK_TIMEOUT", "750ms")

	cfg, err := LoadFrom(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Backend)
	assert.Equal(t, "postgres", cfg.ExecutionStore)
	assert.Equal(t, "postgres://tracker@localhost/exectrack", cfg.Postgres.DSN)
	assert.Equal(t, []string{"a:2379", "b:2379"}, cfg.Etcd.Endpoints)
	assert.Equal(t, 750*time.Millisecond, cfg.LockTimeout)
	assert.False(t, cfg.Etcd.Enabled)
	assert.True(t, cfg.Postgres.Enabled)
}

func TestLoadConfigFileAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "configs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "configs", "config.yaml"), []byte(`
node_id: node-a
backend: memory
execution_store: memory
reports:
  schedule: "*/30 * * * * *"
log:
  format: text
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("EXECTRACK_LOG_LEVEL=debug\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("EXECTRACK_LOG_LEVEL") })

	cfg, err := LoadFrom(viper.New(), ".env")
	require.NoError(t, err)

	assert.Equal(t, "node-a", cfg.NodeID)
	assert.Equal(t, "*/30 * * * * *", cfg.Reports.Schedule)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad schedule", map[string]string{"EXECTRACK_REPORTS_SCHEDULE": "every tuesday"}},
		{"unknown backend", map[string]string{"EXECTRACK_BACKEND": "redis"}},
		{"postgres without dsn", map[string]string{"EXECTRACK_EXECUTION_STORE": "postgres"}},
		{"http source without url", map[string]string{"EXECTRACK_TESTCASE_SOURCE_KIND": "http"}},
		{"bad log format", map[string]string{"EXECTRACK_LOG_FORMAT": "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadFrom(viper.New(), "")
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestLoadMissingDotEnvIsIgnored(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := LoadFrom(viper.New(), "does-not-exist.env")
	require.NoError(t, err)
}
