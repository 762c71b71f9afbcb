package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
database:
  hostname: db.internal
  port: 5432
  username: app
  password: secret
  user_database: appdb
  udb_mode: sqlite
executor:
  executor_id: worker-1
  application_version: "1.0.0"
  recovery_interval: 5s
admin:
  enabled: true
  port: 4001
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "dbos.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfig_DecodesFields(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "db.internal", cfg.Database.Hostname)
	require.Equal(t, "appdb", cfg.Database.UserDatabase)
	require.Equal(t, "sqlite", cfg.Database.UDBMode)
	require.Equal(t, "worker-1", cfg.Executor.ExecutorID)
	require.Equal(t, 5*time.Second, cfg.Executor.RecoveryInterval)
	require.True(t, cfg.Admin.Enabled)
	require.Equal(t, 4001, cfg.Admin.Port)
}

func TestLoadConfig_DefaultsSystemDatabaseName(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "appdb_dbos_sys", cfg.Database.SystemDatabase)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestApplyEnvOverrides_VMIDAndAppVersion(t *testing.T) {
	t.Setenv("DBOS__VMID", "env-executor")
	t.Setenv("DBOS__APPVERSION", "2.3.4")
	path := writeConfig(t, sampleConfig)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "env-executor", cfg.Executor.ExecutorID)
	require.Equal(t, "2.3.4", cfg.Executor.ApplicationVersion)
}

func TestApplyEnvOverrides_PasswordPrecedence(t *testing.T) {
	t.Setenv("PGPASSWORD", "from-pgpassword")
	path := writeConfig(t, sampleConfig)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "from-pgpassword", cfg.Database.Password)
}

func TestDefaultConfig_SeedsRunnableExecutor(t *testing.T) {
	cfg := defaultConfig()
	require.Equal(t, "local", cfg.Executor.ExecutorID)
	require.EqualValues(t, 50, cfg.Executor.MaxRecoveryAttempts)
	require.Equal(t, 3000, cfg.RuntimeConfig.Port)
}
