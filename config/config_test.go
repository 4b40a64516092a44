package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable Load reads so tests see only their own.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV", "APP_TIMEZONE", "DATABASE_URL", "DB_HOST", "DB_USER", "DB_DRIVER", "SQLITE_PATH",
		"SCHEDULER_SWEEP_CRON", "SCHEDULER_RECONCILE_INTERVAL", "ENGINE_LEADERBOARD_LIMIT",
		"OTEL_ENABLED", "OTEL_SAMPLER_RATIO",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.Equal(t, time.UTC, cfg.App.Location)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "5 0 * * *", cfg.Scheduler.SweepCron)
	assert.Equal(t, time.Hour, cfg.Scheduler.ReconcileInterval)
	assert.Equal(t, 30, cfg.Engine.HistoryDays)
	assert.Equal(t, 10, cfg.Engine.LeaderboardLimit)
	assert.Equal(t, 0.1, cfg.Observability.TracingSampleRatio)
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_TIMEZONE", "Asia/Almaty")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/progression")
	t.Setenv("SCHEDULER_RECONCILE_INTERVAL", "15m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Asia/Almaty", cfg.App.Location.String())
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.ReconcileInterval)
}

func TestLoad_EnvFileDoesNotOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	file := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(file, []byte("SQLITE_PATH=/tmp/from-file.db\nENGINE_LEADERBOARD_LIMIT=25\n"), 0o600))
	t.Setenv("ENGINE_LEADERBOARD_LIMIT", "5")
	t.Cleanup(func() { _ = os.Unsetenv("SQLITE_PATH") })

	cfg, err := Load(file)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/from-file.db", cfg.Database.SQLitePath)
	assert.Equal(t, 5, cfg.Engine.LeaderboardLimit)
}

func TestLoad_Rejections(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_TIMEZONE", "Mars/Olympus")
	_, err := Load()
	assert.Error(t, err)

	clearEnv(t)
	t.Setenv("DB_DRIVER", "oracle")
	_, err = Load()
	assert.ErrorContains(t, err, "DB_DRIVER")

	clearEnv(t)
	t.Setenv("OTEL_SAMPLER_RATIO", "3")
	_, err = Load()
	assert.ErrorContains(t, err, "OTEL_SAMPLER_RATIO")

	_, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorContains(t, err, "load env files")
}

func TestValidate_SQLiteNotAllowedInProduction(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("DB_DRIVER", "sqlite")

	_, err := Load()
	assert.ErrorContains(t, err, "production")
}
