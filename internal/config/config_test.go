package config

import (
	"os"
	"path/filepath"
	"testing"

	"wagate/internal/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every override this package reads so tests do not leak
// into each other through the process environment.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT", "API_KEY", "DB_PATH",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"WA_API_URL", "WA_API_KEY", "SESSIONS_DIR", "WA_CLIENT_IDS",
		"QUEUE_WORKERS", "MONITOR_INTERVAL_SEC", "LOG_LEVEL",
		constants.SettingSchedulerBaseDelayMs,
		constants.SettingSchedulerMaxAttempts,
	}
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("WA_API_URL", "http://localhost:4000")
	t.Setenv("DB_PATH", "/tmp/wagate.db")
	t.Setenv("REDIS_ADDR", "localhost:6379")
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "3030", cfg.Server.Port)
	assert.Equal(t, constants.DefaultSessionsDir, cfg.Sessions.Dir)
	assert.Equal(t, constants.DefaultQueueWorkers, cfg.Sessions.WorkerCount)
	assert.Equal(t, constants.DefaultSchedulerBaseDelayMs, cfg.Scheduler.BaseDelayMs)
	assert.Equal(t, constants.DefaultSchedulerMaxAttempts, cfg.Scheduler.MaxAttempts)
	assert.Equal(t, constants.DefaultMonitorIntervalSec, cfg.Monitor.IntervalSec)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("API_KEY", "secret-key")
	t.Setenv("WA_CLIENT_IDS", "alpha, beta ,, gamma")
	t.Setenv("QUEUE_WORKERS", "4")
	t.Setenv(constants.SettingSchedulerBaseDelayMs, "500")
	t.Setenv(constants.SettingSchedulerMaxAttempts, "5")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "secret-key", cfg.Server.APIKey)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, cfg.Sessions.AutoStartIDs)
	assert.Equal(t, 4, cfg.Sessions.WorkerCount)
	assert.Equal(t, 500, cfg.Scheduler.BaseDelayMs)
	assert.Equal(t, 5, cfg.Scheduler.MaxAttempts)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigFromFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"server": {"port": "9000"},
		"transport": {"api_base_url": "http://engine:4000", "api_key": "file-key"},
		"database": {"path": "/data/wagate.db"},
		"redis": {"addr": "redis:6379"},
		"scheduler": {"base_delay_ms": 2000, "max_attempts": 5}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "http://engine:4000", cfg.Transport.APIBaseURL)
	assert.Equal(t, "/data/wagate.db", cfg.Database.Path)
	assert.Equal(t, 2000, cfg.Scheduler.BaseDelayMs)
	assert.Equal(t, 5, cfg.Scheduler.MaxAttempts)
}

func TestLoadConfigEnvironmentBeatsFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"transport": {"api_base_url": "http://engine:4000"},
		"database": {"path": "/data/wagate.db"},
		"redis": {"addr": "redis:6379"},
		"server": {"port": "9000"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("PORT", "8080")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestLoadConfigMissingFile(t *testing.T) {
	clearEnv(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.Error(t, err)
}

func TestLoadConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		omit string
		want error
	}{
		{name: "missing transport URL", omit: "WA_API_URL", want: ErrMissingTransportURL},
		{name: "missing database path", omit: "DB_PATH", want: ErrMissingDBPath},
		{name: "missing redis address", omit: "REDIS_ADDR", want: ErrMissingRedisAddr},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			setRequiredEnv(t)
			require.NoError(t, os.Unsetenv(tc.omit))

			_, err := LoadConfig("")
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestLoadConfigRejectsNegativeSchedulerValues(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)
	t.Setenv(constants.SettingSchedulerBaseDelayMs, "-1")

	_, err := LoadConfig("")
	require.Error(t, err)
}

func TestSplitClientIDs(t *testing.T) {
	assert.Nil(t, splitClientIDs(""))
	assert.Equal(t, []string{"alpha"}, splitClientIDs("alpha"))
	assert.Equal(t, []string{"alpha", "beta"}, splitClientIDs(" alpha , beta "))
	assert.Nil(t, splitClientIDs(" , ,"))
}
