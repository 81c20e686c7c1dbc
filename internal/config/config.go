package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"wagate/internal/constants"
	"wagate/internal/models"
)

var (
	ErrMissingTransportURL = models.ConfigError{Message: "missing engine API base URL"}
	ErrMissingDBPath       = models.ConfigError{Message: "missing database path"}
	ErrMissingRedisAddr    = models.ConfigError{Message: "missing redis address"}
)

// LoadConfig builds the runtime configuration. The JSON file at path seeds
// the config; environment variables override it and defaults fill the rest.
// An empty path skips the file and runs on environment plus defaults alone.
func LoadConfig(path string) (*models.Config, error) {
	var config models.Config

	if path != "" {
		file, err := os.ReadFile(path) // #nosec G304 - operator-supplied config path
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(file, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvironmentOverrides(&config)
	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func validate(c *models.Config) error {
	if c.Transport.APIBaseURL == "" {
		return ErrMissingTransportURL
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if c.Redis.Addr == "" {
		return ErrMissingRedisAddr
	}
	if c.Scheduler.BaseDelayMs < 0 {
		return models.ConfigError{Message: "scheduler base delay must not be negative"}
	}
	if c.Scheduler.MaxAttempts < 0 {
		return models.ConfigError{Message: "scheduler max attempts must not be negative"}
	}
	return nil
}

func applyDefaults(c *models.Config) {
	if c.Server.Port == "" {
		c.Server.Port = strconv.Itoa(constants.DefaultServerPort)
	}
	if c.Transport.TimeoutSec <= 0 {
		c.Transport.TimeoutSec = constants.DefaultHTTPTimeoutSec
	}
	if c.Transport.LaunchTimeoutSec <= 0 {
		c.Transport.LaunchTimeoutSec = constants.DefaultTransportLaunchSec
	}
	if c.Sessions.Dir == "" {
		c.Sessions.Dir = constants.DefaultSessionsDir
	}
	if c.Sessions.WorkerCount <= 0 {
		c.Sessions.WorkerCount = constants.DefaultQueueWorkers
	}
	if c.Scheduler.BaseDelayMs == 0 {
		c.Scheduler.BaseDelayMs = constants.DefaultSchedulerBaseDelayMs
	}
	if c.Scheduler.MaxAttempts == 0 {
		c.Scheduler.MaxAttempts = constants.DefaultSchedulerMaxAttempts
	}
	if c.Monitor.IntervalSec <= 0 {
		c.Monitor.IntervalSec = constants.DefaultMonitorIntervalSec
	}
	if c.Monitor.StartupDelaySec <= 0 {
		c.Monitor.StartupDelaySec = constants.DefaultMonitorStartupDelaySec
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func applyEnvironmentOverrides(c *models.Config) {
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Port = port
	}
	if key := os.Getenv("API_KEY"); key != "" {
		c.Server.APIKey = key
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		c.Redis.Password = password
	}
	if db := os.Getenv("REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			c.Redis.DB = n
		}
	}
	if url := os.Getenv("WA_API_URL"); url != "" {
		c.Transport.APIBaseURL = url
	}
	if key := os.Getenv("WA_API_KEY"); key != "" {
		c.Transport.APIKey = key
	}
	if dir := os.Getenv("SESSIONS_DIR"); dir != "" {
		c.Sessions.Dir = dir
	}
	if ids := os.Getenv("WA_CLIENT_IDS"); ids != "" {
		c.Sessions.AutoStartIDs = splitClientIDs(ids)
	}
	if workers := os.Getenv("QUEUE_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil && n > 0 {
			c.Sessions.WorkerCount = n
		}
	}
	if ms := os.Getenv(constants.SettingSchedulerBaseDelayMs); ms != "" {
		if n, err := strconv.Atoi(ms); err == nil {
			c.Scheduler.BaseDelayMs = n
		}
	}
	if attempts := os.Getenv(constants.SettingSchedulerMaxAttempts); attempts != "" {
		if n, err := strconv.Atoi(attempts); err == nil {
			c.Scheduler.MaxAttempts = n
		}
	}
	if sec := os.Getenv("MONITOR_INTERVAL_SEC"); sec != "" {
		if n, err := strconv.Atoi(sec); err == nil && n > 0 {
			c.Monitor.IntervalSec = n
		}
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
}

func splitClientIDs(raw string) []string {
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
