package models

// Config holds the application configuration.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	Transport TransportConfig `json:"transport"`
	Sessions  SessionsConfig  `json:"sessions"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Monitor   MonitorConfig   `json:"monitor"`
	Tracing   TracingConfig   `json:"tracing"`
	LogLevel  string          `json:"log_level"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port   string `json:"port"`
	APIKey string `json:"api_key"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// RedisConfig holds delivery-queue Redis settings.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// TransportConfig holds settings for the chat-engine HTTP API.
type TransportConfig struct {
	APIBaseURL       string `json:"api_base_url"`
	APIKey           string `json:"api_key"`
	TimeoutSec       int    `json:"timeout_sec"`
	LaunchTimeoutSec int    `json:"launch_timeout_sec"`
}

// SessionsConfig holds on-disk session artifact settings.
type SessionsConfig struct {
	Dir          string   `json:"dir"`
	AutoStartIDs []string `json:"auto_start_ids"`
	WorkerCount  int      `json:"worker_count"`
}

// SchedulerConfig holds retry scheduling defaults. Values stored in the
// settings table take precedence over these at attempt time.
type SchedulerConfig struct {
	BaseDelayMs int `json:"base_delay_ms"`
	MaxAttempts int `json:"max_attempts"`
}

// MonitorConfig holds connection monitor settings.
type MonitorConfig struct {
	IntervalSec     int `json:"interval_sec"`
	StartupDelaySec int `json:"startup_delay_sec"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	Enabled        bool    `json:"enabled"`
	UseStdout      bool    `json:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
