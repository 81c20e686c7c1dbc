package constants

// Default retry scheduling values. Stored settings and environment variables
// take precedence at attempt time; these are the last fallback.
const (
	DefaultSchedulerBaseDelayMs = 1000
	DefaultSchedulerMaxAttempts = 3
)

// Settings keys for runtime-tunable values
const (
	SettingSchedulerBaseDelayMs = "SCHEDULER_BASE_DELAY_MS"
	SettingSchedulerMaxAttempts = "SCHEDULER_MAX_ATTEMPTS"
	SettingAPIKey               = "API_KEY"
)

// Automation webhook settings keys and wire constants. Per-client keys are
// the prefix plus the client ID; the unsuffixed keys are the global
// fallback.
const (
	SettingAutomationWebhook       = "AUTO_WEBHOOK"
	SettingAutomationSecret        = "AUTO_SECRET"
	SettingAutomationWebhookPrefix = "AUTO_WEBHOOK_"
	SettingAutomationSecretPrefix  = "AUTO_SECRET_"
	AutomationSecretHeader         = "x-automation-secret"
	AutomationInboundEvent         = "wa.inbound"
)

// Connection monitor defaults
const (
	DefaultMonitorIntervalSec     = 30
	DefaultMonitorStartupDelaySec = 5
	DefaultFatalExitFlushDelayMs  = 500
)

// Default timeout values
const (
	DefaultHTTPTimeoutSec          = 30
	DefaultTransportLaunchSec      = 60
	DefaultDatabaseRetryAttempts   = 3
	DefaultDatabaseBackoffMs       = 500
	DefaultDatabaseMaxBackoffMs    = 5000
	DefaultGracefulShutdownSec     = 30
	DefaultServerReadTimeoutSec    = 15
	DefaultServerWriteTimeoutSec   = 15
	DefaultServerIdleTimeoutSec    = 60
	DefaultWebhookTimeoutSec       = 10
	DefaultWebhookRetryAttempts    = 2
	DefaultWebhookRetryDelayMs     = 250
	DefaultQRStreamPingIntervalSec = 30
)

// Delivery queue defaults
const (
	DefaultQueueWorkers = 1
	DefaultServerPort   = 3030
	DeliveryQueueName   = "wagate:deliveries"
)

// DefaultSessionsDir is where session artifact directories live unless
// overridden by configuration.
const DefaultSessionsDir = ".wa_sessions"

// Input validation bounds
const (
	MaxClientIDLength    = 64
	MinPhoneNumberLength = 7
	MaxPhoneNumberLength = 20
	MaxGroupIDLength     = 32
	MaxMessageLength     = 65536
)

// EncryptionSalt is the PBKDF2 salt for the optional at-rest column encryption.
const EncryptionSalt = "wagate-column-encryption-v1"

const ServerErrorChannelSize = 1
