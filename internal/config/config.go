package config

import "time"

// ServiceConfig holds configuration for the tracker service.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	APIKey            string        // bearer key for the local API; empty disables auth
	ShutdownDrainWait time.Duration // time for the front-end to notice readiness flip (0 to skip)

	// Remote platform
	PlatformURL      string
	PlatformUsername string
	PlatformPassword string        // read from PLATFORM_PASSWORD_FILE
	HTTPTimeout      time.Duration // per-request timeout for platform calls
	TokenLifetime    time.Duration // assumed bearer token lifetime
	TokenBuffer      time.Duration // re-login this long before expiry

	// Polling
	PollInterval         time.Duration
	PollFailureThreshold int           // consecutive failures before warning + backoff
	PollMaxBackoff       time.Duration // cap for per-job poll backoff

	// Results
	LayersDir   string // where imported layers are spooled for the host GIS
	HistoryPath string // SQLite job history database

	// Front-end notifications
	CallbackURL string // GUI listener for lifecycle events; empty disables
	SigningKey  string // HMAC key for event payloads, read from EVENT_SIGNING_KEY_FILE

	// Pipelines
	PipelinesFile string
}

// LoadServiceConfig loads service configuration from environment variables.
func LoadServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Port:              GetEnv("PORT", "8750"),
		MetricsPort:       GetEnv("METRICS_PORT", "9090"),
		APIKey:            GetSecretFile(GetEnv("API_KEY_FILE", "")),
		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 2*time.Second),

		PlatformURL:      GetEnv("PLATFORM_URL", "http://localhost:8000"),
		PlatformUsername: GetEnv("PLATFORM_USERNAME", ""),
		PlatformPassword: GetSecretFile(GetEnv("PLATFORM_PASSWORD_FILE", "")),
		HTTPTimeout:      GetDurationEnv("PLATFORM_HTTP_TIMEOUT", 30*time.Second),
		TokenLifetime:    GetDurationEnv("TOKEN_LIFETIME", 100*time.Hour),
		TokenBuffer:      GetDurationEnv("TOKEN_EXPIRY_BUFFER", 5*time.Minute),

		PollInterval:         GetDurationEnv("POLL_INTERVAL", 15*time.Second),
		PollFailureThreshold: GetIntEnv("POLL_FAILURE_THRESHOLD", 3),
		PollMaxBackoff:       GetDurationEnv("POLL_MAX_BACKOFF", 5*time.Minute),

		LayersDir:   GetEnv("LAYERS_DIR", "layers"),
		HistoryPath: GetEnv("HISTORY_DB", "eotracker.db"),

		CallbackURL: GetEnv("CALLBACK_URL", ""),
		SigningKey:  GetSecretFile(GetEnv("EVENT_SIGNING_KEY_FILE", "")),

		PipelinesFile: GetEnv("PIPELINES_FILE", "pipelines.yml"),
	}
}
