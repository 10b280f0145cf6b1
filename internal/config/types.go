package config

// Config is the root configuration for TelScan.
type Config struct {
	DataDir string        `yaml:"dataDir,omitempty"` // base directory for db, exports, logos
	Gateway GatewayConfig `yaml:"gateway,omitempty"`
	API     APIConfig     `yaml:"api,omitempty"`
	Webhook WebhookConfig `yaml:"webhook,omitempty"`
	Jobs    JobsConfig    `yaml:"jobs,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// GatewayConfig points at the MTProto gateway daemon that holds the
// authenticated Telegram session, plus the account credentials it needs.
type GatewayConfig struct {
	Addr                 string `yaml:"addr"`            // host:port of the gateway daemon
	Token                string `yaml:"token,omitempty"` // gateway auth token, supports ${ENV_VAR}
	Phone                string `yaml:"phone,omitempty"` // account phone, e.g. +8612345678901
	APIID                int    `yaml:"apiId,omitempty"`
	APIHash              string `yaml:"apiHash,omitempty"` // supports ${ENV_VAR}
	ReadySeconds         int    `yaml:"readySeconds,omitempty"`
	SubmitTimeoutSeconds int    `yaml:"submitTimeoutSeconds,omitempty"`
}

// APIConfig controls the core-facing HTTP API consumed by the web layer.
type APIConfig struct {
	Port           int      `yaml:"port,omitempty"`
	Bind           string   `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string   `yaml:"customBindHost,omitempty"`
	Token          string   `yaml:"token,omitempty"` // bearer token, supports ${ENV_VAR}
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// WebhookConfig restricts where alert notifications may be sent.
type WebhookConfig struct {
	AllowedHosts []string `yaml:"allowedHosts,omitempty"`
}

// JobsConfig tunes the background job engine.
type JobsConfig struct {
	JoinDelayFloorSeconds   int    `yaml:"joinDelayFloorSeconds,omitempty"`
	JoinDelayDefaultSeconds int    `yaml:"joinDelayDefaultSeconds,omitempty"`
	ExportDir               string `yaml:"exportDir,omitempty"`
	LogosDir                string `yaml:"logosDir,omitempty"`
	RefreshSchedule         string `yaml:"refreshSchedule,omitempty"` // cron spec for group profile refresh
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
}
