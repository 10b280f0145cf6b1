// Package config loads and validates the TelScan configuration file.
package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so tokens and hashes can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Gateway.Token = expandEnvVars(cfg.Gateway.Token)
	cfg.Gateway.APIHash = expandEnvVars(cfg.Gateway.APIHash)
	cfg.API.Token = expandEnvVars(cfg.API.Token)
}

// Load reads the config file, applies defaults and environment overrides,
// and returns a merged Config. A missing file produces defaults only.
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyDefaults(&cfg)
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// ConfigError describes a malformed configuration file.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.Gateway.Addr == "" {
		cfg.Gateway.Addr = "127.0.0.1:8081"
	}
	if cfg.Gateway.ReadySeconds == 0 {
		cfg.Gateway.ReadySeconds = 60
	}
	if cfg.Gateway.SubmitTimeoutSeconds == 0 {
		cfg.Gateway.SubmitTimeoutSeconds = 45
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = 8033
	}
	if cfg.API.Bind == "" {
		cfg.API.Bind = "loopback"
	}
	if len(cfg.Webhook.AllowedHosts) == 0 {
		cfg.Webhook.AllowedHosts = []string{"oapi.dingtalk.com"}
	}
	if cfg.Jobs.JoinDelayFloorSeconds == 0 {
		cfg.Jobs.JoinDelayFloorSeconds = 20
	}
	if cfg.Jobs.JoinDelayDefaultSeconds == 0 {
		cfg.Jobs.JoinDelayDefaultSeconds = 60
	}
	if cfg.Jobs.ExportDir == "" {
		cfg.Jobs.ExportDir = filepath.Join(cfg.DataDir, "exports")
	}
	if cfg.Jobs.LogosDir == "" {
		cfg.Jobs.LogosDir = filepath.Join(cfg.DataDir, "logos")
	}
	if cfg.Jobs.RefreshSchedule == "" {
		cfg.Jobs.RefreshSchedule = "@hourly"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// DBPath returns the SQLite database location under the data directory.
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, "telscan.db")
}

// applyEnvOverrides reads TELSCAN_* environment variables and overrides
// config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TELSCAN_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("TELSCAN_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Token = v
	}
	if v := os.Getenv("TELSCAN_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("TELSCAN_API_TOKEN"); v != "" {
		cfg.API.Token = v
	}
	if v := os.Getenv("TELSCAN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("TELSCAN_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
}
