package config

import (
	"fmt"
	"strings"
)

// Issue is a single validation problem with a config path and message.
type Issue struct {
	Path    string
	Message string
}

// Validate checks the configuration for problems that would prevent the
// monitor from starting. It returns all issues found, not just the first.
func Validate(cfg *Config) []Issue {
	var issues []Issue

	if cfg.Gateway.Addr == "" {
		issues = append(issues, Issue{"gateway.addr", "gateway address is required"})
	}
	if cfg.Gateway.Phone != "" && !strings.HasPrefix(cfg.Gateway.Phone, "+") {
		issues = append(issues, Issue{"gateway.phone", "phone number must include a country prefix, e.g. +8612345678901"})
	}
	if cfg.Gateway.APIID < 0 {
		issues = append(issues, Issue{"gateway.apiId", "apiId must not be negative"})
	}
	if strings.Contains(cfg.Gateway.APIHash, "${") {
		issues = append(issues, Issue{"gateway.apiHash", "unresolved environment reference in apiHash"})
	}

	if cfg.API.Port < 0 || cfg.API.Port > 65535 {
		issues = append(issues, Issue{"api.port", fmt.Sprintf("invalid port %d", cfg.API.Port)})
	}
	switch cfg.API.Bind {
	case "loopback", "lan", "custom":
	default:
		issues = append(issues, Issue{"api.bind", "bind must be one of loopback, lan, custom"})
	}
	if cfg.API.Bind == "custom" && cfg.API.CustomBindHost == "" {
		issues = append(issues, Issue{"api.customBindHost", "customBindHost is required when bind is custom"})
	}

	for i, host := range cfg.Webhook.AllowedHosts {
		if strings.Contains(host, "/") || strings.Contains(host, "://") {
			issues = append(issues, Issue{
				fmt.Sprintf("webhook.allowedHosts[%d]", i),
				"allowed hosts are bare host[:port] values, not URLs",
			})
		}
	}

	if cfg.Jobs.JoinDelayFloorSeconds < 1 {
		issues = append(issues, Issue{"jobs.joinDelayFloorSeconds", "join delay floor must be at least 1 second"})
	}

	return issues
}
