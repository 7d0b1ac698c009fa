package config

import (
	"os"
	"strconv"
	"strings"
)

// EnvVarMapping defines the mapping between environment variables and config paths.
var EnvVarMapping = map[string]string{
	"FLOWD_HOST":             "server.host",
	"FLOWD_PORT":             "server.port",
	"FLOWD_ALLOWED_ORIGINS":  "server.allowed_origins",
	"FLOWD_DB_DRIVER":        "database.driver",
	"FLOWD_DB_PATH":          "database.path",
	"FLOWD_DB_DSN":           "database.dsn",
	"FLOWD_ENGINE_ENDPOINT":  "engine.endpoint",
	"FLOWD_ENGINE_API_KEY":   "engine.api_key",
	"FLOWD_ENGINE_TIMEOUT":   "engine.timeout_seconds",
	"FLOWD_COPILOT_ENDPOINT": "copilot.endpoint",
	"FLOWD_COPILOT_API_KEY":  "copilot.api_key",
	"FLOWD_COPILOT_MODEL":    "copilot.model",
	"FLOWD_NATS_URL":         "events.nats_url",
}

// ApplyEnvVars applies environment variable overrides to a Config.
// Returns a list of paths that were overridden.
func ApplyEnvVars(cfg *Config) []string {
	var overridden []string

	for envVar, configPath := range EnvVarMapping {
		value := os.Getenv(envVar)
		if value == "" {
			continue
		}

		if applyEnvVar(cfg, configPath, value) {
			overridden = append(overridden, configPath)
		}
	}

	return overridden
}

// applyEnvVar applies a single environment variable to the config.
// Returns true if the value was applied.
func applyEnvVar(cfg *Config, path string, value string) bool {
	switch path {
	case "server.host":
		cfg.Server.Host = value
	case "server.port":
		if v, err := strconv.Atoi(value); err == nil {
			cfg.Server.Port = v
		}
	case "server.allowed_origins":
		cfg.Server.AllowedOrigins = splitList(value)
	case "database.driver":
		cfg.Database.Driver = value
	case "database.path":
		cfg.Database.Path = value
	case "database.dsn":
		cfg.Database.DSN = value
	case "engine.endpoint":
		cfg.Engine.Endpoint = value
	case "engine.api_key":
		cfg.Engine.APIKey = value
	case "engine.timeout_seconds":
		if v, err := strconv.Atoi(value); err == nil {
			cfg.Engine.TimeoutSeconds = v
		}
	case "copilot.endpoint":
		cfg.Copilot.Endpoint = value
	case "copilot.api_key":
		cfg.Copilot.APIKey = value
	case "copilot.model":
		cfg.Copilot.Model = value
	case "events.nats_url":
		cfg.Events.NATSURL = value
	default:
		return false
	}
	return true
}

// splitList parses a comma-separated list, trimming whitespace.
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
