// Package config provides configuration management for flowd.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = "flowd.yaml"
	// ConfigDir is the flowd configuration directory.
	ConfigDir = ".flowd"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind (default: all interfaces)
	Host string `yaml:"host"`
	// Port to listen on (default: 8080)
	Port int `yaml:"port"`
	// AllowedOrigins for CORS and WebSocket upgrades ("*" by default)
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// DatabaseConfig selects the storage dialect and location.
type DatabaseConfig struct {
	// Driver: "sqlite" (default) or "postgres"
	Driver string `yaml:"driver"`
	// Path of the SQLite file (sqlite only)
	Path string `yaml:"path,omitempty"`
	// DSN for PostgreSQL (postgres only)
	DSN string `yaml:"dsn,omitempty"`
}

// EngineConfig points at the external execution engine.
type EngineConfig struct {
	// Endpoint base URL of the agent service
	Endpoint string `yaml:"endpoint"`
	// APIKey sent as X-API-Key to the engine
	APIKey string `yaml:"api_key,omitempty"`
	// TimeoutSeconds for starting a run (streaming has no deadline)
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// CopilotConfig points at the copilot LLM backend.
type CopilotConfig struct {
	// Endpoint base URL of the copilot service
	Endpoint string `yaml:"endpoint"`
	// APIKey for the copilot service
	APIKey string `yaml:"api_key,omitempty"`
	// Model requested for chat completions
	Model string `yaml:"model,omitempty"`
}

// EventsConfig selects the event distribution backend.
type EventsConfig struct {
	// NATSURL enables cluster-wide event fan-out when set; empty keeps
	// events in-process.
	NATSURL string `yaml:"nats_url,omitempty"`
}

// Config represents the flowd configuration.
type Config struct {
	// Version is the config file version.
	Version int `yaml:"version"`

	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Copilot  CopilotConfig  `yaml:"copilot"`
	Events   EventsConfig   `yaml:"events"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   filepath.Join(ConfigDir, "flowd.db"),
		},
		Engine: EngineConfig{
			Endpoint:       "http://localhost:8090",
			TimeoutSeconds: 30,
		},
		Copilot: CopilotConfig{
			Endpoint: "http://localhost:8091",
			Model:    "claude-sonnet-4",
		},
	}
}

// Load reads configuration from ./.flowd/flowd.yaml, applying env overrides.
// Missing file falls back to defaults (env overrides still apply).
func Load() (*Config, error) {
	return LoadFrom(filepath.Join(ConfigDir, ConfigFileName))
}

// LoadFrom reads configuration from an explicit path.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	ApplyEnvVars(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the given path, creating the directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks the configuration for internally inconsistent values.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	switch c.Database.Driver {
	case "", "sqlite", "sqlite3":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "postgres", "postgresql", "pg":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("invalid database.driver: %s", c.Database.Driver)
	}
	if c.Engine.Endpoint == "" {
		return fmt.Errorf("engine.endpoint is required")
	}
	return nil
}

// Addr returns the server listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
