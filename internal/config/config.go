package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Paths   PathsConfig   `yaml:"paths"`
	Session SessionConfig `yaml:"session"`
	Defense DefenseConfig `yaml:"defense"`
}

// ServerConfig holds network listener settings.
type ServerConfig struct {
	Listen     string `yaml:"listen"`
	HealthPort int    `yaml:"health_port"`
}

// PathsConfig holds filesystem paths for data and logs.
type PathsConfig struct {
	Data      string `yaml:"data"`
	Database  string `yaml:"database"`
	AuditLog  string `yaml:"audit_log"`
	SecretKey string `yaml:"secret_key"`
}

// SessionConfig holds session token lifetime settings.
type SessionConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
}

// DefenseConfig holds brute-force defense tuning.
type DefenseConfig struct {
	MaxInvalidAttempts int `yaml:"max_invalid_attempts"`
	SuspendSeconds     int `yaml:"suspend_seconds"`
	// KeyByAddress groups failed attempts by remote address instead of by
	// connection, so a reconnecting client keeps its failure history.
	KeyByAddress bool `yaml:"key_by_address"`
}

// SessionTTL returns the session lifetime as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLSeconds) * time.Second
}

// SuspendDuration returns the lockout window as a duration.
func (c *Config) SuspendDuration() time.Duration {
	return time.Duration(c.Defense.SuspendSeconds) * time.Second
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Default returns a config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:     "localhost:4444",
			HealthPort: 4445,
		},
		Paths: PathsConfig{
			Data:      "./data",
			Database:  "./data/authline.db",
			AuditLog:  "./data/audit.log",
			SecretKey: "./data/secret.key",
		},
		Session: SessionConfig{
			TTLSeconds: 10,
		},
		Defense: DefenseConfig{
			MaxInvalidAttempts: 3,
			SuspendSeconds:     15,
			KeyByAddress:       false,
		},
	}
}
