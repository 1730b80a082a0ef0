// Package config provides configuration management for kioskd.
//
// Configuration comes from an optional YAML file overlaid by environment
// variables (the add-on supervisor sets the latter). Invalid configuration
// fails startup; nothing is silently corrected except documented defaults.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration for kioskd.
type Config struct {
	// BindIP is the listen address. Defaults to loopback; exposing the
	// gateway beyond localhost requires a bearer token or a policy reason.
	BindIP string `yaml:"bind_ip"`

	// Port is the listen port, 1024-65535.
	Port int `yaml:"port"`

	// BearerToken, when non-empty, is required on every request.
	BearerToken string `yaml:"bearer_token"`

	// AllowUserCommands enables the protected run_command/run_commands
	// operations.
	AllowUserCommands bool `yaml:"allow_user_commands"`

	// MaxConcurrent is the command concurrency budget N.
	MaxConcurrent int `yaml:"max_concurrent"`

	// DefaultTimeout applies to commands that carry no explicit timeout.
	// Zero means unbounded.
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// PolicyPath points at the policy YAML. Empty means the built-in
	// defaults (directory restriction only).
	PolicyPath string `yaml:"policy_path"`

	// Whitelist overrides the policy file's whitelist pattern.
	Whitelist string `yaml:"whitelist"`

	// PolicyOverride disables all command authorization checks.
	PolicyOverride bool `yaml:"policy_override"`

	// AuditPath is the audit log location. Empty disables audit logging.
	AuditPath string `yaml:"audit_path"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		BindIP:         "127.0.0.1",
		Port:           8080,
		MaxConcurrent:  5,
		DefaultTimeout: 0,
	}
}

// Load builds the configuration from an optional YAML file and environment
// overrides, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays the environment variables set by the supervisor.
func (c *Config) applyEnv() error {
	if v := os.Getenv("REST_IP"); v != "" {
		c.BindIP = v
	}
	if v := os.Getenv("REST_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REST_PORT: %w", err)
		}
		c.Port = port
	}
	if v := os.Getenv("REST_BEARER_TOKEN"); v != "" {
		c.BearerToken = v
	}
	if v := os.Getenv("ALLOW_USER_COMMANDS"); v != "" {
		c.AllowUserCommands = parseBool(v)
	}
	if v := os.Getenv("MAX_CONCURRENT_COMMANDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_CONCURRENT_COMMANDS: %w", err)
		}
		c.MaxConcurrent = n
	}
	if v := os.Getenv("DEFAULT_COMMAND_TIMEOUT"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DEFAULT_COMMAND_TIMEOUT: %w", err)
		}
		c.DefaultTimeout = time.Duration(secs) * time.Second
	}
	if v := os.Getenv("POLICY_PATH"); v != "" {
		c.PolicyPath = v
	}
	if v := os.Getenv("COMMAND_WHITELIST"); v != "" {
		c.Whitelist = v
	}
	if v := os.Getenv("POLICY_OVERRIDE"); v != "" {
		c.PolicyOverride = parseBool(v)
	}
	if v := os.Getenv("AUDIT_PATH"); v != "" {
		c.AuditPath = v
	}
	return nil
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false
	}
	return b
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if net.ParseIP(c.BindIP) == nil {
		return fmt.Errorf("bind IP %q is not a valid IP address", c.BindIP)
	}
	if c.Port < 1024 || c.Port > 65535 {
		return fmt.Errorf("port must be 1024-65535, got %d", c.Port)
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max concurrent must be positive, got %d", c.MaxConcurrent)
	}
	if c.DefaultTimeout < 0 {
		return fmt.Errorf("default timeout must not be negative")
	}
	return nil
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.BindIP, strconv.Itoa(c.Port))
}
