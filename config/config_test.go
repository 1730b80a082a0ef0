package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.BindIP != "127.0.0.1" || cfg.Port != 8080 || cfg.MaxConcurrent != 5 {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.AllowUserCommands || cfg.PolicyOverride {
		t.Error("dangerous flags must default off")
	}
	if cfg.Addr() != "127.0.0.1:8080" {
		t.Errorf("Addr = %q", cfg.Addr())
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
bind_ip: 0.0.0.0
port: 9000
bearer_token: secret
allow_user_commands: true
max_concurrent: 3
default_timeout: 30s
whitelist: "xset|luakit"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BindIP != "0.0.0.0" || cfg.Port != 9000 || cfg.BearerToken != "secret" {
		t.Errorf("loaded config = %+v", cfg)
	}
	if !cfg.AllowUserCommands || cfg.MaxConcurrent != 3 {
		t.Errorf("loaded config = %+v", cfg)
	}
	if cfg.DefaultTimeout != 30*time.Second {
		t.Errorf("default timeout = %v, want 30s", cfg.DefaultTimeout)
	}
	if cfg.Whitelist != "xset|luakit" {
		t.Errorf("whitelist = %q", cfg.Whitelist)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing file loaded")
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Errorf("config = %+v, want defaults", cfg)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("REST_IP", "0.0.0.0")
	t.Setenv("REST_PORT", "8123")
	t.Setenv("REST_BEARER_TOKEN", "tok")
	t.Setenv("ALLOW_USER_COMMANDS", "true")
	t.Setenv("MAX_CONCURRENT_COMMANDS", "10")
	t.Setenv("DEFAULT_COMMAND_TIMEOUT", "60")
	t.Setenv("COMMAND_WHITELIST", "xset")
	t.Setenv("POLICY_OVERRIDE", "true")
	t.Setenv("AUDIT_PATH", "/var/log/kioskd/audit.log")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BindIP != "0.0.0.0" || cfg.Port != 8123 || cfg.BearerToken != "tok" {
		t.Errorf("config = %+v", cfg)
	}
	if !cfg.AllowUserCommands || !cfg.PolicyOverride {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.MaxConcurrent != 10 || cfg.DefaultTimeout != 60*time.Second {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.Whitelist != "xset" || cfg.AuditPath != "/var/log/kioskd/audit.log" {
		t.Errorf("config = %+v", cfg)
	}
}

func TestEnvBadValues(t *testing.T) {
	t.Setenv("REST_PORT", "not-a-number")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "REST_PORT") {
		t.Errorf("error = %v, want REST_PORT parse failure", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad ip", func(c *Config) { c.BindIP = "not-an-ip" }},
		{"privileged port", func(c *Config) { c.Port = 80 }},
		{"port too high", func(c *Config) { c.Port = 70000 }},
		{"zero concurrency", func(c *Config) { c.MaxConcurrent = 0 }},
		{"negative timeout", func(c *Config) { c.DefaultTimeout = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("invalid config accepted")
			}
		})
	}
}
