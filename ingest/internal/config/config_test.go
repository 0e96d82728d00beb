package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_WithDefaults(t *testing.T) {
	// Load config without a config file (use defaults)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8787 {
		t.Errorf("Server.Port = %d, want 8787", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 30s", cfg.Server.ReadTimeout)
	}
	if cfg.Ingestion.MaxEventSize != 1048576 {
		t.Errorf("Ingestion.MaxEventSize = %d, want 1048576", cfg.Ingestion.MaxEventSize)
	}
	if !cfg.Validation.RejectUnknownFields {
		t.Error("Validation.RejectUnknownFields should be true by default")
	}
	if cfg.Store.Backend != "file" {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, "file")
	}
	if cfg.Store.Timeout != 30*time.Second {
		t.Errorf("Store.Timeout = %v, want 30s", cfg.Store.Timeout)
	}
	if cfg.Store.RetryAttempts != 1 {
		t.Errorf("Store.RetryAttempts = %d, want 1", cfg.Store.RetryAttempts)
	}
	if cfg.Store.RetryBackoff != 100*time.Millisecond {
		t.Errorf("Store.RetryBackoff = %v, want 100ms", cfg.Store.RetryBackoff)
	}
	if cfg.Auth.Mode != "none" {
		t.Errorf("Auth.Mode = %q, want %q", cfg.Auth.Mode, "none")
	}
	if cfg.DLQ.Enabled {
		t.Error("DLQ.Enabled should be false by default")
	}
	if cfg.RateLimit.Enabled {
		t.Error("RateLimit.Enabled should be false by default")
	}
	if cfg.RateLimit.Limit != 1000 || cfg.RateLimit.Window != time.Minute {
		t.Errorf("RateLimit = %+v, want 1000 per 1m", cfg.RateLimit)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want info/json", cfg.Logging)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingest.yaml")
	content := `
server:
  port: 9000
store:
  backend: redis
  redis_url: redis://cache:6379/1
  retry_attempts: 3
  retry_backoff: 250ms
auth:
  mode: hmac
  secret: s3cret
validation:
  reject_unknown_fields: false
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Store.Backend != "redis" || cfg.Store.RedisURL != "redis://cache:6379/1" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Store.RetryAttempts != 3 || cfg.Store.RetryBackoff != 250*time.Millisecond {
		t.Errorf("Store retry = %d/%v, want 3/250ms", cfg.Store.RetryAttempts, cfg.Store.RetryBackoff)
	}
	if cfg.Auth.Mode != "hmac" || cfg.Auth.Secret != "s3cret" {
		t.Errorf("Auth = %+v", cfg.Auth)
	}
	if cfg.Validation.RejectUnknownFields {
		t.Error("Validation.RejectUnknownFields should be false")
	}
	// untouched keys keep their defaults
	if cfg.Store.Timeout != 30*time.Second {
		t.Errorf("Store.Timeout = %v, want 30s", cfg.Store.Timeout)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("LENSAI_INGEST_STORE_BACKEND", "bbolt")
	t.Setenv("LENSAI_INGEST_STORE_PATH", "/var/lib/lensai/events.db")
	t.Setenv("LENSAI_INGEST_SERVER_PORT", "8080")
	t.Setenv("LENSAI_INGEST_DLQ_ENABLED", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Store.Backend != "bbolt" {
		t.Errorf("Store.Backend = %q, want bbolt", cfg.Store.Backend)
	}
	if cfg.Store.Path != "/var/lib/lensai/events.db" {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if !cfg.DLQ.Enabled {
		t.Error("DLQ.Enabled should be true")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "s3" }, "unknown store.backend"},
		{"file without path", func(c *Config) { c.Store.Path = " " }, "store.path is required"},
		{"redis without url", func(c *Config) { c.Store.Backend = "redis"; c.Store.RedisURL = "" }, "store.redis_url"},
		{"zero retries", func(c *Config) { c.Store.RetryAttempts = 0 }, "retry_attempts"},
		{"hmac without secret", func(c *Config) { c.Auth.Mode = "hmac" }, "auth.secret is required"},
		{"jwt without secret", func(c *Config) { c.Auth.Mode = "jwt" }, "auth.secret is required"},
		{"unknown auth mode", func(c *Config) { c.Auth.Mode = "oauth" }, "unknown auth.mode"},
		{"dlq without url", func(c *Config) { c.DLQ.Enabled = true; c.DLQ.NATSURL = "" }, "dlq.nats_url"},
		{"ratelimit without url", func(c *Config) { c.RateLimit.Enabled = true; c.RateLimit.RedisURL = "" }, "ratelimit.redis_url"},
		{"ratelimit zero limit", func(c *Config) { c.RateLimit.Enabled = true; c.RateLimit.Limit = 0 }, "ratelimit.limit"},
		{"ratelimit zero window", func(c *Config) { c.RateLimit.Enabled = true; c.RateLimit.Window = 0 }, "ratelimit.window"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"zero body limit", func(c *Config) { c.Ingestion.MaxEventSize = 0 }, "max_event_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}

	t.Run("memory backend", func(t *testing.T) {
		cfg := base()
		cfg.Store.Backend = "memory"
		cfg.Store.Path = ""
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() = %v", err)
		}
	})
}
