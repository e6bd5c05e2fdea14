package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return cfgPath
}

func TestLoad(t *testing.T) {
	content := `
server:
  timezone: "America/Argentina/Buenos_Aires"

api:
  listen_addr: ":9080"
  api_key: "test-api-key"

webhooks:
  kapso_secret: "kapso-secret"
  retell_secret: "retell-secret"

kapso:
  api_key: "kapso-key"
  phone_number_id: "pn-1"
  timeout: 3s
  requests_per_second: 5

dispatch:
  batch_size: 20
  batch_delay: 500ms
  dry_run: true

storage:
  path: "/tmp/test.db"

logging:
  level: "debug"
  format: "text"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.ListenAddr != ":9080" {
		t.Errorf("API.ListenAddr = %v, want :9080", cfg.API.ListenAddr)
	}
	if cfg.Kapso.PhoneNumberID != "pn-1" {
		t.Errorf("Kapso.PhoneNumberID = %v, want pn-1", cfg.Kapso.PhoneNumberID)
	}
	if cfg.Kapso.Timeout != 3*time.Second {
		t.Errorf("Kapso.Timeout = %v, want 3s", cfg.Kapso.Timeout)
	}
	if cfg.Kapso.Burst != 10 {
		t.Errorf("Kapso.Burst = %v, want 10", cfg.Kapso.Burst)
	}
	if cfg.Dispatch.BatchSize != 20 {
		t.Errorf("Dispatch.BatchSize = %v, want 20", cfg.Dispatch.BatchSize)
	}
	if cfg.Dispatch.BatchDelay != 500*time.Millisecond {
		t.Errorf("Dispatch.BatchDelay = %v, want 500ms", cfg.Dispatch.BatchDelay)
	}
	if !cfg.Dispatch.DryRun {
		t.Error("Dispatch.DryRun = false, want true")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %v, want debug", cfg.Logging.Level)
	}
}

func TestDefaults(t *testing.T) {
	content := `
webhooks:
  kapso_secret: "a"
  retell_secret: "b"
kapso:
  api_key: "k"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Timezone != DefaultTimezone {
		t.Errorf("Server.Timezone = %v, want %v", cfg.Server.Timezone, DefaultTimezone)
	}
	if cfg.Schedule.Timezone != DefaultTimezone {
		t.Errorf("Schedule.Timezone = %v, want %v", cfg.Schedule.Timezone, DefaultTimezone)
	}
	if cfg.Kapso.BaseURL != "https://api.kapso.ai" {
		t.Errorf("Kapso.BaseURL = %v", cfg.Kapso.BaseURL)
	}
	if cfg.Kapso.Timeout != 5*time.Second {
		t.Errorf("Kapso.Timeout = %v, want 5s", cfg.Kapso.Timeout)
	}
	if cfg.Dispatch.BatchSize != 10 {
		t.Errorf("Dispatch.BatchSize = %v, want 10", cfg.Dispatch.BatchSize)
	}
	if cfg.Dispatch.BatchDelay != time.Second {
		t.Errorf("Dispatch.BatchDelay = %v, want 1s", cfg.Dispatch.BatchDelay)
	}
	if cfg.Dispatch.MaxErrorsInReport != 10 {
		t.Errorf("Dispatch.MaxErrorsInReport = %v, want 10", cfg.Dispatch.MaxErrorsInReport)
	}
	if cfg.Schedule.ContactSpec != "0 9 * * *" {
		t.Errorf("Schedule.ContactSpec = %v", cfg.Schedule.ContactSpec)
	}
	if cfg.Schedule.CutSpec != "0 20 * * *" {
		t.Errorf("Schedule.CutSpec = %v", cfg.Schedule.CutSpec)
	}
	if cfg.Storage.IdempotencyBackend != "bolt" {
		t.Errorf("Storage.IdempotencyBackend = %v, want bolt", cfg.Storage.IdempotencyBackend)
	}
	if cfg.Cut.Sink != "local" {
		t.Errorf("Cut.Sink = %v, want local", cfg.Cut.Sink)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %v, want json", cfg.Logging.Format)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KAPSO_API_KEY", "from-env")
	t.Setenv("KAPSO_WEBHOOK_SECRET", "env-secret")

	content := `
webhooks:
  kapso_secret: "file-secret"
  retell_secret: "b"
kapso:
  api_key: "from-file"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Kapso.APIKey != "from-env" {
		t.Errorf("Kapso.APIKey = %v, want from-env", cfg.Kapso.APIKey)
	}
	if cfg.Webhooks.KapsoSecret != "env-secret" {
		t.Errorf("Webhooks.KapsoSecret = %v, want env-secret", cfg.Webhooks.KapsoSecret)
	}
	if cfg.Webhooks.RetellSecret != "b" {
		t.Errorf("Webhooks.RetellSecret = %v, want b", cfg.Webhooks.RetellSecret)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := &Config{
			Webhooks: WebhookConfig{KapsoSecret: "a", RetellSecret: "b"},
			Kapso:    KapsoConfig{APIKey: "k"},
		}
		c.setDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing kapso secret", func(c *Config) { c.Webhooks.KapsoSecret = "" }, "webhooks.kapso_secret"},
		{"missing retell secret", func(c *Config) { c.Webhooks.RetellSecret = "" }, "webhooks.retell_secret"},
		{"missing api key", func(c *Config) { c.Kapso.APIKey = "" }, "kapso.api_key"},
		{"missing api key in dry run", func(c *Config) { c.Kapso.APIKey = ""; c.Dispatch.DryRun = true }, ""},
		{"bad batch size", func(c *Config) { c.Dispatch.BatchSize = -1 }, "dispatch.batch_size"},
		{"bad timezone", func(c *Config) { c.Server.Timezone = "Mars/Olympus" }, "server.timezone"},
		{"bad cron", func(c *Config) { c.Schedule.CutSpec = "every day" }, "schedule.cut_spec"},
		{"bad backend", func(c *Config) { c.Storage.IdempotencyBackend = "memcached" }, "idempotency_backend"},
		{"s3 without bucket", func(c *Config) { c.Cut.Sink = "s3" }, "cut.s3.bucket"},
		{"bad sink", func(c *Config) { c.Cut.Sink = "ftp" }, "cut.sink"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file")
	}
}
