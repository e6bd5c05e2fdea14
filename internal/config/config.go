package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// DefaultTimezone is used for campaigns and schedules that do not set one
const DefaultTimezone = "America/Argentina/Buenos_Aires"

// Config is the main configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	API      APIConfig      `yaml:"api"`
	Webhooks WebhookConfig  `yaml:"webhooks"`
	Kapso    KapsoConfig    `yaml:"kapso"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Cut      CutConfig      `yaml:"cut"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains process-wide settings
type ServerConfig struct {
	Timezone string `yaml:"timezone"` // Default campaign timezone
}

// APIConfig contains admin HTTP API settings
type APIConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	APIKey       string        `yaml:"api_key"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 5m, dispatch runs are synchronous
	IdleTimeout  time.Duration `yaml:"idle_timeout"`  // default: 60s
	CORSOrigins  []string      `yaml:"cors_origins"`  // default: ["*"]
}

// WebhookConfig contains signing secrets for inbound callbacks
type WebhookConfig struct {
	KapsoSecret  string `yaml:"kapso_secret"`
	RetellSecret string `yaml:"retell_secret"`
}

// KapsoConfig contains outbound workflow API settings
type KapsoConfig struct {
	BaseURL            string        `yaml:"base_url"`
	APIKey             string        `yaml:"api_key"`
	PhoneNumberID      string        `yaml:"phone_number_id"`
	Timeout            time.Duration `yaml:"timeout"`
	RequestsPerSecond  float64       `yaml:"requests_per_second"` // 0 = unlimited
	Burst              int           `yaml:"burst"`
	FollowUpWorkflowID string        `yaml:"follow_up_workflow_id"` // fired after a call confirms
}

// DispatchConfig contains batching settings
type DispatchConfig struct {
	BatchSize         int           `yaml:"batch_size"`
	BatchDelay        time.Duration `yaml:"batch_delay"`
	DryRun            bool          `yaml:"dry_run"`
	MaxErrorsInReport int           `yaml:"max_errors_in_report"`
}

// ScheduleConfig contains cron settings
type ScheduleConfig struct {
	Enabled       bool          `yaml:"enabled"`
	ContactSpec   string        `yaml:"contact_spec"` // reminders, then scheduled dispatch
	CutSpec       string        `yaml:"cut_spec"`
	Timezone      string        `yaml:"timezone"`
	StatsInterval time.Duration `yaml:"stats_interval"` // metrics collector refresh
}

// StorageConfig contains datastore settings
type StorageConfig struct {
	Path               string        `yaml:"path"`
	IdempotencyBackend string        `yaml:"idempotency_backend"` // bolt, redis
	BoltPath           string        `yaml:"bolt_path"`
	IdempotencyTTL     time.Duration `yaml:"idempotency_ttl"`
}

// RedisConfig contains redis connection settings
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// CutConfig contains daily cut artifact settings
type CutConfig struct {
	Sink     string   `yaml:"sink"` // local, s3
	LocalDir string   `yaml:"local_dir"`
	S3       S3Config `yaml:"s3"`
}

// S3Config contains bucket settings for the s3 sink
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	Endpoint        string `yaml:"endpoint"` // optional, for S3-compatible stores
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled    bool     `yaml:"enabled"`
	ListenAddr string   `yaml:"listen_addr"` // Default: :9090
	Path       string   `yaml:"path"`        // Default: /metrics
	AllowedIPs []string `yaml:"allowed_ips"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// secrets are read from the environment and override the file
type secrets struct {
	KapsoAPIKey        string `env:"KAPSO_API_KEY"`
	KapsoPhoneNumberID string `env:"KAPSO_PHONE_NUMBER_ID"`
	KapsoWebhookSecret string `env:"KAPSO_WEBHOOK_SECRET"`
	RetellAPIKey       string `env:"RETELL_API_KEY"`
	APIKey             string `env:"RECUPERO_API_KEY"`
	RedisPassword      string `env:"REDIS_PASSWORD"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
}

// Load loads configuration from a YAML file, then applies environment overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// .env is optional
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	var s secrets
	if err := env.Parse(&s); err != nil {
		return err
	}

	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&c.Kapso.APIKey, s.KapsoAPIKey)
	override(&c.Kapso.PhoneNumberID, s.KapsoPhoneNumberID)
	override(&c.Webhooks.KapsoSecret, s.KapsoWebhookSecret)
	override(&c.Webhooks.RetellSecret, s.RetellAPIKey)
	override(&c.API.APIKey, s.APIKey)
	override(&c.Redis.Password, s.RedisPassword)
	override(&c.Cut.S3.AccessKeyID, s.AWSAccessKeyID)
	override(&c.Cut.S3.SecretAccessKey, s.AWSSecretAccessKey)
	return nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Server.Timezone == "" {
		c.Server.Timezone = DefaultTimezone
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 5 * time.Minute
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 60 * time.Second
	}
	if len(c.API.CORSOrigins) == 0 {
		c.API.CORSOrigins = []string{"*"}
	}

	if c.Kapso.BaseURL == "" {
		c.Kapso.BaseURL = "https://api.kapso.ai"
	}
	if c.Kapso.Timeout == 0 {
		c.Kapso.Timeout = 5 * time.Second
	}
	if c.Kapso.RequestsPerSecond > 0 && c.Kapso.Burst == 0 {
		c.Kapso.Burst = 10
	}

	if c.Dispatch.BatchSize == 0 {
		c.Dispatch.BatchSize = 10
	}
	if c.Dispatch.BatchDelay == 0 {
		c.Dispatch.BatchDelay = time.Second
	}
	if c.Dispatch.MaxErrorsInReport == 0 {
		c.Dispatch.MaxErrorsInReport = 10
	}

	if c.Schedule.ContactSpec == "" {
		c.Schedule.ContactSpec = "0 9 * * *"
	}
	if c.Schedule.CutSpec == "" {
		c.Schedule.CutSpec = "0 20 * * *"
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = c.Server.Timezone
	}
	if c.Schedule.StatsInterval == 0 {
		c.Schedule.StatsInterval = 30 * time.Second
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "/var/lib/recupero/recupero.db"
	}
	if c.Storage.IdempotencyBackend == "" {
		c.Storage.IdempotencyBackend = "bolt"
	}
	if c.Storage.BoltPath == "" {
		c.Storage.BoltPath = "/var/lib/recupero/idempotency.db"
	}
	if c.Storage.IdempotencyTTL == 0 {
		c.Storage.IdempotencyTTL = 72 * time.Hour
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "recupero"
	}

	if c.Cut.Sink == "" {
		c.Cut.Sink = "local"
	}
	if c.Cut.LocalDir == "" {
		c.Cut.LocalDir = "/var/lib/recupero/cortes"
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Webhooks.KapsoSecret == "" {
		return errors.New("webhooks.kapso_secret is required")
	}
	if c.Webhooks.RetellSecret == "" {
		return errors.New("webhooks.retell_secret is required")
	}

	if c.Kapso.APIKey == "" && !c.Dispatch.DryRun {
		return errors.New("kapso.api_key is required unless dispatch.dry_run is set")
	}

	if c.Dispatch.BatchSize < 1 {
		return fmt.Errorf("invalid dispatch.batch_size: %d", c.Dispatch.BatchSize)
	}
	if c.Dispatch.BatchDelay < 0 {
		return fmt.Errorf("invalid dispatch.batch_delay: %s", c.Dispatch.BatchDelay)
	}

	for name, tz := range map[string]string{"server.timezone": c.Server.Timezone, "schedule.timezone": c.Schedule.Timezone} {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Schedule.ContactSpec); err != nil {
		return fmt.Errorf("invalid schedule.contact_spec: %w", err)
	}
	if _, err := parser.Parse(c.Schedule.CutSpec); err != nil {
		return fmt.Errorf("invalid schedule.cut_spec: %w", err)
	}

	switch c.Storage.IdempotencyBackend {
	case "bolt", "redis":
	default:
		return fmt.Errorf("invalid storage.idempotency_backend: %s (must be bolt or redis)", c.Storage.IdempotencyBackend)
	}

	switch c.Cut.Sink {
	case "local":
	case "s3":
		if c.Cut.S3.Bucket == "" {
			return errors.New("cut.s3.bucket is required when cut.sink is s3")
		}
	default:
		return fmt.Errorf("invalid cut.sink: %s (must be local or s3)", c.Cut.Sink)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}

// Location returns the default campaign timezone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Server.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
