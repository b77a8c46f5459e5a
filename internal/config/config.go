package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the dispatch services
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Queue    QueueConfig    `yaml:"queue"`
	Tracking TrackingConfig `yaml:"tracking"`
	Tokens   TokensConfig   `yaml:"tokens"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP trigger server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	return c.Host
}

// DatabaseConfig holds the Postgres connection settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
	RetryDelayMs    int    `yaml:"retry_delay_ms"`
}

// RetryDelay is the pause before the single reconnect attempt.
func (c DatabaseConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// QueueConfig holds the SQS destination and client tuning
type QueueConfig struct {
	URL             string `yaml:"url"`
	Region          string `yaml:"region"`
	AccessKey       string `yaml:"access_key"`
	SecretKey       string `yaml:"secret_key"`
	Endpoint        string `yaml:"endpoint"`
	MaxConnsPerHost int    `yaml:"max_conns_per_host"`
	TimeoutMs       int    `yaml:"timeout_ms"`
	SDKMaxAttempts  int    `yaml:"sdk_max_attempts"`
}

// Timeout is the per-request HTTP timeout of the SQS client.
func (c QueueConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// TrackingConfig holds the public base URL used in rewritten links
type TrackingConfig struct {
	ServerURL string `yaml:"server_url"`
}

// TokensConfig holds the signing secrets for unsubscribe and forward links
type TokensConfig struct {
	UnsubscribeSecret string `yaml:"unsubscribe_secret"`
	ForwardSecret     string `yaml:"forward_secret"`
	TTLDays           int    `yaml:"ttl_days"`
}

// TTL is the validity window of issued tokens.
func (c TokensConfig) TTL() time.Duration {
	return time.Duration(c.TTLDays) * 24 * time.Hour
}

// DispatchConfig holds chunking and retry tuning
type DispatchConfig struct {
	ChunkSize         int  `yaml:"chunk_size"`
	BatchSize         int  `yaml:"batch_size"`
	MaxRetries        *int `yaml:"max_retries"`
	ThrottleBackoffMs int  `yaml:"throttle_backoff_ms"`
	PartialBackoffMs  int  `yaml:"partial_backoff_ms"`
	CallBackoffMs     int  `yaml:"call_backoff_ms"`
}

// DefaultMaxRetries applies when max_retries is unset.
const DefaultMaxRetries = 2

// Retries is the resend budget per batch. An explicit 0 disables retries.
func (c DispatchConfig) Retries() int {
	if c.MaxRetries == nil {
		return DefaultMaxRetries
	}
	if *c.MaxRetries < 0 {
		return 0
	}
	return *c.MaxRetries
}

// ScheduleConfig holds sweep settings
type ScheduleConfig struct {
	SweepLimit     int `yaml:"sweep_limit"`
	PauseMs        int `yaml:"pause_ms"`
	LockTTLMinutes int `yaml:"lock_ttl_minutes"`
}

// Pause is the fixed wait between scheduled runs in one sweep.
func (c ScheduleConfig) Pause() time.Duration {
	return time.Duration(c.PauseMs) * time.Millisecond
}

// LockTTL bounds how long one record stays locked by a sweep.
func (c ScheduleConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMinutes) * time.Minute
}

// RedisConfig holds the optional Redis used for sweep locks
type RedisConfig struct {
	URL string `yaml:"url"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// ShouldRedact defaults to true when unset.
func (c LogConfig) ShouldRedact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Load reads and parses the configuration file. An empty path yields defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5
	}
	if cfg.Database.RetryDelayMs == 0 {
		cfg.Database.RetryDelayMs = 2000
	}
	if cfg.Queue.Region == "" {
		cfg.Queue.Region = "us-east-1"
	}
	if cfg.Queue.MaxConnsPerHost == 0 {
		cfg.Queue.MaxConnsPerHost = 50
	}
	if cfg.Queue.TimeoutMs == 0 {
		cfg.Queue.TimeoutMs = 2000
	}
	if cfg.Queue.SDKMaxAttempts == 0 {
		cfg.Queue.SDKMaxAttempts = 2
	}
	if cfg.Tokens.TTLDays == 0 {
		cfg.Tokens.TTLDays = 180
	}
	if cfg.Dispatch.ChunkSize == 0 {
		cfg.Dispatch.ChunkSize = 1000
	}
	if cfg.Dispatch.BatchSize == 0 || cfg.Dispatch.BatchSize > 10 {
		cfg.Dispatch.BatchSize = 10
	}
	if cfg.Dispatch.ThrottleBackoffMs == 0 {
		cfg.Dispatch.ThrottleBackoffMs = 200
	}
	if cfg.Dispatch.PartialBackoffMs == 0 {
		cfg.Dispatch.PartialBackoffMs = 50
	}
	if cfg.Dispatch.CallBackoffMs == 0 {
		cfg.Dispatch.CallBackoffMs = 100
	}
	if cfg.Schedule.SweepLimit == 0 || cfg.Schedule.SweepLimit > 10 {
		cfg.Schedule.SweepLimit = 10
	}
	if cfg.Schedule.PauseMs == 0 {
		cfg.Schedule.PauseMs = 1000
	}
	if cfg.Schedule.LockTTLMinutes == 0 {
		cfg.Schedule.LockTTLMinutes = 10
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("SQS_QUEUE_URL"); v != "" {
		cfg.Queue.URL = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Queue.Region = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.Queue.AccessKey = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.Queue.SecretKey = v
	}
	if v := os.Getenv("SQS_ENDPOINT"); v != "" {
		cfg.Queue.Endpoint = v
	}
	if v := os.Getenv("SERVER_URL"); v != "" {
		cfg.Tracking.ServerURL = v
	}
	if v := os.Getenv("UNSUBSCRIBE_SECRET_KEY"); v != "" {
		cfg.Tokens.UnsubscribeSecret = v
	}
	if v := os.Getenv("FORWARD_SECRET_KEY"); v != "" {
		cfg.Tokens.ForwardSecret = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	return cfg, nil
}
