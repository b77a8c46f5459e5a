package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"

database:
  url: "postgres://localhost/dispatch?sslmode=disable"
  retry_delay_ms: 500

queue:
  url: "https://sqs.us-east-2.amazonaws.com/123/campaign-mails"
  region: "us-east-2"
  max_conns_per_host: 25

tracking:
  server_url: "https://mail.example.com"

tokens:
  unsubscribe_secret: "u-secret"
  forward_secret: "f-secret"

dispatch:
  chunk_size: 500
  batch_size: 25

schedule:
  sweep_limit: 50
  pause_ms: 250

log:
  level: debug
  redact_pii: false
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	assert.Equal(t, "postgres://localhost/dispatch?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, 500*time.Millisecond, cfg.Database.RetryDelay())

	assert.Equal(t, "us-east-2", cfg.Queue.Region)
	assert.Equal(t, 25, cfg.Queue.MaxConnsPerHost)
	assert.Equal(t, 2*time.Second, cfg.Queue.Timeout())

	assert.Equal(t, "https://mail.example.com", cfg.Tracking.ServerURL)
	assert.Equal(t, "u-secret", cfg.Tokens.UnsubscribeSecret)
	assert.Equal(t, 180*24*time.Hour, cfg.Tokens.TTL())

	assert.Equal(t, 500, cfg.Dispatch.ChunkSize)
	// The queue caps batches at ten entries.
	assert.Equal(t, 10, cfg.Dispatch.BatchSize)
	assert.Equal(t, 10, cfg.Schedule.SweepLimit)
	assert.Equal(t, 250*time.Millisecond, cfg.Schedule.Pause())

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Log.ShouldRedact())
}

func TestLoadZeroRetriesIsKept(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("dispatch:\n  max_retries: 0\n"), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg.Dispatch.MaxRetries)
	assert.Equal(t, 0, cfg.Dispatch.Retries())
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("{}"), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 2*time.Second, cfg.Database.RetryDelay())
	assert.Equal(t, 50, cfg.Queue.MaxConnsPerHost)
	assert.Equal(t, 2, cfg.Queue.SDKMaxAttempts)
	assert.Equal(t, 1000, cfg.Dispatch.ChunkSize)
	assert.Equal(t, 10, cfg.Dispatch.BatchSize)
	assert.Nil(t, cfg.Dispatch.MaxRetries)
	assert.Equal(t, 2, cfg.Dispatch.Retries())
	assert.Equal(t, 200, cfg.Dispatch.ThrottleBackoffMs)
	assert.Equal(t, 50, cfg.Dispatch.PartialBackoffMs)
	assert.Equal(t, 100, cfg.Dispatch.CallBackoffMs)
	assert.Equal(t, 10*time.Minute, cfg.Schedule.LockTTL())
	assert.True(t, cfg.Log.ShouldRedact())
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 180, cfg.Tokens.TTLDays)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: [unclosed"), 0644))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("SQS_QUEUE_URL", "https://sqs.example/queue")
	t.Setenv("UNSUBSCRIBE_SECRET_KEY", "env-unsub")
	t.Setenv("FORWARD_SECRET_KEY", "env-fwd")
	t.Setenv("SERVER_URL", "https://env.example.com")
	t.Setenv("PORT", "7070")

	cfg, err := LoadFromEnv("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, "https://sqs.example/queue", cfg.Queue.URL)
	assert.Equal(t, "env-unsub", cfg.Tokens.UnsubscribeSecret)
	assert.Equal(t, "env-fwd", cfg.Tokens.ForwardSecret)
	assert.Equal(t, "https://env.example.com", cfg.Tracking.ServerURL)
	assert.Equal(t, 7070, cfg.Server.Port)
}
