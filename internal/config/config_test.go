package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoadConfig_DefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Intake.MaxTurns)
	assert.Equal(t, 6, cfg.Intake.ContextTurns)
	assert.Equal(t, 5, cfg.Matching.MaxResults)
	assert.Equal(t, 3, cfg.Validation.Concurrency)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Store.ToCleanupConfig().Retention)
	assert.Equal(t, 10*time.Minute, cfg.Store.ToCleanupConfig().Interval)
	assert.Equal(t, 15*time.Second, cfg.LLM.InitialBackoff)
	assert.Equal(t, "intake", cfg.Metrics.Namespace)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.True(t, cfg.Offline())
	assert.False(t, cfg.EmailEnabled())
}

func TestLoadConfig_FileAndEnvOverrides(t *testing.T) {
	dir := writeConfig(t, `
server:
  port: 9090
  request_timeout: 45s
intake:
  max_turns: 6
store:
  backend: redis
  session_ttl: 2h
notification:
  smtp_host: smtp.example.org
  on_call_email: oncall@example.org
`)
	t.Setenv("INTAKE_MATCHING_MAX_RESULTS", "3")
	t.Setenv("INTAKE_SERVER_PORT", "7070")
	t.Setenv("INTAKE_LLM_API_KEY", "secret-key")
	t.Setenv("INTAKE_SMTP_PASSWORD", "smtp-pass")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 6, cfg.Intake.MaxTurns)
	assert.Equal(t, 3, cfg.Matching.MaxResults)
	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, 2*time.Hour, cfg.Store.ToSessionStoreConfig().TTL)

	assert.False(t, cfg.Offline())
	assert.Equal(t, "secret-key", cfg.ToGeminiConfig("m").APIKey)
	assert.True(t, cfg.EmailEnabled())
	assert.Equal(t, "smtp-pass", cfg.ToEmailConfig().Password)
	assert.Equal(t, "oncall@example.org", cfg.Notification.ToNotificationConfig().OnCallEmail)
}

func TestLoadConfig_RejectsUnknownBackend(t *testing.T) {
	dir := writeConfig(t, "store:\n  backend: postgres\n")
	_, err := LoadConfig(dir)
	assert.ErrorContains(t, err, "unknown store backend")
}

func TestLoadConfig_PostgresLearningBackend(t *testing.T) {
	dir := writeConfig(t, "store:\n  learning_backend: postgres\n")
	t.Setenv("INTAKE_DATABASE_URL", "")
	_, err := LoadConfig(dir)
	assert.ErrorContains(t, err, "requires INTAKE_DATABASE_URL")

	t.Setenv("INTAKE_DATABASE_URL", "postgres://intake:pw@localhost:5432/intake?sslmode=disable")
	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	pg := cfg.ToPostgresConfig()
	assert.Equal(t, "postgres://intake:pw@localhost:5432/intake?sslmode=disable", pg.DSN)
	assert.Equal(t, 10, pg.MaxOpenConns)
	assert.Equal(t, 30*time.Minute, pg.ConnMaxLifetime)
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	dir := writeConfig(t, "server: [unclosed\n")
	_, err := LoadConfig(dir)
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestToRetryConfig(t *testing.T) {
	c := LLMConfig{MaxRetries: 2, InitialBackoff: time.Second}
	r := c.ToRetryConfig()
	assert.Equal(t, 2, r.MaxRetries)
	assert.Equal(t, time.Second, r.InitialBackoff)
	assert.Equal(t, 60*time.Second, r.MaxBackoff)
}
