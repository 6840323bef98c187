package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/intake-api/internal/email"
	"github.com/jwalitptl/intake-api/internal/middleware"
	"github.com/jwalitptl/intake-api/internal/repository/postgres"
	redisstore "github.com/jwalitptl/intake-api/internal/repository/redis"
	"github.com/jwalitptl/intake-api/internal/service/notification"
	"github.com/jwalitptl/intake-api/internal/worker"
	"github.com/jwalitptl/intake-api/pkg/llm"
	"github.com/jwalitptl/intake-api/pkg/logger"
	redisbroker "github.com/jwalitptl/intake-api/pkg/messaging/redis"
)

const envPrefix = "INTAKE"

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Intake       IntakeConfig       `mapstructure:"intake"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Matching     MatchingConfig     `mapstructure:"matching"`
	Validation   ValidationConfig   `mapstructure:"validation"`
	Store        StoreConfig        `mapstructure:"store"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Postgres     PostgresConfig     `mapstructure:"postgres"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	CORS         CORSConfig         `mapstructure:"cors"`
	Notification NotificationConfig `mapstructure:"notification"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`

	Secrets Secrets `mapstructure:"-"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	HSTSMaxAge      time.Duration `mapstructure:"hsts_max_age"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type IntakeConfig struct {
	MaxTurns     int `mapstructure:"max_turns"`
	ContextTurns int `mapstructure:"context_turns"`
}

type LLMConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Model          string        `mapstructure:"model"`
	FallbackModel  string        `mapstructure:"fallback_model"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	Temperature    float64       `mapstructure:"temperature"`
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	// RequestsPerMinute feeds the token bucket ahead of every call.
	RequestsPerMinute float64       `mapstructure:"requests_per_minute"`
	Burst             int           `mapstructure:"burst"`
	BreakerThreshold  int           `mapstructure:"breaker_threshold"`
	BreakerTimeout    time.Duration `mapstructure:"breaker_timeout"`
	ClassifierCache   time.Duration `mapstructure:"classifier_cache_ttl"`
}

type MatchingConfig struct {
	MaxResults int `mapstructure:"max_results"`
}

type ValidationConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

type StoreConfig struct {
	Backend          string        `mapstructure:"backend"`
	LearningBackend  string        `mapstructure:"learning_backend"`
	SessionTTL       time.Duration `mapstructure:"session_ttl"`
	SessionRetention time.Duration `mapstructure:"session_retention"`
	PruneInterval    time.Duration `mapstructure:"prune_interval"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	Channel      string        `mapstructure:"channel"`
}

type PostgresConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type NotificationConfig struct {
	SMTPHost     string        `mapstructure:"smtp_host"`
	SMTPPort     int           `mapstructure:"smtp_port"`
	SMTPUsername string        `mapstructure:"smtp_username"`
	From         string        `mapstructure:"from"`
	OnCallEmail  string        `mapstructure:"on_call_email"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// Secrets never live in config files.
type Secrets struct {
	LLMAPIKey    string `envconfig:"LLM_API_KEY"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	DatabaseURL  string `envconfig:"DATABASE_URL"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.request_timeout", 4*time.Minute)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("intake.max_turns", 8)
	v.SetDefault("intake.context_turns", 6)

	v.SetDefault("llm.base_url", llm.DefaultBaseURL)
	v.SetDefault("llm.model", llm.DefaultModel)
	v.SetDefault("llm.fallback_model", "gemini-1.5-flash")
	v.SetDefault("llm.timeout", llm.DefaultTimeout)
	v.SetDefault("llm.max_tokens", llm.DefaultMaxTokens)
	v.SetDefault("llm.temperature", llm.DefaultTemperature)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.initial_backoff", 15*time.Second)
	v.SetDefault("llm.max_backoff", 60*time.Second)
	v.SetDefault("llm.requests_per_minute", 15)
	v.SetDefault("llm.burst", 1)
	v.SetDefault("llm.breaker_threshold", 5)
	v.SetDefault("llm.breaker_timeout", 30*time.Second)
	v.SetDefault("llm.classifier_cache_ttl", time.Hour)

	v.SetDefault("matching.max_results", 5)
	v.SetDefault("validation.concurrency", 3)

	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.learning_backend", BackendMemory)
	v.SetDefault("store.session_ttl", 24*time.Hour)
	v.SetDefault("store.session_retention", 24*time.Hour)
	v.SetDefault("store.prune_interval", 10*time.Minute)

	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.channel", "intake.events")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 10)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"})

	v.SetDefault("notification.smtp_host", "")
	v.SetDefault("notification.smtp_port", 587)
	v.SetDefault("notification.smtp_username", "")
	v.SetDefault("notification.from", "intake@localhost")
	v.SetDefault("notification.on_call_email", "")
	v.SetDefault("notification.max_retries", 3)
	v.SetDefault("notification.retry_delay", 5*time.Second)

	v.SetDefault("metrics.namespace", "intake")
	v.SetDefault("metrics.path", "/metrics")
}

// LoadConfig reads config.yaml from the given directories (default "." and
// "./config"), applies INTAKE_* environment overrides and loads secrets.
// A missing file is not an error; defaults apply.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process(envPrefix, &config.Secrets); err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch c.Store.LearningBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.Secrets.DatabaseURL == "" {
			return fmt.Errorf("learning backend %q requires %s_DATABASE_URL", BackendPostgres, envPrefix)
		}
	default:
		return fmt.Errorf("unknown learning backend %q", c.Store.LearningBackend)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

// Offline reports whether no model credentials are configured, in which
// case every component runs on its deterministic fallbacks.
func (c *Config) Offline() bool {
	return c.Secrets.LLMAPIKey == ""
}

func (c *Config) ToLoggerConfig() *logger.Config {
	return &logger.Config{
		Level:      logger.ParseLevel(c.Log.Level),
		TimeFormat: time.RFC3339,
		JSON:       c.Log.JSON,
	}
}

func (c *Config) ToGeminiConfig(model string) llm.GeminiConfig {
	return llm.GeminiConfig{
		APIKey:      c.Secrets.LLMAPIKey,
		BaseURL:     c.LLM.BaseURL,
		Model:       model,
		Timeout:     c.LLM.Timeout,
		MaxTokens:   c.LLM.MaxTokens,
		Temperature: c.LLM.Temperature,
	}
}

func (c *LLMConfig) ToRetryConfig() llm.RetryConfig {
	retry := llm.DefaultRetryConfig()
	retry.MaxRetries = c.MaxRetries
	if c.InitialBackoff > 0 {
		retry.InitialBackoff = c.InitialBackoff
	}
	if c.MaxBackoff > 0 {
		retry.MaxBackoff = c.MaxBackoff
	}
	return retry
}

func (c *RedisConfig) ToBrokerConfig() redisbroker.Config {
	return redisbroker.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}

func (c *StoreConfig) ToSessionStoreConfig() redisstore.Config {
	return redisstore.Config{TTL: c.SessionTTL}
}

func (c *Config) ToPostgresConfig() postgres.Config {
	return postgres.Config{
		DSN:             c.Secrets.DatabaseURL,
		MaxOpenConns:    c.Postgres.MaxOpenConns,
		MaxIdleConns:    c.Postgres.MaxIdleConns,
		ConnMaxLifetime: c.Postgres.ConnMaxLifetime,
	}
}

func (c *StoreConfig) ToCleanupConfig() worker.SessionCleanupConfig {
	return worker.SessionCleanupConfig{
		Retention: c.SessionRetention,
		Interval:  c.PruneInterval,
	}
}

// EmailEnabled reports whether an SMTP relay is configured.
func (c *Config) EmailEnabled() bool {
	return c.Notification.SMTPHost != ""
}

func (c *Config) ToEmailConfig() email.Config {
	return email.Config{
		Host:     c.Notification.SMTPHost,
		Port:     c.Notification.SMTPPort,
		Username: c.Notification.SMTPUsername,
		Password: c.Secrets.SMTPPassword,
		From:     c.Notification.From,
	}
}

func (c *NotificationConfig) ToNotificationConfig() notification.Config {
	return notification.Config{
		OnCallEmail: c.OnCallEmail,
		MaxRetries:  c.MaxRetries,
		RetryDelay:  c.RetryDelay,
	}
}

func (s *ServerConfig) ToSecurityConfig() middleware.SecurityConfig {
	security := middleware.DefaultSecurityConfig()
	security.HSTSMaxAge = s.HSTSMaxAge
	return security
}

func (c *CORSConfig) ToMiddlewareConfig() middleware.CORSConfig {
	cors := middleware.DefaultCORSConfig()
	if len(c.AllowedOrigins) > 0 {
		cors.AllowOrigins = c.AllowedOrigins
	}
	if len(c.AllowedMethods) > 0 {
		cors.AllowMethods = c.AllowedMethods
	}
	if len(c.AllowedHeaders) > 0 {
		cors.AllowHeaders = c.AllowedHeaders
	}
	return cors
}
