package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration. It is constructed once at startup
// and injected into every component that needs it; nothing else reads the
// environment.
type Config struct {
	DatabaseURL    string `yaml:"database_url"`
	RedisURL       string `yaml:"redis_url"`
	RabbitMQURL    string `yaml:"rabbitmq_url"`
	ServerPort     string `yaml:"server_port"`
	BaseURL        string `yaml:"base_url"`
	AllowedOrigins string `yaml:"allowed_origins"` // comma-separated

	// Identity provider (external); sessions carry its tokens.
	IdentityIssuer       string        `yaml:"identity_issuer"`
	IdentityJWKSURL      string        `yaml:"identity_jwks_url"`
	IdentityClientID     string        `yaml:"identity_client_id"`
	IdentityClientSecret string        `yaml:"identity_client_secret"`
	SessionCookieName    string        `yaml:"session_cookie_name"`
	SessionTTL           time.Duration `yaml:"session_ttl"`

	// Archival sweep.
	ArchiveAfterDays int           `yaml:"archive_after_days"`
	ArchiveInterval  time.Duration `yaml:"archive_interval"`
	ArchiveToken     string        `yaml:"archive_token"`

	TrustProxyHeaders bool   `yaml:"trust_proxy_headers"`
	EnableHSTS        bool   `yaml:"enable_hsts"`
	ServerDebugMode   bool   `yaml:"server_debug_mode"`
	OTELEnabled       bool   `yaml:"otel_enabled"`
	OTELEndpoint      string `yaml:"otel_endpoint"`
	RabbitMQPrefetch  int    `yaml:"rabbitmq_prefetch"`
}

// Load loads configuration from the environment, with an optional YAML file
// overlay named by TASKDECK_CONFIG. Environment variables win over the file.
func Load() (*Config, error) {
	cfg := &Config{
		ServerPort:        "8080",
		BaseURL:           "http://localhost:8080",
		AllowedOrigins:    "http://localhost:3000",
		SessionCookieName: "taskdeck_session",
		SessionTTL:        24 * time.Hour,
		ArchiveAfterDays:  30,
		ArchiveInterval:   24 * time.Hour,
		TrustProxyHeaders: true,
		RedisURL:          "redis://localhost:6379/0",
		RabbitMQPrefetch:  1,
	}

	if path := os.Getenv("TASKDECK_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.RabbitMQURL = getEnv("RABBITMQ_URL", cfg.RabbitMQURL)
	cfg.ServerPort = getEnv("SERVER_PORT", cfg.ServerPort)
	cfg.BaseURL = getEnv("BASE_URL", cfg.BaseURL)
	cfg.AllowedOrigins = getEnv("ALLOWED_ORIGINS", cfg.AllowedOrigins)
	cfg.IdentityIssuer = getEnv("IDENTITY_ISSUER", cfg.IdentityIssuer)
	cfg.IdentityJWKSURL = getEnv("IDENTITY_JWKS_URL", cfg.IdentityJWKSURL)
	cfg.IdentityClientID = getEnv("IDENTITY_CLIENT_ID", cfg.IdentityClientID)
	cfg.IdentityClientSecret = getEnv("IDENTITY_CLIENT_SECRET", cfg.IdentityClientSecret)
	cfg.SessionCookieName = getEnv("SESSION_COOKIE_NAME", cfg.SessionCookieName)
	cfg.SessionTTL = getEnvDuration("SESSION_TTL", cfg.SessionTTL)
	cfg.ArchiveAfterDays = getEnvInt("ARCHIVE_AFTER_DAYS", cfg.ArchiveAfterDays)
	cfg.ArchiveInterval = getEnvDuration("ARCHIVE_INTERVAL", cfg.ArchiveInterval)
	cfg.ArchiveToken = getEnv("ARCHIVE_TOKEN", cfg.ArchiveToken)
	cfg.TrustProxyHeaders = getEnvBool("TRUST_PROXY_HEADERS", cfg.TrustProxyHeaders)
	cfg.EnableHSTS = getEnvBool("ENABLE_HSTS", cfg.EnableHSTS)
	cfg.ServerDebugMode = getEnvBool("SERVER_DEBUG_MODE", cfg.ServerDebugMode)
	cfg.OTELEnabled = getEnvBool("OTEL_ENABLED", cfg.OTELEnabled)
	cfg.OTELEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTELEndpoint)
	cfg.RabbitMQPrefetch = getEnvInt("RABBITMQ_PREFETCH", cfg.RabbitMQPrefetch)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.IdentityIssuer == "" {
		return nil, fmt.Errorf("IDENTITY_ISSUER is required")
	}
	if cfg.IdentityJWKSURL == "" {
		return nil, fmt.Errorf("IDENTITY_JWKS_URL is required")
	}
	if cfg.ArchiveAfterDays <= 0 {
		return nil, fmt.Errorf("ARCHIVE_AFTER_DAYS must be positive, got %d", cfg.ArchiveAfterDays)
	}

	return cfg, nil
}

// Origins returns the CORS allow-list as a slice, whitespace trimmed.
func (c *Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(o); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// ArchiveCutoff returns the archival cutoff relative to now.
func (c *Config) ArchiveCutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -c.ArchiveAfterDays)
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
