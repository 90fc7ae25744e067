// Package config provides application configuration management using Viper.
// It supports loading from environment variables, config files, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Provider  ProviderConfig
	Model     ModelConfig
	Webhook   WebhookConfig
	App       AppConfig
	Log       LogConfig
	Live      LiveConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string
	Port        int
	Environment string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host                  string
	Port                  int
	User                  string
	Password              string
	Name                  string
	SSLMode               string
	MaxConnections        int
	MaxIdleConnections    int
	ConnectionMaxLifetime time.Duration
}

// ConnectionString returns a PostgreSQL connection string.
func (d *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// RedisConfig holds optional Redis settings. When disabled, rate
// limiting stays in process memory.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// ProviderConfig holds telephony provider credentials.
type ProviderConfig struct {
	AccountID  string
	AuthToken  string
	APIURL     string
	FromNumber string
}

// ModelConfig holds remote scorer settings. An empty APIKey disables
// the model scorer; the heuristic path still runs.
type ModelConfig struct {
	APIKey        string
	Name          string
	BaseURL       string
	RPMLimit      int
	MinIntervalMS int
}

// minIntervalFloor is the lowest spacing between model calls for one
// call regardless of the RPM budget.
const minIntervalFloor = 2800 * time.Millisecond

// MinInterval returns the minimum spacing between model calls for one
// call id. An explicit MODEL_MIN_INTERVAL_MS wins; otherwise the value
// derives from the RPM budget with headroom for other calls.
func (m *ModelConfig) MinInterval() time.Duration {
	if m.MinIntervalMS > 0 {
		return time.Duration(m.MinIntervalMS) * time.Millisecond
	}
	rpm := m.RPMLimit
	if rpm <= 0 {
		rpm = 30
	}
	derived := time.Minute/time.Duration(rpm) + 400*time.Millisecond
	if derived < minIntervalFloor {
		return minIntervalFloor
	}
	return derived
}

// WebhookConfig holds ingest settings.
type WebhookConfig struct {
	// SkipSignatureValidation disables the HMAC check. Tests only.
	SkipSignatureValidation bool
}

// AppConfig holds general application settings.
type AppConfig struct {
	// BaseURL is the externally visible origin used for outbound
	// webhook URL generation. When empty, forwarded host headers are
	// used instead.
	BaseURL string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// LiveConfig holds live-view settings.
type LiveConfig struct {
	TranscriptLimit int
}

// RateLimitConfig holds the public-endpoint limits.
type RateLimitConfig struct {
	CallPerIP        int
	CallPerIPWindow  time.Duration
	CallSlugCooldown time.Duration
	PhonePerIP       int
	PhonePerIPWindow time.Duration
}

// Transcript limit bounds.
const (
	minTranscriptLimit = 1
	maxTranscriptLimit = 500
)

// Load reads configuration from environment variables and config files.
// Environment variables take precedence over config file values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/scamshield")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// PUBLIC_BASE_URL is the documented name; APP_BASE_URL is accepted
	// as an alias.
	if err := v.BindEnv("app.base_url", "PUBLIC_BASE_URL", "APP_BASE_URL"); err != nil {
		return nil, fmt.Errorf("error binding base url: %w", err)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configNotFoundErr viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFoundErr) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:        v.GetString("server.host"),
			Port:        v.GetInt("server.port"),
			Environment: v.GetString("server.env"),
		},
		Database: DatabaseConfig{
			Host:                  v.GetString("database.host"),
			Port:                  v.GetInt("database.port"),
			User:                  v.GetString("database.user"),
			Password:              v.GetString("database.password"),
			Name:                  v.GetString("database.name"),
			SSLMode:               v.GetString("database.sslmode"),
			MaxConnections:        v.GetInt("database.max_connections"),
			MaxIdleConnections:    v.GetInt("database.max_idle_connections"),
			ConnectionMaxLifetime: v.GetDuration("database.connection_max_lifetime"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Provider: ProviderConfig{
			AccountID:  v.GetString("provider.account_id"),
			AuthToken:  v.GetString("provider.auth_token"),
			APIURL:     v.GetString("provider.api_url"),
			FromNumber: v.GetString("provider.from_number"),
		},
		Model: ModelConfig{
			APIKey:        v.GetString("model.api_key"),
			Name:          v.GetString("model.name"),
			BaseURL:       v.GetString("model.base_url"),
			RPMLimit:      v.GetInt("model.rpm_limit"),
			MinIntervalMS: v.GetInt("model.min_interval_ms"),
		},
		Webhook: WebhookConfig{
			SkipSignatureValidation: v.GetString("webhook.skip_signature_validation") == "1",
		},
		App: AppConfig{
			BaseURL: v.GetString("app.base_url"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Live: LiveConfig{
			TranscriptLimit: clampTranscriptLimit(v.GetInt("live.transcript_limit")),
		},
		RateLimit: RateLimitConfig{
			CallPerIP:        v.GetInt("rate_limit.call_per_ip"),
			CallPerIPWindow:  v.GetDuration("rate_limit.call_per_ip_window"),
			CallSlugCooldown: v.GetDuration("rate_limit.call_slug_cooldown"),
			PhonePerIP:       v.GetInt("rate_limit.phone_per_ip"),
			PhonePerIPWindow: v.GetDuration("rate_limit.phone_per_ip_window"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.env", "development")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "scamshield")
	v.SetDefault("database.name", "scamshield")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.max_idle_connections", 5)
	v.SetDefault("database.connection_max_lifetime", "5m")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")

	// Model defaults
	v.SetDefault("model.name", "gpt-4o-mini")
	v.SetDefault("model.rpm_limit", 30)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Live view defaults
	v.SetDefault("live.transcript_limit", 200)

	// Rate limit defaults
	v.SetDefault("rate_limit.call_per_ip", 5)
	v.SetDefault("rate_limit.call_per_ip_window", "60s")
	v.SetDefault("rate_limit.call_slug_cooldown", "30s")
	v.SetDefault("rate_limit.phone_per_ip", 20)
	v.SetDefault("rate_limit.phone_per_ip_window", "600s")
}

// clampTranscriptLimit bounds the live transcript window.
func clampTranscriptLimit(n int) int {
	if n < minTranscriptLimit {
		return minTranscriptLimit
	}
	if n > maxTranscriptLimit {
		return maxTranscriptLimit
	}
	return n
}

// Validate checks that all required configuration values are present.
func (c *Config) Validate() error {
	var missing []string

	if c.Database.Password == "" {
		missing = append(missing, "DATABASE_PASSWORD")
	}
	if !c.Webhook.SkipSignatureValidation && c.Provider.AuthToken == "" {
		missing = append(missing, "PROVIDER_AUTH_TOKEN")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
