// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Provider    ProviderConfig    `mapstructure:"provider"`
	Callback    CallbackConfig    `mapstructure:"callback"`
	Probe       ProbeConfig       `mapstructure:"probe"`
	Store       StoreConfig       `mapstructure:"store"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles. Webhook endpoints are
// always exempt: the provider cannot send an API key.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ProviderConfig holds DataForSEO credentials and client behavior.
type ProviderConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Login          string `mapstructure:"login"`
	Password       string `mapstructure:"password"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxCrawlPages  int    `mapstructure:"max_crawl_pages"`
}

// CallbackConfig holds the externally reachable base URL embedded in
// provider pingback URLs.
type CallbackConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// ProbeConfig bounds the security-header probe.
type ProbeConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// StoreConfig selects and configures the job store backend.
type StoreConfig struct {
	Provider       string              `mapstructure:"provider"`
	RetentionHours int                 `mapstructure:"retention_hours"`
	Redis          RedisStoreConfig    `mapstructure:"redis"`
	Postgres       PostgresStoreConfig `mapstructure:"postgres"`
}

// RedisStoreConfig configures the Redis backend.
type RedisStoreConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PostgresStoreConfig configures the Postgres backend.
type PostgresStoreConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MinOpenConns int    `mapstructure:"min_open_conns"`
}

// AggregationConfig bounds the detail fetches issued during aggregation.
type AggregationConfig struct {
	PagesLimit          int `mapstructure:"pages_limit"`
	DuplicateTagsLimit  int `mapstructure:"duplicate_tags_limit"`
	LinksLimit          int `mapstructure:"links_limit"`
	ResourcesLimit      int `mapstructure:"resources_limit"`
	NonIndexableLimit   int `mapstructure:"non_indexable_limit"`
	RedirectChainsLimit int `mapstructure:"redirect_chains_limit"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AUDITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("provider.base_url", "https://api.dataforseo.com/v3")
	v.SetDefault("provider.timeout_seconds", 30)
	v.SetDefault("provider.max_crawl_pages", 1000)
	v.SetDefault("callback.base_url", "http://localhost:8080")
	v.SetDefault("probe.timeout_seconds", 8)
	v.SetDefault("store.provider", "memory")
	v.SetDefault("store.retention_hours", 24)
	v.SetDefault("store.redis.address", "localhost:6379")
	v.SetDefault("aggregation.pages_limit", 100)
	v.SetDefault("aggregation.duplicate_tags_limit", 50)
	v.SetDefault("aggregation.links_limit", 2000)
	v.SetDefault("aggregation.resources_limit", 1000)
	v.SetDefault("aggregation.non_indexable_limit", 500)
	v.SetDefault("aggregation.redirect_chains_limit", 50)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Provider.TimeoutSeconds <= 0 {
		return fmt.Errorf("provider.timeout_seconds must be > 0")
	}
	if c.Probe.TimeoutSeconds <= 0 || c.Probe.TimeoutSeconds > 9 {
		return fmt.Errorf("probe.timeout_seconds must be between 1 and 9")
	}
	if c.Callback.BaseURL == "" {
		return fmt.Errorf("callback.base_url must be set")
	}
	switch c.Store.Provider {
	case "memory":
	case "redis":
		if c.Store.Redis.Address == "" {
			return fmt.Errorf("store.redis.address must be set when store.provider is redis")
		}
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn must be set when store.provider is postgres")
		}
	default:
		return fmt.Errorf("unknown store provider: %s", c.Store.Provider)
	}
	if c.Store.RetentionHours <= 0 {
		return fmt.Errorf("store.retention_hours must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// ProviderTimeout converts the provider timeout config into a duration.
func (c Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Provider.TimeoutSeconds) * time.Second
}

// ProbeTimeout converts the probe timeout config into a duration.
func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Probe.TimeoutSeconds) * time.Second
}

// RetentionTTL converts the retention window config into a duration.
func (c Config) RetentionTTL() time.Duration {
	return time.Duration(c.Store.RetentionHours) * time.Hour
}
