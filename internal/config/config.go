// Package config loads and validates audit service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Export    ExportConfig    `mapstructure:"export"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// AuditConfig governs the dispatcher and audit pipeline behavior.
type AuditConfig struct {
	Workers              int `mapstructure:"workers"`
	QueueDepth           int `mapstructure:"queue_depth"`
	SourceTimeoutSeconds int `mapstructure:"source_timeout_seconds"`
	RetryDelayMs         int `mapstructure:"retry_delay_ms"`
	MaxPagesDefault      int `mapstructure:"max_pages_default"`
}

// ProvidersConfig holds per-provider credentials and budgets.
type ProvidersConfig struct {
	DataForSEO DataForSEOConfig `mapstructure:"dataforseo"`
	PageSpeed  PageSpeedConfig  `mapstructure:"pagespeed"`
}

// DataForSEOConfig configures the DataForSEO API client.
type DataForSEOConfig struct {
	BaseURL             string  `mapstructure:"base_url"`
	Login               string  `mapstructure:"login"`
	Password            string  `mapstructure:"password"`
	TimeoutSeconds      int     `mapstructure:"timeout_seconds"`
	PollIntervalSeconds int     `mapstructure:"poll_interval_seconds"`
	RatePerSecond       float64 `mapstructure:"rate_per_second"`
	Burst               int     `mapstructure:"burst"`
}

// PageSpeedConfig configures the PageSpeed Insights client.
type PageSpeedConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	Strategy       string  `mapstructure:"strategy"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RatePerSecond  float64 `mapstructure:"rate_per_second"`
	Burst          int     `mapstructure:"burst"`
}

// StorageConfig sets bucket and path prefixes for blob persistence. LocalDir
// selects a filesystem store when no bucket is configured.
type StorageConfig struct {
	GCSBucket    string `mapstructure:"gcs_bucket"`
	LocalDir     string `mapstructure:"local_dir"`
	ExportPrefix string `mapstructure:"export_prefix"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory stores.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ExportConfig defines additional named slide templates on top of the
// built-in default.
type ExportConfig struct {
	Templates []TemplateConfig `mapstructure:"templates"`
}

// TemplateConfig describes one named deck layout.
type TemplateConfig struct {
	Name            string          `mapstructure:"name"`
	Title           string          `mapstructure:"title"`
	RequireComplete bool            `mapstructure:"require_complete"`
	Sections        []SectionConfig `mapstructure:"sections"`
}

// SectionConfig describes one deck section. Source is empty for static
// sections.
type SectionConfig struct {
	ID     string `mapstructure:"id"`
	Title  string `mapstructure:"title"`
	Source string `mapstructure:"source"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AUDIT")
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
	v.SetDefault("audit.workers", 4)
	v.SetDefault("audit.queue_depth", 64)
	v.SetDefault("audit.source_timeout_seconds", 300)
	v.SetDefault("audit.retry_delay_ms", 2000)
	v.SetDefault("audit.max_pages_default", 200)
	v.SetDefault("providers.dataforseo.base_url", "https://api.dataforseo.com/v3")
	v.SetDefault("providers.dataforseo.timeout_seconds", 90)
	v.SetDefault("providers.dataforseo.poll_interval_seconds", 10)
	v.SetDefault("providers.dataforseo.rate_per_second", 5)
	v.SetDefault("providers.dataforseo.burst", 5)
	v.SetDefault("providers.pagespeed.strategy", "mobile")
	v.SetDefault("providers.pagespeed.timeout_seconds", 90)
	v.SetDefault("providers.pagespeed.rate_per_second", 1)
	v.SetDefault("providers.pagespeed.burst", 2)
	v.SetDefault("storage.export_prefix", "exports")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("pubsub.topic_name", "audit-completions")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Audit.Workers <= 0 {
		return fmt.Errorf("audit.workers must be > 0")
	}
	if c.Audit.QueueDepth <= 0 {
		return fmt.Errorf("audit.queue_depth must be > 0")
	}
	if c.Audit.SourceTimeoutSeconds <= 0 {
		return fmt.Errorf("audit.source_timeout_seconds must be > 0")
	}
	if c.Providers.DataForSEO.TimeoutSeconds <= 0 {
		return fmt.Errorf("providers.dataforseo.timeout_seconds must be > 0")
	}
	if c.Providers.PageSpeed.TimeoutSeconds <= 0 {
		return fmt.Errorf("providers.pagespeed.timeout_seconds must be > 0")
	}
	switch c.Providers.PageSpeed.Strategy {
	case "mobile", "desktop":
	default:
		return fmt.Errorf("providers.pagespeed.strategy must be mobile or desktop")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// SourceTimeout converts the audit source timeout to a duration.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Audit.SourceTimeoutSeconds) * time.Second
}

// RetryDelay converts the retry delay to a duration.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.Audit.RetryDelayMs) * time.Millisecond
}
