// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Search   SearchConfig   `mapstructure:"search"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs the crawl engine and the async worker pool.
type CrawlerConfig struct {
	Concurrency         int  `mapstructure:"concurrency"`
	Workers             int  `mapstructure:"workers"`
	QueueDepth          int  `mapstructure:"queue_depth"`
	MaxDepthDefault     int  `mapstructure:"max_depth_default"`
	MaxPagesDefault     int  `mapstructure:"max_pages_default"`
	SameOriginDefault   bool `mapstructure:"same_origin_default"`
	PolitenessDelayMs   int  `mapstructure:"politeness_delay_ms"`
	TextLimit           int  `mapstructure:"text_limit"`
	PreflightSeed       bool `mapstructure:"preflight_seed"`
	MaxPagesLimit       int  `mapstructure:"max_pages_limit"`
	ProgressBuffer      int  `mapstructure:"progress_buffer"`
	ProgressLogEnabled  bool `mapstructure:"progress_log_enabled"`
	ProgressFlushMillis int  `mapstructure:"progress_flush_ms"`
}

// HTTPConfig holds fetch timeouts per operation.
type HTTPConfig struct {
	CrawlTimeoutSeconds  int    `mapstructure:"crawl_timeout_seconds"`
	MapTimeoutSeconds    int    `mapstructure:"map_timeout_seconds"`
	SearchTimeoutSeconds int    `mapstructure:"search_timeout_seconds"`
	ResultTimeoutSeconds int    `mapstructure:"result_timeout_seconds"`
	UserAgent            string `mapstructure:"user_agent"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// SearchConfig configures the search mode.
type SearchConfig struct {
	Endpoint          string  `mapstructure:"endpoint"`
	MaxResultsDefault int     `mapstructure:"max_results_default"`
	PerHostRPS        float64 `mapstructure:"per_host_rps"`
	Burst             int     `mapstructure:"burst"`
	Parallel          int     `mapstructure:"parallel"`
}

// StorageConfig selects where finished reports are archived.
type StorageConfig struct {
	Backend  string `mapstructure:"backend"`
	Bucket   string `mapstructure:"bucket"`
	LocalDir string `mapstructure:"local_dir"`
	Prefix   string `mapstructure:"prefix"`
}

// DBConfig controls access to the page archive database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int    `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// TracingConfig toggles OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	ProjectID   string `mapstructure:"project_id"`
}

// LoggingConfig selects the zap preset and the minimum level.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
	// Level is a zap level name: debug, info, warn, error.
	Level string `mapstructure:"level"`
}

// Storage backends.
const (
	StorageNone   = "none"
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageGCS    = "gcs"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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

// Default returns the configuration Load produces with no file and no
// environment overrides.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults alone always decode.
	_ = v.Unmarshal(&cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 120)
	v.SetDefault("crawler.concurrency", 1)
	v.SetDefault("crawler.workers", 2)
	v.SetDefault("crawler.queue_depth", 64)
	v.SetDefault("crawler.max_depth_default", 2)
	v.SetDefault("crawler.max_pages_default", 20)
	v.SetDefault("crawler.same_origin_default", true)
	v.SetDefault("crawler.politeness_delay_ms", 500)
	v.SetDefault("crawler.text_limit", 3000)
	v.SetDefault("crawler.preflight_seed", false)
	v.SetDefault("crawler.max_pages_limit", 500)
	v.SetDefault("crawler.progress_buffer", 1024)
	v.SetDefault("crawler.progress_log_enabled", false)
	v.SetDefault("crawler.progress_flush_ms", 250)
	v.SetDefault("http.crawl_timeout_seconds", 10)
	v.SetDefault("http.map_timeout_seconds", 15)
	v.SetDefault("http.search_timeout_seconds", 15)
	v.SetDefault("http.result_timeout_seconds", 10)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 30)
	v.SetDefault("headless.promotion_threshold", 200)
	v.SetDefault("search.endpoint", "https://html.duckduckgo.com/html/")
	v.SetDefault("search.max_results_default", 10)
	v.SetDefault("search.per_host_rps", 2)
	v.SetDefault("search.burst", 1)
	v.SetDefault("search.parallel", 1)
	v.SetDefault("storage.backend", StorageMemory)
	v.SetDefault("storage.local_dir", "reports")
	v.SetDefault("storage.prefix", "reports")
	v.SetDefault("db.table", "crawl_pages")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "sitecrawler")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Crawler.MaxDepthDefault < 0 {
		return fmt.Errorf("crawler.max_depth_default must be >= 0")
	}
	if c.Crawler.MaxPagesDefault <= 0 {
		return fmt.Errorf("crawler.max_pages_default must be > 0")
	}
	if c.Crawler.MaxPagesLimit > 0 && c.Crawler.MaxPagesDefault > c.Crawler.MaxPagesLimit {
		return fmt.Errorf("crawler.max_pages_default must not exceed crawler.max_pages_limit")
	}
	if c.Crawler.PolitenessDelayMs < 0 {
		return fmt.Errorf("crawler.politeness_delay_ms must be >= 0")
	}
	if c.HTTP.CrawlTimeoutSeconds <= 0 {
		return fmt.Errorf("http.crawl_timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Backend {
	case "", StorageNone, StorageMemory:
	case StorageLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for the local backend")
		}
	case StorageGCS:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is")
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// PolitenessDelay is the pause between crawl iterations.
func (c Config) PolitenessDelay() time.Duration {
	return time.Duration(c.Crawler.PolitenessDelayMs) * time.Millisecond
}

// CrawlTimeout bounds one page fetch on the crawl and scrape paths.
func (c Config) CrawlTimeout() time.Duration {
	return seconds(c.HTTP.CrawlTimeoutSeconds)
}

// MapTimeout bounds the map mode fetch.
func (c Config) MapTimeout() time.Duration {
	return seconds(c.HTTP.MapTimeoutSeconds)
}

// SearchTimeout bounds the search engine request.
func (c Config) SearchTimeout() time.Duration {
	return seconds(c.HTTP.SearchTimeoutSeconds)
}

// ResultTimeout bounds each search hit fetch.
func (c Config) ResultTimeout() time.Duration {
	return seconds(c.HTTP.ResultTimeoutSeconds)
}

// RequestTimeout bounds one API request.
func (c Config) RequestTimeout() time.Duration {
	return seconds(c.Server.RequestTimeoutSeconds)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
