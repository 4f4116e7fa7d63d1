package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store         StoreConfig         `yaml:"store" mapstructure:"store"`
	Limits        LimitsConfig        `yaml:"limits" mapstructure:"limits"`
	Filter        FilterConfig        `yaml:"filter" mapstructure:"filter"`
	Embedding     EmbeddingConfig     `yaml:"embedding" mapstructure:"embedding"`
	News          NewsConfig          `yaml:"news" mapstructure:"news"`
	Phantombuster PhantombusterConfig `yaml:"phantombuster" mapstructure:"phantombuster"`
	Sources       []SourceConfig      `yaml:"sources" mapstructure:"sources"`
	Log           LogConfig           `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// BucketConfig configures one token bucket (capacity + refill rate).
type BucketConfig struct {
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst      int     `yaml:"burst" mapstructure:"burst"`
}

// LimitsConfig configures admission control for external calls.
type LimitsConfig struct {
	MaxConcurrentFetches int                     `yaml:"max_concurrent_fetches" mapstructure:"max_concurrent_fetches"`
	AcquireTimeoutSecs   int                     `yaml:"acquire_timeout_secs" mapstructure:"acquire_timeout_secs"`
	FetchTimeoutSecs     int                     `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	DefaultBucket        BucketConfig            `yaml:"default_bucket" mapstructure:"default_bucket"`
	SourceBuckets        map[string]BucketConfig `yaml:"source_buckets" mapstructure:"source_buckets"`
}

// AcquireTimeout returns the limiter wait timeout as a duration.
func (l LimitsConfig) AcquireTimeout() time.Duration {
	return time.Duration(l.AcquireTimeoutSecs) * time.Second
}

// FetchTimeout returns the per-plugin fetch timeout as a duration.
func (l LimitsConfig) FetchTimeout() time.Duration {
	return time.Duration(l.FetchTimeoutSecs) * time.Second
}

// FilterConfig configures the semantic relevance filter.
type FilterConfig struct {
	Threshold       float64  `yaml:"threshold" mapstructure:"threshold"`
	MaxEmbedChars   int      `yaml:"max_embed_chars" mapstructure:"max_embed_chars"`
	EmbedRetries    int      `yaml:"embed_retries" mapstructure:"embed_retries"`
	ContextKeywords []string `yaml:"context_keywords" mapstructure:"context_keywords"`
}

// EmbeddingConfig configures the embedding backend.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"`
	Host      string `yaml:"host" mapstructure:"host"`
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	Dimension int    `yaml:"dimension" mapstructure:"dimension"`
}

// NewsConfig configures the news-feed plugin.
type NewsConfig struct {
	Feeds           []string `yaml:"feeds" mapstructure:"feeds"`
	FeedTimeoutSecs int      `yaml:"feed_timeout_secs" mapstructure:"feed_timeout_secs"`
}

// PhantombusterConfig configures the professional-network profile plugin.
type PhantombusterConfig struct {
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	Key             string `yaml:"key" mapstructure:"key"`
	FinderAgentID   string `yaml:"finder_agent_id" mapstructure:"finder_agent_id"`
	ScraperAgentID  string `yaml:"scraper_agent_id" mapstructure:"scraper_agent_id"`
	ActivityAgentID string `yaml:"activity_agent_id" mapstructure:"activity_agent_id"`
	MaxPosts        int    `yaml:"max_posts" mapstructure:"max_posts"`
}

// SourceConfig activates one named source backed by a registered plugin.
type SourceConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Plugin  string `yaml:"plugin" mapstructure:"plugin"`
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SIGNAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "signal-ingest.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("limits.max_concurrent_fetches", 3)
	v.SetDefault("limits.acquire_timeout_secs", 30)
	v.SetDefault("limits.fetch_timeout_secs", 120)
	v.SetDefault("limits.default_bucket.rate_per_sec", 1.0)
	v.SetDefault("limits.default_bucket.burst", 3)
	v.SetDefault("filter.threshold", 0.35)
	v.SetDefault("filter.max_embed_chars", 2000)
	v.SetDefault("filter.embed_retries", 3)
	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.host", "http://localhost:11434/v1")
	v.SetDefault("embedding.model", "all-minilm")
	v.SetDefault("embedding.dimension", 384)
	v.SetDefault("news.feed_timeout_secs", 30)
	v.SetDefault("phantombuster.base_url", "https://api.phantombuster.com/api/v2")
	v.SetDefault("phantombuster.max_posts", 3)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
