// Package config loads and validates lead scraper configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/lead-scraper/internal/extract"
)

// Renderer modes.
const (
	RendererHeadless = "headless"
	RendererStatic   = "static"
	RendererDisabled = "disabled"
)

// Storage backends for exported files.
const (
	StorageNone   = ""
	StorageLocal  = "local"
	StorageMemory = "memory"
	StorageGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Renderer RendererConfig `mapstructure:"renderer"`
	Export   ExportConfig   `mapstructure:"export"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Progress ProgressConfig `mapstructure:"progress"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
	MaxURLsPerRequest      int `mapstructure:"max_urls_per_request"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// PipelineConfig governs the dispatcher and extraction behavior.
type PipelineConfig struct {
	Workers     int            `mapstructure:"workers"`
	SkipContact bool           `mapstructure:"skip_contact"`
	Categories  []extract.Rule `mapstructure:"categories"`
}

// RendererConfig configures how pages are rendered.
type RendererConfig struct {
	Mode              string  `mapstructure:"mode"`
	UserAgent         string  `mapstructure:"user_agent"`
	NavTimeoutSeconds int     `mapstructure:"nav_timeout_seconds"`
	SettleMillis      int     `mapstructure:"settle_millis"`
	MaxParallel       int     `mapstructure:"max_parallel"`
	DomainQPS         float64 `mapstructure:"domain_qps"`
	DomainBurst       int     `mapstructure:"domain_burst"`
	RespectRobots     bool    `mapstructure:"respect_robots"`
}

// ExportConfig selects the default export format.
type ExportConfig struct {
	Format string `mapstructure:"format"`
}

// StorageConfig sets where exported files are written.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	BufferSize         int  `mapstructure:"buffer_size"`
	MaxBatchEvents     int  `mapstructure:"max_batch_events"`
	MaxBatchWaitMillis int  `mapstructure:"max_batch_wait_millis"`
	LogEvents          bool `mapstructure:"log_events"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment. With an empty path it looks for
// leadscraper.yaml in the working directory and $HOME/.leadscraper, and a
// missing file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEADS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("leadscraper")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.leadscraper")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Pipeline.Categories) == 0 {
		cfg.Pipeline.Categories = append([]extract.Rule(nil), extract.DefaultRules...)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("server.max_urls_per_request", 500)
	v.SetDefault("pipeline.workers", 3)
	v.SetDefault("pipeline.skip_contact", false)
	v.SetDefault("renderer.mode", RendererHeadless)
	v.SetDefault("renderer.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	v.SetDefault("renderer.nav_timeout_seconds", 30)
	v.SetDefault("renderer.settle_millis", 500)
	v.SetDefault("renderer.max_parallel", 0)
	v.SetDefault("renderer.domain_qps", 0)
	v.SetDefault("renderer.domain_burst", 1)
	v.SetDefault("renderer.respect_robots", false)
	v.SetDefault("export.format", "csv")
	v.SetDefault("storage.backend", StorageNone)
	v.SetDefault("storage.local_dir", "data")
	v.SetDefault("storage.prefix", "leads")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 100)
	v.SetDefault("progress.max_batch_wait_millis", 250)
	v.SetDefault("progress.log_events", true)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be > 0")
	}
	for i, rule := range c.Pipeline.Categories {
		if strings.TrimSpace(rule.Keyword) == "" || strings.TrimSpace(rule.Label) == "" {
			return fmt.Errorf("pipeline.categories[%d] needs keyword and label", i)
		}
	}
	switch c.Renderer.Mode {
	case RendererHeadless, RendererStatic, RendererDisabled:
	default:
		return fmt.Errorf("renderer.mode %q must be headless, static or disabled", c.Renderer.Mode)
	}
	if c.Renderer.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("renderer.nav_timeout_seconds must be > 0")
	}
	if c.Renderer.MaxParallel < 0 {
		return fmt.Errorf("renderer.max_parallel must be >= 0")
	}
	if c.Renderer.DomainQPS < 0 {
		return fmt.Errorf("renderer.domain_qps must be >= 0")
	}
	switch strings.ToLower(c.Export.Format) {
	case "csv", "xlsx", "json":
	default:
		return fmt.Errorf("export.format %q must be csv, xlsx or json", c.Export.Format)
	}
	switch c.Storage.Backend {
	case StorageNone, StorageMemory:
	case StorageLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for the local backend")
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// NavTimeout is the per-render navigation budget.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Renderer.NavTimeoutSeconds) * time.Second
}

// Settle is the post-load delay before capturing the DOM. Zero disables it.
func (c Config) Settle() time.Duration {
	if c.Renderer.SettleMillis <= 0 {
		return -1
	}
	return time.Duration(c.Renderer.SettleMillis) * time.Millisecond
}

// ShutdownTimeout bounds graceful HTTP shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// ProgressWait is the hub's maximum batching delay.
func (c Config) ProgressWait() time.Duration {
	return time.Duration(c.Progress.MaxBatchWaitMillis) * time.Millisecond
}
