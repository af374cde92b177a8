package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Crawl     CrawlConfig     `yaml:"crawl" mapstructure:"crawl"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Tracker   TrackerConfig   `yaml:"tracker" mapstructure:"tracker"`
	Archive   ArchiveConfig   `yaml:"archive" mapstructure:"archive"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Export    ExportConfig    `yaml:"export" mapstructure:"export"`
	Ruleset   string          `yaml:"ruleset" mapstructure:"ruleset"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// CrawlConfig configures the polite fetcher and the scan worker pool.
type CrawlConfig struct {
	PerHostRPS    float64 `yaml:"per_host_rps" mapstructure:"per_host_rps"`
	MaxRetries    int     `yaml:"max_retries" mapstructure:"max_retries"`
	BackoffBase   float64 `yaml:"backoff_base" mapstructure:"backoff_base"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RespectRobots bool    `yaml:"respect_robots" mapstructure:"respect_robots"`
	MaxWorkers    int     `yaml:"max_workers" mapstructure:"max_workers"`
}

// EnrichConfig bounds the deep-enrichment walk.
type EnrichConfig struct {
	MaxLeads        int  `yaml:"max_leads" mapstructure:"max_leads"`
	MaxPagesPerLead int  `yaml:"max_pages_per_lead" mapstructure:"max_pages_per_lead"`
	SameDomainOnly  bool `yaml:"same_domain_only" mapstructure:"same_domain_only"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

// TrackerConfig configures the engagement tracker.
type TrackerConfig struct {
	DBPath  string `yaml:"db_path" mapstructure:"db_path"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	DemoURL string `yaml:"demo_url" mapstructure:"demo_url"`
}

// ArchiveConfig configures the optional PostgreSQL snapshot archive. An
// empty DatabaseURL disables it.
type ArchiveConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig configures the optional pitch oracle. An empty Key
// disables it.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// ExportConfig configures report output.
type ExportConfig struct {
	OutDir string `yaml:"out_dir" mapstructure:"out_dir"`
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
	v.SetEnvPrefix("LEADR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("crawl.per_host_rps", 0.5)
	v.SetDefault("crawl.max_retries", 5)
	v.SetDefault("crawl.backoff_base", 1.7)
	v.SetDefault("crawl.timeout_secs", 12)
	v.SetDefault("crawl.respect_robots", true)
	v.SetDefault("crawl.max_workers", 8)
	v.SetDefault("enrich.max_leads", 25)
	v.SetDefault("enrich.max_pages_per_lead", 5)
	v.SetDefault("enrich.same_domain_only", true)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 5050)
	v.SetDefault("tracker.db_path", "./data/analytics.sqlite")
	v.SetDefault("tracker.base_url", "http://localhost:8787")
	v.SetDefault("tracker.demo_url", "http://localhost:8866")
	// Keys with empty defaults still need a SetDefault so AutomaticEnv
	// picks them up during Unmarshal.
	v.SetDefault("archive.database_url", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("ruleset", "")
	v.SetDefault("export.out_dir", "exports")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
