// Package config loads application configuration from file and environment
// and initializes the global logger.
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
	Store      StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Feeds      FeedsConfig     `yaml:"feeds" mapstructure:"feeds"`
	Fetch      FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Pipeline   PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Batch      BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Heuristics string          `yaml:"heuristics" mapstructure:"heuristics"`
	Server     ServerConfig    `yaml:"server" mapstructure:"server"`
	Log        LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// FeedsConfig lists the RSS feeds polled for announcements.
type FeedsConfig struct {
	URLs []string `yaml:"urls" mapstructure:"urls"`
}

// FetchConfig configures the HTTP fetcher used by the free tiers.
type FetchConfig struct {
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	PerHostRate   float64 `yaml:"per_host_rate" mapstructure:"per_host_rate"`
	PerHostBurst  int     `yaml:"per_host_burst" mapstructure:"per_host_burst"`
	RedirectProbe bool    `yaml:"redirect_probe" mapstructure:"redirect_probe"`
}

// PipelineConfig configures extraction and cost behavior.
type PipelineConfig struct {
	EnableLLM    bool    `yaml:"enable_llm" mapstructure:"enable_llm"`
	RunBudgetUSD float64 `yaml:"run_budget_usd" mapstructure:"run_budget_usd"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the HTTP intake server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("INTAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "intake.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.per_host_rate", 2)
	v.SetDefault("fetch.per_host_burst", 4)
	v.SetDefault("fetch.redirect_probe", true)
	v.SetDefault("pipeline.enable_llm", false)
	v.SetDefault("pipeline.run_budget_usd", 5.00)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")

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
