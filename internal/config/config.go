// Package config loads application configuration from defaults, an optional
// YAML/JSON file and OKX_-prefixed environment variables, in that order of precedence.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	apperrors "github.com/johnayoung/go-okx-history/internal/errors"
)

// EnvPrefix is prepended to every environment override, e.g. OKX_RATE_LIMIT_MAX_CALLS.
const EnvPrefix = "OKX"

// AppConfig represents the complete application configuration
type AppConfig struct {
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Output    OutputConfig    `mapstructure:"output"`
}

// ExchangeConfig holds HTTP settings for the OKX REST API
type ExchangeConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// RateLimitConfig is the rolling-window call budget shared by every fetch
type RateLimitConfig struct {
	MaxCalls int           `mapstructure:"max_calls"`
	Window   time.Duration `mapstructure:"window"`
}

// RetryConfig bounds retries of transient exchange failures.
// MaxAttempts counts the first attempt; 1 disables retrying.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	Jitter          float64       `mapstructure:"jitter"`
}

// FetchConfig controls pagination
type FetchConfig struct {
	PageDelay time.Duration `mapstructure:"page_delay"`
	PageLimit int           `mapstructure:"page_limit"` // 0 leaves the exchange default
	MaxPages  int           `mapstructure:"max_pages"`  // 0 means until the feed is exhausted
	Workers   int           `mapstructure:"workers"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level         string            `mapstructure:"level"`
	Format        string            `mapstructure:"format"`
	Output        string            `mapstructure:"output"`
	FilePath      string            `mapstructure:"file_path"`
	MaxSize       int               `mapstructure:"max_size"` // MB
	MaxBackups    int               `mapstructure:"max_backups"`
	MaxAge        int               `mapstructure:"max_age"` // days
	Compress      bool              `mapstructure:"compress"`
	ContextFields map[string]string `mapstructure:"context_fields"`
}

// OutputConfig selects how fetched tables are written
type OutputConfig struct {
	Format    string `mapstructure:"format"`
	Directory string `mapstructure:"directory"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Exchange: ExchangeConfig{
			BaseURL:        "https://www.okx.com",
			RequestTimeout: 30 * time.Second,
			UserAgent:      "go-okx-history/1.0",
		},
		RateLimit: RateLimitConfig{
			MaxCalls: 20,
			Window:   60 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:     3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     30 * time.Second,
			Multiplier:      2.0,
			Jitter:          0.5,
		},
		Fetch: FetchConfig{
			PageDelay: 100 * time.Millisecond,
			PageLimit: 0,
			MaxPages:  0,
			Workers:   4,
		},
		Logging: LoggingConfig{
			Level:         "info",
			Format:        "json",
			Output:        "stderr",
			FilePath:      "logs/okxhistory.log",
			MaxSize:       100,
			MaxBackups:    3,
			MaxAge:        28,
			Compress:      true,
			ContextFields: map[string]string{},
		},
		Output: OutputConfig{
			Format:    "csv",
			Directory: ".",
		},
	}
}

// ConfigManager loads and validates configuration
type ConfigManager struct {
	configPath string
	logger     *slog.Logger
	config     *AppConfig
}

// NewConfigManager creates a manager reading configPath, which may be empty.
func NewConfigManager(configPath string, logger *slog.Logger) *ConfigManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigManager{configPath: configPath, logger: logger}
}

// LoadConfig resolves defaults, file and environment and validates the result.
func (cm *ConfigManager) LoadConfig() (*AppConfig, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cm.configPath != "" {
		v.SetConfigFile(cm.configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", cm.configPath, err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cm.config = &cfg
	cm.logger.Debug("configuration loaded",
		"config_path", cm.configPath,
		"base_url", cfg.Exchange.BaseURL,
		"rate_limit", cfg.RateLimit.MaxCalls,
		"rate_window", cfg.RateLimit.Window,
		"log_level", cfg.Logging.Level)

	return &cfg, nil
}

// GetConfig returns the last loaded configuration, or nil.
func (cm *ConfigManager) GetConfig() *AppConfig {
	return cm.config
}

func setDefaults(v *viper.Viper, d *AppConfig) {
	v.SetDefault("exchange.base_url", d.Exchange.BaseURL)
	v.SetDefault("exchange.request_timeout", d.Exchange.RequestTimeout)
	v.SetDefault("exchange.user_agent", d.Exchange.UserAgent)

	v.SetDefault("rate_limit.max_calls", d.RateLimit.MaxCalls)
	v.SetDefault("rate_limit.window", d.RateLimit.Window)

	v.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.initial_interval", d.Retry.InitialInterval)
	v.SetDefault("retry.max_interval", d.Retry.MaxInterval)
	v.SetDefault("retry.multiplier", d.Retry.Multiplier)
	v.SetDefault("retry.jitter", d.Retry.Jitter)

	v.SetDefault("fetch.page_delay", d.Fetch.PageDelay)
	v.SetDefault("fetch.page_limit", d.Fetch.PageLimit)
	v.SetDefault("fetch.max_pages", d.Fetch.MaxPages)
	v.SetDefault("fetch.workers", d.Fetch.Workers)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("logging.file_path", d.Logging.FilePath)
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)
	v.SetDefault("logging.compress", d.Logging.Compress)

	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("output.directory", d.Output.Directory)
}

// Validate reports every problem at once.
func (c *AppConfig) Validate() error {
	var errs []string

	if c.Exchange.BaseURL == "" {
		errs = append(errs, "exchange.base_url is required")
	} else if u, err := url.Parse(c.Exchange.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, "exchange.base_url must be an absolute http(s) URL")
	}
	if c.Exchange.RequestTimeout <= 0 {
		errs = append(errs, "exchange.request_timeout must be greater than 0")
	}

	if c.RateLimit.MaxCalls <= 0 {
		errs = append(errs, "rate_limit.max_calls must be greater than 0")
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, "rate_limit.window must be greater than 0")
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry.max_attempts must be at least 1")
	}
	if c.Retry.InitialInterval <= 0 {
		errs = append(errs, "retry.initial_interval must be greater than 0")
	}
	if c.Retry.MaxInterval < c.Retry.InitialInterval {
		errs = append(errs, "retry.max_interval must not be less than retry.initial_interval")
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, "retry.multiplier must be at least 1")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		errs = append(errs, "retry.jitter must be between 0 and 1")
	}

	if c.Fetch.PageDelay < 0 {
		errs = append(errs, "fetch.page_delay must not be negative")
	}
	if c.Fetch.PageLimit < 0 || c.Fetch.PageLimit > 100 {
		errs = append(errs, "fetch.page_limit must be between 0 and 100")
	}
	if c.Fetch.MaxPages < 0 {
		errs = append(errs, "fetch.max_pages must not be negative")
	}
	if c.Fetch.Workers <= 0 {
		errs = append(errs, "fetch.workers must be greater than 0")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		errs = append(errs, "logging.format must be one of: json, text")
	}
	validLogOutputs := map[string]bool{"stdout": true, "stderr": true, "file": true}
	if !validLogOutputs[c.Logging.Output] {
		errs = append(errs, "logging.output must be one of: stdout, stderr, file")
	}
	if c.Logging.Output == "file" && c.Logging.FilePath == "" {
		errs = append(errs, "logging.file_path is required when logging.output is file")
	}

	validOutputFormats := map[string]bool{"table": true, "csv": true, "json": true, "parquet": true, "duckdb": true}
	if !validOutputFormats[c.Output.Format] {
		errs = append(errs, "output.format must be one of: table, csv, json, parquet, duckdb")
	}

	if len(errs) > 0 {
		return &apperrors.ValidationError{
			Field:   "config",
			Message: fmt.Sprintf("configuration validation errors:\n- %s", strings.Join(errs, "\n- ")),
		}
	}
	return nil
}
