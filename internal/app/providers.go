// Package app holds the providers that assemble the fetch pipeline. The
// dependency graph itself is generated by Wire in cmd/okxhistory.
package app

import (
	"log/slog"
	"net/http"

	"github.com/google/wire"

	"github.com/johnayoung/go-okx-history/internal/collector"
	"github.com/johnayoung/go-okx-history/internal/config"
	"github.com/johnayoung/go-okx-history/internal/exchange"
	"github.com/johnayoung/go-okx-history/internal/export"
	"github.com/johnayoung/go-okx-history/internal/logger"
	"github.com/johnayoung/go-okx-history/internal/metrics"
	"github.com/johnayoung/go-okx-history/internal/ratelimit"
)

// Options are the command line values that take precedence over configuration.
type Options struct {
	ConfigPath string
	Format     string
	Workers    int
	LogLevel   string
}

// ProviderSet is everything InitializeApp needs apart from Options.
var ProviderSet = wire.NewSet(
	ProvideConfig,
	ProvideLogManager,
	ProvideLogger,
	ProvideMetrics,
	ProvideLimiter,
	ProvideCaller,
	ProvideOKXClient,
	wire.Bind(new(exchange.CandleFetcher), new(*exchange.OKXClient)),
	ProvideCollector,
	ProvideWriter,
)

// ProvideConfig loads configuration and applies the command line overrides.
func ProvideConfig(opts Options) (*config.AppConfig, error) {
	cfg, err := config.NewConfigManager(opts.ConfigPath, slog.Default()).LoadConfig()
	if err != nil {
		return nil, err
	}

	if opts.Format != "" {
		cfg.Output.Format = opts.Format
	}
	if opts.Workers > 0 {
		cfg.Fetch.Workers = opts.Workers
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProvideLogManager creates the log manager. The cleanup closes its output.
func ProvideLogManager(cfg *config.AppConfig) (*logger.Manager, func(), error) {
	m, err := logger.NewManager(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return m, func() { _ = m.Close() }, nil
}

// ProvideLogger returns the root logger and installs it as the slog default.
func ProvideLogger(m *logger.Manager) *slog.Logger {
	l := m.GetLogger()
	slog.SetDefault(l)
	return l
}

// ProvideMetrics creates the counters shared by every component.
func ProvideMetrics() *metrics.FetchMetrics {
	return metrics.New()
}

// ProvideLimiter creates the rate budget shared by every fetch of the process.
func ProvideLimiter(cfg *config.AppConfig) *ratelimit.Limiter {
	return ratelimit.New(cfg.RateLimit.MaxCalls, cfg.RateLimit.Window)
}

// ProvideCaller builds the rate-limited HTTP caller, wrapped with retries
// when more than one attempt is configured.
func ProvideCaller(cfg *config.AppConfig, limiter *ratelimit.Limiter, m *logger.Manager, fm *metrics.FetchMetrics) exchange.Caller {
	log := m.GetComponentLogger("caller")
	httpCaller := exchange.NewHTTPCaller(exchange.HTTPCallerConfig{
		Client:    &http.Client{Timeout: cfg.Exchange.RequestTimeout},
		Limiter:   limiter,
		UserAgent: cfg.Exchange.UserAgent,
		Logger:    log,
		Metrics:   fm,
	})
	if cfg.Retry.MaxAttempts <= 1 {
		return httpCaller
	}

	return exchange.NewRetryingCaller(httpCaller, exchange.RetryPolicy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
		Multiplier:      cfg.Retry.Multiplier,
		Jitter:          cfg.Retry.Jitter,
	}, log, fm)
}

// ProvideOKXClient creates the paginating client.
func ProvideOKXClient(cfg *config.AppConfig, caller exchange.Caller, m *logger.Manager, fm *metrics.FetchMetrics) *exchange.OKXClient {
	return exchange.NewOKXClient(caller, exchange.OKXConfig{
		BaseURL:   cfg.Exchange.BaseURL,
		PageDelay: cfg.Fetch.PageDelay,
		PageLimit: cfg.Fetch.PageLimit,
		MaxPages:  cfg.Fetch.MaxPages,
	}, m.GetComponentLogger("okx"), fm)
}

// ProvideCollector creates the multi-symbol collector.
func ProvideCollector(cfg *config.AppConfig, fetcher exchange.CandleFetcher, m *logger.Manager, fm *metrics.FetchMetrics) *collector.Collector {
	return collector.New(fetcher, collector.Config{
		Workers: cfg.Fetch.Workers,
		Logger:  m.GetComponentLogger("collector"),
	}, fm)
}

// ProvideWriter selects the output writer for the configured format.
func ProvideWriter(cfg *config.AppConfig, m *logger.Manager) (export.Writer, error) {
	return export.NewWriter(cfg.Output.Format, m.GetComponentLogger("export"))
}
