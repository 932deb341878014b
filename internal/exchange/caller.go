package exchange

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "github.com/johnayoung/go-okx-history/internal/errors"
	"github.com/johnayoung/go-okx-history/internal/metrics"
	"github.com/johnayoung/go-okx-history/internal/ratelimit"
)

const (
	requestTimeout   = 30 * time.Second
	defaultUserAgent = "go-okx-history/1.0"

	// waits shorter than this are scheduling noise, not throttling
	minReportedWait = time.Millisecond
)

// Retry configuration
const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 30 * time.Second
	defaultMultiplier     = 2.0
	defaultJitter         = 0.5
)

// HTTPCaller is the rate-limited Caller. Each Get takes exactly one slot from
// the limiter and issues exactly one request.
type HTTPCaller struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	userAgent  string
	logger     *slog.Logger
	metrics    *metrics.FetchMetrics
}

// HTTPCallerConfig configures an HTTPCaller. Zero fields take defaults: a
// client with a 30s timeout, a 20 calls/60s limiter and slog.Default().
type HTTPCallerConfig struct {
	Client    *http.Client
	Limiter   *ratelimit.Limiter
	UserAgent string
	Logger    *slog.Logger
	Metrics   *metrics.FetchMetrics
}

var _ Caller = (*HTTPCaller)(nil)

// NewHTTPCaller creates the rate-limited caller.
func NewHTTPCaller(cfg HTTPCallerConfig) *HTTPCaller {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: requestTimeout}
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.New(ratelimit.DefaultLimit, ratelimit.DefaultWindow)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &HTTPCaller{
		httpClient: cfg.Client,
		limiter:    cfg.Limiter,
		userAgent:  cfg.UserAgent,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
}

// Get waits for rate budget, then performs the request. Anything but 200 is a
// *errors.TransportError; it is not retried here.
func (c *HTTPCaller) Get(ctx context.Context, url string) ([]byte, error) {
	waitStart := time.Now()
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limit: %w", err)
	}
	if waited := time.Since(waitStart); waited >= minReportedWait {
		c.metrics.RecordRateLimitWait(waited)
		c.logger.DebugContext(ctx, "rate limit wait", "waited", waited)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	c.metrics.RecordRequest()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("request %s aborted: %w", url, ctxErr)
		}
		return nil, &apperrors.TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperrors.TransportError{URL: url, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.WarnContext(ctx, "exchange returned non-success status",
			"status", resp.StatusCode, "url", url)
		return nil, &apperrors.TransportError{URL: url, StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}

// RetryPolicy bounds retries of transient failures. MaxAttempts counts the
// first attempt, so 1 disables retrying.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Jitter          float64
}

// DefaultRetryPolicy returns three attempts with exponential backoff from 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     defaultMaxAttempts,
		InitialInterval: defaultInitialBackoff,
		MaxInterval:     defaultMaxBackoff,
		Multiplier:      defaultMultiplier,
		Jitter:          defaultJitter,
	}
}

// RetryingCaller retries transient failures of the wrapped Caller with
// exponential backoff. Every attempt goes through the wrapped Caller, so only
// attempts that reach the network consume rate budget.
type RetryingCaller struct {
	next    Caller
	policy  RetryPolicy
	logger  *slog.Logger
	metrics *metrics.FetchMetrics
}

var _ Caller = (*RetryingCaller)(nil)

// NewRetryingCaller wraps next with policy.
func NewRetryingCaller(next Caller, policy RetryPolicy, logger *slog.Logger, m *metrics.FetchMetrics) *RetryingCaller {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryingCaller{next: next, policy: policy, logger: logger, metrics: m}
}

// Get returns the first successful body, the first permanent error, or the
// last transient error once attempts are exhausted.
func (r *RetryingCaller) Get(ctx context.Context, url string) ([]byte, error) {
	if r.policy.MaxAttempts <= 1 {
		return r.next.Get(ctx, url)
	}

	var (
		body    []byte
		attempt int
	)
	operation := func() error {
		attempt++
		var err error
		body, err = r.next.Get(ctx, url)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !apperrors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, delay time.Duration) {
		r.metrics.RecordRetry()
		r.logger.WarnContext(ctx, "retrying exchange call",
			"attempt", attempt,
			"max_attempts", r.policy.MaxAttempts,
			"delay", delay,
			"error_type", apperrors.Classify(err),
			"error", err)
	}

	if err := backoff.RetryNotify(operation, r.backOff(ctx), notify); err != nil {
		return nil, err
	}
	return body, nil
}

func (r *RetryingCaller) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.InitialInterval
	b.MaxInterval = r.policy.MaxInterval
	b.Multiplier = r.policy.Multiplier
	b.RandomizationFactor = r.policy.Jitter
	b.MaxElapsedTime = 0 // bounded by attempts and ctx
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.policy.MaxAttempts-1)), ctx)
}
