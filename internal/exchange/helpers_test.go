package exchange

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/johnayoung/go-okx-history/internal/metrics"
	"github.com/johnayoung/go-okx-history/internal/ratelimit"
)

// createTestLogger creates a logger that discards output for testing
func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type recordedCall struct {
	URL *url.URL
	At  time.Time
}

// mockTransport is an in-memory http.RoundTripper. handler receives the zero-based
// call index and the request.
type mockTransport struct {
	mu      sync.Mutex
	calls   []recordedCall
	handler func(call int, req *http.Request) (*http.Response, error)
}

func (m *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	idx := len(m.calls)
	m.calls = append(m.calls, recordedCall{URL: req.URL, At: time.Now()})
	m.mu.Unlock()

	resp, err := m.handler(idx, req)
	if resp != nil && resp.Request == nil {
		resp.Request = req
	}
	return resp, err
}

func (m *mockTransport) Calls() []recordedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]recordedCall, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *mockTransport) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func newResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// candleRow renders one OKX history row with every price equal to price.
func candleRow(ts time.Time, price string) []string {
	return []string{strconv.FormatInt(ts.UnixMilli(), 10), price, price, price, price, "10.5", "1000", "1000", "1"}
}

func pageBody(rows ...[]string) string {
	if rows == nil {
		rows = [][]string{}
	}
	b, err := json.Marshal(map[string]any{"code": "0", "msg": "", "data": rows})
	if err != nil {
		panic(err)
	}
	return string(b)
}

// pagesTransport serves pages in order, then empty pages forever.
func pagesTransport(pages ...string) *mockTransport {
	return &mockTransport{handler: func(call int, _ *http.Request) (*http.Response, error) {
		if call < len(pages) {
			return newResponse(http.StatusOK, pages[call]), nil
		}
		return newResponse(http.StatusOK, pageBody()), nil
	}}
}

type testClientOptions struct {
	limiter *ratelimit.Limiter
	retry   *RetryPolicy
	config  OKXConfig
	metrics *metrics.FetchMetrics
}

func newTestClient(transport http.RoundTripper, opts testClientOptions) *OKXClient {
	logger := createTestLogger()
	caller := Caller(NewHTTPCaller(HTTPCallerConfig{
		Client:  &http.Client{Transport: transport},
		Limiter: opts.limiter,
		Logger:  logger,
		Metrics: opts.metrics,
	}))
	if opts.retry != nil {
		caller = NewRetryingCaller(caller, *opts.retry, logger, opts.metrics)
	}

	cfg := opts.config
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://okx.test"
	}
	return NewOKXClient(caller, cfg, logger, opts.metrics)
}

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}
