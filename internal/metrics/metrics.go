// Package metrics keeps in-process counters for exchange calls and pagination.
// All methods are safe on a nil *FetchMetrics so components can treat metrics as optional.
package metrics

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// FetchMetrics aggregates counters across every fetch that shares it.
type FetchMetrics struct {
	startTime time.Time

	fetches        atomic.Int64
	failures       atomic.Int64
	requests       atomic.Int64
	retries        atomic.Int64
	rateLimitWaits atomic.Int64
	waitNanos      atomic.Int64
	pages          atomic.Int64
	candles        atomic.Int64
	duplicates     atomic.Int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Timestamp      time.Time     `json:"timestamp"`
	Uptime         time.Duration `json:"uptime"`
	Fetches        int64         `json:"fetches"`
	Failures       int64         `json:"failures"`
	Requests       int64         `json:"requests"`
	Retries        int64         `json:"retries"`
	RateLimitWaits int64         `json:"rate_limit_waits"`
	RateLimitWait  time.Duration `json:"rate_limit_wait"`
	Pages          int64         `json:"pages"`
	Candles        int64         `json:"candles"`
	Duplicates     int64         `json:"duplicates"`
	ErrorRate      float64       `json:"error_rate"`
}

func New() *FetchMetrics {
	return &FetchMetrics{startTime: time.Now()}
}

func (m *FetchMetrics) RecordFetch() {
	if m == nil {
		return
	}
	m.fetches.Add(1)
}

func (m *FetchMetrics) RecordFailure() {
	if m == nil {
		return
	}
	m.failures.Add(1)
}

// RecordRequest counts one call that actually reached the network.
func (m *FetchMetrics) RecordRequest() {
	if m == nil {
		return
	}
	m.requests.Add(1)
}

func (m *FetchMetrics) RecordRetry() {
	if m == nil {
		return
	}
	m.retries.Add(1)
}

// RecordRateLimitWait counts a suspension in the rate limiter and its length.
func (m *FetchMetrics) RecordRateLimitWait(d time.Duration) {
	if m == nil {
		return
	}
	m.rateLimitWaits.Add(1)
	m.waitNanos.Add(int64(d))
}

// RecordPage counts one non-empty page and the candles it carried.
func (m *FetchMetrics) RecordPage(candles int) {
	if m == nil {
		return
	}
	m.pages.Add(1)
	m.candles.Add(int64(candles))
}

func (m *FetchMetrics) RecordDuplicates(n int) {
	if m == nil || n == 0 {
		return
	}
	m.duplicates.Add(int64(n))
}

// Snapshot returns the current counter values.
func (m *FetchMetrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{Timestamp: time.Now()}
	}

	fetches := m.fetches.Load()
	failures := m.failures.Load()
	var errorRate float64
	if fetches > 0 {
		errorRate = float64(failures) / float64(fetches) * 100
	}

	return Snapshot{
		Timestamp:      time.Now(),
		Uptime:         time.Since(m.startTime),
		Fetches:        fetches,
		Failures:       failures,
		Requests:       m.requests.Load(),
		Retries:        m.retries.Load(),
		RateLimitWaits: m.rateLimitWaits.Load(),
		RateLimitWait:  time.Duration(m.waitNanos.Load()),
		Pages:          m.pages.Load(),
		Candles:        m.candles.Load(),
		Duplicates:     m.duplicates.Load(),
		ErrorRate:      errorRate,
	}
}

// LogValue renders the snapshot as a slog group.
func (s Snapshot) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("fetches", s.Fetches),
		slog.Int64("failures", s.Failures),
		slog.Int64("requests", s.Requests),
		slog.Int64("retries", s.Retries),
		slog.Int64("rate_limit_waits", s.RateLimitWaits),
		slog.Duration("rate_limit_wait", s.RateLimitWait),
		slog.Int64("pages", s.Pages),
		slog.Int64("candles", s.Candles),
		slog.Int64("duplicates", s.Duplicates),
	)
}
