package metrics

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFetchMetrics_Counters(t *testing.T) {
	m := New()

	m.RecordFetch()
	m.RecordFetch()
	m.RecordFailure()
	m.RecordRequest()
	m.RecordRequest()
	m.RecordRequest()
	m.RecordRetry()
	m.RecordRateLimitWait(2 * time.Second)
	m.RecordRateLimitWait(3 * time.Second)
	m.RecordPage(100)
	m.RecordPage(40)
	m.RecordDuplicates(1)
	m.RecordDuplicates(0)

	s := m.Snapshot()
	assert.Equal(t, int64(2), s.Fetches)
	assert.Equal(t, int64(1), s.Failures)
	assert.Equal(t, int64(3), s.Requests)
	assert.Equal(t, int64(1), s.Retries)
	assert.Equal(t, int64(2), s.RateLimitWaits)
	assert.Equal(t, 5*time.Second, s.RateLimitWait)
	assert.Equal(t, int64(2), s.Pages)
	assert.Equal(t, int64(140), s.Candles)
	assert.Equal(t, int64(1), s.Duplicates)
	assert.Equal(t, 50.0, s.ErrorRate)
}

func TestFetchMetrics_NilSafe(t *testing.T) {
	var m *FetchMetrics

	assert.NotPanics(t, func() {
		m.RecordFetch()
		m.RecordRequest()
		m.RecordRateLimitWait(time.Second)
		m.RecordPage(10)
	})
	assert.Equal(t, int64(0), m.Snapshot().Requests)
}

func TestFetchMetrics_Concurrent(t *testing.T) {
	m := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordRequest()
			m.RecordPage(2)
		}()
	}
	wg.Wait()

	s := m.Snapshot()
	assert.Equal(t, int64(50), s.Requests)
	assert.Equal(t, int64(100), s.Candles)
}

func TestSnapshot_LogValue(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	m := New()
	m.RecordRequest()
	logger.Info("summary", "metrics", m.Snapshot())

	assert.Contains(t, buf.String(), "metrics.requests=1")
}
