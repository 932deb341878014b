package collector

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/johnayoung/go-okx-history/internal/errors"
	"github.com/johnayoung/go-okx-history/internal/exchange"
	"github.com/johnayoung/go-okx-history/internal/models"
)

// MockFetcher is a mock implementation of exchange.CandleFetcher
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, symbol, interval, start, end string) (*models.Table, error) {
	args := m.Called(ctx, symbol, interval, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Table), args.Error(1)
}

func (m *MockFetcher) FetchCandles(ctx context.Context, req exchange.FetchRequest) (*models.Table, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Table), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	rangeStart = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	rangeEnd   = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
)

func tableOf(t *testing.T, symbol string, n int) *models.Table {
	t.Helper()
	candles := make([]models.Candle, 0, n)
	for i := 0; i < n; i++ {
		c, err := models.NewCandle(rangeStart.Add(time.Duration(i)*time.Hour), "10", "11", "9", "10.5", "3")
		require.NoError(t, err)
		candles = append(candles, *c)
	}
	table, _ := models.NewTable(symbol, "1h", candles)
	return table
}

func forSymbol(symbol string) any {
	return mock.MatchedBy(func(req exchange.FetchRequest) bool { return req.Symbol == symbol })
}

func TestRequests(t *testing.T) {
	reqs := Requests([]string{"BTC-USDT", "ETH-USDT"}, "4h", rangeStart, rangeEnd)

	require.Len(t, reqs, 2)
	assert.Equal(t, exchange.FetchRequest{Symbol: "ETH-USDT", Interval: "4h", Start: rangeStart, End: rangeEnd}, reqs[1])
}

func TestFetchMany_PreservesRequestOrder(t *testing.T) {
	fetcher := &MockFetcher{}
	symbols := []string{"BTC-USDT", "ETH-USDT", "SOL-USDT", "XRP-USDT", "DOGE-USDT"}
	for i, symbol := range symbols {
		fetcher.On("FetchCandles", mock.Anything, forSymbol(symbol)).Return(tableOf(t, symbol, i+1), nil).Once()
	}

	c := New(fetcher, Config{Workers: 2, Logger: testLogger()}, nil)
	results, err := c.FetchMany(context.Background(), Requests(symbols, "1h", rangeStart, rangeEnd))
	require.NoError(t, err)

	require.Len(t, results, len(symbols))
	for i, r := range results {
		assert.Equal(t, symbols[i], r.Request.Symbol)
		assert.Equal(t, symbols[i], r.Table.Symbol)
		assert.Equal(t, i+1, r.Table.Len())
	}
	fetcher.AssertExpectations(t)
}

func TestFetchMany_ValidatesBeforeFetching(t *testing.T) {
	fetcher := &MockFetcher{}
	c := New(fetcher, Config{Logger: testLogger()}, nil)

	reqs := Requests([]string{"BTC-USDT", "ETH-USDT"}, "1h", rangeStart, rangeEnd)
	reqs[1].Interval = "2h"

	_, err := c.FetchMany(context.Background(), reqs)
	require.Error(t, err)

	var validationErr *apperrors.ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "interval", validationErr.Field)
	assert.Contains(t, err.Error(), "ETH-USDT")
	fetcher.AssertNotCalled(t, "FetchCandles", mock.Anything, mock.Anything)
}

func TestFetchMany_Empty(t *testing.T) {
	c := New(&MockFetcher{}, Config{Logger: testLogger()}, nil)

	results, err := c.FetchMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

// blockingFetcher holds every fetch for delay and tracks peak concurrency.
type blockingFetcher struct {
	delay    time.Duration
	failOn   string
	inFlight atomic.Int32
	peak     atomic.Int32
	canceled atomic.Int32
}

func (f *blockingFetcher) Fetch(ctx context.Context, symbol, interval, start, end string) (*models.Table, error) {
	req, err := exchange.NewFetchRequest(symbol, interval, start, end)
	if err != nil {
		return nil, err
	}
	return f.FetchCandles(ctx, req)
}

func (f *blockingFetcher) FetchCandles(ctx context.Context, req exchange.FetchRequest) (*models.Table, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	if req.Symbol == f.failOn {
		return nil, &apperrors.FetchError{
			Symbol: req.Symbol, Interval: req.Interval, Start: req.Start, End: req.End,
			Stage: apperrors.StageTransport,
			Err:   &apperrors.TransportError{URL: "https://okx.test", StatusCode: 500, Body: "boom"},
		}
	}

	select {
	case <-time.After(f.delay):
		return models.EmptyTable(req.Symbol, req.Interval), nil
	case <-ctx.Done():
		f.canceled.Add(1)
		return nil, ctx.Err()
	}
}

func TestFetchMany_RespectsWorkerLimit(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		fetcher := &blockingFetcher{delay: time.Second}
		c := New(fetcher, Config{Workers: 3, Logger: testLogger()}, nil)

		symbols := []string{"A-USDT", "B-USDT", "C-USDT", "D-USDT", "E-USDT", "F-USDT", "G-USDT"}
		start := time.Now()
		results, err := c.FetchMany(context.Background(), Requests(symbols, "1m", rangeStart, rangeEnd))
		require.NoError(t, err)

		assert.Len(t, results, len(symbols))
		assert.Equal(t, int32(3), fetcher.peak.Load())
		assert.Equal(t, 3*time.Second, time.Since(start), "seven fetches in waves of three")
	})
}

func TestFetchMany_FailFast(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		fetcher := &blockingFetcher{delay: time.Hour, failOn: "BAD-USDT"}
		c := New(fetcher, Config{Workers: 4, Logger: testLogger()}, nil)

		symbols := []string{"BTC-USDT", "ETH-USDT", "BAD-USDT", "SOL-USDT"}
		results, err := c.FetchMany(context.Background(), Requests(symbols, "1h", rangeStart, rangeEnd))
		require.Error(t, err)
		assert.Nil(t, results)

		var fetchErr *apperrors.FetchError
		require.True(t, errors.As(err, &fetchErr))
		assert.Equal(t, "BAD-USDT", fetchErr.Symbol)
		assert.Equal(t, int32(3), fetcher.canceled.Load(), "the other fetches are canceled")
	})
}
