// Package collector fetches the candle history of several instruments at once.
//
// All fetches share one CandleFetcher, and therefore one rate budget; the
// worker limit only bounds how many paginations are in flight.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/johnayoung/go-okx-history/internal/exchange"
	"github.com/johnayoung/go-okx-history/internal/logger"
	"github.com/johnayoung/go-okx-history/internal/metrics"
	"github.com/johnayoung/go-okx-history/internal/models"
)

// DefaultWorkerCount defines default number of concurrent fetches
const DefaultWorkerCount = 4

// Result is the outcome of one request of a batch.
type Result struct {
	Request  exchange.FetchRequest
	Table    *models.Table
	Duration time.Duration
}

// Config configures the collector behavior
type Config struct {
	Workers int
	Logger  *slog.Logger
}

// Collector runs batches of fetch requests.
type Collector struct {
	fetcher exchange.CandleFetcher
	workers int
	logger  *slog.Logger
	metrics *metrics.FetchMetrics
}

// New creates a Collector on top of fetcher. Workers <= 0 uses DefaultWorkerCount.
func New(fetcher exchange.CandleFetcher, cfg Config, m *metrics.FetchMetrics) *Collector {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkerCount
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Collector{
		fetcher: fetcher,
		workers: cfg.Workers,
		logger:  cfg.Logger,
		metrics: m,
	}
}

// Requests expands symbols into one request each over the same interval and range.
func Requests(symbols []string, interval string, start, end time.Time) []exchange.FetchRequest {
	reqs := make([]exchange.FetchRequest, 0, len(symbols))
	for _, symbol := range symbols {
		reqs = append(reqs, exchange.FetchRequest{
			Symbol:   symbol,
			Interval: interval,
			Start:    start,
			End:      end,
		})
	}
	return reqs
}

// FetchMany fetches every request and returns the results in request order.
//
// Every request is validated before the first network call. The first failure
// cancels the fetches still running and is returned; no partial results are.
func (c *Collector) FetchMany(ctx context.Context, reqs []exchange.FetchRequest) ([]Result, error) {
	for i, req := range reqs {
		if _, err := req.Validate(); err != nil {
			return nil, fmt.Errorf("request %d (%s): %w", i, req.Symbol, err)
		}
	}
	if len(reqs) == 0 {
		return nil, nil
	}

	ctx = logger.WithBatchID(ctx, logger.NewID())
	ctx = logger.WithOperation(ctx, "fetch_many")
	c.logger.InfoContext(ctx, "starting batch", "requests", len(reqs), "workers", c.workers)

	results := make([]Result, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	batchStart := time.Now()
	for i, req := range reqs {
		g.Go(func() error {
			fetchCtx := logger.WithSymbol(gctx, req.Symbol)
			started := time.Now()

			var table *models.Table
			err := logger.TimedOperationWithContext(fetchCtx, c.logger, "fetch", func() error {
				var err error
				table, err = c.fetcher.FetchCandles(fetchCtx, req)
				return err
			})
			if err != nil {
				return err
			}

			results[i] = Result{Request: req, Table: table, Duration: time.Since(started)}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		c.logger.ErrorContext(ctx, "batch failed", "error", err)
		return nil, err
	}

	total := 0
	for _, r := range results {
		total += r.Table.Len()
	}
	c.logger.InfoContext(ctx, "batch completed",
		"requests", len(reqs),
		"candles", total,
		"duration", time.Since(batchStart),
		"metrics", c.metrics.Snapshot())

	return results, nil
}
