package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	apperrors "github.com/johnayoung/go-okx-history/internal/errors"
	"github.com/johnayoung/go-okx-history/internal/logger"
	"github.com/johnayoung/go-okx-history/internal/metrics"
	"github.com/johnayoung/go-okx-history/internal/models"
)

const (
	// DefaultBaseURL is the public OKX REST host
	DefaultBaseURL = "https://www.okx.com"

	historyCandlesEndpoint = "/api/v5/market/history-candles"

	// DefaultPageDelay is the courtesy gap between consecutive pages of one fetch
	DefaultPageDelay = 100 * time.Millisecond

	// row layout: ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm
	minRowFields = 6
)

// OKXConfig configures pagination.
type OKXConfig struct {
	BaseURL   string
	PageDelay time.Duration
	PageLimit int // sent as limit= when > 0
	MaxPages  int // 0 means until the feed is exhausted
}

// OKXClient implements CandleFetcher over the history-candles endpoint.
type OKXClient struct {
	caller    Caller
	baseURL   string
	pageDelay time.Duration
	pageLimit int
	maxPages  int
	logger    *slog.Logger
	metrics   *metrics.FetchMetrics
}

var _ CandleFetcher = (*OKXClient)(nil)

// NewOKXClient creates a paginating client on top of caller.
func NewOKXClient(caller Caller, cfg OKXConfig, logger *slog.Logger, m *metrics.FetchMetrics) *OKXClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OKXClient{
		caller:    caller,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		pageDelay: cfg.PageDelay,
		pageLimit: cfg.PageLimit,
		maxPages:  cfg.MaxPages,
		logger:    logger,
		metrics:   m,
	}
}

// Fetch parses the ISO-8601 bounds and fetches the candle history.
func (c *OKXClient) Fetch(ctx context.Context, symbol, interval, start, end string) (*models.Table, error) {
	if _, err := models.ParseInterval(interval); err != nil {
		return nil, err
	}
	req, err := NewFetchRequest(symbol, interval, start, end)
	if err != nil {
		return nil, err
	}
	return c.FetchCandles(ctx, req)
}

// FetchCandles walks the history feed from the start anchor until a page comes
// back empty, then returns the rows ascending and unique by timestamp.
func (c *OKXClient) FetchCandles(ctx context.Context, req FetchRequest) (*models.Table, error) {
	iv, err := req.Validate()
	if err != nil {
		return nil, err
	}

	ctx = logger.WithFetchID(ctx, logger.NewID())
	ctx = logger.WithSymbol(ctx, req.Symbol)
	ctx = logger.WithInterval(ctx, iv.Key)
	c.metrics.RecordFetch()

	if req.Empty() {
		c.logger.DebugContext(ctx, "empty range, nothing to fetch",
			"start", req.Start, "end", req.End)
		return models.EmptyTable(req.Symbol, iv.Key), nil
	}

	fail := func(stage apperrors.Stage, err error) error {
		c.metrics.RecordFailure()
		c.logger.ErrorContext(ctx, "fetch failed", "stage", stage, "error", err)
		return &apperrors.FetchError{
			Symbol:   req.Symbol,
			Interval: iv.Key,
			Start:    req.Start,
			End:      req.End,
			Stage:    stage,
			Err:      err,
			FetchID:  logger.GetFetchID(ctx),
		}
	}

	// rate.Every(0) is rate.Inf, which never waits
	pacer := rate.NewLimiter(rate.Every(c.pageDelay), 1)

	var (
		accumulated []models.Candle
		seen        = make(map[int64]struct{})
		cursor      = req.Start.UnixMilli()
		endTs       = req.End.UnixMilli()
		pages       int
	)

	for cursor < endTs {
		if c.maxPages > 0 && pages >= c.maxPages {
			c.logger.WarnContext(ctx, "page limit reached, stopping early",
				"max_pages", c.maxPages, "cursor", cursor)
			break
		}
		if err := pacer.Wait(ctx); err != nil {
			return nil, fail(apperrors.StageTransport, err)
		}

		pageURL := c.pageURL(req.Symbol, iv.Bar, cursor)
		body, err := c.caller.Get(ctx, pageURL)
		if err != nil {
			return nil, fail(apperrors.StageTransport, err)
		}

		rows, err := extractRows(body)
		if err != nil {
			var apiErr *apperrors.APIError
			if errors.As(err, &apiErr) {
				return nil, fail(apperrors.StageAPI, err)
			}
			return nil, fail(apperrors.StageDecode, err)
		}
		if len(rows) == 0 {
			c.logger.DebugContext(ctx, "feed exhausted", "cursor", cursor, "pages", pages)
			break
		}
		pages++

		next, err := rowTimestamp(rows[len(rows)-1])
		if err != nil {
			return nil, fail(apperrors.StageDecode, fmt.Errorf("page %d: last row: %w", pages, err))
		}

		fresh := 0
		for _, row := range rows {
			candle, err := c.parseRow(row)
			if err != nil {
				return nil, fail(apperrors.StageDecode, fmt.Errorf("page %d: row %s: %w", pages, row.Raw, err))
			}
			if _, dup := seen[candle.UnixMilli()]; !dup {
				seen[candle.UnixMilli()] = struct{}{}
				fresh++
			}
			accumulated = append(accumulated, *candle)
		}
		c.metrics.RecordPage(len(rows))
		c.logger.DebugContext(ctx, "page fetched",
			"page", pages, "rows", len(rows), "new", fresh, "cursor", cursor, "next_cursor", next)

		if fresh == 0 {
			c.logger.DebugContext(ctx, "page repeated known candles, stopping", "cursor", cursor)
			break
		}
		// the cursor only walks back in time; equal is allowed for a page that
		// ends exactly on the anchor
		if next > cursor {
			c.logger.WarnContext(ctx, "page ended after the cursor, stopping",
				"cursor", cursor, "next_cursor", next)
			break
		}
		cursor = next
	}

	if len(accumulated) == 0 {
		return models.EmptyTable(req.Symbol, iv.Key), nil
	}

	table, dropped := models.NewTable(req.Symbol, iv.Key, accumulated)
	c.metrics.RecordDuplicates(dropped)
	c.logger.InfoContext(ctx, "fetch completed",
		"pages", pages,
		"candles", table.Len(),
		"duplicates", dropped,
		"first", table.First(),
		"last", table.Last())

	return table, nil
}

func (c *OKXClient) pageURL(symbol, bar string, cursor int64) string {
	u := fmt.Sprintf("%s%s?instId=%s&bar=%s&after=%d",
		c.baseURL, historyCandlesEndpoint, url.QueryEscape(symbol), url.QueryEscape(bar), cursor)
	if c.pageLimit > 0 {
		u += "&limit=" + strconv.Itoa(c.pageLimit)
	}
	return u
}

// extractRows validates the envelope and returns the data array. A missing or
// null data field is an empty page.
func extractRows(body []byte) ([]gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("response is not valid JSON")
	}
	root := gjson.ParseBytes(body)

	if code := root.Get("code"); code.Exists() && code.String() != "0" {
		return nil, &apperrors.APIError{Code: code.String(), Message: root.Get("msg").String()}
	}

	data := root.Get("data")
	if !data.Exists() || data.Type == gjson.Null {
		return nil, nil
	}
	if !data.IsArray() {
		return nil, fmt.Errorf("data field is %s, not an array", data.Type)
	}
	return data.Array(), nil
}

func rowTimestamp(row gjson.Result) (int64, error) {
	if !row.IsArray() {
		return 0, fmt.Errorf("row is not an array")
	}
	raw := row.Get("0").String()
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q: %w", raw, err)
	}
	return ts, nil
}

// parseRow keeps ts, open, high, low, close and volume and drops the rest.
func (c *OKXClient) parseRow(row gjson.Result) (*models.Candle, error) {
	ts, err := rowTimestamp(row)
	if err != nil {
		return nil, err
	}
	fields := row.Array()
	if len(fields) < minRowFields {
		return nil, fmt.Errorf("row has %d fields, want at least %d", len(fields), minRowFields)
	}
	return models.ParseCandle(time.UnixMilli(ts),
		fields[1].String(), fields[2].String(), fields[3].String(), fields[4].String(), fields[5].String())
}
