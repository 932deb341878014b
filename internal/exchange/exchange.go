// Package exchange fetches historical candles from the OKX REST API.
//
// Two pieces cooperate: a Caller performs single rate-limited GETs, and
// OKXClient drives it through the reverse-chronological history feed and
// assembles the pages into one ascending models.Table.
package exchange

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/johnayoung/go-okx-history/internal/errors"
	"github.com/johnayoung/go-okx-history/internal/models"
)

// Caller performs one GET against url and returns the response body.
//
// Implementations must account every request that reaches the network against
// the shared rate budget, suspending rather than failing when it is exhausted.
// A non-success status is returned as *errors.TransportError carrying the body.
type Caller interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// CandleFetcher retrieves a complete candle history for one instrument.
//
// An empty range or a feed with no data yields an empty table, not an error.
// Any failure discards the rows fetched so far.
type CandleFetcher interface {
	// Fetch takes ISO-8601 bounds, exactly as a user would type them.
	Fetch(ctx context.Context, symbol, interval, start, end string) (*models.Table, error)

	// FetchCandles takes an already parsed request.
	FetchCandles(ctx context.Context, req FetchRequest) (*models.Table, error)
}

// FetchRequest represents a request for the candle history of one instrument.
type FetchRequest struct {
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// NewFetchRequest parses string bounds into a FetchRequest. It does not check
// the interval; Validate does.
func NewFetchRequest(symbol, interval, start, end string) (FetchRequest, error) {
	startTime, err := ParseTimestamp("start", start)
	if err != nil {
		return FetchRequest{}, err
	}
	endTime, err := ParseTimestamp("end", end)
	if err != nil {
		return FetchRequest{}, err
	}
	return FetchRequest{Symbol: symbol, Interval: interval, Start: startTime, End: endTime}, nil
}

// Validate checks the request and resolves its interval. A start at or after
// end is valid and describes an empty range.
func (r FetchRequest) Validate() (models.Interval, error) {
	if strings.TrimSpace(r.Symbol) == "" {
		return models.Interval{}, &apperrors.ValidationError{Field: "symbol", Message: "symbol cannot be empty"}
	}

	iv, err := models.ParseInterval(r.Interval)
	if err != nil {
		return models.Interval{}, err
	}

	if r.Start.IsZero() {
		return models.Interval{}, &apperrors.ValidationError{Field: "start", Message: "start time cannot be zero"}
	}
	if r.End.IsZero() {
		return models.Interval{}, &apperrors.ValidationError{Field: "end", Message: "end time cannot be zero"}
	}

	return iv, nil
}

// Empty reports whether the range contains no instants.
func (r FetchRequest) Empty() bool {
	return r.Start.UnixMilli() >= r.End.UnixMilli()
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 instant. A trailing Z or an explicit offset
// is honoured; values without an offset are read as UTC.
func ParseTimestamp(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, &apperrors.ValidationError{Field: field, Message: "timestamp cannot be empty"}
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, apperrors.NewValidationError(field,
		"invalid ISO-8601 timestamp %q, use e.g. 2023-01-01T00:00:00Z", value)
}
