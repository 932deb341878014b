// Package models provides the data structures returned by the history fetcher:
// supported intervals, individual candles and the assembled result table.
package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/johnayoung/go-okx-history/internal/errors"
)

// Candle represents OHLCV price and volume data for one interval bucket.
// Prices are held as decimals so that nothing is lost between the wire and the
// final table projection.
type Candle struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// NewCandle parses the string fields of a candle and validates the result.
// The timestamp is normalised to UTC with millisecond precision.
func NewCandle(timestamp time.Time, open, high, low, close, volume string) (*Candle, error) {
	c, err := ParseCandle(timestamp, open, high, low, close, volume)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ParseCandle is NewCandle without the OHLC sanity checks. Only the numeric
// format of each field is enforced, so exchange rows are kept as returned.
func ParseCandle(timestamp time.Time, open, high, low, close, volume string) (*Candle, error) {
	c := &Candle{Timestamp: timestamp.UTC().Truncate(time.Millisecond)}

	var err error
	if c.Open, err = parseDecimal("open", open); err != nil {
		return nil, err
	}
	if c.High, err = parseDecimal("high", high); err != nil {
		return nil, err
	}
	if c.Low, err = parseDecimal("low", low); err != nil {
		return nil, err
	}
	if c.Close, err = parseDecimal("close", close); err != nil {
		return nil, err
	}
	if c.Volume, err = parseDecimal("volume", volume); err != nil {
		return nil, err
	}
	return c, nil
}

func parseDecimal(field, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, apperrors.NewValidationError(field, "invalid %s format %q: %v", field, value, err)
	}
	return d, nil
}

// Validate checks that prices are positive, volume is non-negative and that
// high/low bound open and close.
func (c *Candle) Validate() error {
	if c.Timestamp.IsZero() {
		return &apperrors.ValidationError{Field: "timestamp", Message: "timestamp cannot be zero"}
	}

	zero := decimal.Zero
	prices := []struct {
		name  string
		value decimal.Decimal
	}{{"open", c.Open}, {"high", c.High}, {"low", c.Low}, {"close", c.Close}}
	for _, p := range prices {
		if p.value.LessThanOrEqual(zero) {
			return &apperrors.ValidationError{Field: p.name, Message: fmt.Sprintf("%s price must be greater than 0", p.name)}
		}
	}

	if c.Volume.LessThan(zero) {
		return &apperrors.ValidationError{Field: "volume", Message: "volume must be greater than or equal to 0"}
	}

	maxOpenClose := decimal.Max(c.Open, c.Close)
	if c.High.LessThan(maxOpenClose) {
		return &apperrors.ValidationError{
			Field:   "high",
			Message: fmt.Sprintf("high price (%s) must be greater than or equal to max(open, close) (%s)", c.High, maxOpenClose),
		}
	}

	minOpenClose := decimal.Min(c.Open, c.Close)
	if c.Low.GreaterThan(minOpenClose) {
		return &apperrors.ValidationError{
			Field:   "low",
			Message: fmt.Sprintf("low price (%s) must be less than or equal to min(open, close) (%s)", c.Low, minOpenClose),
		}
	}

	return nil
}

// UnixMilli returns the candle open time as epoch milliseconds.
func (c *Candle) UnixMilli() int64 {
	return c.Timestamp.UnixMilli()
}

// Row projects the candle onto float64 columns.
func (c *Candle) Row() Row {
	return Row{
		Timestamp: c.Timestamp,
		Open:      c.Open.InexactFloat64(),
		High:      c.High.InexactFloat64(),
		Low:       c.Low.InexactFloat64(),
		Close:     c.Close.InexactFloat64(),
		Volume:    c.Volume.InexactFloat64(),
	}
}
