package models

import (
	"sort"
	"time"

	apperrors "github.com/johnayoung/go-okx-history/internal/errors"
)

// Interval is a supported candle granularity. Key is the caller-facing name and
// Bar is the value OKX expects in the bar query parameter.
type Interval struct {
	Key      string
	Bar      string
	Duration time.Duration
}

var supportedIntervals = map[string]Interval{
	"1m":  {Key: "1m", Bar: "1m", Duration: time.Minute},
	"5m":  {Key: "5m", Bar: "5m", Duration: 5 * time.Minute},
	"15m": {Key: "15m", Bar: "15m", Duration: 15 * time.Minute},
	"30m": {Key: "30m", Bar: "30m", Duration: 30 * time.Minute},
	"1h":  {Key: "1h", Bar: "1H", Duration: time.Hour},
	"4h":  {Key: "4h", Bar: "4H", Duration: 4 * time.Hour},
	"1d":  {Key: "1d", Bar: "1D", Duration: 24 * time.Hour},
}

// ParseInterval looks up an interval by its exact key. Anything outside the
// fixed table is a validation failure.
func ParseInterval(key string) (Interval, error) {
	iv, ok := supportedIntervals[key]
	if !ok {
		return Interval{}, apperrors.NewValidationError("interval",
			"unsupported interval %q (supported: %v)", key, SupportedIntervals())
	}
	return iv, nil
}

// SupportedIntervals returns every supported key, shortest granularity first.
func SupportedIntervals() []string {
	intervals := make([]Interval, 0, len(supportedIntervals))
	for _, iv := range supportedIntervals {
		intervals = append(intervals, iv)
	}
	sort.Slice(intervals, func(i, j int) bool {
		return intervals[i].Duration < intervals[j].Duration
	})

	keys := make([]string, len(intervals))
	for i, iv := range intervals {
		keys[i] = iv.Key
	}
	return keys
}

func (iv Interval) String() string {
	return iv.Key
}

// IsZero reports whether iv was never parsed.
func (iv Interval) IsZero() bool {
	return iv.Key == ""
}
