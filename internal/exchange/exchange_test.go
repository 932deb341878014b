package exchange

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/johnayoung/go-okx-history/internal/errors"
)

func TestInterfaceDefinitions(t *testing.T) {
	var _ CandleFetcher = (*OKXClient)(nil)
	var _ Caller = (*HTTPCaller)(nil)
	var _ Caller = (*RetryingCaller)(nil)
}

func TestFetchRequestValidation(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		request     FetchRequest
		expectField string
		expectBar   string
	}{
		{
			name: "valid_request",
			request: FetchRequest{
				Symbol:   "BTC-USDT",
				Start:    now.Add(-time.Hour),
				End:      now,
				Interval: "1h",
			},
			expectBar: "1H",
		},
		{
			name: "end_before_start_is_an_empty_range",
			request: FetchRequest{
				Symbol:   "BTC-USDT",
				Start:    now,
				End:      now.Add(-time.Hour),
				Interval: "1d",
			},
			expectBar: "1D",
		},
		{
			name: "blank_symbol",
			request: FetchRequest{
				Symbol:   "  ",
				Start:    now.Add(-time.Hour),
				End:      now,
				Interval: "1h",
			},
			expectField: "symbol",
		},
		{
			name: "empty_interval",
			request: FetchRequest{
				Symbol: "BTC-USDT",
				Start:  now.Add(-time.Hour),
				End:    now,
			},
			expectField: "interval",
		},
		{
			name: "zero_start_time",
			request: FetchRequest{
				Symbol:   "BTC-USDT",
				End:      now,
				Interval: "1h",
			},
			expectField: "start",
		},
		{
			name: "zero_end_time",
			request: FetchRequest{
				Symbol:   "BTC-USDT",
				Start:    now.Add(-time.Hour),
				Interval: "1h",
			},
			expectField: "end",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iv, err := tt.request.Validate()
			if tt.expectField == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.expectBar, iv.Bar)
				return
			}

			var validationErr *apperrors.ValidationError
			require.True(t, errors.As(err, &validationErr))
			assert.Equal(t, tt.expectField, validationErr.Field)
		})
	}
}

func TestFetchRequestEmpty(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	assert.False(t, FetchRequest{Start: start, End: start.Add(time.Millisecond)}.Empty())
	assert.True(t, FetchRequest{Start: start, End: start}.Empty())
	assert.True(t, FetchRequest{Start: start.Add(time.Hour), End: start}.Empty())
	// sub-millisecond ranges collapse onto one cursor value
	assert.True(t, FetchRequest{Start: start, End: start.Add(time.Microsecond)}.Empty())
}

func TestNewFetchRequest(t *testing.T) {
	req, err := NewFetchRequest("ETH-USDT", "4h", "2024-03-01", "2024-03-02T06:30:00+02:00")
	require.NoError(t, err)

	assert.Equal(t, "ETH-USDT", req.Symbol)
	assert.Equal(t, "4h", req.Interval)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), req.Start)
	assert.Equal(t, time.Date(2024, 3, 2, 4, 30, 0, 0, time.UTC), req.End)

	_, err = NewFetchRequest("ETH-USDT", "4h", "2024-03-01", "tomorrow")
	var validationErr *apperrors.ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "end", validationErr.Field)
}
