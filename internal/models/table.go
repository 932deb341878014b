package models

import (
	"sort"
	"time"
)

// Column names of the result table, in order.
const (
	ColumnTimestamp = "timestamp"
	ColumnOpen      = "open"
	ColumnHigh      = "high"
	ColumnLow       = "low"
	ColumnClose     = "close"
	ColumnVolume    = "volume"
)

var columns = []string{ColumnTimestamp, ColumnOpen, ColumnHigh, ColumnLow, ColumnClose, ColumnVolume}

// Row is one table row with float64 price and volume columns.
type Row struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Table is an ascending, timestamp-unique sequence of candles with a fixed
// column schema. The zero value is an empty table.
type Table struct {
	Symbol   string
	Interval string
	candles  []Candle
}

// NewTable builds a table from candles in any order. When several candles share
// a timestamp the first one wins. It returns the table and the number of
// duplicates dropped.
func NewTable(symbol, interval string, candles []Candle) (*Table, int) {
	seen := make(map[int64]struct{}, len(candles))
	unique := make([]Candle, 0, len(candles))
	for _, c := range candles {
		ts := c.UnixMilli()
		if _, dup := seen[ts]; dup {
			continue
		}
		seen[ts] = struct{}{}
		unique = append(unique, c)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].Timestamp.Before(unique[j].Timestamp)
	})

	return &Table{Symbol: symbol, Interval: interval, candles: unique}, len(candles) - len(unique)
}

// EmptyTable returns a table with the schema and no rows.
func EmptyTable(symbol, interval string) *Table {
	return &Table{Symbol: symbol, Interval: interval, candles: []Candle{}}
}

// Columns returns the fixed column schema.
func (t *Table) Columns() []string {
	out := make([]string, len(columns))
	copy(out, columns)
	return out
}

func (t *Table) Len() int {
	return len(t.candles)
}

func (t *Table) Empty() bool {
	return len(t.candles) == 0
}

// Candles returns a copy of the decimal candles in ascending order.
func (t *Table) Candles() []Candle {
	out := make([]Candle, len(t.candles))
	copy(out, t.candles)
	return out
}

// Rows returns the float64 projection in ascending order.
func (t *Table) Rows() []Row {
	rows := make([]Row, len(t.candles))
	for i := range t.candles {
		rows[i] = t.candles[i].Row()
	}
	return rows
}

// First and Last return the time span covered, or zero times for an empty table.
func (t *Table) First() time.Time {
	if len(t.candles) == 0 {
		return time.Time{}
	}
	return t.candles[0].Timestamp
}

func (t *Table) Last() time.Time {
	if len(t.candles) == 0 {
		return time.Time{}
	}
	return t.candles[len(t.candles)-1].Timestamp
}
