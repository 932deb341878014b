package export

import (
	"context"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/johnayoung/go-okx-history/internal/models"
)

// Bar is the parquet row for one candle. Timestamps are epoch milliseconds.
type Bar struct {
	Timestamp int64   `parquet:"timestamp"`
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

func toBars(table *models.Table) []Bar {
	rows := table.Rows()
	bars := make([]Bar, len(rows))
	for i, r := range rows {
		bars[i] = Bar{
			Timestamp: r.Timestamp.UnixMilli(),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		}
	}
	return bars
}

// ParquetWriter writes tables as parquet files.
type ParquetWriter struct{}

func (ParquetWriter) Extension() string { return "parquet" }

func (ParquetWriter) Save(_ context.Context, table *models.Table, path string) error {
	return saveFile(path, func(f io.Writer) error {
		return parquet.Write(f, toBars(table))
	})
}

func (ParquetWriter) Encode(out io.Writer, table *models.Table) error {
	return parquet.Write(out, toBars(table))
}
