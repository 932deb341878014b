package export

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/marcboeker/go-duckdb/v2"

	"github.com/johnayoung/go-okx-history/internal/models"
)

const createCandlesTable = `
	CREATE TABLE IF NOT EXISTS candles (
		symbol VARCHAR NOT NULL,
		interval VARCHAR NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		open DOUBLE NOT NULL,
		high DOUBLE NOT NULL,
		low DOUBLE NOT NULL,
		close DOUBLE NOT NULL,
		volume DOUBLE NOT NULL,
		CONSTRAINT candles_pk PRIMARY KEY (symbol, interval, timestamp)
	)`

// DuckDBWriter stores tables in the candles table of a DuckDB file. Saving
// the same range twice replaces the earlier rows.
type DuckDBWriter struct {
	logger *slog.Logger
}

// NewDuckDBWriter creates a DuckDB sink.
func NewDuckDBWriter(logger *slog.Logger) *DuckDBWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &DuckDBWriter{logger: logger}
}

func (*DuckDBWriter) Extension() string { return "duckdb" }

// Save appends table to the database at path, creating it if needed.
func (d *DuckDBWriter) Save(ctx context.Context, table *models.Table, path string) error {
	if path == "" || path == "-" {
		return fmt.Errorf("duckdb output needs a database file path")
	}

	start := time.Now()
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open DuckDB database: %w", err)
	}
	defer db.Close()

	// single writer
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, createCandlesTable); err != nil {
		return fmt.Errorf("failed to create candles table: %w", err)
	}
	if table.Empty() {
		return nil
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx,
		`DELETE FROM candles WHERE symbol = ? AND interval = ? AND timestamp BETWEEN ? AND ?`,
		table.Symbol, table.Interval, table.First(), table.Last()); err != nil {
		return fmt.Errorf("failed to clear previous rows: %w", err)
	}

	var driverConn *duckdb.Conn
	err = conn.Raw(func(dc any) error {
		var ok bool
		driverConn, ok = dc.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("underlying connection is not a DuckDB connection")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to get DuckDB connection: %w", err)
	}

	appender, err := duckdb.NewAppenderFromConn(driverConn, "", "candles")
	if err != nil {
		return fmt.Errorf("failed to create appender: %w", err)
	}
	defer appender.Close()

	for _, r := range table.Rows() {
		if err := appender.AppendRow(
			table.Symbol,
			table.Interval,
			r.Timestamp.UTC(),
			r.Open,
			r.High,
			r.Low,
			r.Close,
			r.Volume,
		); err != nil {
			return fmt.Errorf("failed to append candle at %s: %w", r.Timestamp, err)
		}
	}

	if err := appender.Flush(); err != nil {
		return fmt.Errorf("failed to flush appender: %w", err)
	}

	d.logger.DebugContext(ctx, "stored candles",
		"path", path,
		"symbol", table.Symbol,
		"count", table.Len(),
		"duration", time.Since(start))

	return nil
}
