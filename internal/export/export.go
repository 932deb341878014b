// Package export writes fetched candle tables to files, stdout or a database.
package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/johnayoung/go-okx-history/internal/errors"
	"github.com/johnayoung/go-okx-history/internal/models"
)

// Output formats
const (
	FormatTable   = "table"
	FormatCSV     = "csv"
	FormatJSON    = "json"
	FormatParquet = "parquet"
	FormatDuckDB  = "duckdb"
)

// Writer persists a table at path.
type Writer interface {
	Save(ctx context.Context, table *models.Table, path string) error
	Extension() string
}

// StreamWriter is a Writer that can also render a table onto any io.Writer.
type StreamWriter interface {
	Writer
	Encode(w io.Writer, table *models.Table) error
}

// Formats lists the accepted format names.
func Formats() []string {
	return []string{FormatTable, FormatCSV, FormatJSON, FormatParquet, FormatDuckDB}
}

// NewWriter creates the implementation for format. logger is used by sinks
// that log, and may be nil.
func NewWriter(format string, logger *slog.Logger) (Writer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatTable:
		return TableWriter{}, nil
	case FormatCSV:
		return CSVWriter{}, nil
	case FormatJSON:
		return JSONWriter{}, nil
	case FormatParquet:
		return ParquetWriter{}, nil
	case FormatDuckDB:
		return NewDuckDBWriter(logger), nil
	default:
		return nil, apperrors.NewValidationError("format",
			"unsupported format %q, use one of %s", format, strings.Join(Formats(), ", "))
	}
}

// FileName is the per-table file name used when several tables go to one directory.
func FileName(dir string, table *models.Table, ext string) string {
	name := fmt.Sprintf("%s_%s.%s", table.Symbol, table.Interval, ext)
	return filepath.Join(dir, name)
}

// saveFile creates path, including missing parent directories, and encodes into it.
func saveFile(path string, encode func(io.Writer) error) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	return encode(f)
}
