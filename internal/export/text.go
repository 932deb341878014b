package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/johnayoung/go-okx-history/internal/models"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

func floatStr(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func rowFields(r models.Row) []string {
	return []string{
		r.Timestamp.UTC().Format(timestampLayout),
		floatStr(r.Open),
		floatStr(r.High),
		floatStr(r.Low),
		floatStr(r.Close),
		floatStr(r.Volume),
	}
}

// CSVWriter writes the table columns as a CSV header followed by one line per candle.
type CSVWriter struct{}

func (CSVWriter) Extension() string { return "csv" }

func (w CSVWriter) Save(_ context.Context, table *models.Table, path string) error {
	return saveFile(path, func(f io.Writer) error { return w.Encode(f, table) })
}

func (CSVWriter) Encode(out io.Writer, table *models.Table) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(table.Columns()); err != nil {
		return err
	}
	for _, r := range table.Rows() {
		if err := cw.Write(rowFields(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// jsonTable is the JSON document written for one table.
type jsonTable struct {
	Symbol   string       `json:"symbol"`
	Interval string       `json:"interval"`
	Columns  []string     `json:"columns"`
	Rows     []models.Row `json:"rows"`
}

// JSONWriter writes one indented document per table.
type JSONWriter struct{}

func (JSONWriter) Extension() string { return "json" }

func (w JSONWriter) Save(_ context.Context, table *models.Table, path string) error {
	return saveFile(path, func(f io.Writer) error { return w.Encode(f, table) })
}

func (JSONWriter) Encode(out io.Writer, table *models.Table) error {
	rows := table.Rows()
	if rows == nil {
		rows = []models.Row{}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonTable{
		Symbol:   table.Symbol,
		Interval: table.Interval,
		Columns:  table.Columns(),
		Rows:     rows,
	})
}

// TableWriter renders an aligned plain-text table for terminals.
type TableWriter struct{}

func (TableWriter) Extension() string { return "txt" }

func (w TableWriter) Save(_ context.Context, table *models.Table, path string) error {
	return saveFile(path, func(f io.Writer) error { return w.Encode(f, table) })
}

func (TableWriter) Encode(out io.Writer, table *models.Table) error {
	if _, err := fmt.Fprintf(out, "%s %s: %d candles\n", table.Symbol, table.Interval, table.Len()); err != nil {
		return err
	}
	if table.Empty() {
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	if _, err := fmt.Fprintln(tw, strings.Join(table.Columns(), "\t")+"\t"); err != nil {
		return err
	}
	for _, r := range table.Rows() {
		fields := rowFields(r)
		fields[0] = r.Timestamp.UTC().Format(time.DateTime)
		if _, err := fmt.Fprintln(tw, strings.Join(fields, "\t")+"\t"); err != nil {
			return err
		}
	}
	return tw.Flush()
}
