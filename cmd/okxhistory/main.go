// OKX history CLI
// Fetches historical OHLCV candles from the OKX public REST API and writes
// them as a table, CSV, JSON, Parquet or into a DuckDB database.
//
// Usage:
//
//	okxhistory fetch --symbol BTC-USDT --interval 1h --start 2023-01-01T00:00:00Z --end 2023-01-02T00:00:00Z
//	okxhistory fetch --symbol BTC-USDT,ETH-USDT --interval 1d --start 2023-01-01 --end 2023-06-01 --format parquet --out data
//	okxhistory intervals
//
// For detailed help on any command, use: okxhistory <command> --help
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/johnayoung/go-okx-history/internal/app"
	"github.com/johnayoung/go-okx-history/internal/collector"
	"github.com/johnayoung/go-okx-history/internal/config"
	apperrors "github.com/johnayoung/go-okx-history/internal/errors"
	"github.com/johnayoung/go-okx-history/internal/exchange"
	"github.com/johnayoung/go-okx-history/internal/export"
	"github.com/johnayoung/go-okx-history/internal/metrics"
	"github.com/johnayoung/go-okx-history/internal/models"
)

// CLI version information
const (
	Version = "1.0.0"
	AppName = "okxhistory"
)

// Exit codes following standard conventions
const (
	ExitSuccess     = 0
	ExitUsageError  = 1
	ExitConfigError = 2
	ExitFetchError  = 3
	ExitOutputError = 4
	ExitInterrupt   = 130
)

const (
	duckDBFileName   = "okxhistory.duckdb"
	stdoutPathMarker = "-"
)

// App holds application dependencies built by Wire.
type App struct {
	Config    *config.AppConfig
	Logger    *slog.Logger
	Collector *collector.Collector
	Writer    export.Writer
	Metrics   *metrics.FetchMetrics
}

// FetchFlags represents flags for the fetch command
type FetchFlags struct {
	Symbols  []string
	Interval string
	Start    string
	End      string
	Format   string
	Out      string
	Config   string
	Workers  int
	LogLevel string
	Help     bool
}

// usageError marks problems with the command line itself.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// outputError marks failures while writing results.
type outputError struct{ err error }

func (e *outputError) Error() string { return e.err.Error() }
func (e *outputError) Unwrap() error { return e.err }

// configError marks failures while assembling the application.
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// main is the entry point for the CLI application
func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(ExitUsageError)
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "fetch":
		err := runFetch(ctx, args, os.Stdout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		code := exitCode(err)
		if code != ExitSuccess && ctx.Err() != nil {
			code = ExitInterrupt
		}
		cancel()
		os.Exit(code)
	case "intervals":
		printIntervals(os.Stdout)
	case "--version", "-v", "version":
		fmt.Printf("%s version %s\n", AppName, Version)
	case "--help", "-h", "help":
		if len(args) > 0 {
			printCommandHelp(os.Stdout, args[0])
		} else {
			printUsage(os.Stdout)
		}
	default:
		fmt.Fprintf(os.Stderr, "Error: Unknown command '%s'\n\n", command)
		printUsage(os.Stderr)
		os.Exit(ExitUsageError)
	}
}

// exitCode maps an error returned by a command onto the process exit status.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		usageErr  *usageError
		configErr *configError
		outputErr *outputError
	)
	switch {
	case errors.As(err, &usageErr):
		return ExitUsageError
	case errors.As(err, &configErr):
		return ExitConfigError
	case errors.As(err, &outputErr):
		return ExitOutputError
	}

	if apperrors.StageOf(err) == apperrors.StageValidation {
		return ExitUsageError
	}
	return ExitFetchError
}

// runFetch executes the fetch command and writes the result to stdout or files.
func runFetch(ctx context.Context, args []string, stdout io.Writer) error {
	flags, err := parseFetchFlags(args)
	if err != nil {
		return &usageError{err}
	}
	if flags.Help {
		printCommandHelp(stdout, "fetch")
		return nil
	}

	req, err := flags.validate()
	if err != nil {
		return &usageError{err}
	}

	a, cleanup, err := InitializeApp(app.Options{
		ConfigPath: flags.Config,
		Format:     flags.Format,
		Workers:    flags.Workers,
		LogLevel:   flags.LogLevel,
	})
	if err != nil {
		return &configError{fmt.Errorf("failed to initialize: %w", err)}
	}
	defer cleanup()

	a.Logger.InfoContext(ctx, "starting fetch",
		"symbols", flags.Symbols,
		"interval", req.Interval,
		"start", req.Start,
		"end", req.End,
		"format", a.Config.Output.Format)

	results, err := a.Collector.FetchMany(ctx, collector.Requests(flags.Symbols, req.Interval, req.Start, req.End))
	if err != nil {
		return err
	}

	if err := writeResults(ctx, a, results, flags.Out, stdout); err != nil {
		return &outputError{err}
	}

	a.Logger.InfoContext(ctx, "fetch finished", "metrics", a.Metrics.Snapshot())
	return nil
}

// writeResults sends every table to its destination. Stream formats go to
// stdout unless out is set; files land in out, or in the configured output
// directory. With several tables, out names a directory.
func writeResults(ctx context.Context, a *App, results []collector.Result, out string, stdout io.Writer) error {
	w := a.Writer
	stream, isStream := w.(export.StreamWriter)

	for _, r := range results {
		table := r.Table
		var path string

		switch {
		case w.Extension() == export.FormatDuckDB:
			path = out
			if path == "" {
				path = filepath.Join(a.Config.Output.Directory, duckDBFileName)
			}
		case (out == "" || out == stdoutPathMarker) && isStream && w.Extension() != export.FormatParquet:
			if err := stream.Encode(stdout, table); err != nil {
				return fmt.Errorf("failed to write %s: %w", table.Symbol, err)
			}
			continue
		case out == "" || out == stdoutPathMarker:
			path = export.FileName(a.Config.Output.Directory, table, w.Extension())
		case len(results) == 1:
			path = out
		default:
			path = export.FileName(out, table, w.Extension())
		}

		if err := w.Save(ctx, table, path); err != nil {
			return fmt.Errorf("failed to write %s to %s: %w", table.Symbol, path, err)
		}
		a.Logger.InfoContext(ctx, "wrote table", "symbol", table.Symbol, "candles", table.Len(), "path", path)
	}
	return nil
}

// validate checks the flags and parses the range before anything touches the network.
func (f *FetchFlags) validate() (exchange.FetchRequest, error) {
	if len(f.Symbols) == 0 {
		return exchange.FetchRequest{}, fmt.Errorf("--symbol is required")
	}
	if f.Interval == "" {
		return exchange.FetchRequest{}, fmt.Errorf("--interval is required")
	}
	if f.Start == "" || f.End == "" {
		return exchange.FetchRequest{}, fmt.Errorf("both --start and --end are required")
	}
	if f.Format != "" && !slices.Contains(export.Formats(), f.Format) {
		return exchange.FetchRequest{}, fmt.Errorf("unsupported format %q, use one of %s",
			f.Format, strings.Join(export.Formats(), ", "))
	}

	req, err := exchange.NewFetchRequest(f.Symbols[0], f.Interval, f.Start, f.End)
	if err != nil {
		return exchange.FetchRequest{}, err
	}
	for _, symbol := range f.Symbols {
		req.Symbol = symbol
		if _, err := req.Validate(); err != nil {
			return exchange.FetchRequest{}, err
		}
	}
	return req, nil
}

// parseFetchFlags parses command line arguments for the fetch command
func parseFetchFlags(args []string) (*FetchFlags, error) {
	flags := &FetchFlags{}

	value := func(i int) (string, error) {
		if i+1 >= len(args) {
			return "", fmt.Errorf("%s requires a value", args[i])
		}
		return args[i+1], nil
	}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--symbol", "--symbols", "-s":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			for _, symbol := range strings.Split(v, ",") {
				if symbol = strings.TrimSpace(symbol); symbol != "" {
					flags.Symbols = append(flags.Symbols, strings.ToUpper(symbol))
				}
			}
			i++
		case "--interval", "-i":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			flags.Interval = v
			i++
		case "--start":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			flags.Start = v
			i++
		case "--end":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			flags.End = v
			i++
		case "--format", "-f":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			flags.Format = strings.ToLower(v)
			i++
		case "--out", "-o":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			flags.Out = v
			i++
		case "--config", "-c":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			flags.Config = v
			i++
		case "--workers", "-w":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			workers, err := strconv.Atoi(v)
			if err != nil || workers <= 0 {
				return nil, fmt.Errorf("invalid workers value %q", v)
			}
			flags.Workers = workers
			i++
		case "--log-level":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			flags.LogLevel = v
			i++
		case "--help", "-h":
			flags.Help = true
		default:
			return nil, fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	return flags, nil
}

// printIntervals lists the supported interval keys with their OKX bar names
func printIntervals(w io.Writer) {
	for _, key := range models.SupportedIntervals() {
		iv, _ := models.ParseInterval(key)
		fmt.Fprintf(w, "%-4s bar=%-3s %s\n", iv.Key, iv.Bar, iv.Duration)
	}
}

// printUsage prints the main usage information
func printUsage(w io.Writer) {
	fmt.Fprintf(w, `%s - OKX historical candle fetcher v%s

USAGE:
    %s <command> [options]

COMMANDS:
    fetch       Fetch the candle history of one or more instruments
    intervals   List supported candle intervals

GLOBAL OPTIONS:
    --help, -h     Show help information
    --version, -v  Show version information

EXAMPLES:
    # Hourly BTC-USDT history walking back from 2023-01-01, printed as CSV
    %s fetch --symbol BTC-USDT --interval 1h --start 2023-01-01T00:00:00Z --end 2023-01-02T00:00:00Z

    # Daily candles for two instruments into parquet files under ./data
    %s fetch --symbol BTC-USDT,ETH-USDT --interval 1d --start 2023-01-01 --end 2023-06-01 --format parquet --out data

CONFIGURATION:
    Configuration can be provided via:
    - Config file: --config okxhistory.yaml (YAML or JSON)
    - Environment variables: %s_* (e.g., %s_RATE_LIMIT_MAX_CALLS=10)

For detailed help on any command, use: %s <command> --help
`, AppName, Version, AppName, AppName, AppName, config.EnvPrefix, config.EnvPrefix, AppName)
}

// printCommandHelp prints detailed help for a specific command
func printCommandHelp(w io.Writer, command string) {
	switch command {
	case "fetch":
		fmt.Fprintf(w, `%s fetch - Fetch historical candles

USAGE:
    %s fetch [options]

OPTIONS:
    --symbol, -s <ids>        Instrument id, or a comma-separated list (required)
                              Examples: BTC-USDT, ETH-USDT, BTC-USDT-SWAP

    --interval, -i <interval> Candle interval (required)
                              Supported: %s

    --start <time>            Anchor, ISO-8601 (required). Paging starts here
                              and walks back to older candles
    --end <time>              ISO-8601 (required). Nothing is fetched unless
                              start is before end
                              Examples: 2023-01-01, 2023-01-01T00:00:00Z

    --format, -f <format>     Output format: %s
    --out, -o <path>          Output file, or directory for several symbols
    --config, -c <file>       Configuration file
    --workers, -w <n>         Concurrent fetches (all share one rate budget)
    --log-level <level>       debug, info, warn or error

    --help, -h                Show this help message

NOTES:
    - Requests are limited to %d per %s across all symbols
    - Rows are not clipped to [start, end): the walk continues back from start
      until the exchange returns an empty page (fetch.max_pages caps it)
    - start >= end or an instrument without data yields an empty result
    - Any failure aborts the whole fetch; nothing is written
`, AppName, AppName,
			strings.Join(models.SupportedIntervals(), ", "),
			strings.Join(export.Formats(), ", "),
			config.DefaultConfig().RateLimit.MaxCalls,
			config.DefaultConfig().RateLimit.Window.Round(time.Second))

	case "intervals":
		fmt.Fprintf(w, `%s intervals - List supported candle intervals

USAGE:
    %s intervals
`, AppName, AppName)

	default:
		fmt.Fprintf(w, "Unknown command: %s\n", command)
		printUsage(w)
	}
}
