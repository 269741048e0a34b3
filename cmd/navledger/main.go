// Command navledger ingests counterparty NAV files into the ledger. It loads
// configuration, validates it, wires dependencies, sets up signal handling,
// and runs the configured mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alanyoungcy/navledger/internal/app"
	"github.com/alanyoungcy/navledger/internal/config"
	"github.com/alanyoungcy/navledger/internal/domain"
	"github.com/alanyoungcy/navledger/internal/ingest"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	mode := flag.String("mode", "", "override mode: once, schedule, history, repair")
	date := flag.String("date", "", "business date of a once run (YYYY-MM-DD or MMDDYYYY); default today")
	filter := flag.String("filter", "", "comma-separated tags and identifiers; default schedule.filter")
	exclude := flag.String("exclude", "", "comma-separated identifiers to skip")
	variant := flag.String("variant", "", "restrict collection to one variant: standard, hybrid, loan")
	tag := flag.String("tag", "", "distribution tag written with new entries")
	isin := flag.String("isin", "", "history: identifier")
	series := flag.String("series", "", "history: series number")
	from := flag.String("from", "", "history: first NAV date (YYYY-MM-DD)")
	to := flag.String("to", "", "history: last NAV date (YYYY-MM-DD)")
	page := flag.Int("page", 1, "history: page")
	perPage := flag.Int("per-page", 50, "history: entries per page")
	flag.Parse()

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	// Set log level from config.
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	opts := app.Options{
		Filter:          *filter,
		Exclude:         splitList(*exclude),
		Variant:         *variant,
		DistributionTag: *tag,
		History: domain.HistoryQuery{
			ISIN:         strings.ToUpper(strings.TrimSpace(*isin)),
			SeriesNumber: strings.TrimSpace(*series),
			Page:         *page,
			PerPage:      *perPage,
		},
	}
	if opts.Period, err = parsePeriod(*date); err != nil {
		fatal(logger, "invalid -date", err)
	}
	if opts.History.From, err = parseDay(*from); err != nil {
		fatal(logger, "invalid -from", err)
	}
	if opts.History.To, err = parseDay(*to); err != nil {
		fatal(logger, "invalid -to", err)
	}

	logger.Info("navledger starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	// Create the application.
	application := app.New(cfg, opts, logger)
	defer application.Close()

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run the application.
	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			application.Close()
			os.Exit(1)
		}
	}

	logger.Info("navledger stopped")
}

// parsePeriod accepts YYYY-MM-DD or the MMDDYYYY stamp used in artifact
// names. Empty means today.
func parsePeriod(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.DateOnly, ingest.PeriodLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", domain.ErrInvalidPeriod, s)
}

func parseDay(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, slog.String("error", err.Error()))
	os.Exit(1)
}
