// Package app provides the top-level application lifecycle of the NAV ledger
// ingester. It wires together all dependencies (stores, caches, blob storage,
// the ingestion pipeline and notifications) and runs the configured mode.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/alanyoungcy/navledger/internal/config"
	"github.com/alanyoungcy/navledger/internal/domain"
)

// Options carries the per-invocation inputs of the once and history modes.
type Options struct {
	// Period is the business date of a once run; zero means today in the
	// schedule timezone.
	Period time.Time
	// Filter overrides schedule.filter for a once run.
	Filter          string
	Exclude         []string
	Variant         string
	DistributionTag string

	History domain.HistoryQuery
	// Out receives history output; nil means stdout.
	Out io.Writer
}

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	opts    Options
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, opts Options, logger *slog.Logger) *App {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &App{
		cfg:    cfg,
		opts:   opts,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, runs the selected
// mode and returns when the mode finishes or the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(a.cfg.Mode) {
	case "once":
		return a.OnceMode(ctx, deps)
	case "schedule":
		return a.ScheduleMode(ctx, deps)
	case "history":
		return a.HistoryMode(ctx, deps)
	case "repair":
		return a.RepairMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
