package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/navledger/internal/domain"
	"github.com/alanyoungcy/navledger/internal/ingest"
	"github.com/alanyoungcy/navledger/internal/pipeline"
	"github.com/alanyoungcy/navledger/internal/server"
	"github.com/alanyoungcy/navledger/internal/server/handler"
)

// OnceMode performs a single ingestion run and returns its error, so a run
// that collected nothing exits non-zero.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	orch, err := a.buildOrchestrator(deps)
	if err != nil {
		return err
	}

	req, err := a.onceRequest()
	if err != nil {
		return err
	}

	report, err := orch.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("app: run %s: %w", req.Period.Format(time.DateOnly), err)
	}
	if report.PersistenceDegraded {
		a.logger.WarnContext(ctx, "run finished with persistence errors",
			slog.String("run_id", report.RunID),
		)
	}
	return nil
}

func (a *App) onceRequest() (domain.RunRequest, error) {
	period := a.opts.Period
	if period.IsZero() {
		loc, err := a.cfg.Schedule.Location()
		if err != nil {
			return domain.RunRequest{}, fmt.Errorf("app: schedule timezone: %w", err)
		}
		period = pipeline.BusinessDate(time.Now(), loc)
	}

	filter := a.opts.Filter
	if filter == "" {
		filter = a.cfg.Schedule.Filter
	}

	req := domain.RunRequest{
		Period:          period,
		Filter:          domain.ParseFilterSpec(filter),
		Exclude:         a.opts.Exclude,
		DistributionTag: a.opts.DistributionTag,
	}
	if a.opts.Variant != "" {
		v, err := domain.ParseVariant(a.opts.Variant)
		if err != nil {
			return domain.RunRequest{}, fmt.Errorf("app: %w", err)
		}
		req.Variant = &v
	}
	return req, nil
}

// ScheduleMode triggers runs on the configured cron schedule and serves the
// HTTP surface until ctx is cancelled.
func (a *App) ScheduleMode(ctx context.Context, deps *Dependencies) error {
	orch, err := a.buildOrchestrator(deps)
	if err != nil {
		return err
	}
	loc, err := a.cfg.Schedule.Location()
	if err != nil {
		return fmt.Errorf("app: schedule timezone: %w", err)
	}

	filter := domain.ParseFilterSpec(a.cfg.Schedule.Filter)
	sched, err := pipeline.NewScheduler(a.cfg.Schedule.Cron, loc,
		func(ctx context.Context, period time.Time) error {
			_, err := orch.Run(ctx, domain.RunRequest{Period: period, Filter: filter})
			return err
		},
		a.logger,
	)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(gctx)
	})
	if a.cfg.Server.Addr != "" {
		a.startHTTPServer(gctx, g, deps)
	}
	return g.Wait()
}

// HistoryMode prints one page of ledger history as JSON.
func (a *App) HistoryMode(ctx context.Context, deps *Dependencies) error {
	q := a.opts.History
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 {
		q.PerPage = 50
	}

	page, err := deps.Ledger.History(ctx, q)
	if err != nil {
		return fmt.Errorf("app: history: %w", err)
	}

	enc := json.NewEncoder(a.opts.Out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(handler.NewHistoryResponse(q, page)); err != nil {
		return fmt.Errorf("app: write history: %w", err)
	}
	return nil
}

// RepairMode backfills series numbers on ledger rows that were written
// before their instrument reached the catalog.
func (a *App) RepairMode(ctx context.Context, deps *Dependencies) error {
	persister := ingest.NewPersister(deps.Catalog, deps.Ledger, a.cfg.ValidStatuses(), a.logger)
	n, err := persister.RepairGroupingKeys(ctx)
	if err != nil {
		return fmt.Errorf("app: repair grouping keys: %w", err)
	}
	a.logger.InfoContext(ctx, "grouping keys repaired", slog.Int64("rows", n))
	return nil
}

// buildOrchestrator assembles the run pipeline. The archive uploader, when
// enabled, is started here and drained on Close.
func (a *App) buildOrchestrator(deps *Dependencies) (*pipeline.Orchestrator, error) {
	exclude, err := ingest.LoadExcludeList(a.cfg.Collector.ExcludeFile)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	var collectorOpts []ingest.CollectorOption
	if deps.Throttle != nil {
		collectorOpts = append(collectorOpts, ingest.WithThrottle(deps.Throttle))
	}
	if deps.Archiver != nil {
		up := pipeline.NewUploader(deps.Archiver, pipeline.UploaderConfig{
			QueueSize: a.cfg.Archive.QueueSize,
			Attempts:  a.cfg.Archive.Retries,
			Backoff:   a.cfg.Archive.Backoff.Duration,
		}, deps.Metrics, a.logger)
		up.Start()
		a.closers = append(a.closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := up.Close(ctx); err != nil {
				a.logger.Warn("archive uploader did not drain", slog.String("error", err.Error()))
			}
		})
		collectorOpts = append(collectorOpts, ingest.WithArtifactSink(up))
	}

	names := make([]string, 0, len(a.cfg.Sources))
	for _, s := range a.cfg.Sources {
		names = append(names, s.Name)
	}
	collector := ingest.NewCollector(deps.Sources, ingest.CollectorConfig{
		Sources: names,
		Patterns: map[domain.Variant]string{
			domain.VariantStandard: a.cfg.Collector.StandardPattern,
			domain.VariantHybrid:   a.cfg.Collector.HybridPattern,
			domain.VariantLoan:     a.cfg.Collector.LoanPattern,
		},
		MaxInFlight:  a.cfg.Collector.MaxInFlight,
		FetchTimeout: a.cfg.Collector.FetchTimeout.Duration,
	}, a.logger, collectorOpts...)

	opts := []pipeline.OrchestratorOption{
		pipeline.WithDistributors(deps.Notifier),
		pipeline.WithMetrics(deps.Metrics),
	}
	if deps.LockManager != nil {
		opts = append(opts, pipeline.WithRunLock(deps.LockManager))
	}
	if deps.ReportStream != nil {
		opts = append(opts, pipeline.WithDistributors(deps.ReportStream))
	}

	return pipeline.NewOrchestrator(
		ingest.NewResolver(deps.Catalog, a.logger),
		collector,
		ingest.NewPersister(deps.Catalog, deps.Ledger, a.cfg.ValidStatuses(), a.logger),
		pipeline.OrchestratorConfig{
			Exclude:         exclude,
			DistributionTag: a.cfg.Persist.DistributionTag,
		},
		a.logger,
		opts...,
	), nil
}

func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	var runs handler.RunLister
	if deps.ReportStream != nil {
		runs = deps.ReportStream
	}

	srv := server.NewServer(server.Config{
		Addr:            a.cfg.Server.Addr,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimitPerMin: a.cfg.Server.RateLimitPerMin,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(deps.Checks, a.logger),
		History: handler.NewHistoryHandler(deps.Ledger, a.logger),
		Runs:    handler.NewRunsHandler(runs, a.logger),
		Metrics: promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}),
	}, deps.APILimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
