// Package pipeline sequences ingestion runs and hosts the stages that run
// beside them: raw artifact archival, cron scheduling and metrics.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/navledger/internal/domain"
	"github.com/alanyoungcy/navledger/internal/ingest"
)

// State is a step of the run state machine.
type State int

const (
	StateIdle State = iota
	StateResolving
	StateCollecting
	StatePersisting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateCollecting:
		return "collecting"
	case StatePersisting:
		return "persisting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Resolver resolves a run's filter.
type Resolver interface {
	Resolve(ctx context.Context, spec domain.FilterSpec) (domain.Target, error)
}

// Collector gathers the batches of a business date.
type Collector interface {
	Collect(ctx context.Context, period time.Time, target domain.Target, exclude domain.IDSet, variant *domain.Variant) (ingest.CollectResult, error)
}

// Persister writes batches to the ledger.
type Persister interface {
	Persist(ctx context.Context, batches []domain.Batch, distributionTag string) (ingest.PersistResult, error)
}

// Distributor receives the report of every finished run.
type Distributor interface {
	Distribute(ctx context.Context, report domain.RunReport) error
}

// OrchestratorConfig holds per-process run defaults.
type OrchestratorConfig struct {
	// Exclude is merged into every run's exclude list.
	Exclude         []string
	DistributionTag string
	// LockTTL bounds how long a crashed run can block its business date.
	LockTTL time.Duration
}

// Orchestrator runs Resolving, Collecting and Persisting in order for one
// business date and reports the outcome.
type Orchestrator struct {
	resolver     Resolver
	collector    Collector
	persister    Persister
	locks        domain.LockManager
	distributors []Distributor
	metrics      *Metrics
	cfg          OrchestratorConfig
	logger       *slog.Logger
	now          func() time.Time
}

// OrchestratorOption configures optional collaborators.
type OrchestratorOption func(*Orchestrator)

// WithRunLock serialises runs of the same business date across processes.
func WithRunLock(locks domain.LockManager) OrchestratorOption {
	return func(o *Orchestrator) { o.locks = locks }
}

// WithDistributors adds report sinks.
func WithDistributors(d ...Distributor) OrchestratorOption {
	return func(o *Orchestrator) { o.distributors = append(o.distributors, d...) }
}

// WithMetrics records run metrics.
func WithMetrics(m *Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(
	resolver Resolver,
	collector Collector,
	persister Persister,
	cfg OrchestratorConfig,
	logger *slog.Logger,
	opts ...OrchestratorOption,
) *Orchestrator {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	o := &Orchestrator{
		resolver:  resolver,
		collector: collector,
		persister: persister,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "orchestrator")),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run is the mutable state of one Run call.
type run struct {
	state    State
	report   domain.RunReport
	cleanups []func()
	logger   *slog.Logger
}

func (r *run) enter(s State) {
	r.logger.Debug("run state", slog.String("from", r.state.String()), slog.String("to", s.String()))
	r.state = s
}

func (r *run) onCleanup(f func()) { r.cleanups = append(r.cleanups, f) }

func (r *run) cleanup() {
	for i := len(r.cleanups) - 1; i >= 0; i-- {
		r.cleanups[i]()
	}
}

// Run executes one ingestion run. It fails only when the period is invalid,
// the business date is locked by another run, the filter cannot be resolved,
// or collection produced nothing. Persistence problems mark the report as
// degraded and the run still succeeds. Cleanup and distribution happen on
// every path.
func (o *Orchestrator) Run(ctx context.Context, req domain.RunRequest) (domain.RunReport, error) {
	r := &run{
		state: StateIdle,
		report: domain.RunReport{
			RunID:     uuid.New().String(),
			Period:    domain.DateOf(req.Period),
			Filter:    req.Filter.String(),
			StartedAt: o.now().UTC(),
		},
	}
	r.logger = o.logger.With(
		slog.String("run_id", r.report.RunID),
		slog.String("period", r.report.Period.Format(time.DateOnly)),
	)

	err := o.execute(ctx, req, r)
	r.cleanup()

	r.report.FinishedAt = o.now().UTC()
	if err != nil {
		r.enter(StateFailed)
		r.report.Error = err.Error()
		r.logger.Error("run failed", slog.String("error", err.Error()))
	} else {
		r.enter(StateDone)
		r.report.Succeeded = true
		r.logger.Info("run finished",
			slog.Int("added", r.report.Added),
			slog.Int("duplicates", r.report.Duplicates),
			slog.Int("invalid", r.report.Invalid),
			slog.Any("sources_missing", r.report.SourcesMissing),
			slog.Any("sources_failed", r.report.SourcesFailed),
			slog.Bool("persistence_degraded", r.report.PersistenceDegraded),
			slog.Duration("duration", r.report.Duration()),
		)
	}

	o.metrics.observeRun(r.report)
	o.distribute(ctx, r.report)
	return r.report, err
}

func (o *Orchestrator) execute(ctx context.Context, req domain.RunRequest, r *run) error {
	if req.Period.IsZero() {
		return domain.ErrInvalidPeriod
	}
	period := r.report.Period

	if o.locks != nil {
		unlock, err := o.locks.Acquire(ctx, runLockKey(period), o.cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("pipeline: lock business date: %w", err)
		}
		r.onCleanup(unlock)
	}

	r.enter(StateResolving)
	target, err := o.resolver.Resolve(ctx, req.Filter)
	if err != nil {
		return fmt.Errorf("pipeline: resolve filter: %w", err)
	}

	variant := req.Variant
	if variant == nil {
		variant = ingest.DeriveVariant(req.Filter)
	}
	exclude := domain.NewIDSet(o.cfg.Exclude...)
	exclude.Add(req.Exclude...)

	r.enter(StateCollecting)
	res, err := o.collector.Collect(ctx, period, target, exclude, variant)
	o.metrics.observeOutcomes(res.Outcomes)
	r.report.SourcesMissing = res.Missing
	r.report.SourcesFailed = res.Failed
	r.report.Records = res.Records()
	r.report.Sources = contributingSources(res.Batches)
	if err != nil {
		return fmt.Errorf("pipeline: collect: %w", err)
	}

	r.enter(StatePersisting)
	tag := req.DistributionTag
	if tag == "" {
		tag = o.cfg.DistributionTag
	}
	pres, err := o.persister.Persist(ctx, res.Batches, tag)
	r.report.Added = pres.Added
	r.report.Duplicates = pres.Duplicates
	r.report.Invalid = pres.Invalid
	if err != nil {
		r.report.PersistenceDegraded = true
		r.logger.Error("persistence degraded", slog.String("error", err.Error()))
	}
	return nil
}

func (o *Orchestrator) distribute(ctx context.Context, report domain.RunReport) {
	// Report even when the run was cancelled.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	for _, d := range o.distributors {
		if err := d.Distribute(ctx, report); err != nil {
			o.logger.Warn("run report distribution failed",
				slog.String("run_id", report.RunID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// IsFatalEmpty reports whether err means the run collected nothing.
func IsFatalEmpty(err error) bool {
	return errors.Is(err, domain.ErrFatalEmpty)
}

func runLockKey(period time.Time) string {
	return "run:" + period.Format(time.DateOnly)
}

func contributingSources(batches []domain.Batch) []string {
	seen := map[string]bool{}
	var out []string
	for _, b := range batches {
		if !seen[b.Source] {
			seen[b.Source] = true
			out = append(out, b.Source)
		}
	}
	return out
}
