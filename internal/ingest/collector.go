package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/navledger/internal/domain"
)

// PeriodLayout is the MMDDYYYY date stamp used in artifact names.
const PeriodLayout = "01022006"

// Default artifact name patterns. {date} is the business date stamp and
// {source} the source name.
const (
	DefaultStandardPattern = "CAS_Flexfunds_NAV_{date} {source}.csv"
	DefaultHybridPattern   = "CAS_Flexfunds_NAV_{date} Wrappers Hybrid {source}.csv"
	DefaultLoanPattern     = "CAS_Flexfunds_NAV_{date} Loan {source}.csv"
)

// CollectorConfig is the immutable collection setup of a process.
type CollectorConfig struct {
	Sources      []string
	Patterns     map[domain.Variant]string
	MaxInFlight  int
	FetchTimeout time.Duration
}

func (c CollectorConfig) withDefaults() CollectorConfig {
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 3
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 60 * time.Second
	}
	patterns := map[domain.Variant]string{
		domain.VariantStandard: DefaultStandardPattern,
		domain.VariantHybrid:   DefaultHybridPattern,
		domain.VariantLoan:     DefaultLoanPattern,
	}
	for v, p := range c.Patterns {
		if p != "" {
			patterns[v] = p
		}
	}
	c.Patterns = patterns
	return c
}

// ArtifactName renders the artifact a source publishes for period and
// variant.
func (c CollectorConfig) ArtifactName(source string, v domain.Variant, period time.Time) string {
	return strings.NewReplacer(
		"{date}", period.Format(PeriodLayout),
		"{source}", source,
	).Replace(c.Patterns[v])
}

// CollectResult is the output of one collection pass. Batches are in no
// particular order.
type CollectResult struct {
	Batches  []domain.Batch
	Outcomes []domain.CollectionOutcome
	// Missing lists sources that published none of the expected artifacts.
	Missing []string
	// Failed lists sources with at least one transient fetch failure.
	Failed []string
}

// Records returns the total number of records across batches.
func (r CollectResult) Records() int {
	n := 0
	for _, b := range r.Batches {
		n += len(b.Records)
	}
	return n
}

// Collector fetches and filters the source x variant matrix of a business
// date with bounded concurrency.
type Collector struct {
	repo       domain.SourceRepository
	normalizer *Normalizer
	cfg        CollectorConfig
	throttle   domain.RateLimiter
	sink       domain.ArtifactSink
	logger     *slog.Logger
}

// CollectorOption configures optional collaborators of a Collector.
type CollectorOption func(*Collector)

// WithThrottle rate limits fetches per source.
func WithThrottle(rl domain.RateLimiter) CollectorOption {
	return func(c *Collector) { c.throttle = rl }
}

// WithArtifactSink forwards every fetched artifact to sink.
func WithArtifactSink(sink domain.ArtifactSink) CollectorOption {
	return func(c *Collector) { c.sink = sink }
}

// NewCollector creates a Collector.
func NewCollector(repo domain.SourceRepository, cfg CollectorConfig, logger *slog.Logger, opts ...CollectorOption) *Collector {
	c := &Collector{
		repo:       repo,
		normalizer: NewNormalizer(),
		cfg:        cfg.withDefaults(),
		logger:     logger.With(slog.String("component", "collector")),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type pair struct {
	source   string
	variant  domain.Variant
	artifact string
}

// Collect runs every (source, variant) pair of period. It returns
// domain.ErrFatalEmpty only when no pair produced a single row; the result
// is still populated in that case so callers can report on it.
//
// Cancelling ctx stops new pairs from starting. Pairs already in flight run
// until they finish or hit the fetch timeout.
func (c *Collector) Collect(
	ctx context.Context,
	period time.Time,
	target domain.Target,
	exclude domain.IDSet,
	variant *domain.Variant,
) (CollectResult, error) {
	period = domain.DateOf(period)
	pairs := c.matrix(period, variant)

	// One slot per pair, each written by exactly one goroutine.
	outcomes := make([]domain.CollectionOutcome, len(pairs))

	var g errgroup.Group
	g.SetLimit(c.cfg.MaxInFlight)
	for i, p := range pairs {
		g.Go(func() error {
			outcomes[i] = c.collectPair(ctx, p, period, target, exclude)
			return nil
		})
	}
	_ = g.Wait()

	res := summarize(outcomes)
	for _, o := range outcomes {
		attrs := []any{
			slog.String("source", o.Source),
			slog.String("variant", o.Variant.String()),
			slog.String("artifact", o.Artifact),
			slog.String("outcome", o.Kind.String()),
		}
		switch o.Kind {
		case domain.OutcomeTransient:
			c.logger.Warn("artifact fetch failed", append(attrs, slog.String("error", o.Err.Error()))...)
		case domain.OutcomeFound:
			c.logger.Info("artifact collected", append(attrs, slog.Int("records", len(o.Batch.Records)))...)
		default:
			c.logger.Debug("artifact skipped", attrs...)
		}
	}

	c.logger.Info("collection finished",
		slog.String("period", period.Format(time.DateOnly)),
		slog.Int("pairs", len(pairs)),
		slog.Int("batches", len(res.Batches)),
		slog.Int("records", res.Records()),
		slog.Any("missing", res.Missing),
		slog.Any("failed", res.Failed),
	)

	if len(res.Batches) == 0 {
		return res, fmt.Errorf("ingest: collect %s: %w", period.Format(time.DateOnly), domain.ErrFatalEmpty)
	}
	return res, nil
}

func (c *Collector) matrix(period time.Time, variant *domain.Variant) []pair {
	var pairs []pair
	for _, src := range c.cfg.Sources {
		for _, v := range domain.Variants {
			if variant != nil && *variant != v {
				continue
			}
			pairs = append(pairs, pair{
				source:   src,
				variant:  v,
				artifact: c.cfg.ArtifactName(src, v, period),
			})
		}
	}
	return pairs
}

func (c *Collector) collectPair(
	ctx context.Context,
	p pair,
	period time.Time,
	target domain.Target,
	exclude domain.IDSet,
) domain.CollectionOutcome {
	out := domain.CollectionOutcome{Source: p.source, Variant: p.variant, Artifact: p.artifact}

	if err := ctx.Err(); err != nil {
		out.Kind, out.Err = domain.OutcomeTransient, err
		return out
	}

	// In-flight fetches outlive cancellation of the run and end at the
	// fetch timeout instead.
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.FetchTimeout)
	defer cancel()

	if c.throttle != nil {
		if err := c.throttle.Wait(fetchCtx, p.source); err != nil {
			out.Kind, out.Err = domain.OutcomeTransient, err
			return out
		}
	}

	raw, err := c.repo.Fetch(fetchCtx, p.source, p.artifact)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			out.Kind = domain.OutcomeNotFound
			return out
		}
		out.Kind, out.Err = domain.OutcomeTransient, err
		return out
	}

	if c.sink != nil {
		art := domain.Artifact{Period: period, Source: p.source, Name: p.artifact, Data: raw}
		if err := c.sink.Submit(fetchCtx, art); err != nil {
			c.logger.Warn("artifact not queued for archive",
				slog.String("artifact", p.artifact),
				slog.String("error", err.Error()),
			)
		}
	}

	table := c.normalizer.Normalize(raw, p.variant)
	records := filterRecords(table.Records, period, target, exclude)
	if len(records) == 0 {
		out.Kind = domain.OutcomeEmpty
		return out
	}

	out.Kind = domain.OutcomeFound
	out.Batch = &domain.Batch{
		Source:   p.source,
		Variant:  p.variant,
		Artifact: p.artifact,
		Records:  records,
	}
	return out
}

// filterRecords keeps complete records of period that pass target and are
// not excluded.
func filterRecords(in []domain.Record, period time.Time, target domain.Target, exclude domain.IDSet) []domain.Record {
	var out []domain.Record
	for _, r := range in {
		if !r.Complete() || !domain.DateOf(r.NAVDate).Equal(period) {
			continue
		}
		if !target.Allows(r.ISIN) || exclude.Has(r.ISIN) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func summarize(outcomes []domain.CollectionOutcome) CollectResult {
	res := CollectResult{Outcomes: outcomes}

	published := map[string]bool{}
	failed := map[string]bool{}
	var order []string
	for _, o := range outcomes {
		if _, seen := published[o.Source]; !seen {
			published[o.Source] = false
			order = append(order, o.Source)
		}
		switch o.Kind {
		case domain.OutcomeFound:
			published[o.Source] = true
			res.Batches = append(res.Batches, *o.Batch)
		case domain.OutcomeEmpty:
			published[o.Source] = true
		case domain.OutcomeTransient:
			failed[o.Source] = true
		}
	}

	for _, src := range order {
		switch {
		case failed[src]:
			res.Failed = append(res.Failed, src)
		case !published[src]:
			res.Missing = append(res.Missing, src)
		}
	}
	sort.Strings(res.Failed)
	sort.Strings(res.Missing)
	return res
}
