package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/navledger/internal/domain"
)

// PersistResult tallies one persist call. The counts are telemetry only.
type PersistResult struct {
	Added      int
	Duplicates int
	Invalid    int
	// Failed counts rows whose insert failed for a reason other than a
	// duplicate key.
	Failed int
	// Backfilled counts ledger rows that received a series number.
	Backfilled int64
}

// Persister merges batches into the ledger under the (isin, nav_date)
// uniqueness rule.
type Persister struct {
	catalog  domain.CatalogStore
	ledger   domain.LedgerStore
	bulk     InsertStrategy
	row      InsertStrategy
	statuses []domain.SeriesStatus
	logger   *slog.Logger
}

// NewPersister creates a Persister. statuses is the validity policy: only
// identifiers whose catalog status is listed are written. An empty list
// accepts every status.
func NewPersister(
	catalog domain.CatalogStore,
	ledger domain.LedgerStore,
	statuses []domain.SeriesStatus,
	logger *slog.Logger,
) *Persister {
	if len(statuses) == 0 {
		statuses = domain.AllStatuses
	}
	logger = logger.With(slog.String("component", "persister"))
	return &Persister{
		catalog:  catalog,
		ledger:   ledger,
		bulk:     NewBulkStrategy(ledger),
		row:      NewRowStrategy(ledger, logger),
		statuses: statuses,
		logger:   logger,
	}
}

// Persist writes batches tagged with distributionTag. Records whose key is
// already in the ledger, or repeated across batches, are duplicates.
// Records of identifiers outside the valid set are invalid. The remaining
// records are bulk inserted, falling back to row inserts if the bulk write
// fails. Inserted identifiers then get their series number backfilled.
//
// A non-nil error means persistence was degraded; the returned tallies are
// still accurate for what was done.
func (p *Persister) Persist(ctx context.Context, batches []domain.Batch, distributionTag string) (PersistResult, error) {
	var res PersistResult

	validIDs, err := p.catalog.ValidIDs(ctx, p.statuses)
	if err != nil {
		return res, fmt.Errorf("ingest: load valid identifiers: %w", err)
	}
	valid := domain.NewIDSet(validIDs...)

	// Point-in-time snapshot; the ledger's unique constraint catches rows
	// written after it was taken.
	seen, err := p.ledger.ExistingKeys(ctx)
	if err != nil {
		return res, fmt.Errorf("ingest: load existing ledger keys: %w", err)
	}

	var staged []domain.LedgerEntry
	for _, b := range batches {
		for _, r := range b.Records {
			key := r.Key()
			if _, dup := seen[key]; dup {
				res.Duplicates++
				continue
			}
			if !valid.Has(r.ISIN) {
				res.Invalid++
				continue
			}
			seen[key] = struct{}{}
			staged = append(staged, domain.LedgerEntry{
				ISIN:             r.ISIN,
				NAVDate:          key.Date,
				NAV:              r.NAV,
				Emitter:          b.Source,
				DistributionType: distributionTag,
			})
		}
	}

	var errs []error
	ins, err := p.bulk.Insert(ctx, staged)
	if err != nil {
		p.logger.Warn("bulk insert failed, falling back to row inserts",
			slog.Int("staged", len(staged)),
			slog.String("error", err.Error()),
		)
		ins, err = p.row.Insert(ctx, staged)
		if err != nil {
			errs = append(errs, err)
		}
	}
	res.Added = len(ins.Inserted)
	res.Duplicates += ins.Duplicates
	res.Failed = ins.Failed

	n, err := p.backfill(ctx, uniqueISINs(ins.Inserted))
	res.Backfilled = n
	if err != nil {
		errs = append(errs, err)
	}

	p.logger.Info("persist finished",
		slog.Int("added", res.Added),
		slog.Int("duplicates", res.Duplicates),
		slog.Int("invalid", res.Invalid),
		slog.Int("failed", res.Failed),
		slog.Int64("backfilled", res.Backfilled),
	)
	return res, errors.Join(errs...)
}

// RepairGroupingKeys backfills series numbers on every ledger row that still
// lacks one and returns the number of rows updated.
func (p *Persister) RepairGroupingKeys(ctx context.Context) (int64, error) {
	isins, err := p.ledger.ISINsMissingGroupingKey(ctx)
	if err != nil {
		return 0, fmt.Errorf("ingest: list rows missing series number: %w", err)
	}
	n, err := p.backfill(ctx, isins)
	p.logger.Info("series number repair finished",
		slog.Int("isins", len(isins)),
		slog.Int64("rows_updated", n),
	)
	return n, err
}

// backfill copies each identifier's catalog series number onto its ledger
// rows. Identifiers without a series number in the catalog are skipped.
func (p *Persister) backfill(ctx context.Context, isins []string) (int64, error) {
	if len(isins) == 0 {
		return 0, nil
	}
	entries, err := p.catalog.LookupByIDs(ctx, isins)
	if err != nil {
		return 0, fmt.Errorf("ingest: backfill lookup: %w", err)
	}

	var (
		total int64
		errs  []error
	)
	for _, isin := range isins {
		e, ok := entries[isin]
		if !ok || e.SeriesNumber == "" {
			continue
		}
		n, err := p.ledger.UpdateGroupingKey(ctx, isin, e.SeriesNumber)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		total += n
	}
	if len(errs) > 0 {
		return total, fmt.Errorf("ingest: backfill %d series numbers failed: %w", len(errs), errors.Join(errs...))
	}
	return total, nil
}

func uniqueISINs(entries []domain.LedgerEntry) []string {
	seen := make(map[string]struct{}, len(entries))
	var out []string
	for _, e := range entries {
		if _, ok := seen[e.ISIN]; ok {
			continue
		}
		seen[e.ISIN] = struct{}{}
		out = append(out, e.ISIN)
	}
	return out
}
