package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/navledger/internal/domain"
)

// InsertResult is what one insert strategy achieved.
type InsertResult struct {
	Inserted   []domain.LedgerEntry
	Duplicates int
	Failed     int
}

// InsertStrategy writes staged ledger entries.
type InsertStrategy interface {
	Insert(ctx context.Context, entries []domain.LedgerEntry) (InsertResult, error)
}

// BulkStrategy writes every entry in one atomic statement. Any failure
// leaves the ledger untouched.
type BulkStrategy struct {
	ledger domain.LedgerStore
}

// NewBulkStrategy creates a BulkStrategy.
func NewBulkStrategy(ledger domain.LedgerStore) *BulkStrategy {
	return &BulkStrategy{ledger: ledger}
}

// Insert implements InsertStrategy.
func (s *BulkStrategy) Insert(ctx context.Context, entries []domain.LedgerEntry) (InsertResult, error) {
	if len(entries) == 0 {
		return InsertResult{}, nil
	}
	if err := s.ledger.BulkInsert(ctx, entries); err != nil {
		return InsertResult{}, fmt.Errorf("ingest: bulk insert: %w", err)
	}
	return InsertResult{Inserted: entries}, nil
}

// RowStrategy writes entries one at a time, each on its own. A key that
// already exists counts as a duplicate; other failures are counted and
// returned together once every row has been tried.
type RowStrategy struct {
	ledger domain.LedgerStore
	logger *slog.Logger
}

// NewRowStrategy creates a RowStrategy.
func NewRowStrategy(ledger domain.LedgerStore, logger *slog.Logger) *RowStrategy {
	return &RowStrategy{ledger: ledger, logger: logger}
}

// Insert implements InsertStrategy.
func (s *RowStrategy) Insert(ctx context.Context, entries []domain.LedgerEntry) (InsertResult, error) {
	var (
		res  InsertResult
		errs []error
	)
	for _, e := range entries {
		err := s.ledger.InsertOne(ctx, e)
		switch {
		case err == nil:
			res.Inserted = append(res.Inserted, e)
		case errors.Is(err, domain.ErrConstraintViolation):
			res.Duplicates++
		default:
			res.Failed++
			errs = append(errs, err)
			s.logger.Error("ledger row insert failed",
				slog.String("isin", e.ISIN),
				slog.String("nav_date", e.NAVDate.Format("2006-01-02")),
				slog.String("error", err.Error()),
			)
			if ctx.Err() != nil {
				// Nothing further can succeed.
				res.Failed += len(entries) - len(res.Inserted) - res.Duplicates - res.Failed
				return res, fmt.Errorf("ingest: row insert: %w", ctx.Err())
			}
		}
	}
	if len(errs) > 0 {
		return res, fmt.Errorf("ingest: row insert %d of %d failed: %w", len(errs), len(entries), errors.Join(errs...))
	}
	return res, nil
}
