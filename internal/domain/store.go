package domain

import "context"

// CatalogStore is a read-only view of the instrument reference catalog.
type CatalogStore interface {
	LookupByIDs(ctx context.Context, isins []string) (map[string]CatalogEntry, error)
	// IDsByFrequency returns Active identifiers whose frequency matches
	// case-insensitively.
	IDsByFrequency(ctx context.Context, freq string) ([]string, error)
	// IDsByProductType returns Active identifiers whose product type contains
	// productType case-insensitively.
	IDsByProductType(ctx context.Context, productType string) ([]string, error)
	// ValidIDs returns every identifier whose status is in statuses.
	ValidIDs(ctx context.Context, statuses []SeriesStatus) ([]string, error)
}

// LedgerStore persists valuation observations.
type LedgerStore interface {
	ExistingKeys(ctx context.Context) (map[LedgerKey]struct{}, error)
	// BulkInsert writes all entries atomically; any failure writes none.
	BulkInsert(ctx context.Context, entries []LedgerEntry) error
	// InsertOne returns ErrConstraintViolation when the key already exists.
	InsertOne(ctx context.Context, entry LedgerEntry) error
	// UpdateGroupingKey sets the series number on every row of isin that
	// does not yet carry one.
	UpdateGroupingKey(ctx context.Context, isin, seriesNumber string) (int64, error)
	ISINsMissingGroupingKey(ctx context.Context) ([]string, error)
	History(ctx context.Context, q HistoryQuery) (HistoryPage, error)
}
