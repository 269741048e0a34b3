package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/navledger/internal/domain"
)

// CatalogStore implements domain.CatalogStore over the series table.
type CatalogStore struct {
	pool *pgxpool.Pool
}

// NewCatalogStore creates a new CatalogStore backed by the given connection pool.
func NewCatalogStore(pool *pgxpool.Pool) *CatalogStore {
	return &CatalogStore{pool: pool}
}

const seriesCols = `isin, COALESCE(series_number, ''), COALESCE(status, ''),
	COALESCE(nav_frequency, ''), COALESCE(product_type, ''), COALESCE(currency, '')`

// LookupByIDs returns the catalog entries for the given identifiers. Unknown
// identifiers are absent from the result.
func (s *CatalogStore) LookupByIDs(ctx context.Context, isins []string) (map[string]domain.CatalogEntry, error) {
	out := make(map[string]domain.CatalogEntry, len(isins))
	if len(isins) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+seriesCols+` FROM series WHERE isin = ANY($1)`, isins)
	if err != nil {
		return nil, fmt.Errorf("postgres: lookup series: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e domain.CatalogEntry
		var status, freq string
		if err := rows.Scan(&e.ISIN, &e.SeriesNumber, &status, &freq, &e.ProductType, &e.Currency); err != nil {
			return nil, fmt.Errorf("postgres: scan series: %w", err)
		}
		e.Status = domain.SeriesStatus(status)
		e.Frequency = domain.Frequency(freq)
		out[e.ISIN] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: lookup series rows: %w", err)
	}
	return out, nil
}

// IDsByFrequency returns Active identifiers with the given NAV frequency.
func (s *CatalogStore) IDsByFrequency(ctx context.Context, freq string) ([]string, error) {
	ids, err := s.queryIDs(ctx,
		`SELECT isin FROM series WHERE UPPER(nav_frequency) = UPPER($1) AND status = $2`,
		freq, string(domain.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("postgres: series by frequency %s: %w", freq, err)
	}
	return ids, nil
}

// IDsByProductType returns Active identifiers whose product type contains
// productType, ignoring case.
func (s *CatalogStore) IDsByProductType(ctx context.Context, productType string) ([]string, error) {
	ids, err := s.queryIDs(ctx,
		`SELECT isin FROM series WHERE product_type ILIKE '%' || $1 || '%' AND status = $2`,
		productType, string(domain.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("postgres: series by product type %s: %w", productType, err)
	}
	return ids, nil
}

// ValidIDs returns every identifier whose status is one of statuses.
func (s *CatalogStore) ValidIDs(ctx context.Context, statuses []domain.SeriesStatus) ([]string, error) {
	codes := make([]string, len(statuses))
	for i, st := range statuses {
		codes[i] = string(st)
	}
	ids, err := s.queryIDs(ctx, `SELECT isin FROM series WHERE status = ANY($1)`, codes)
	if err != nil {
		return nil, fmt.Errorf("postgres: valid series: %w", err)
	}
	return ids, nil
}

func (s *CatalogStore) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Compile-time interface check.
var _ domain.CatalogStore = (*CatalogStore)(nil)
