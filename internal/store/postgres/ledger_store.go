package postgres

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/navledger/internal/domain"
)

// LedgerStore implements domain.LedgerStore over the nav_entries table.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

var ledgerCopyCols = []string{
	"isin", "series_number", "nav_date", "nav_value", "distribution_type", "emitter",
}

// ExistingKeys loads every (isin, nav_date) pair currently in the ledger.
func (s *LedgerStore) ExistingKeys(ctx context.Context) (map[domain.LedgerKey]struct{}, error) {
	rows, err := s.pool.Query(ctx, `SELECT isin, nav_date FROM nav_entries`)
	if err != nil {
		return nil, fmt.Errorf("postgres: existing ledger keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[domain.LedgerKey]struct{})
	for rows.Next() {
		var isin string
		var d time.Time
		if err := rows.Scan(&isin, &d); err != nil {
			return nil, fmt.Errorf("postgres: scan ledger key: %w", err)
		}
		keys[domain.LedgerKey{ISIN: isin, Date: domain.DateOf(d)}] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: existing ledger keys rows: %w", err)
	}
	return keys, nil
}

// BulkInsert copies all entries inside one transaction. A single conflicting
// row aborts the whole copy.
func (s *LedgerStore) BulkInsert(ctx context.Context, entries []domain.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin bulk insert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{"nav_entries"},
		ledgerCopyCols,
		pgx.CopyFromSlice(len(entries), func(i int) ([]any, error) {
			e := entries[i]
			return []any{
				e.ISIN, e.SeriesNumber, domain.DateOf(e.NAVDate),
				toNumeric(e.NAV), e.DistributionType, e.Emitter,
			}, nil
		}),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: bulk insert %d entries: %w", len(entries), domain.ErrConstraintViolation)
		}
		return fmt.Errorf("postgres: bulk insert %d entries: %w", len(entries), err)
	}
	if n != int64(len(entries)) {
		return fmt.Errorf("postgres: bulk insert copied %d of %d entries", n, len(entries))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit bulk insert: %w", err)
	}
	return nil
}

// InsertOne writes a single entry in its own implicit transaction. It returns
// domain.ErrConstraintViolation when (isin, nav_date) already exists.
func (s *LedgerStore) InsertOne(ctx context.Context, e domain.LedgerEntry) error {
	const query = `
		INSERT INTO nav_entries (
			isin, series_number, nav_date, nav_value, distribution_type, emitter
		) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, query,
		e.ISIN, e.SeriesNumber, domain.DateOf(e.NAVDate),
		toNumeric(e.NAV), e.DistributionType, e.Emitter,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: insert nav entry %s@%s: %w",
				e.ISIN, e.NAVDate.Format(time.DateOnly), domain.ErrConstraintViolation)
		}
		return fmt.Errorf("postgres: insert nav entry %s@%s: %w",
			e.ISIN, e.NAVDate.Format(time.DateOnly), err)
	}
	return nil
}

// UpdateGroupingKey sets series_number on every row of isin that still lacks
// one and returns the number of rows updated.
func (s *LedgerStore) UpdateGroupingKey(ctx context.Context, isin, seriesNumber string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE nav_entries SET series_number = $2 WHERE isin = $1 AND series_number IS NULL`,
		isin, seriesNumber)
	if err != nil {
		return 0, fmt.Errorf("postgres: update series number for %s: %w", isin, err)
	}
	return tag.RowsAffected(), nil
}

// ISINsMissingGroupingKey returns identifiers with at least one ledger row
// whose series_number is still null.
func (s *LedgerStore) ISINsMissingGroupingKey(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT isin FROM nav_entries WHERE series_number IS NULL ORDER BY isin`)
	if err != nil {
		return nil, fmt.Errorf("postgres: isins missing series number: %w", err)
	}
	isins, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan isins missing series number: %w", err)
	}
	return isins, nil
}

// History returns one page of ledger entries, newest first. Series numbers
// missing on the ledger row are filled from the catalog.
func (s *LedgerStore) History(ctx context.Context, q domain.HistoryQuery) (domain.HistoryPage, error) {
	perPage := q.PerPage
	if perPage <= 0 {
		perPage = 50
	}
	page := q.Page
	if page <= 0 {
		page = 1
	}

	where := ` WHERE TRUE`
	args := []any{}
	argIdx := 1

	if q.ISIN != "" {
		where += fmt.Sprintf(" AND n.isin = $%d", argIdx)
		args = append(args, q.ISIN)
		argIdx++
	}
	if q.SeriesNumber != "" {
		where += fmt.Sprintf(" AND n.isin IN (SELECT isin FROM series WHERE series_number = $%d)", argIdx)
		args = append(args, q.SeriesNumber)
		argIdx++
	}
	if q.From != nil {
		where += fmt.Sprintf(" AND n.nav_date >= $%d", argIdx)
		args = append(args, domain.DateOf(*q.From))
		argIdx++
	}
	if q.To != nil {
		where += fmt.Sprintf(" AND n.nav_date <= $%d", argIdx)
		args = append(args, domain.DateOf(*q.To))
		argIdx++
	}

	var total int64
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM nav_entries n`+where, args...).Scan(&total); err != nil {
		return domain.HistoryPage{}, fmt.Errorf("postgres: count nav history: %w", err)
	}

	query := `SELECT n.id, n.isin, n.nav_date, n.nav_value,
			COALESCE(n.emitter, ''), n.distribution_type,
			COALESCE(n.series_number, s.series_number), n.created_at
		FROM nav_entries n LEFT JOIN series s ON s.isin = n.isin` + where +
		fmt.Sprintf(" ORDER BY n.nav_date DESC, n.isin LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, perPage, (page-1)*perPage)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return domain.HistoryPage{}, fmt.Errorf("postgres: list nav history: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var nav pgtype.Numeric
		if err := rows.Scan(
			&e.ID, &e.ISIN, &e.NAVDate, &nav,
			&e.Emitter, &e.DistributionType,
			&e.SeriesNumber, &e.CreatedAt,
		); err != nil {
			return domain.HistoryPage{}, fmt.Errorf("postgres: scan nav history: %w", err)
		}
		e.NAV = fromNumeric(nav)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return domain.HistoryPage{}, fmt.Errorf("postgres: nav history rows: %w", err)
	}

	return domain.HistoryPage{
		Entries:    entries,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(perPage))),
	}, nil
}

// toNumeric converts a decimal without going through float64.
func toNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func fromNumeric(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

// Compile-time interface check.
var _ domain.LedgerStore = (*LedgerStore)(nil)
