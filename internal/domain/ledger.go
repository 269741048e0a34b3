package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerKey is the global uniqueness key of the ledger.
type LedgerKey struct {
	ISIN string
	Date time.Time
}

// LedgerEntry is one persisted valuation observation.
type LedgerEntry struct {
	ID               int64
	ISIN             string
	NAVDate          time.Time
	NAV              decimal.Decimal
	Emitter          string
	DistributionType string
	SeriesNumber     *string // nil until backfilled
	CreatedAt        time.Time
}

// Key returns the uniqueness key of the entry.
func (e LedgerEntry) Key() LedgerKey {
	return LedgerKey{ISIN: e.ISIN, Date: DateOf(e.NAVDate)}
}

// HistoryQuery selects a page of ledger history.
type HistoryQuery struct {
	ISIN         string
	SeriesNumber string
	From         *time.Time
	To           *time.Time
	Page         int
	PerPage      int
}

// HistoryPage is one page of ledger history, newest first.
type HistoryPage struct {
	Entries    []LedgerEntry
	TotalPages int
	Total      int64
}
