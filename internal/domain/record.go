package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is one normalized valuation row read from a counterparty artifact.
// Zero-valued fields mean the source value was missing or unparsable.
type Record struct {
	ISIN      string
	NAVDate   time.Time
	NAV       decimal.Decimal
	HasNAV    bool
	Frequency string
	Variant   Variant
}

// Complete reports whether the record carries every required field.
func (r Record) Complete() bool {
	return r.ISIN != "" && r.HasNAV && !r.NAVDate.IsZero()
}

// Key returns the ledger uniqueness key of the record.
func (r Record) Key() LedgerKey {
	return LedgerKey{ISIN: r.ISIN, Date: DateOf(r.NAVDate)}
}

// Batch is the filtered output of one (source, variant) artifact.
type Batch struct {
	Source   string
	Variant  Variant
	Artifact string
	Records  []Record
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
