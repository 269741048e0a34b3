// Package ingest collects NAV artifacts from counterparty sources, resolves
// which instruments a run targets, and persists the result into the
// deduplicated ledger.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"

	"github.com/alanyoungcy/navledger/internal/domain"
)

// Column labels of a counterparty NAV artifact.
const (
	ColumnISIN      = "ISIN"
	ColumnNAV       = "NAV"
	ColumnDate      = "Valuation Period-End Date"
	ColumnFrequency = "Frequency"
)

// placeholderPrefix marks auto-generated spreadsheet columns.
const placeholderPrefix = "Unnamed"

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006",
	"1/2/2006",
	"01/02/2006 15:04",
	"1/2/2006 15:04",
	"01/02/2006 15:04:05",
	"01-02-2006",
	"02-Jan-2006",
	"2-Jan-2006",
	"02-Jan-06",
	"2 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"20060102",
}

// Table is a normalized artifact. Columns holds the labels that survived
// cleanup, in file order.
type Table struct {
	Columns []string
	Records []domain.Record
}

// Normalizer turns raw counterparty CSV into typed records. It never fails
// on row content: bad values become missing fields.
type Normalizer struct{}

// NewNormalizer creates a Normalizer.
func NewNormalizer() *Normalizer { return &Normalizer{} }

// Normalize parses raw. Payloads that are not valid UTF-8 are decoded as
// Latin-1. A payload that cannot be read as CSV yields an empty table.
func (n *Normalizer) Normalize(raw []byte, variant domain.Variant) Table {
	r := csv.NewReader(bytes.NewReader(decodeText(raw)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return Table{}
	}

	var (
		columns []string
		index   = map[string]int{}
	)
	for i, label := range header {
		label = strings.TrimSpace(label)
		if label == "" || strings.HasPrefix(label, placeholderPrefix) {
			continue
		}
		columns = append(columns, label)
		if _, dup := index[strings.ToLower(label)]; !dup {
			index[strings.ToLower(label)] = i
		}
	}

	field := func(row []string, column string) string {
		i, ok := index[strings.ToLower(column)]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	table := Table{Columns: columns}
	for {
		row, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				continue
			}
			break
		}
		if blankRow(row) {
			continue
		}

		rec := domain.Record{
			ISIN:      strings.TrimSpace(field(row, ColumnISIN)),
			NAVDate:   parseDate(field(row, ColumnDate)),
			Frequency: strings.ToUpper(strings.TrimSpace(field(row, ColumnFrequency))),
			Variant:   variant,
		}
		rec.NAV, rec.HasNAV = parseNAV(field(row, ColumnNAV))
		table.Records = append(table.Records, rec)
	}
	return table
}

func decodeText(raw []byte) []byte {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if utf8.Valid(raw) {
		return raw
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func blankRow(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// parseDate returns the zero time when s matches no known layout.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return domain.DateOf(t)
		}
	}
	return time.Time{}
}

// parseNAV strips thousands separators before parsing.
func parseNAV(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
