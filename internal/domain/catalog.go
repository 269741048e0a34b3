package domain

import "strings"

// SeriesStatus is the lifecycle status of a catalog entry.
type SeriesStatus string

const (
	StatusActive   SeriesStatus = "A"
	StatusInactive SeriesStatus = "D"
	StatusMatured  SeriesStatus = "Matured"
)

// AllStatuses lists every status a catalog entry may carry.
var AllStatuses = []SeriesStatus{StatusActive, StatusInactive, StatusMatured}

// ParseStatus accepts either the stored code ("A", "D", "Matured") or a
// descriptive name ("active", "inactive", "matured").
func ParseStatus(s string) (SeriesStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a", "active":
		return StatusActive, true
	case "d", "inactive", "discontinued":
		return StatusInactive, true
	case "matured":
		return StatusMatured, true
	}
	return "", false
}

// Frequency is the valuation frequency class of an instrument.
type Frequency string

const (
	FrequencyDaily     Frequency = "Daily"
	FrequencyWeekly    Frequency = "Weekly"
	FrequencyMonthly   Frequency = "Monthly"
	FrequencyQuarterly Frequency = "Quarterly"
)

// CatalogEntry is one issued instrument in the reference catalog. Rows are
// maintained by an external reference-data sync and are read-only here.
type CatalogEntry struct {
	ISIN         string
	SeriesNumber string // grouping key shared by related identifiers
	Status       SeriesStatus
	Frequency    Frequency
	ProductType  string
	Currency     string
}
