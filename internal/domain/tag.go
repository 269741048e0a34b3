package domain

import "strings"

// Tag is a named selection policy accepted in a FilterSpec.
type Tag int

const (
	TagDaily Tag = iota
	TagWeekly
	TagMonthly
	TagQuarterly
	TagWrappersHybrid
	TagLoan
)

// Tags is the closed tag vocabulary.
var Tags = []Tag{TagDaily, TagWeekly, TagMonthly, TagQuarterly, TagWrappersHybrid, TagLoan}

var tagNames = map[Tag]string{
	TagDaily:          "daily",
	TagWeekly:         "weekly",
	TagMonthly:        "monthly",
	TagQuarterly:      "quarterly",
	TagWrappersHybrid: "wrappers_hybrid",
	TagLoan:           "loan",
}

func (t Tag) String() string { return tagNames[t] }

// ParseTag matches token against the vocabulary, ignoring case. Tokens that
// are not tags are literal identifiers.
func ParseTag(token string) (Tag, bool) {
	token = strings.ToLower(strings.TrimSpace(token))
	for t, name := range tagNames {
		if name == token {
			return t, true
		}
	}
	return 0, false
}

// Frequency returns the catalog frequency a frequency tag selects.
func (t Tag) Frequency() (Frequency, bool) {
	switch t {
	case TagDaily:
		return FrequencyDaily, true
	case TagWeekly:
		return FrequencyWeekly, true
	case TagMonthly:
		return FrequencyMonthly, true
	case TagQuarterly:
		return FrequencyQuarterly, true
	}
	return "", false
}

// ProductType returns the catalog product type a product tag selects, and
// the artifact variant that carries it.
func (t Tag) ProductType() (string, Variant, bool) {
	switch t {
	case TagWrappersHybrid:
		return "Wrappers Hybrid", VariantHybrid, true
	case TagLoan:
		return "Loan", VariantLoan, true
	}
	return "", 0, false
}
