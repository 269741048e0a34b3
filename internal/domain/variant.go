package domain

import (
	"fmt"
	"strings"
)

// Variant is a sub-classification of the artifacts a source publishes.
type Variant int

const (
	VariantStandard Variant = iota
	VariantHybrid
	VariantLoan
)

// Variants is the closed enumeration, in matrix order.
var Variants = []Variant{VariantStandard, VariantHybrid, VariantLoan}

func (v Variant) String() string {
	switch v {
	case VariantStandard:
		return "standard"
	case VariantHybrid:
		return "hybrid"
	case VariantLoan:
		return "loan"
	}
	return fmt.Sprintf("variant(%d)", int(v))
}

// ParseVariant parses a variant name. The empty string is not a variant.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "standard":
		return VariantStandard, nil
	case "hybrid", "wrappers_hybrid":
		return VariantHybrid, nil
	case "loan":
		return VariantLoan, nil
	}
	return 0, fmt.Errorf("unknown variant %q (valid: standard, hybrid, loan)", s)
}
