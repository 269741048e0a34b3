package domain

import "strings"

// FilterSpec is the targeting policy of one ingestion run. An empty token
// list selects every instrument.
type FilterSpec struct {
	Tokens []string
}

// ParseFilterSpec splits a comma-separated filter expression. "", "all" and
// "*" select everything.
func ParseFilterSpec(s string) FilterSpec {
	var tokens []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.EqualFold(p, "all") || p == "*" {
			return FilterSpec{}
		}
		tokens = append(tokens, p)
	}
	return FilterSpec{Tokens: tokens}
}

// All reports whether the filter is unrestricted.
func (f FilterSpec) All() bool { return len(f.Tokens) == 0 }

func (f FilterSpec) String() string {
	if f.All() {
		return "all"
	}
	return strings.Join(f.Tokens, ",")
}

// IDSet is a set of instrument identifiers.
type IDSet map[string]struct{}

// NewIDSet builds a set from ids, skipping blanks.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	s.Add(ids...)
	return s
}

// Add inserts ids into the set.
func (s IDSet) Add(ids ...string) {
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			s[id] = struct{}{}
		}
	}
}

// Has reports membership.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Target is a resolved FilterSpec. When All is true IDs is ignored and no
// identifier filtering is applied downstream; otherwise only members of IDs
// are kept, and an empty IDs keeps nothing.
type Target struct {
	All bool
	IDs IDSet
}

// Allows reports whether the identifier passes the target.
func (t Target) Allows(id string) bool {
	return t.All || t.IDs.Has(id)
}

// Len returns the number of identifiers a restricted target keeps.
func (t Target) Len() int { return len(t.IDs) }
