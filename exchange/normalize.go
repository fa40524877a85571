package exchange

import "strings"

// Normalize reduces an arbitrary exchange-name spelling to a canonical
// comparable form: all non-alphanumeric characters are stripped and the
// remainder is lower-cased. The function is pure and idempotent; an empty
// input yields an empty output, which callers treat as non-matching.
func Normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		}
	}
	return b.String()
}

// AliasTable groups venue spellings into families. A venue family maps a
// canonical name to substrings accepted as that family; two names belong to
// the same family when their normalized forms contain one of its substrings.
// Names outside every family compare by plain normalized equality.
type AliasTable struct {
	families map[string][]string
}

// NewAliasTable builds an alias table from canonical venue name to the
// normalized substrings accepted for it.
func NewAliasTable(families map[string][]string) *AliasTable {
	copied := make(map[string][]string, len(families))
	for canonical, aliases := range families {
		normalized := make([]string, 0, len(aliases))
		for _, alias := range aliases {
			if n := Normalize(alias); n != "" {
				normalized = append(normalized, n)
			}
		}
		copied[Normalize(canonical)] = normalized
	}
	return &AliasTable{families: copied}
}

// DefaultAliases returns the table used in production. Coinbase operates
// under several public names (Coinbase, Coinbase Pro, Coinbase Exchange), so
// any spelling containing "coinbase" resolves to the same venue.
func DefaultAliases() *AliasTable {
	return NewAliasTable(map[string][]string{
		"coinbase": {"coinbase"},
	})
}

// Canonical resolves a raw venue name to its family's canonical name, or to
// its normalized form when it belongs to no family.
func (t *AliasTable) Canonical(name string) string {
	n := Normalize(name)
	if n == "" {
		return ""
	}
	for canonical, aliases := range t.families {
		for _, alias := range aliases {
			if strings.Contains(n, alias) {
				return canonical
			}
		}
	}
	return n
}

// Match reports whether two raw venue names refer to the same venue. Empty
// names never match.
func (t *AliasTable) Match(a, b string) bool {
	ca := t.Canonical(a)
	if ca == "" {
		return false
	}
	return ca == t.Canonical(b)
}
