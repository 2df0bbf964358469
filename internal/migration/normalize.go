// Package migration reshapes legacy records into the current model. It is
// applied at the storage boundary (import, export, guest upgrade) and never
// inside the calculation engines.
package migration

import (
	"strings"
)

var canonicalPrefixes = []string{"expense-", "income-"}

// NormalizeCategoryID strips legacy owner prefixes such as
// "user123-expense-food" down to "expense-food" and spells "&" as "and".
// Already normalised ids are returned unchanged.
func NormalizeCategoryID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return id
	}
	for _, p := range canonicalPrefixes {
		if strings.HasPrefix(id, p) {
			return strings.ReplaceAll(id, "&", "and")
		}
	}
	for _, p := range canonicalPrefixes {
		if i := strings.Index(id, "-"+p); i >= 0 {
			id = id[i+1:]
			break
		}
	}
	return strings.ReplaceAll(id, "&", "and")
}

// NormalizeCategoryIDs normalises every id and drops duplicates created by
// the normalisation, keeping first occurrences.
func NormalizeCategoryIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		n := NormalizeCategoryID(id)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
