// Package fold maps text to a case-free form for comparisons that ignore case.
package fold

import (
	"golang.org/x/text/cases"
)

// String returns the Unicode full case fold of s, so "Émile" and "émile"
// (or "STRASSE" and "straße") yield the same key.
func String(s string) string {
	// A Caser keeps state between calls and must not be shared.
	return cases.Fold().String(s)
}
