package models

import "strings"

// SameToken compares token identifiers ignoring hex case.
func SameToken(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// IsInversePair reports whether b sells what a buys and buys what a sells.
func IsInversePair(a, b *Intent) bool {
	return SameToken(a.TokenIn, b.TokenOut) && SameToken(a.TokenOut, b.TokenIn)
}
