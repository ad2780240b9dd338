package resolve

import (
	"regexp"
	"strings"

	"github.com/agext/levenshtein"
)

// A comma or whitespace must precede the suffix so "Acmecorp" stays intact.
var entitySuffixes = regexp.MustCompile(
	`(?i)(?:\s*,\s*|\s+)(LLC|L\.?L\.?C\.?|INC\.?|INCORPORATED|CORP\.?|CORPORATION|` +
		`CO\.?|COMPANY|LTD\.?|LIMITED|GMBH|S\.?A\.?S\.?|B\.?V\.?)\s*\.?\s*$`)

var multiSpace = regexp.MustCompile(`\s{2,}`)

// NormalizeName strips corporate entity suffixes and collapses whitespace so
// "Acme, Inc." and "acme" compare as the same name.
func NormalizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = entitySuffixes.ReplaceAllString(n, "")
	n = multiSpace.ReplaceAllString(n, " ")
	return strings.TrimSpace(n)
}

// Similarity returns the normalized Levenshtein similarity between two
// names: (max(|a|,|b|) − editDistance(a,b)) / max(|a|,|b|). Identical
// strings score 1.0; two empty strings score 0 (no evidence either way).
func Similarity(a, b string) float64 {
	a = NormalizeName(a)
	b = NormalizeName(b)

	// Distance counts runes, so the length must too.
	maxLen := len([]rune(a))
	if n := len([]rune(b)); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 0
	}

	dist := levenshtein.Distance(a, b, nil)
	return float64(maxLen-dist) / float64(maxLen)
}
