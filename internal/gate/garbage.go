package gate

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/sells-group/startup-intake/internal/heuristics"
)

// specialCharLimit is the maximum fraction of non-alphanumeric,
// non-space runes a plausible company name may contain.
const specialCharLimit = 0.3

var foldCaser = cases.Fold()

// isGarbageName classifies names that cannot belong to a real company:
// promotional/generic phrases, all-digit strings, and names dominated by
// special characters.
func isGarbageName(name string, tables *heuristics.Tables) bool {
	folded := foldCaser.String(strings.TrimSpace(name))
	if folded == "" {
		return true
	}

	for _, w := range tables.GarbageWords {
		if strings.Contains(folded, foldCaser.String(w)) {
			return true
		}
	}

	allDigits := true
	var special, total int
	for _, r := range folded {
		total++
		switch {
		case unicode.IsDigit(r):
		case unicode.IsLetter(r):
			allDigits = false
		case unicode.IsSpace(r):
			allDigits = false
		default:
			allDigits = false
			special++
		}
	}
	if allDigits {
		return true
	}
	return total > 0 && float64(special)/float64(total) > specialCharLimit
}

// isWellFormedName grants the name bonus: starts with a capital letter or
// digit, contains at least one letter, and is not all-caps unless short
// enough to be an acronym.
func isWellFormedName(name string) bool {
	runes := []rune(strings.TrimSpace(name))
	if len(runes) == 0 {
		return false
	}
	first := runes[0]
	if !unicode.IsUpper(first) && !unicode.IsDigit(first) {
		return false
	}

	hasLetter := false
	allCaps := true
	for _, r := range runes {
		if unicode.IsLetter(r) {
			hasLetter = true
			if unicode.IsLower(r) {
				allCaps = false
			}
		}
	}
	if !hasLetter {
		return false
	}
	if allCaps && len(runes) > 4 {
		return false
	}
	return true
}
