package consolidation

import (
	"strings"
	"unicode"
)

// QuickEstimate is a cheap lexical similarity: the Jaccard index of the two
// descriptions' token sets after lowercasing and dropping every rune that is not
// a letter, digit or whitespace.
// Two descriptions with no tokens at all score 0.
func QuickEstimate(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 0
	}

	small, large := ta, tb
	if len(small) > len(large) {
		small, large = large, small
	}
	shared := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, s)

	fields := strings.Fields(stripped)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
