package analysis

import (
	"regexp"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var wordPattern = regexp.MustCompile(`[A-Za-z0-9_]+`)

// tokenSet returns the set of maximal word-character runs in s, case-folded.
func tokenSet(s string) map[string]struct{} {
	folded := cases.Lower(language.Und).String(s)
	set := make(map[string]struct{})
	for _, tok := range wordPattern.FindAllString(folded, -1) {
		set[tok] = struct{}{}
	}
	return set
}

// Similarity returns the Jaccard index of the token sets of a and b.
// Two inputs without any tokens are treated as identical (1).
func Similarity(a, b string) float64 {
	setA, setB := tokenSet(a), tokenSet(b)

	inter := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 1
	}
	return float64(inter) / float64(union)
}
