// Package match scores reference factor records against a free-text query
// and selects the most relevant candidate.
package match

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/xrash/smetrics"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds diacritics, lower-cases and reduces text to space
// separated alphanumeric tokens.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	fields := strings.FieldsFunc(strings.ToLower(folded), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}

// Ratio is the indel similarity of two strings on a 0-100 scale:
// 100 * (1 - distance / (len(a)+len(b))) with substitutions costing two.
func Ratio(a, b string) float64 {
	total := len(a) + len(b)
	if total == 0 || a == "" || b == "" {
		return 0
	}
	d := smetrics.WagnerFischer(a, b, 1, 1, 2)
	return math.Round(100 * float64(total-d) / float64(total))
}

// TokenSetRatio compares the token sets of two strings. The shared tokens are
// compared against each side's full token set, so a query fully contained in
// a longer label scores 100.
func TokenSetRatio(a, b string) float64 {
	ta, tb := tokenSet(Normalize(a)), tokenSet(Normalize(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var inter, onlyA, onlyB []string
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			inter = append(inter, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for tok := range tb {
		if _, ok := ta[tok]; !ok {
			onlyB = append(onlyB, tok)
		}
	}
	sort.Strings(inter)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	sect := strings.Join(inter, " ")
	combinedA := strings.TrimSpace(sect + " " + strings.Join(onlyA, " "))
	combinedB := strings.TrimSpace(sect + " " + strings.Join(onlyB, " "))

	return max(Ratio(sect, combinedA), Ratio(sect, combinedB), Ratio(combinedA, combinedB))
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range strings.Fields(s) {
		out[f] = struct{}{}
	}
	return out
}
