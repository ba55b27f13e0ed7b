package model

import (
	"regexp"
	"strconv"
	"strings"
)

var numericPrefixRe = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?`)

// ParseFactor extracts the numeric prefix of a stored factor value such as
// "2.68", "2.68 kg/litre" or "74,100". It reports false when no number leads
// the text.
func ParseFactor(raw string) (float64, bool) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	m := numericPrefixRe.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Factor returns the record's parsed factor value.
func (r EmissionFactorRecord) Factor() (float64, bool) {
	return ParseFactor(r.Value)
}
