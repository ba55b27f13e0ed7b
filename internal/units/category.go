// Package units classifies activity units and scores how compatible a query
// unit is with the unit a reference factor is denominated in.
package units

import (
	"strings"
	"unicode"
)

// Category is the physical basis of a unit.
type Category string

const (
	Energy   Category = "energy"
	Volume   Category = "volume"
	Mass     Category = "mass"
	Distance Category = "distance"
	Unknown  Category = "unknown"
)

var energyTokens = tokenSet(
	"wh", "kwh", "mwh", "gwh", "twh",
	"j", "kj", "mj", "gj", "tj", "pj",
	"btu", "mmbtu", "therm", "therms", "kcal", "toe",
)

var volumeTokens = tokenSet(
	"l", "litre", "litres", "liter", "liters", "ltr", "ltrs", "ml", "kl",
	"m3", "scm", "cubic", "gallon", "gallons", "gal", "scf", "bbl", "barrel", "barrels",
)

var massTokens = tokenSet(
	"g", "gram", "grams", "kg", "kgs", "kilogram", "kilograms",
	"t", "tonne", "tonnes", "ton", "tons", "mt", "lb", "lbs", "pound", "pounds", "quintal",
)

var distanceTokens = tokenSet(
	"km", "kms", "kilometre", "kilometres", "kilometer", "kilometers",
	"mile", "miles", "mi", "pkm", "tkm", "vkm", "nautical",
)

// categoryOrder resolves units whose basis mixes families, e.g. "tonne.km"
// is a distance basis and "kg/TJ" an energy basis.
var categoryOrder = []struct {
	cat    Category
	tokens map[string]struct{}
}{
	{Distance, distanceTokens},
	{Energy, energyTokens},
	{Volume, volumeTokens},
	{Mass, massTokens},
}

func tokenSet(tokens ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// Normalize lower-cases and trims a unit string and folds superscripts.
func Normalize(unit string) string {
	unit = strings.ToLower(strings.TrimSpace(unit))
	return strings.NewReplacer("³", "3", "²", "2").Replace(unit)
}

// Tokens splits a unit into alphanumeric tokens.
func Tokens(unit string) []string {
	return strings.FieldsFunc(Normalize(unit), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Basis returns the part of a unit that names the activity, i.e. the
// denominator of a ratio such as "kg CO2e/litre" or "kg per kWh".
func Basis(unit string) string {
	u := Normalize(unit)
	if i := strings.LastIndex(u, "/"); i >= 0 {
		return strings.TrimSpace(u[i+1:])
	}
	if i := strings.LastIndex(u, " per "); i >= 0 {
		return strings.TrimSpace(u[i+len(" per "):])
	}
	return u
}

// CategoryOf classifies a unit by keyword membership of its basis tokens.
func CategoryOf(unit string) Category {
	toks := Tokens(Basis(unit))
	for _, c := range categoryOrder {
		for _, tok := range toks {
			if _, ok := c.tokens[tok]; ok {
				return c.cat
			}
		}
	}
	return Unknown
}

// IsMass reports whether the unit is mass-based.
func IsMass(unit string) bool { return CategoryOf(unit) == Mass }

// IsEnergy reports whether the unit is energy-based.
func IsEnergy(unit string) bool { return CategoryOf(unit) == Energy }

// IsVolume reports whether the unit is volume-based.
func IsVolume(unit string) bool { return CategoryOf(unit) == Volume }

// HasEnergyToken reports whether any token of the unit names an energy
// quantity, anywhere in the unit (tj, gj, kg/TJ, t/GJ, ...).
func HasEnergyToken(unit string) bool {
	for _, tok := range Tokens(unit) {
		if _, ok := energyTokens[tok]; ok {
			return true
		}
	}
	return false
}

// Compatibility scores a query unit against a candidate unit on a 0-100 scale:
// exact match 100, substring containment either way 90, same category 70,
// anything else 30.
func Compatibility(queryUnit, candidateUnit string) float64 {
	q, c := Normalize(queryUnit), Normalize(candidateUnit)
	if q == "" || c == "" {
		return 30
	}
	if q == c {
		return 100
	}
	if strings.Contains(c, q) || strings.Contains(q, c) {
		return 90
	}
	qc := CategoryOf(q)
	if qc != Unknown && qc == CategoryOf(c) {
		return 70
	}
	return 30
}
