// Package intent maps free-text activities to a GHG scope and category.
package intent

import (
	"strings"
	"unicode"

	"github.com/sells-group/emissions-cli/internal/model"
	"github.com/sells-group/emissions-cli/internal/units"
)

// hintPenalty lowers confidence when only the description/context matched.
const hintPenalty = 0.1

// Keyword maps a word or phrase to the subcategory it implies.
type Keyword struct {
	Phrase      string
	Category    string
	Subcategory string
}

// Rule is one keyword group. Rules are evaluated strictly in order and the
// first rule with a matching keyword wins.
type Rule struct {
	Name       string
	Type       model.IntentType
	Scope      int
	Confidence float64
	Keywords   []Keyword

	// Gate, when set, must accept the query unit for the rule to apply.
	Gate func(unit string) bool
}

// DefaultRules returns the built-in taxonomy in precedence order:
// transport, energy/combustion, production materials.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "transport", Type: model.IntentTransport, Scope: 3, Confidence: 0.85,
			Keywords: concat(
				keywords("business_travel", "air_travel", "flight", "flights", "air travel", "airline", "plane", "aviation"),
				keywords("business_travel", "rail", "train", "trains", "rail", "railway", "metro"),
				keywords("business_travel", "road_travel", "taxi", "cab", "car", "cars", "bus", "vehicle", "vehicles", "commute", "commuting"),
				keywords("upstream_transportation", "freight", "truck", "trucks", "lorry", "freight", "shipping", "courier", "logistics", "cargo"),
			),
		},
		{
			Name: "energy", Type: model.IntentEnergy, Scope: 2, Confidence: 0.9,
			Keywords: concat(
				keywords("purchased_electricity", "electricity", "electricity", "electric", "power", "grid"),
				keywords("purchased_energy", "purchased_heat", "steam", "heat", "district heating", "chilled water"),
			),
		},
		{
			Name: "combustion", Type: model.IntentCombustion, Scope: 1, Confidence: 0.9,
			Keywords: keywords("fuel_combustion", "stationary_combustion",
				"diesel", "hsd", "petrol", "gasoline", "lpg", "cng", "lng", "natural gas", "coal", "kerosene",
				"fuel oil", "furnace oil", "propane", "butane", "biomass", "wood", "fuel"),
		},
		{
			Name: "production", Type: model.IntentProduction, Scope: 3, Confidence: 0.85,
			Gate: units.IsMass,
			Keywords: concat(
				keywords("purchased_goods", "steel", "steel"),
				keywords("purchased_goods", "aluminium", "aluminium", "aluminum"),
				keywords("purchased_goods", "cement", "cement", "concrete"),
				keywords("purchased_goods", "metal", "metal", "metals", "iron", "copper"),
				keywords("purchased_goods", "plastic", "plastic", "plastics"),
				keywords("purchased_goods", "glass", "glass"),
				keywords("purchased_goods", "paper", "paper", "cardboard"),
			),
		},
	}
}

func keywords(category, subcategory string, phrases ...string) []Keyword {
	out := make([]Keyword, len(phrases))
	for i, p := range phrases {
		out[i] = Keyword{Phrase: p, Category: category, Subcategory: subcategory}
	}
	return out
}

func concat(groups ...[]Keyword) []Keyword {
	var out []Keyword
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// Classifier evaluates an ordered rule list.
type Classifier struct {
	rules []Rule
}

// New creates a classifier with the default taxonomy.
func New() *Classifier {
	return &Classifier{rules: DefaultRules()}
}

// NewWithRules creates a classifier over a custom ordered rule list.
func NewWithRules(rules []Rule) *Classifier {
	return &Classifier{rules: rules}
}

// Classify derives the intent of an activity. Keyword groups are tested
// against the activity first, then against the description/context hint,
// and finally the unit alone decides.
func (c *Classifier) Classify(activity, unit, hint string) model.Intent {
	if in, ok := c.matchRules(activity, unit); ok {
		return in
	}
	if strings.TrimSpace(hint) != "" {
		if in, ok := c.matchRules(hint, unit); ok {
			in.Confidence = model.Round(in.Confidence-hintPenalty, 2)
			return in
		}
	}
	return fromUnit(unit)
}

func (c *Classifier) matchRules(text, unit string) (model.Intent, bool) {
	padded := " " + normalize(text) + " "
	if strings.TrimSpace(padded) == "" {
		return model.Intent{}, false
	}
	for _, r := range c.rules {
		if r.Gate != nil && !r.Gate(unit) {
			continue
		}
		for _, kw := range r.Keywords {
			if strings.Contains(padded, " "+kw.Phrase+" ") {
				return model.Intent{
					Type:        r.Type,
					Confidence:  r.Confidence,
					Scope:       r.Scope,
					Category:    kw.Category,
					Subcategory: kw.Subcategory,
				}, true
			}
		}
	}
	return model.Intent{}, false
}

func fromUnit(unit string) model.Intent {
	switch units.CategoryOf(unit) {
	case units.Energy:
		return model.Intent{
			Type: model.IntentEnergy, Confidence: 0.6, Scope: 2,
			Category: "purchased_electricity", Subcategory: "electricity",
		}
	case units.Volume:
		return model.Intent{
			Type: model.IntentCombustion, Confidence: 0.6, Scope: 1,
			Category: "fuel_combustion", Subcategory: "stationary_combustion",
		}
	default:
		return model.DefaultIntent()
	}
}

// normalize lower-cases text and collapses every non-alphanumeric run to a
// single space so phrases match on word boundaries.
func normalize(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}
