package waterfall

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/emissions-cli/internal/match"
)

// Proxy is a flat category-average factor keyed by intent subcategory.
type Proxy struct {
	Subcategory string  `yaml:"subcategory" json:"subcategory"`
	Factor      float64 `yaml:"factor" json:"factor"`
	Unit        string  `yaml:"unit" json:"unit"`
	Description string  `yaml:"description" json:"description"`
	Source      string  `yaml:"source,omitempty" json:"source,omitempty"`
}

// Rules holds the tunable exception tables used by the layers.
type Rules struct {
	Nudges  []match.Nudge `yaml:"nudges"`
	Proxies []Proxy       `yaml:"proxies"`
}

// DefaultProxies covers the most common subcategories.
func DefaultProxies() []Proxy {
	return []Proxy{
		{
			Subcategory: "electricity",
			Factor:      0.82,
			Unit:        "kWh",
			Description: "Grid electricity, national average",
			Source:      "Category proxy",
		},
		{
			Subcategory: "stationary_combustion",
			Factor:      2.68,
			Unit:        "litre",
			Description: "Liquid fuel combustion, diesel-equivalent average",
			Source:      "Category proxy",
		},
	}
}

// DefaultRules returns the built-in nudges and proxies.
func DefaultRules() *Rules {
	return &Rules{Nudges: match.DefaultNudges(), Proxies: DefaultProxies()}
}

// LoadRules reads rules from a YAML file with a top-level "rules" key. An
// empty path returns DefaultRules. A section missing from the file keeps its
// default; an explicitly empty list disables it.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "waterfall: read rules %s", path)
	}

	var wrapper struct {
		Rules Rules `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "waterfall: parse rules")
	}

	r := &wrapper.Rules
	if r.Nudges == nil {
		r.Nudges = match.DefaultNudges()
	}
	if r.Proxies == nil {
		r.Proxies = DefaultProxies()
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks every entry is usable.
func (r *Rules) Validate() error {
	for i, n := range r.Nudges {
		if strings.TrimSpace(n.Query) == "" || len(n.LabelContains) == 0 {
			return eris.Errorf("waterfall: nudge %d needs a query and label_contains", i)
		}
	}
	seen := make(map[string]bool, len(r.Proxies))
	for i, p := range r.Proxies {
		key := strings.ToLower(strings.TrimSpace(p.Subcategory))
		switch {
		case key == "":
			return eris.Errorf("waterfall: proxy %d has no subcategory", i)
		case p.Factor <= 0:
			return eris.Errorf("waterfall: proxy %q factor must be positive", p.Subcategory)
		case strings.TrimSpace(p.Unit) == "":
			return eris.Errorf("waterfall: proxy %q has no unit", p.Subcategory)
		case seen[key]:
			return eris.Errorf("waterfall: duplicate proxy %q", p.Subcategory)
		}
		seen[key] = true
	}
	return nil
}

// Proxy returns the proxy for a subcategory.
func (r *Rules) Proxy(subcategory string) (Proxy, bool) {
	key := strings.ToLower(strings.TrimSpace(subcategory))
	if key == "" {
		return Proxy{}, false
	}
	for _, p := range r.Proxies {
		if strings.ToLower(strings.TrimSpace(p.Subcategory)) == key {
			return p, true
		}
	}
	return Proxy{}, false
}
