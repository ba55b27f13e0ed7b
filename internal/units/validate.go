package units

import (
	"fmt"
	"strings"
)

// MaxReferenceFactor is the plausibility ceiling for reference factors.
const MaxReferenceFactor = 10000.0

// maxSteelPerKg caps steel factors per mass unit; steel production is
// roughly 1-3 kg CO2e/kg.
const maxSteelPerKg = 50.0

// ProductionMaterials are activities whose factors are mass-based.
var ProductionMaterials = []string{"steel", "aluminum", "aluminium", "cement", "concrete", "metal", "plastic"}

// IsProductionMaterial reports whether the activity mentions a production material.
func IsProductionMaterial(activity string) bool {
	a := strings.ToLower(activity)
	for _, m := range ProductionMaterials {
		if strings.Contains(a, m) {
			return true
		}
	}
	return false
}

// Validate decides whether a candidate factor is physically plausible for the
// query. It returns false with the rejection reason when the pairing must not
// be used.
func Validate(activity, queryUnit, candidateUnit string, factor float64) (bool, string) {
	queryMass := IsMass(queryUnit)

	if IsProductionMaterial(activity) && queryMass && HasEnergyToken(candidateUnit) {
		return false, fmt.Sprintf("unit basis mismatch: %s is measured in %s but factor is per %s",
			activity, queryUnit, candidateUnit)
	}
	if factor > MaxReferenceFactor {
		return false, fmt.Sprintf("implausible factor %.2f exceeds %.0f", factor, MaxReferenceFactor)
	}
	if strings.Contains(strings.ToLower(activity), "steel") && queryMass && factor > maxSteelPerKg {
		return false, fmt.Sprintf("steel factor %.2f per %s exceeds %.0f", factor, queryUnit, maxSteelPerKg)
	}
	return true, ""
}
