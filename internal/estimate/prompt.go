package estimate

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are a greenhouse gas accounting specialist. You estimate emission factors
(kg CO2e per unit of activity) for activities that have no match in the reference
databases available to the caller.

Rules:
- Answer with one JSON object and nothing else.
- estimated_emission_factor is a positive number in kg CO2e per the requested unit.
- Prefer factors consistent with IPCC, GHG Protocol and national inventory methods
  for the stated region.
- confidence is between 0 and 1 and should rarely exceed 0.7 for an estimate.
- List at most 5 similar_factors you relied on.
- compliance_warning must always state that the value is an estimate that needs
  verification before use in regulatory reporting.

Schema:
{
  "estimated_emission_factor": number,
  "unit": string,
  "confidence": number,
  "data_quality": string,
  "reasoning": string,
  "similar_factors": [{"activity": string, "factor": number, "unit": string, "source": string}],
  "uncertainty_range": {"low": number, "high": number, "percentage": number},
  "recommended_next_steps": [string],
  "compliance_warning": string
}`

// BuildPrompt renders the user message for a request.
func BuildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Activity: %s\n", req.Activity)
	fmt.Fprintf(&b, "Quantity: %g %s\n", req.Quantity, req.Unit)
	fmt.Fprintf(&b, "Region: %s\n", req.Region)
	fmt.Fprintf(&b, "Classified as: type=%s scope=%d category=%s", req.Intent.Type, req.Intent.Scope, req.Intent.Category)
	if req.Intent.Subcategory != "" {
		fmt.Fprintf(&b, " subcategory=%s", req.Intent.Subcategory)
	}
	b.WriteString("\n")
	if req.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", req.Description)
	}
	if req.Context != "" {
		fmt.Fprintf(&b, "Context: %s\n", req.Context)
	}
	fmt.Fprintf(&b, "\n%d reference emission factors were searched without an acceptable match ", req.FactorsSearched)
	b.WriteString("(exact regional lookup, fuzzy search of international and secondary datasets, and category proxies).\n")
	fmt.Fprintf(&b, "Estimate the emission factor in kg CO2e per %s.", req.Unit)
	return b.String()
}
