package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/emissions-cli/internal/model"
)

func internationalRecords() []model.EmissionFactorRecord {
	return []model.EmissionFactorRecord{
		{Dataset: model.DatasetInternational, Type: "Fuel combustion", Name: "Diesel Oil", Unit: "kg/TJ", Value: "74100", Source: "IPCC 2006"},
		{Dataset: model.DatasetInternational, Type: "Industrial processes", Name: "Steel production", Unit: "kg/TJ", Value: "2.1", Source: "IPCC 2006"},
	}
}

func secondaryRecords() []model.EmissionFactorRecord {
	return []model.EmissionFactorRecord{
		{Dataset: model.DatasetSecondary, Type: "Fuels", Name: "Liquid fuels", Subtype: "Diesel (average biofuel blend)", Unit: "litres", Value: "2.51", Source: "DEFRA 2023", Year: 2023},
		{Dataset: model.DatasetSecondary, Type: "Fuels", Name: "Liquid fuels", Subtype: "Diesel (100% mineral diesel)", Unit: "litres", Value: "2.68", Source: "DEFRA 2023", Year: 2023},
		{Dataset: model.DatasetSecondary, Type: "Bioenergy", Name: "Biofuel", Subtype: "Biodiesel", Unit: "litres", Value: "0.17", Source: "DEFRA 2023", Year: 2023},
	}
}

func combustion() model.Intent {
	return model.Intent{Type: model.IntentCombustion, Scope: 1, Category: "fuel_combustion", Subcategory: "stationary_combustion"}
}

func TestMatch_DieselPrefersMineral(t *testing.T) {
	t.Parallel()

	m := New(DefaultOptions())
	res := m.Match(Query{Activity: "diesel", Unit: "litre", Intent: combustion()}, internationalRecords(), secondaryRecords())

	require.NotNil(t, res.Best)
	assert.Equal(t, 2.68, res.Best.Factor)
	assert.Equal(t, "litres", res.Best.Unit)
	assert.Equal(t, model.DatasetSecondary, res.Best.Dataset)
	assert.Equal(t, 100.0, res.Best.Relevance)
	assert.Equal(t, 100.0, res.Best.TextScore)
	assert.Equal(t, 90.0, res.Best.UnitScore)
	assert.Contains(t, res.Best.Label, "mineral diesel")

	require.Len(t, res.Alternatives, 1)
	assert.Equal(t, 2.51, res.Alternatives[0].Factor)
	assert.Equal(t, 97.0, res.Alternatives[0].Relevance)

	assert.Equal(t, 5, res.Evaluated)
	assert.Equal(t, 1, res.Rejected[RejectUnit])
}

func TestMatch_ProductionMassRejectsEnergyBasis(t *testing.T) {
	t.Parallel()

	m := New(DefaultOptions())
	q := Query{Activity: "steel", Unit: "kg", Intent: model.Intent{Type: model.IntentProduction}}
	res := m.Match(q, internationalRecords())

	assert.Nil(t, res.Best)
	assert.Equal(t, 1, res.Rejected[RejectBasis])
}

func TestMatch_ValidatorRejectsEnergyBasisWithoutProductionIntent(t *testing.T) {
	t.Parallel()

	m := New(DefaultOptions())
	q := Query{Activity: "steel", Unit: "kg", Intent: model.DefaultIntent()}
	res := m.Match(q, internationalRecords())

	assert.Nil(t, res.Best)
	assert.Equal(t, 1, res.Rejected[RejectValidator])
}

func TestMatch_FactorCeiling(t *testing.T) {
	t.Parallel()

	records := []model.EmissionFactorRecord{
		{Dataset: model.DatasetInternational, Name: "Coal", Unit: "kg", Value: "12000"},
		{Dataset: model.DatasetInternational, Name: "Coal", Unit: "kg", Value: "0"},
		{Dataset: model.DatasetInternational, Name: "Coal", Unit: "kg", Value: "unknown"},
	}
	res := New(DefaultOptions()).Match(Query{Activity: "coal", Unit: "kg"}, records)

	assert.Nil(t, res.Best)
	assert.Equal(t, 3, res.Rejected[RejectFactor])
}

func TestMatch_PenaltyDropsBelowRelevanceFloor(t *testing.T) {
	t.Parallel()

	records := []model.EmissionFactorRecord{
		{Dataset: model.DatasetSecondary, Name: "Biodiesel", Unit: "litres", Value: "0.17"},
	}
	res := New(DefaultOptions()).Match(Query{Activity: "diesel", Unit: "litre", Intent: combustion()}, records)

	assert.Nil(t, res.Best)
	assert.Zero(t, res.Rejected[RejectText])
}

func TestMatch_TiesKeepEarlierRecord(t *testing.T) {
	t.Parallel()

	first := []model.EmissionFactorRecord{{Dataset: model.DatasetInternational, Name: "LPG", Unit: "kg", Value: "2.94", Source: "first"}}
	second := []model.EmissionFactorRecord{{Dataset: model.DatasetSecondary, Name: "LPG", Unit: "kg", Value: "3.01", Source: "second"}}

	res := New(DefaultOptions()).Match(Query{Activity: "lpg", Unit: "kg"}, first, second)
	require.NotNil(t, res.Best)
	assert.Equal(t, "first", res.Best.Source)
}

func TestMatch_MaxAlternatives(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.MaxAlternatives = 0
	res := New(opts).Match(Query{Activity: "diesel", Unit: "litre", Intent: combustion()}, secondaryRecords())

	require.NotNil(t, res.Best)
	assert.Empty(t, res.Alternatives)
}

func TestMatch_Deterministic(t *testing.T) {
	t.Parallel()

	m := New(DefaultOptions())
	q := Query{Activity: "diesel", Unit: "litre", Intent: combustion()}
	first := m.Match(q, internationalRecords(), secondaryRecords())
	for range 10 {
		again := m.Match(q, internationalRecords(), secondaryRecords())
		assert.Equal(t, first.Best.Label, again.Best.Label)
		assert.Equal(t, first.Best.Relevance, again.Best.Relevance)
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	m := New(Options{})
	assert.Equal(t, 75.0, m.Options().TextThreshold)
	assert.Equal(t, 50.0, m.Options().UnitThreshold)
	assert.Equal(t, 70.0, m.Options().MinRelevance)
	assert.Equal(t, 10000.0, m.Options().MaxFactor)
}

func TestConfidenceAndQuality(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.95, Confidence(100))
	assert.InDelta(t, 0.8, Confidence(80), 1e-9)
	assert.Equal(t, model.QualityHigh, Quality(0.95))
	assert.Equal(t, model.QualityMedium, Quality(0.85))
}
