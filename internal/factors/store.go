// Package factors loads the three reference emission-factor datasets and
// serves them read-only to the resolution layers.
package factors

import (
	"github.com/sells-group/emissions-cli/internal/model"
)

// Store holds the loaded datasets. It is immutable after construction and
// safe for concurrent readers.
type Store struct {
	sets map[model.Dataset][]model.EmissionFactorRecord
}

// DatasetStats summarizes one loaded dataset.
type DatasetStats struct {
	Dataset   model.Dataset `json:"dataset"`
	Records   int           `json:"records"`
	WithGases int           `json:"with_gas_breakdown"`
	Sources   []string      `json:"sources"`
}

// NewStore copies the given rows into a new Store. Each record's Dataset and
// Position are set from where it sits, so callers may pass bare rows.
func NewStore(sets map[model.Dataset][]model.EmissionFactorRecord) *Store {
	s := &Store{sets: make(map[model.Dataset][]model.EmissionFactorRecord, len(model.Datasets))}
	for _, ds := range model.Datasets {
		rows := sets[ds]
		out := make([]model.EmissionFactorRecord, len(rows))
		for i, r := range rows {
			r.Dataset = ds
			r.Position = i
			out[i] = r
		}
		s.sets[ds] = out
	}
	return s
}

// Records returns the rows of one dataset in stored order. The slice is
// shared and must not be modified.
func (s *Store) Records(ds model.Dataset) []model.EmissionFactorRecord {
	return s.sets[ds]
}

// Regional returns the regional/national dataset.
func (s *Store) Regional() []model.EmissionFactorRecord { return s.sets[model.DatasetRegional] }

// International returns the international standard dataset.
func (s *Store) International() []model.EmissionFactorRecord {
	return s.sets[model.DatasetInternational]
}

// Secondary returns the secondary national dataset.
func (s *Store) Secondary() []model.EmissionFactorRecord { return s.sets[model.DatasetSecondary] }

// Count returns the total number of records across all datasets.
func (s *Store) Count() int {
	n := 0
	for _, rows := range s.sets {
		n += len(rows)
	}
	return n
}

// Stats summarizes every dataset in priority order.
func (s *Store) Stats() []DatasetStats {
	out := make([]DatasetStats, 0, len(model.Datasets))
	for _, ds := range model.Datasets {
		st := DatasetStats{Dataset: ds, Records: len(s.sets[ds]), Sources: []string{}}
		seen := make(map[string]bool)
		for _, r := range s.sets[ds] {
			if r.HasGasBreakdown() {
				st.WithGases++
			}
			if r.Source != "" && !seen[r.Source] {
				seen[r.Source] = true
				st.Sources = append(st.Sources, r.Source)
			}
		}
		out = append(out, st)
	}
	return out
}
