package factors

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/emissions-cli/internal/model"
)

type column int

const (
	colActivity column = iota
	colType
	colName
	colSubtype
	colTag
	colUnit
	colFactor
	colCO2
	colCH4
	colN2O
	colSource
	colYear
	colQuality
	colRegion
	numColumns
)

// headerAliases maps normalized header names to columns. Published
// conversion-factor workbooks use "Level 1..3", "Column Text" and "UOM".
var headerAliases = map[string]column{
	"activity":        colActivity,
	"activity_type":   colActivity,
	"fuel":            colActivity,
	"type":            colType,
	"level_1":         colType,
	"name":            colName,
	"level_2":         colName,
	"subtype":         colSubtype,
	"level_3":         colSubtype,
	"tag":             colTag,
	"level_4":         colTag,
	"column_text":     colTag,
	"unit":            colUnit,
	"uom":             colUnit,
	"factor":          colFactor,
	"value":           colFactor,
	"emission_factor": colFactor,
	"kg_co2e":         colFactor,
	"co2":             colCO2,
	"kg_co2":          colCO2,
	"ch4":             colCH4,
	"kg_ch4":          colCH4,
	"n2o":             colN2O,
	"kg_n2o":          colN2O,
	"source":          colSource,
	"year":            colYear,
	"quality":         colQuality,
	"data_quality":    colQuality,
	"region":          colRegion,
	"country":         colRegion,
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	return strings.Join(strings.FieldsFunc(h, func(r rune) bool {
		return r == ' ' || r == '_' || r == '-' || r == '.'
	}), "_")
}

// columnIndex resolves header positions. Unmapped headers are ignored; the
// first occurrence of a column wins.
type columnIndex [numColumns]int

func mapHeader(header []string) (columnIndex, error) {
	var idx columnIndex
	for i := range idx {
		idx[i] = -1
	}
	for i, h := range header {
		key := normalizeHeader(h)
		c, ok := headerAliases[key]
		if !ok && strings.HasPrefix(key, "ghg_conversion_factor") {
			c, ok = colFactor, true
		}
		if ok && idx[c] < 0 {
			idx[c] = i
		}
	}
	if idx[colUnit] < 0 {
		return idx, eris.New("factors: header has no unit column")
	}
	if idx[colFactor] < 0 {
		return idx, eris.New("factors: header has no factor column")
	}
	if idx[colActivity] < 0 && idx[colType] < 0 && idx[colName] < 0 && idx[colSubtype] < 0 && idx[colTag] < 0 {
		return idx, eris.New("factors: header has no label column")
	}
	return idx, nil
}

func (idx columnIndex) get(row []string, c column) string {
	i := idx[c]
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (idx columnIndex) gas(row []string, c column) *float64 {
	v, ok := model.ParseFactor(idx.get(row, c))
	if !ok {
		return nil
	}
	return &v
}

// parseRows converts a header and data rows into records. Rows without a
// label, a unit or a factor value are skipped.
func parseRows(ds model.Dataset, header []string, rows [][]string) ([]model.EmissionFactorRecord, error) {
	idx, err := mapHeader(header)
	if err != nil {
		return nil, eris.Wrapf(err, "factors: %s", ds)
	}

	out := make([]model.EmissionFactorRecord, 0, len(rows))
	skipped := 0
	for line, row := range rows {
		r := model.EmissionFactorRecord{
			Dataset:  ds,
			Activity: idx.get(row, colActivity),
			Type:     idx.get(row, colType),
			Name:     idx.get(row, colName),
			Subtype:  idx.get(row, colSubtype),
			Tag:      idx.get(row, colTag),
			Unit:     idx.get(row, colUnit),
			Value:    idx.get(row, colFactor),
			CO2:      idx.gas(row, colCO2),
			CH4:      idx.gas(row, colCH4),
			N2O:      idx.gas(row, colN2O),
			Source:   idx.get(row, colSource),
			Quality:  idx.get(row, colQuality),
			Region:   idx.get(row, colRegion),
		}
		if y, err := strconv.Atoi(idx.get(row, colYear)); err == nil {
			r.Year = y
		}
		if r.Label() == "" || r.Unit == "" || r.Value == "" {
			skipped++
			zap.L().Debug("factors: skipping incomplete row",
				zap.String("dataset", string(ds)),
				zap.Int("line", line+2),
			)
			continue
		}
		r.Position = len(out)
		out = append(out, r)
	}

	if skipped > 0 {
		zap.L().Info("factors: skipped incomplete rows",
			zap.String("dataset", string(ds)),
			zap.Int("skipped", skipped),
		)
	}
	return out, nil
}
