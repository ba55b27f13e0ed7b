package factors

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/emissions-cli/internal/config"
	"github.com/sells-group/emissions-cli/internal/model"
)

// ErrNoFactor is returned when a record's stored value has no numeric prefix.
var ErrNoFactor = eris.New("factors: no numeric factor")

// Value returns the numeric factor of a record.
func Value(r model.EmissionFactorRecord) (float64, error) {
	v, ok := model.ParseFactor(r.Value)
	if !ok {
		return 0, eris.Wrapf(ErrNoFactor, "%s %q", r.Dataset, r.Value)
	}
	return v, nil
}

// Load builds a Store from the configured source.
func Load(ctx context.Context, cfg config.FactorsConfig) (*Store, error) {
	var (
		s   *Store
		err error
	)
	switch cfg.Source {
	case "", "embedded":
		s, err = LoadEmbedded(ctx)
	case "file":
		s, err = LoadFiles(ctx, map[model.Dataset]string{
			model.DatasetRegional:      cfg.RegionalPath,
			model.DatasetInternational: cfg.InternationalPath,
			model.DatasetSecondary:     cfg.SecondaryPath,
		}, XLSXOptions{SheetName: cfg.SheetName, HeaderRow: cfg.HeaderRow})
	case "postgres":
		s, err = ConnectPostgres(ctx, cfg.DatabaseURL, cfg.Table)
	case "sqlite":
		s, err = LoadSQLite(ctx, cfg.SQLitePath, cfg.Table)
	default:
		return nil, eris.Errorf("factors: unknown source %q", cfg.Source)
	}
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("component", "factors"))
	for _, st := range s.Stats() {
		log.Info("factors: dataset loaded",
			zap.String("source", cfg.Source),
			zap.String("dataset", string(st.Dataset)),
			zap.Int("records", st.Records),
		)
	}
	return s, nil
}

// LoadFiles reads each dataset from a CSV or XLSX file chosen by extension.
// Datasets with an empty path are left empty.
func LoadFiles(ctx context.Context, paths map[model.Dataset]string, xopts XLSXOptions) (*Store, error) {
	sets := make(map[model.Dataset][]model.EmissionFactorRecord, len(model.Datasets))
	for _, ds := range model.Datasets {
		path := paths[ds]
		if path == "" {
			continue
		}

		var (
			rows []model.EmissionFactorRecord
			err  error
		)
		switch strings.ToLower(filepath.Ext(path)) {
		case ".csv", ".txt":
			rows, err = LoadCSVFile(ctx, ds, path)
		case ".xlsx":
			rows, err = LoadXLSXFile(ds, path, xopts)
		default:
			return nil, eris.Errorf("factors: unsupported file type %q", path)
		}
		if err != nil {
			return nil, err
		}
		sets[ds] = rows
	}
	return NewStore(sets), nil
}
