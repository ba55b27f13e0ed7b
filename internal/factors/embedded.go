package factors

import (
	"bytes"
	"context"
	"embed"

	"github.com/rotisserie/eris"

	"github.com/sells-group/emissions-cli/internal/model"
)

//go:embed data/*.csv
var embedded embed.FS

// LoadEmbedded parses the datasets compiled into the binary.
func LoadEmbedded(ctx context.Context) (*Store, error) {
	sets := make(map[model.Dataset][]model.EmissionFactorRecord, len(model.Datasets))
	for _, ds := range model.Datasets {
		raw, err := embedded.ReadFile("data/" + string(ds) + ".csv")
		if err != nil {
			return nil, eris.Wrapf(err, "factors: embedded %s", ds)
		}
		rows, err := LoadCSV(ctx, ds, bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		sets[ds] = rows
	}
	return NewStore(sets), nil
}
