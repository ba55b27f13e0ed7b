package factors

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/emissions-cli/internal/model"
)

// CSVOptions configures the streaming CSV reader.
type CSVOptions struct {
	Delimiter rune // default ','
	Comment   rune // comment character (0 = none)
}

// StreamCSV reads CSV rows and sends them on a channel. Both channels are
// closed when reading completes; at most one error is sent.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		if opts.Comment != 0 {
			reader.Comment = opts.Comment
		}
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}
			for i, field := range record {
				record[i] = strings.TrimSpace(field)
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// ReadCSV reads a whole CSV document and returns its header and data rows.
func ReadCSV(ctx context.Context, r io.Reader) ([]string, [][]string, error) {
	rowCh, errCh := StreamCSV(ctx, r, CSVOptions{})

	var header []string
	var rows [][]string
	for row := range rowCh {
		if header == nil {
			header = row
			continue
		}
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, nil, err
	}
	if header == nil {
		return nil, nil, eris.New("csv: empty document")
	}
	return header, rows, nil
}

// LoadCSV parses one dataset from CSV.
func LoadCSV(ctx context.Context, ds model.Dataset, r io.Reader) ([]model.EmissionFactorRecord, error) {
	header, rows, err := ReadCSV(ctx, r)
	if err != nil {
		return nil, eris.Wrapf(err, "factors: read %s csv", ds)
	}
	return parseRows(ds, header, rows)
}

// LoadCSVFile parses one dataset from a CSV file on disk.
func LoadCSVFile(ctx context.Context, ds model.Dataset, path string) ([]model.EmissionFactorRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "factors: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	return LoadCSV(ctx, ds, f)
}
