package factors

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/emissions-cli/internal/model"
)

// XLSXOptions selects the sheet and header row of a workbook.
type XLSXOptions struct {
	SheetName string // if set, overrides SheetIndex
	SheetIndex int
	// HeaderRow is the zero-based row holding column names. Published
	// workbooks often carry a title block above the table.
	HeaderRow int
}

// ReadXLSX returns the header and data rows of one sheet.
func ReadXLSX(path string, opts XLSXOptions) ([]string, [][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "xlsx: open file")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, nil, err
	}
	if opts.HeaderRow >= len(sheet.Rows) {
		return nil, nil, eris.Errorf("xlsx: header row %d out of range (sheet has %d rows)", opts.HeaderRow, len(sheet.Rows))
	}

	header := rowToStrings(sheet.Rows[opts.HeaderRow])
	var rows [][]string
	for _, row := range sheet.Rows[opts.HeaderRow+1:] {
		rows = append(rows, rowToStrings(row))
	}
	return header, rows, nil
}

// LoadXLSXFile parses one dataset from a workbook.
func LoadXLSXFile(ds model.Dataset, path string, opts XLSXOptions) ([]model.EmissionFactorRecord, error) {
	header, rows, err := ReadXLSX(path, opts)
	if err != nil {
		return nil, eris.Wrapf(err, "factors: read %s xlsx", ds)
	}
	return parseRows(ds, header, rows)
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}
