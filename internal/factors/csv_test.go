package factors

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/emissions-cli/internal/model"
)

func TestStreamCSV_Basic(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader("a,b\n 1 , 2 \n3,4\n"), CSVOptions{})

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}, {"3", "4"}}, rows)
}

func TestStreamCSV_DelimiterAndComment(t *testing.T) {
	input := "# exported 2023\nactivity;unit\nlpg;kg\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{Delimiter: ';', Comment: '#'})

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, [][]string{{"activity", "unit"}, {"lpg", "kg"}}, rows)
}

func TestStreamCSV_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rowCh, errCh := StreamCSV(ctx, strings.NewReader("a\nb\n"), CSVOptions{})
	for range rowCh {
	}
	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

func TestReadCSV_Empty(t *testing.T) {
	_, _, err := ReadCSV(context.Background(), strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty document")
}

func TestLoadCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regional.csv")
	content := "Activity,Unit,Factor,Source\nelectricity,kwh,0.716,CEA\ncoal,kg,\"1,790\",CEA\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	recs, err := LoadCSVFile(context.Background(), model.DatasetRegional, path)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "electricity", recs[0].Activity)

	v, err := Value(recs[1])
	require.NoError(t, err)
	assert.InDelta(t, 1790, v, 1e-9)
}

func TestLoadCSVFile_Missing(t *testing.T) {
	_, err := LoadCSVFile(context.Background(), model.DatasetRegional, filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "factors: open")
}

func TestLoadFiles_MixedFormats(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "regional.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("activity,unit,factor\nlpg,kg,2.99\n"), 0o644))
	xlsxPath := createFactorWorkbook(t, "Factors", [][]string{
		{"type", "name", "unit", "factor"},
		{"Fuels", "LPG", "litres", "1.56"},
	})

	s, err := LoadFiles(context.Background(), map[model.Dataset]string{
		model.DatasetRegional:  csvPath,
		model.DatasetSecondary: xlsxPath,
	}, XLSXOptions{})
	require.NoError(t, err)
	assert.Len(t, s.Regional(), 1)
	assert.Empty(t, s.International())
	require.Len(t, s.Secondary(), 1)
	assert.Equal(t, "Fuels - LPG", s.Secondary()[0].Label())
}

func TestLoadFiles_UnsupportedExtension(t *testing.T) {
	_, err := LoadFiles(context.Background(), map[model.Dataset]string{
		model.DatasetRegional: "factors.json",
	}, XLSXOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}
