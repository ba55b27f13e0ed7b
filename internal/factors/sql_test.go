package factors

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/emissions-cli/internal/config"
	"github.com/sells-group/emissions-cli/internal/model"
)

func TestTableIdent(t *testing.T) {
	assert.Equal(t, `"emission_factors"`, tableIdent("").Sanitize())
	assert.Equal(t, `"ref"."factors"`, tableIdent("ref.factors").Sanitize())
	assert.Equal(t, `"x; DROP TABLE y"`, tableIdent("x; DROP TABLE y").Sanitize())
}

func TestSQLite_RoundTrip(t *testing.T) {
	ctx := context.Background()
	orig, err := LoadEmbedded(ctx)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "factors.db")
	n, err := WriteSQLite(ctx, path, "", orig)
	require.NoError(t, err)
	assert.Equal(t, orig.Count(), n)

	loaded, err := LoadSQLite(ctx, path, "")
	require.NoError(t, err)
	for _, ds := range model.Datasets {
		assert.Equal(t, orig.Records(ds), loaded.Records(ds), ds)
	}

	// Writing again replaces rather than appends.
	_, err = WriteSQLite(ctx, path, "", orig)
	require.NoError(t, err)
	loaded, err = Load(ctx, config.FactorsConfig{Source: "sqlite", SQLitePath: path})
	require.NoError(t, err)
	assert.Equal(t, orig.Count(), loaded.Count())
}

func TestLoadSQLite_SkipsUnknownDatasetAndNulls(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "factors.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(fmt.Sprintf(createTable, `"emission_factors"`))
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO emission_factors (dataset, position, activity, unit, factor, co2, year) VALUES
		('regional', 1, 'coal', 'kg', '1.79', NULL, NULL),
		('regional', 0, 'lpg', 'kg', '2.99', '2.98', 2015),
		('Regional', 2, NULL, 'kg', '1.0', NULL, NULL),
		('archive', 0, 'peat', 'kg', '1.1', NULL, NULL)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := LoadSQLite(ctx, path, "emission_factors")
	require.NoError(t, err)
	require.Len(t, s.Regional(), 2)
	assert.Equal(t, "lpg", s.Regional()[0].Activity)
	assert.Equal(t, 2015, s.Regional()[0].Year)
	require.NotNil(t, s.Regional()[0].CO2)
	assert.Equal(t, "coal", s.Regional()[1].Activity)
	assert.Nil(t, s.Regional()[1].CO2)
	assert.Equal(t, 2, s.Count())
}

func TestLoadSQLite_MissingTable(t *testing.T) {
	_, err := LoadSQLite(context.Background(), filepath.Join(t.TempDir(), "empty.db"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "factors: query sqlite")
}

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return mock
}

func TestLoadPostgres(t *testing.T) {
	mock := newMockPool(t)

	rows := pgxmock.NewRows(Columns).
		AddRow("international", 0, "", "Energy", "Stationary combustion", "Natural Gas", "", "kg/TJ", "56156", "56100", "1", "0.1", "IPCC", 2006, "High", "").
		AddRow("secondary", 0, "", "Fuels", "Liquid fuels", "Diesel (100% mineral diesel)", "", "litres", "2.68", "", "", "", "DEFRA", 2023, "High", "UK").
		AddRow("secondary", 1, "", "Fuels", "", "", "", "", "2.51", "", "", "", "", 0, "", "")
	mock.ExpectQuery(`SELECT dataset, position`).WillReturnRows(rows)

	s, err := LoadPostgres(context.Background(), mock, "")
	require.NoError(t, err)
	require.Len(t, s.International(), 1)
	require.Len(t, s.Secondary(), 1)
	assert.Equal(t, "Fuels - Liquid fuels - Diesel (100% mineral diesel)", s.Secondary()[0].Label())
	require.NotNil(t, s.International()[0].N2O)
	assert.InDelta(t, 0.1, *s.International()[0].N2O, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadPostgres_QueryError(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery(`SELECT dataset, position`).WillReturnError(fmt.Errorf("relation does not exist"))

	_, err := LoadPostgres(context.Background(), mock, "ref.factors")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "factors: query postgres")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyToPostgres(t *testing.T) {
	mock := newMockPool(t)
	s := NewStore(map[model.Dataset][]model.EmissionFactorRecord{
		model.DatasetRegional: {
			{Activity: "lpg", Unit: "kg", Value: "2.99", CO2: ptr(2.98)},
			{Activity: "coal", Unit: "kg", Value: "1.79"},
		},
	})

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "emission_factors"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`DELETE FROM "emission_factors"`).WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectCopyFrom(pgx.Identifier{"emission_factors"}, Columns).WillReturnResult(2)

	n, err := CopyToPostgres(context.Background(), mock, "", s)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyToPostgres_CopyError(t *testing.T) {
	mock := newMockPool(t)
	s := NewStore(map[model.Dataset][]model.EmissionFactorRecord{
		model.DatasetRegional: {{Activity: "lpg", Unit: "kg", Value: "2.99"}},
	})

	mock.ExpectExec(`CREATE TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`DELETE FROM`).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"emission_factors"}, Columns).WillReturnError(fmt.Errorf("copy failed"))

	_, err := CopyToPostgres(context.Background(), mock, "", s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExportRows(t *testing.T) {
	s := NewStore(map[model.Dataset][]model.EmissionFactorRecord{
		model.DatasetSecondary: {{Name: "LPG", Unit: "litres", Value: "1.56", CH4: ptr(0.0012), Year: 2023}},
	})

	rows := exportRows(s)
	require.Len(t, rows, 1)
	assert.Len(t, rows[0], len(Columns))
	assert.Equal(t, "secondary", rows[0][0])
	assert.Nil(t, rows[0][9])
	assert.Equal(t, "0.0012", rows[0][10])
	assert.Equal(t, 2023, rows[0][13])
}
