package factors

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/emissions-cli/internal/model"
)

// DefaultTable is the table reference rows are read from and written to.
const DefaultTable = "emission_factors"

// Columns lists the emission_factors columns in scan order.
var Columns = []string{
	"dataset", "position", "activity", "type", "name", "subtype", "tag",
	"unit", "factor", "co2", "ch4", "n2o", "source", "year", "quality", "region",
}

// Pool is the subset of pgxpool.Pool used for loading and copying rows.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// tableIdent splits an optionally schema-qualified table name.
func tableIdent(table string) pgx.Identifier {
	if table == "" {
		table = DefaultTable
	}
	return pgx.Identifier(strings.Split(table, "."))
}

// selectQuery is portable between Postgres and SQLite. Numeric columns are
// read back as text so the stored factor string survives unchanged.
func selectQuery(table string) string {
	return fmt.Sprintf(`SELECT dataset, position,
	COALESCE(activity, ''), COALESCE(type, ''), COALESCE(name, ''), COALESCE(subtype, ''), COALESCE(tag, ''),
	COALESCE(unit, ''), COALESCE(CAST(factor AS TEXT), ''),
	COALESCE(CAST(co2 AS TEXT), ''), COALESCE(CAST(ch4 AS TEXT), ''), COALESCE(CAST(n2o AS TEXT), ''),
	COALESCE(source, ''), COALESCE(year, 0), COALESCE(quality, ''), COALESCE(region, '')
FROM %s ORDER BY dataset, position`, tableIdent(table).Sanitize())
}

type rowScanner interface {
	Scan(dest ...any) error
	Next() bool
	Err() error
}

type scannedRow struct {
	dataset  string
	position int
	fields   [7]string // activity, type, name, subtype, tag, unit, factor
	gases    [3]string
	source   string
	year     int
	quality  string
	region   string
}

func scanRows(rows rowScanner) (*Store, error) {
	sets := make(map[model.Dataset][]model.EmissionFactorRecord, len(model.Datasets))
	for rows.Next() {
		var s scannedRow
		if err := rows.Scan(
			&s.dataset, &s.position,
			&s.fields[0], &s.fields[1], &s.fields[2], &s.fields[3], &s.fields[4], &s.fields[5], &s.fields[6],
			&s.gases[0], &s.gases[1], &s.gases[2],
			&s.source, &s.year, &s.quality, &s.region,
		); err != nil {
			return nil, eris.Wrap(err, "factors: scan row")
		}

		ds := model.Dataset(strings.ToLower(strings.TrimSpace(s.dataset)))
		if !ds.Valid() {
			zap.L().Warn("factors: unknown dataset in table", zap.String("dataset", s.dataset))
			continue
		}
		r := model.EmissionFactorRecord{
			Dataset:  ds,
			Activity: s.fields[0],
			Type:     s.fields[1],
			Name:     s.fields[2],
			Subtype:  s.fields[3],
			Tag:      s.fields[4],
			Unit:     s.fields[5],
			Value:    s.fields[6],
			CO2:      parseGas(s.gases[0]),
			CH4:      parseGas(s.gases[1]),
			N2O:      parseGas(s.gases[2]),
			Source:   s.source,
			Year:     s.year,
			Quality:  s.quality,
			Region:   s.region,
		}
		if r.Label() == "" || r.Unit == "" || r.Value == "" {
			zap.L().Debug("factors: skipping incomplete row",
				zap.String("dataset", s.dataset),
				zap.Int("position", s.position),
			)
			continue
		}
		sets[ds] = append(sets[ds], r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "factors: iterate rows")
	}
	return NewStore(sets), nil
}

func parseGas(s string) *float64 {
	v, ok := model.ParseFactor(s)
	if !ok {
		return nil
	}
	return &v
}

// LoadPostgres reads every dataset from a Postgres table.
func LoadPostgres(ctx context.Context, pool Pool, table string) (*Store, error) {
	rows, err := pool.Query(ctx, selectQuery(table))
	if err != nil {
		return nil, eris.Wrap(err, "factors: query postgres")
	}
	defer rows.Close()
	return scanRows(rows)
}

// ConnectPostgres opens a pool and loads every dataset from it.
func ConnectPostgres(ctx context.Context, url, table string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, eris.Wrap(err, "factors: connect postgres")
	}
	defer pool.Close()
	return LoadPostgres(ctx, pool, table)
}

// LoadSQLite reads every dataset from a SQLite database file.
func LoadSQLite(ctx context.Context, path, table string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "factors: open sqlite")
	}
	defer db.Close() //nolint:errcheck

	rows, err := db.QueryContext(ctx, selectQuery(table))
	if err != nil {
		return nil, eris.Wrap(err, "factors: query sqlite")
	}
	defer rows.Close() //nolint:errcheck
	return scanRows(rows)
}

func exportRows(s *Store) [][]any {
	var out [][]any
	for _, ds := range model.Datasets {
		for _, r := range s.Records(ds) {
			out = append(out, []any{
				string(r.Dataset), r.Position, r.Activity, r.Type, r.Name, r.Subtype, r.Tag,
				r.Unit, r.Value, gasValue(r.CO2), gasValue(r.CH4), gasValue(r.N2O),
				r.Source, r.Year, r.Quality, r.Region,
			})
		}
	}
	return out
}

func gasValue(v *float64) any {
	if v == nil {
		return nil
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

const createTable = `CREATE TABLE IF NOT EXISTS %s (
	dataset  TEXT NOT NULL,
	position INTEGER NOT NULL,
	activity TEXT,
	type     TEXT,
	name     TEXT,
	subtype  TEXT,
	tag      TEXT,
	unit     TEXT NOT NULL,
	factor   TEXT NOT NULL,
	co2      TEXT,
	ch4      TEXT,
	n2o      TEXT,
	source   TEXT,
	year     INTEGER,
	quality  TEXT,
	region   TEXT,
	PRIMARY KEY (dataset, position)
)`

// CopyToPostgres replaces the table contents with the store's rows using the
// COPY protocol.
func CopyToPostgres(ctx context.Context, pool Pool, table string, s *Store) (int64, error) {
	ident := tableIdent(table)
	if _, err := pool.Exec(ctx, fmt.Sprintf(createTable, ident.Sanitize())); err != nil {
		return 0, eris.Wrap(err, "factors: create postgres table")
	}
	if _, err := pool.Exec(ctx, "DELETE FROM "+ident.Sanitize()); err != nil {
		return 0, eris.Wrap(err, "factors: clear postgres table")
	}
	n, err := pool.CopyFrom(ctx, ident, Columns, pgx.CopyFromRows(exportRows(s)))
	if err != nil {
		return 0, eris.Wrapf(err, "factors: COPY INTO %s", ident.Sanitize())
	}
	return n, nil
}

// PushPostgres connects to url and copies the store into table.
func PushPostgres(ctx context.Context, url, table string, s *Store) (int64, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return 0, eris.Wrap(err, "factors: connect postgres")
	}
	defer pool.Close()
	return CopyToPostgres(ctx, pool, table, s)
}

// WriteSQLite replaces the table in a SQLite file with the store's rows.
func WriteSQLite(ctx context.Context, path, table string, s *Store) (int, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return 0, eris.Wrap(err, "factors: open sqlite")
	}
	defer db.Close() //nolint:errcheck

	ident := tableIdent(table).Sanitize()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "factors: begin sqlite tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(createTable, ident)); err != nil {
		return 0, eris.Wrap(err, "factors: create sqlite table")
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+ident); err != nil {
		return 0, eris.Wrap(err, "factors: clear sqlite table")
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(Columns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		ident, strings.Join(Columns, ", "), placeholders))
	if err != nil {
		return 0, eris.Wrap(err, "factors: prepare sqlite insert")
	}
	defer stmt.Close() //nolint:errcheck

	rows := exportRows(s)
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, eris.Wrap(err, "factors: insert sqlite row")
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "factors: commit sqlite tx")
	}
	return len(rows), nil
}
