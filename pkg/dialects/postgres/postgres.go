// pkg/dialects/postgres/postgres.go
package postgres

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // Registers the "pgx" driver.
	"github.com/lib/pq"                // Registers the "postgres" driver and provides quoting.

	"github.com/vlucas/spot/pkg/config"
	"github.com/vlucas/spot/pkg/dialects"
	"github.com/vlucas/spot/pkg/dialects/common"
	"github.com/vlucas/spot/pkg/schema"
)

// Dialect implements common.Dialect for PostgreSQL.
type Dialect struct{}

var _ common.Dialect = Dialect{}

func (Dialect) Name() string { return "postgres" }

// DriverName returns "pgx" unless variant asks for lib/pq.
func (Dialect) DriverName(variant string) string {
	if variant == "pq" || variant == "postgres" {
		return "postgres"
	}
	return "pgx"
}

// DataSourceName renders dsn as a postgres:// URL, understood by both drivers.
func (Dialect) DataSourceName(dsn config.DSN) (string, error) {
	u := url.URL{Scheme: "postgres", Host: dsn.Hostspec, Path: "/" + dsn.Database}
	if dsn.Username != "" {
		if dsn.Password != "" {
			u.User = url.UserPassword(dsn.Username, dsn.Password)
		} else {
			u.User = url.User(dsn.Username)
		}
	}
	q := url.Values{}
	keys := make([]string, 0, len(dsn.Params))
	for k := range dsn.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Set(k, dsn.Params[k])
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (Dialect) Quote(identifier string) string {
	parts := strings.Split(identifier, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

func (Dialect) BindVar(i int) string { return fmt.Sprintf("$%d", i) }

func (Dialect) Literal(v any) string { return common.FormatLiteral(v, pq.QuoteLiteral) }

func (Dialect) ColumnType(f *schema.Field) (string, error) {
	switch f.Type {
	case "string":
		return fmt.Sprintf("VARCHAR(%d)", f.Length), nil
	case "text", "json":
		return "TEXT", nil
	case "int", "integer", "timestamp", "year", "month", "day":
		if f.Serial {
			return "SERIAL", nil
		}
		return "INTEGER", nil
	case "float", "double":
		return "DOUBLE PRECISION", nil
	case "decimal":
		return fmt.Sprintf("NUMERIC(%d,%d)", f.Precision, f.Scale), nil
	case "bool", "boolean":
		return "SMALLINT", nil
	case "datetime":
		return "TIMESTAMP", nil
	case "date":
		return "DATE", nil
	case "serialized":
		return "BYTEA", nil
	case "uuid":
		return "CHAR(36)", nil
	}
	return "", &common.NotImplementedError{Dialect: "postgres", Feature: fmt.Sprintf("column type '%s'", f.Type)}
}

func (Dialect) LimitOffset(limit, offset int, _ bool) string {
	var parts []string
	if limit > 0 {
		parts = append(parts, fmt.Sprintf("LIMIT %d", limit))
	}
	if offset > 0 {
		parts = append(parts, fmt.Sprintf("OFFSET %d", offset))
	}
	return strings.Join(parts, " ")
}

func (d Dialect) InsertSQL(table string, columns, placeholders []string, primaryKey string) (string, bool) {
	var b strings.Builder
	b.WriteString("INSERT INTO " + d.Quote(table))
	if len(columns) == 0 {
		b.WriteString(" DEFAULT VALUES")
	} else {
		fmt.Fprintf(&b, " (%s) VALUES (%s)", common.QuoteColumns(d, columns), strings.Join(placeholders, ", "))
	}
	if primaryKey == "" {
		return b.String(), false
	}
	b.WriteString(" RETURNING " + d.Quote(primaryKey))
	return b.String(), true
}

func (d Dialect) columnSpec(f *schema.Field) (common.ColumnSpec, error) {
	typ, err := d.ColumnType(f)
	if err != nil {
		return common.ColumnSpec{}, err
	}
	spec := common.ColumnSpec{Name: d.Quote(f.Name), Type: typ, NotNull: !f.IsNullable()}
	if f.Default != nil && !f.Serial {
		spec.Default = d.Literal(f.Default)
	}
	return spec, nil
}

func (d Dialect) indexStatement(table string, idx *schema.Index) (string, error) {
	name := common.ConstraintName(table, idx)
	cols := common.QuoteColumns(d, idx.Columns())
	switch idx.Kind {
	case schema.UniqueIndex:
		return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)", d.Quote(table), d.Quote(name), cols), nil
	case schema.FulltextIndex:
		return "", &common.NotImplementedError{Dialect: "postgres", Feature: "fulltext index '" + idx.Name + "'"}
	}
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", d.Quote(name), d.Quote(table), cols), nil
}

func (d Dialect) CreateTableSQL(meta *schema.Metadata) ([]string, error) {
	table := meta.Datasource
	var lines, extra []string
	for _, f := range meta.Fields {
		spec, err := d.columnSpec(f)
		if err != nil {
			return nil, err
		}
		lines = append(lines, spec.String())
	}
	lines = append(lines, fmt.Sprintf("CONSTRAINT %s PRIMARY KEY (%s)", d.Quote(table+"_pkey"), d.Quote(meta.PrimaryKey.Name)))
	for _, idx := range meta.Indexes {
		switch idx.Kind {
		case schema.UniqueIndex:
			lines = append(lines, fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)",
				d.Quote(common.ConstraintName(table, idx)), common.QuoteColumns(d, idx.Columns())))
		default:
			stmt, err := d.indexStatement(table, idx)
			if err != nil {
				return nil, err
			}
			extra = append(extra, stmt)
		}
	}
	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", d.Quote(table), strings.Join(lines, ",\n  "))
	return append([]string{create}, extra...), nil
}

// udtNames maps the base of ColumnType to information_schema udt_name.
var udtNames = map[string]string{
	"varchar":   "varchar",
	"text":      "text",
	"integer":   "int4",
	"serial":    "int4",
	"smallint":  "int2",
	"double":    "float8",
	"numeric":   "numeric",
	"timestamp": "timestamp",
	"date":      "date",
	"bytea":     "bytea",
	"char":      "bpchar",
}

func (d Dialect) sameType(f *schema.Field, col common.ColumnInfo) (bool, error) {
	typ, err := d.ColumnType(f)
	if err != nil {
		return false, err
	}
	base := common.BaseType(typ)
	if udt, ok := udtNames[base]; ok {
		base = udt
	}
	return base == col.Type, nil
}

func (d Dialect) AlterTableSQL(meta *schema.Metadata, existing []common.ColumnInfo) ([]string, error) {
	diff, err := common.DiffColumns(meta, existing, d.sameType)
	if err != nil || diff.Empty() {
		return nil, err
	}
	var actions []string
	for _, f := range diff.Changed {
		typ, err := d.ColumnType(f)
		if err != nil {
			return nil, err
		}
		if f.Serial {
			typ = "INTEGER"
		}
		col := d.Quote(f.Name)
		actions = append(actions, fmt.Sprintf("ALTER COLUMN %s TYPE %s", col, typ))
		switch {
		case f.Serial:
		case f.Default != nil:
			actions = append(actions, fmt.Sprintf("ALTER COLUMN %s SET DEFAULT %s", col, d.Literal(f.Default)))
		default:
			actions = append(actions, fmt.Sprintf("ALTER COLUMN %s DROP DEFAULT", col))
		}
	}
	for _, f := range diff.Added {
		spec, err := d.columnSpec(f)
		if err != nil {
			return nil, err
		}
		actions = append(actions, "ADD COLUMN "+spec.String())
	}
	stmts := []string{fmt.Sprintf("ALTER TABLE %s %s", d.Quote(meta.Datasource), strings.Join(actions, ", "))}
	for _, idx := range common.IndexesTouching(meta, diff.Added) {
		stmt, err := d.indexStatement(meta.Datasource, idx)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

func (Dialect) ColumnsSQL(table string) (string, []any) {
	return "SELECT column_name AS name, udt_name AS type, column_default AS dflt, is_nullable AS nullable " +
		"FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position", []any{table}
}

func (Dialect) ParseColumn(row map[string]any) (common.ColumnInfo, error) {
	return common.ParseInfoSchemaColumn(row)
}

func (d Dialect) TruncateSQL(table string) string      { return "TRUNCATE TABLE " + d.Quote(table) }
func (d Dialect) DropTableSQL(table string) string     { return "DROP TABLE IF EXISTS " + d.Quote(table) }
func (d Dialect) CreateDatabaseSQL(name string) string { return "CREATE DATABASE " + d.Quote(name) }
func (d Dialect) DropDatabaseSQL(name string) string   { return "DROP DATABASE IF EXISTS " + d.Quote(name) }

func (Dialect) Fulltext([]string, string) (string, error) {
	return "", &common.NotImplementedError{Dialect: "postgres", Feature: "fulltext search"}
}

// --- Migration History Table SQL ---

func (d Dialect) CreateSchemaMigrationsTableSQL(tableName string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id VARCHAR(255) NOT NULL PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);`, d.Quote(tableName))
}

func (d Dialect) GetAppliedMigrationsSQL(tableName string) string {
	return fmt.Sprintf("SELECT id, applied_at FROM %s ORDER BY id ASC;", d.Quote(tableName))
}

func (d Dialect) InsertMigrationSQL(tableName string) string {
	return fmt.Sprintf("INSERT INTO %s (id, applied_at) VALUES ($1, $2);", d.Quote(tableName))
}

func (d Dialect) DeleteMigrationSQL(tableName string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE id = $1;", d.Quote(tableName))
}

func init() {
	dialects.Register("postgres", func() common.DataSource {
		return common.NewSQLDataSource(Dialect{})
	})
}
