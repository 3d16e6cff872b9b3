// pkg/dialects/sqlite/sqlite.go
package sqlite

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/spf13/cast"

	_ "github.com/mattn/go-sqlite3" // Registers the cgo "sqlite3" driver.
	_ "modernc.org/sqlite"          // Registers the pure Go "sqlite" driver.

	"github.com/vlucas/spot/pkg/config"
	"github.com/vlucas/spot/pkg/dialects"
	"github.com/vlucas/spot/pkg/dialects/common"
	"github.com/vlucas/spot/pkg/schema"
)

// Dialect implements common.Dialect for SQLite.
type Dialect struct{}

var _ common.Dialect = Dialect{}

func (Dialect) Name() string { return "sqlite" }

// DriverName returns the pure Go "sqlite" driver for variant "modernc",
// mattn's "sqlite3" otherwise.
func (Dialect) DriverName(variant string) string {
	if variant == "modernc" || variant == "sqlite" {
		return "sqlite"
	}
	return "sqlite3"
}

// SingleConnection pins the pool to one connection so that in-memory
// databases survive and writers never contend for the file lock.
func (Dialect) SingleConnection() bool { return true }

func (Dialect) DataSourceName(dsn config.DSN) (string, error) {
	if dsn.Database == "" {
		return "", fmt.Errorf("sqlite: DSN has no database path")
	}
	if len(dsn.Params) == 0 {
		return dsn.Database, nil
	}
	keys := make([]string, 0, len(dsn.Params))
	for k := range dsn.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = url.QueryEscape(k) + "=" + url.QueryEscape(dsn.Params[k])
	}
	return dsn.Database + "?" + strings.Join(pairs, "&"), nil
}

func (Dialect) Quote(identifier string) string {
	parts := strings.Split(identifier, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}

func (Dialect) BindVar(int) string { return "?" }

func (Dialect) Literal(v any) string { return common.FormatLiteral(v, common.QuoteString) }

func (Dialect) ColumnType(f *schema.Field) (string, error) {
	switch f.Type {
	case "string":
		return fmt.Sprintf("VARCHAR(%d)", f.Length), nil
	case "text", "json":
		return "TEXT", nil
	case "int", "integer", "timestamp", "year", "month", "day", "bool", "boolean":
		return "INTEGER", nil
	case "float", "double":
		return "REAL", nil
	case "decimal":
		return fmt.Sprintf("NUMERIC(%d,%d)", f.Precision, f.Scale), nil
	case "datetime":
		return "DATETIME", nil
	case "date":
		return "DATE", nil
	case "serialized":
		return "BLOB", nil
	case "uuid":
		return "CHAR(36)", nil
	}
	return "", &common.NotImplementedError{Dialect: "sqlite", Feature: fmt.Sprintf("column type '%s'", f.Type)}
}

func (Dialect) LimitOffset(limit, offset int, _ bool) string {
	switch {
	case limit > 0 && offset > 0:
		return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
	case limit > 0:
		return fmt.Sprintf("LIMIT %d", limit)
	case offset > 0:
		return fmt.Sprintf("LIMIT -1 OFFSET %d", offset)
	}
	return ""
}

func (d Dialect) InsertSQL(table string, columns, placeholders []string, _ string) (string, bool) {
	if len(columns) == 0 {
		return "INSERT INTO " + d.Quote(table) + " DEFAULT VALUES", false
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.Quote(table), common.QuoteColumns(d, columns), strings.Join(placeholders, ", ")), false
}

func (d Dialect) columnSpec(f *schema.Field) (common.ColumnSpec, error) {
	typ, err := d.ColumnType(f)
	if err != nil {
		return common.ColumnSpec{}, err
	}
	if f.Primary && f.Serial {
		return common.ColumnSpec{Name: d.Quote(f.Name), Type: "INTEGER", Extra: "PRIMARY KEY AUTOINCREMENT"}, nil
	}
	spec := common.ColumnSpec{Name: d.Quote(f.Name), Type: typ, NotNull: !f.IsNullable()}
	if f.Default != nil {
		spec.Default = d.Literal(f.Default)
	}
	return spec, nil
}

func (d Dialect) indexStatement(table string, idx *schema.Index) (string, error) {
	kind := "INDEX"
	switch idx.Kind {
	case schema.UniqueIndex:
		kind = "UNIQUE INDEX"
	case schema.FulltextIndex:
		return "", &common.NotImplementedError{Dialect: "sqlite", Feature: "fulltext index '" + idx.Name + "'"}
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)", kind,
		d.Quote(common.ConstraintName(table, idx)), d.Quote(table), common.QuoteColumns(d, idx.Columns())), nil
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
	if !meta.PrimaryKey.Serial {
		lines = append(lines, fmt.Sprintf("PRIMARY KEY (%s)", d.Quote(meta.PrimaryKey.Name)))
	}
	for _, idx := range meta.Indexes {
		if idx.Kind == schema.UniqueIndex {
			lines = append(lines, fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)",
				d.Quote(common.ConstraintName(table, idx)), common.QuoteColumns(d, idx.Columns())))
			continue
		}
		stmt, err := d.indexStatement(table, idx)
		if err != nil {
			return nil, err
		}
		extra = append(extra, stmt)
	}
	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", d.Quote(table), strings.Join(lines, ",\n  "))
	return append([]string{create}, extra...), nil
}

func (d Dialect) sameType(f *schema.Field, col common.ColumnInfo) (bool, error) {
	typ, err := d.ColumnType(f)
	if err != nil {
		return false, err
	}
	return common.BaseType(typ) == col.Type, nil
}

// AlterTableSQL only adds columns; SQLite cannot change an existing column in place.
func (d Dialect) AlterTableSQL(meta *schema.Metadata, existing []common.ColumnInfo) ([]string, error) {
	diff, err := common.DiffColumns(meta, existing, d.sameType)
	if err != nil || diff.Empty() {
		return nil, err
	}
	if len(diff.Changed) > 0 {
		return nil, &common.NotImplementedError{Dialect: "sqlite", Feature: fmt.Sprintf("modifying column '%s'", diff.Changed[0].Name)}
	}
	var stmts []string
	for _, f := range diff.Added {
		spec, err := d.columnSpec(f)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.Quote(meta.Datasource), spec))
	}
	for _, idx := range common.IndexesTouching(meta, diff.Added) {
		stmt, err := d.indexStatement(meta.Datasource, idx)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

func (d Dialect) ColumnsSQL(table string) (string, []any) {
	return fmt.Sprintf("PRAGMA table_info(%s)", d.Quote(table)), nil
}

// ParseColumn reads a PRAGMA table_info row (cid, name, type, notnull, dflt_value, pk).
func (Dialect) ParseColumn(row map[string]any) (common.ColumnInfo, error) {
	name, ok := row["name"]
	if !ok || name == nil {
		return common.ColumnInfo{}, fmt.Errorf("sqlite: table_info row has no column name")
	}
	info := common.ColumnInfo{
		Name:     cast.ToString(name),
		Type:     common.BaseType(cast.ToString(row["type"])),
		Nullable: cast.ToInt(row["notnull"]) == 0 && cast.ToInt(row["pk"]) == 0,
	}
	if v := row["dflt_value"]; v != nil {
		s := common.NormalizeDefault(cast.ToString(v))
		info.Default = &s
	}
	return info, nil
}

func (d Dialect) TruncateSQL(table string) string  { return "DELETE FROM " + d.Quote(table) }
func (d Dialect) DropTableSQL(table string) string { return "DROP TABLE IF EXISTS " + d.Quote(table) }

// CreateDatabaseSQL returns "": SQLite databases are files created on open.
func (Dialect) CreateDatabaseSQL(string) string { return "" }
func (Dialect) DropDatabaseSQL(string) string   { return "" }

func (Dialect) Fulltext([]string, string) (string, error) {
	return "", &common.NotImplementedError{Dialect: "sqlite", Feature: "fulltext search"}
}

// --- Migration History Table SQL ---

func (d Dialect) CreateSchemaMigrationsTableSQL(tableName string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id TEXT NOT NULL PRIMARY KEY,
    applied_at DATETIME NOT NULL
);`, d.Quote(tableName))
}

func (d Dialect) GetAppliedMigrationsSQL(tableName string) string {
	return fmt.Sprintf("SELECT id, applied_at FROM %s ORDER BY id ASC;", d.Quote(tableName))
}

func (d Dialect) InsertMigrationSQL(tableName string) string {
	return fmt.Sprintf("INSERT INTO %s (id, applied_at) VALUES (?, ?);", d.Quote(tableName))
}

func (d Dialect) DeleteMigrationSQL(tableName string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE id = ?;", d.Quote(tableName))
}

func init() {
	dialects.Register("sqlite", func() common.DataSource {
		return common.NewSQLDataSource(Dialect{})
	})
}
