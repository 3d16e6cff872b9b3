// pkg/dialects/sqlserver/sqlserver.go
package sqlserver

import (
	"fmt"
	"net/url"
	"strings"

	_ "github.com/microsoft/go-mssqldb" // Registers the "sqlserver" driver.

	"github.com/vlucas/spot/pkg/config"
	"github.com/vlucas/spot/pkg/dialects"
	"github.com/vlucas/spot/pkg/dialects/common"
	"github.com/vlucas/spot/pkg/schema"
)

// Dialect implements common.Dialect for Microsoft SQL Server.
type Dialect struct{}

var _ common.Dialect = Dialect{}

func (Dialect) Name() string { return "sqlserver" }

func (Dialect) DriverName(string) string { return "sqlserver" }

func (Dialect) DataSourceName(dsn config.DSN) (string, error) {
	u := url.URL{Scheme: "sqlserver", Host: dsn.Hostspec}
	if dsn.Username != "" {
		u.User = url.UserPassword(dsn.Username, dsn.Password)
	}
	q := url.Values{}
	for k, v := range dsn.Params {
		q.Set(k, v)
	}
	if dsn.Database != "" {
		q.Set("database", dsn.Database)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (Dialect) Quote(identifier string) string {
	parts := strings.Split(identifier, ".")
	for i, p := range parts {
		parts[i] = "[" + strings.ReplaceAll(p, "]", "]]") + "]"
	}
	return strings.Join(parts, ".")
}

func (Dialect) BindVar(i int) string { return fmt.Sprintf("@p%d", i) }

func (Dialect) Literal(v any) string {
	return common.FormatLiteral(v, func(s string) string { return "N" + common.QuoteString(s) })
}

func (Dialect) ColumnType(f *schema.Field) (string, error) {
	switch f.Type {
	case "string":
		return fmt.Sprintf("NVARCHAR(%d)", f.Length), nil
	case "text", "json":
		return "NVARCHAR(MAX)", nil
	case "int", "integer", "timestamp", "year", "month", "day":
		return "INT", nil
	case "float", "double":
		return "FLOAT", nil
	case "decimal":
		return fmt.Sprintf("DECIMAL(%d,%d)", f.Precision, f.Scale), nil
	case "bool", "boolean":
		return "BIT", nil
	case "datetime":
		return "DATETIME2", nil
	case "date":
		return "DATE", nil
	case "serialized":
		return "VARBINARY(MAX)", nil
	case "uuid":
		return "CHAR(36)", nil
	}
	return "", &common.NotImplementedError{Dialect: "sqlserver", Feature: fmt.Sprintf("column type '%s'", f.Type)}
}

// LimitOffset uses OFFSET/FETCH, which requires an ORDER BY; a neutral one
// is supplied when the statement has none.
func (Dialect) LimitOffset(limit, offset int, hasOrder bool) string {
	if limit <= 0 && offset <= 0 {
		return ""
	}
	var b strings.Builder
	if !hasOrder {
		b.WriteString("ORDER BY (SELECT NULL) ")
	}
	fmt.Fprintf(&b, "OFFSET %d ROWS", max(offset, 0))
	if limit > 0 {
		fmt.Fprintf(&b, " FETCH NEXT %d ROWS ONLY", limit)
	}
	return b.String()
}

func (d Dialect) InsertSQL(table string, columns, placeholders []string, primaryKey string) (string, bool) {
	var b strings.Builder
	b.WriteString("INSERT INTO " + d.Quote(table))
	if len(columns) > 0 {
		fmt.Fprintf(&b, " (%s)", common.QuoteColumns(d, columns))
	}
	if primaryKey != "" {
		b.WriteString(" OUTPUT INSERTED." + d.Quote(primaryKey))
	}
	if len(columns) == 0 {
		b.WriteString(" DEFAULT VALUES")
	} else {
		fmt.Fprintf(&b, " VALUES (%s)", strings.Join(placeholders, ", "))
	}
	return b.String(), primaryKey != ""
}

func (d Dialect) columnSpec(f *schema.Field, withDefault bool) (common.ColumnSpec, error) {
	typ, err := d.ColumnType(f)
	if err != nil {
		return common.ColumnSpec{}, err
	}
	spec := common.ColumnSpec{Name: d.Quote(f.Name), Type: typ, NotNull: !f.IsNullable()}
	if withDefault && f.Default != nil {
		spec.Default = d.Literal(f.Default)
	}
	if withDefault && f.Serial {
		spec.Extra = "IDENTITY(1,1)"
	}
	return spec, nil
}

func (d Dialect) indexStatement(table string, idx *schema.Index) (string, error) {
	name := d.Quote(common.ConstraintName(table, idx))
	cols := common.QuoteColumns(d, idx.Columns())
	switch idx.Kind {
	case schema.UniqueIndex:
		return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)", d.Quote(table), name, cols), nil
	case schema.FulltextIndex:
		return "", &common.NotImplementedError{Dialect: "sqlserver", Feature: "fulltext index '" + idx.Name + "'"}
	}
	return fmt.Sprintf("CREATE INDEX %s ON %s (%s)", name, d.Quote(table), cols), nil
}

func (d Dialect) CreateTableSQL(meta *schema.Metadata) ([]string, error) {
	table := meta.Datasource
	var lines, extra []string
	for _, f := range meta.Fields {
		spec, err := d.columnSpec(f, true)
		if err != nil {
			return nil, err
		}
		lines = append(lines, spec.String())
	}
	lines = append(lines, fmt.Sprintf("CONSTRAINT %s PRIMARY KEY (%s)", d.Quote(table+"_pkey"), d.Quote(meta.PrimaryKey.Name)))
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
	create := fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL\nCREATE TABLE %s (\n  %s\n)",
		d.Quote(table), d.Quote(table), strings.Join(lines, ",\n  "))
	return append([]string{create}, extra...), nil
}

func (d Dialect) sameType(f *schema.Field, col common.ColumnInfo) (bool, error) {
	typ, err := d.ColumnType(f)
	if err != nil {
		return false, err
	}
	return common.BaseType(typ) == col.Type, nil
}

// AlterTableSQL changes column types and nullability; defaults live in named
// constraints and are left untouched on existing columns.
func (d Dialect) AlterTableSQL(meta *schema.Metadata, existing []common.ColumnInfo) ([]string, error) {
	diff, err := common.DiffColumns(meta, existing, d.sameType)
	if err != nil || diff.Empty() {
		return nil, err
	}
	table := d.Quote(meta.Datasource)
	var stmts []string
	for _, f := range diff.Changed {
		spec, err := d.columnSpec(f, false)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s", table, spec))
	}
	if len(diff.Added) > 0 {
		defs := make([]string, 0, len(diff.Added))
		for _, f := range diff.Added {
			spec, err := d.columnSpec(f, true)
			if err != nil {
				return nil, err
			}
			defs = append(defs, spec.String())
		}
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD %s", table, strings.Join(defs, ", ")))
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

func (Dialect) ColumnsSQL(table string) (string, []any) {
	return "SELECT COLUMN_NAME AS name, DATA_TYPE AS type, COLUMN_DEFAULT AS dflt, IS_NULLABLE AS nullable " +
		"FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_NAME = @p1 ORDER BY ORDINAL_POSITION", []any{table}
}

func (Dialect) ParseColumn(row map[string]any) (common.ColumnInfo, error) {
	return common.ParseInfoSchemaColumn(row)
}

func (d Dialect) TruncateSQL(table string) string  { return "TRUNCATE TABLE " + d.Quote(table) }
func (d Dialect) DropTableSQL(table string) string { return "DROP TABLE IF EXISTS " + d.Quote(table) }

func (d Dialect) CreateDatabaseSQL(name string) string {
	return fmt.Sprintf("IF DB_ID(%s) IS NULL CREATE DATABASE %s", d.Literal(name), d.Quote(name))
}

func (d Dialect) DropDatabaseSQL(name string) string { return "DROP DATABASE IF EXISTS " + d.Quote(name) }

func (Dialect) Fulltext([]string, string) (string, error) {
	return "", &common.NotImplementedError{Dialect: "sqlserver", Feature: "fulltext search"}
}

// --- Migration History Table SQL ---

func (d Dialect) CreateSchemaMigrationsTableSQL(tableName string) string {
	return fmt.Sprintf(`IF OBJECT_ID(N'%s', N'U') IS NULL
CREATE TABLE %s (
    id NVARCHAR(255) NOT NULL PRIMARY KEY,
    applied_at DATETIME2 NOT NULL
);`, d.Quote(tableName), d.Quote(tableName))
}

func (d Dialect) GetAppliedMigrationsSQL(tableName string) string {
	return fmt.Sprintf("SELECT id, applied_at FROM %s ORDER BY id ASC;", d.Quote(tableName))
}

func (d Dialect) InsertMigrationSQL(tableName string) string {
	return fmt.Sprintf("INSERT INTO %s (id, applied_at) VALUES (@p1, @p2);", d.Quote(tableName))
}

func (d Dialect) DeleteMigrationSQL(tableName string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE id = @p1;", d.Quote(tableName))
}

func init() {
	dialects.Register("sqlserver", func() common.DataSource {
		return common.NewSQLDataSource(Dialect{})
	})
}
