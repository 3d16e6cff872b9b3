// pkg/dialects/mysql/mysql.go
package mysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql" // Registers the "mysql" driver.

	"github.com/vlucas/spot/pkg/config"
	"github.com/vlucas/spot/pkg/dialects"
	"github.com/vlucas/spot/pkg/dialects/common"
	"github.com/vlucas/spot/pkg/schema"
)

// --- Dialect Implementation ---

// Dialect implements common.Dialect for MySQL/MariaDB.
type Dialect struct{}

var _ common.Dialect = Dialect{}

func (Dialect) Name() string { return "mysql" }

func (Dialect) DriverName(string) string { return "mysql" }

// DataSourceName renders dsn with mysql.Config, always enabling parseTime.
func (Dialect) DataSourceName(dsn config.DSN) (string, error) {
	cfg := mysql.NewConfig()
	cfg.User = dsn.Username
	cfg.Passwd = dsn.Password
	cfg.Net = "tcp"
	cfg.Addr = dsn.Hostspec
	if cfg.Addr != "" && dsn.Port() == "" {
		cfg.Addr += ":3306"
	}
	cfg.DBName = dsn.Database
	cfg.ParseTime = true
	for k, v := range dsn.Params {
		if k == "parseTime" {
			continue
		}
		if cfg.Params == nil {
			cfg.Params = map[string]string{}
		}
		cfg.Params[k] = v
	}
	return cfg.FormatDSN(), nil
}

func (Dialect) Quote(identifier string) string {
	parts := strings.Split(identifier, ".")
	for i, p := range parts {
		parts[i] = "`" + strings.ReplaceAll(p, "`", "``") + "`"
	}
	return strings.Join(parts, ".")
}

func (Dialect) BindVar(int) string { return "?" }

func (Dialect) Literal(v any) string {
	return common.FormatLiteral(v, func(s string) string {
		return common.QuoteString(strings.ReplaceAll(s, `\`, `\\`))
	})
}

func (Dialect) ColumnType(f *schema.Field) (string, error) {
	switch f.Type {
	case "string":
		return fmt.Sprintf("VARCHAR(%d)", f.Length), nil
	case "text", "json":
		return "TEXT", nil
	case "int", "integer", "timestamp", "year", "month", "day":
		return "INT", nil
	case "float", "double":
		return "DOUBLE", nil
	case "decimal":
		return fmt.Sprintf("DECIMAL(%d,%d)", f.Precision, f.Scale), nil
	case "bool", "boolean":
		return "TINYINT(1)", nil
	case "datetime":
		return "DATETIME", nil
	case "date":
		return "DATE", nil
	case "serialized":
		return "BLOB", nil
	case "uuid":
		return "CHAR(36)", nil
	}
	return "", &common.NotImplementedError{Dialect: "mysql", Feature: fmt.Sprintf("column type '%s'", f.Type)}
}

func (Dialect) LimitOffset(limit, offset int, _ bool) string {
	switch {
	case limit > 0 && offset > 0:
		return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
	case limit > 0:
		return "LIMIT " + strconv.Itoa(limit)
	case offset > 0:
		return fmt.Sprintf("LIMIT 18446744073709551615 OFFSET %d", offset)
	}
	return ""
}

func (d Dialect) InsertSQL(table string, columns, placeholders []string, _ string) (string, bool) {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.Quote(table), common.QuoteColumns(d, columns), strings.Join(placeholders, ", ")), false
}

func (d Dialect) columnSpec(f *schema.Field) (common.ColumnSpec, error) {
	typ, err := d.ColumnType(f)
	if err != nil {
		return common.ColumnSpec{}, err
	}
	spec := common.ColumnSpec{
		Name:     d.Quote(f.Name),
		Type:     typ,
		Unsigned: f.Unsigned,
		NotNull:  !f.IsNullable(),
	}
	if f.Default != nil {
		spec.Default = d.Literal(f.Default)
	}
	if f.Serial {
		spec.Extra = "AUTO_INCREMENT"
	}
	return spec, nil
}

func (d Dialect) keyClause(idx *schema.Index) string {
	kind := "KEY"
	switch idx.Kind {
	case schema.UniqueIndex:
		kind = "UNIQUE KEY"
	case schema.FulltextIndex:
		kind = "FULLTEXT KEY"
	}
	return fmt.Sprintf("%s %s (%s)", kind, d.Quote(idx.Name), common.QuoteColumns(d, idx.Columns()))
}

func tableOptions(meta *schema.Metadata) string {
	opt := func(key, def string) string {
		if v, ok := meta.Options[key]; ok && v != "" {
			return v
		}
		return def
	}
	return fmt.Sprintf("ENGINE=%s DEFAULT CHARSET=%s COLLATE=%s",
		opt("engine", "InnoDB"), opt("charset", "utf8mb4"), opt("collate", "utf8mb4_unicode_ci"))
}

func (d Dialect) CreateTableSQL(meta *schema.Metadata) ([]string, error) {
	var lines []string
	for _, f := range meta.Fields {
		spec, err := d.columnSpec(f)
		if err != nil {
			return nil, err
		}
		lines = append(lines, spec.String())
	}
	lines = append(lines, fmt.Sprintf("PRIMARY KEY (%s)", d.Quote(meta.PrimaryKey.Name)))
	for _, idx := range meta.Indexes {
		lines = append(lines, d.keyClause(idx))
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n) %s",
		d.Quote(meta.Datasource), strings.Join(lines, ",\n  "), tableOptions(meta))
	return []string{stmt}, nil
}

func (d Dialect) sameType(f *schema.Field, col common.ColumnInfo) (bool, error) {
	typ, err := d.ColumnType(f)
	if err != nil {
		return false, err
	}
	return common.BaseType(typ) == col.Type, nil
}

func (d Dialect) AlterTableSQL(meta *schema.Metadata, existing []common.ColumnInfo) ([]string, error) {
	diff, err := common.DiffColumns(meta, existing, d.sameType)
	if err != nil || diff.Empty() {
		return nil, err
	}
	var actions []string
	for _, f := range diff.Changed {
		spec, err := d.columnSpec(f)
		if err != nil {
			return nil, err
		}
		actions = append(actions, "MODIFY COLUMN "+spec.String())
	}
	for _, f := range diff.Added {
		spec, err := d.columnSpec(f)
		if err != nil {
			return nil, err
		}
		actions = append(actions, "ADD COLUMN "+spec.String())
	}
	for _, idx := range common.IndexesTouching(meta, diff.Added) {
		actions = append(actions, "ADD "+d.keyClause(idx))
	}
	return []string{fmt.Sprintf("ALTER TABLE %s %s", d.Quote(meta.Datasource), strings.Join(actions, ", "))}, nil
}

func (Dialect) ColumnsSQL(table string) (string, []any) {
	return "SELECT COLUMN_NAME AS name, DATA_TYPE AS type, COLUMN_DEFAULT AS dflt, IS_NULLABLE AS nullable " +
		"FROM information_schema.COLUMNS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION", []any{table}
}

func (Dialect) ParseColumn(row map[string]any) (common.ColumnInfo, error) {
	return common.ParseInfoSchemaColumn(row)
}

func (d Dialect) TruncateSQL(table string) string  { return "TRUNCATE TABLE " + d.Quote(table) }
func (d Dialect) DropTableSQL(table string) string { return "DROP TABLE IF EXISTS " + d.Quote(table) }
func (d Dialect) CreateDatabaseSQL(name string) string {
	return "CREATE DATABASE IF NOT EXISTS " + d.Quote(name)
}
func (d Dialect) DropDatabaseSQL(name string) string { return "DROP DATABASE IF EXISTS " + d.Quote(name) }

func (d Dialect) Fulltext(columns []string, placeholder string) (string, error) {
	return fmt.Sprintf("MATCH(%s) AGAINST(%s)", common.QuoteColumns(d, columns), placeholder), nil
}

// --- Migration History Table SQL ---

// CreateSchemaMigrationsTableSQL returns the SQL for creating the migrations table in MySQL.
func (d Dialect) CreateSchemaMigrationsTableSQL(tableName string) string {
	return fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
    id VARCHAR(255) NOT NULL PRIMARY KEY COMMENT 'Migration identifier (e.g., timestamp_name)',
    applied_at DATETIME(6) NOT NULL COMMENT 'Timestamp when the migration was applied UTC'
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci COMMENT='Tracks applied schema migrations';`,
		d.Quote(tableName),
	)
}

func (d Dialect) GetAppliedMigrationsSQL(tableName string) string {
	return fmt.Sprintf("SELECT id, applied_at FROM %s ORDER BY id ASC;", d.Quote(tableName))
}

func (d Dialect) InsertMigrationSQL(tableName string) string {
	return fmt.Sprintf("INSERT INTO %s (id, applied_at) VALUES (%s, %s);", d.Quote(tableName), d.BindVar(1), d.BindVar(2))
}

func (d Dialect) DeleteMigrationSQL(tableName string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE id = %s;", d.Quote(tableName), d.BindVar(1))
}

// --- Driver Registration ---

func init() {
	dialects.Register("mysql", func() common.DataSource {
		return common.NewSQLDataSource(Dialect{})
	})
}
