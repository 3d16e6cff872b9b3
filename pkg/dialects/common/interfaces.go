// pkg/dialects/common/interfaces.go
package common

import (
	"context"
	"io"
	"time"

	"github.com/vlucas/spot/pkg/config"
	"github.com/vlucas/spot/pkg/schema"
)

// MigrationRecord is one row of the schema migrations table.
type MigrationRecord struct {
	ID        string
	AppliedAt time.Time
}

// ColumnInfo describes an existing column as reported by the database.
type ColumnInfo struct {
	Name     string
	Type     string  // Lower-case base type, e.g. "varchar".
	Default  *string // Unquoted default, nil when the column has none.
	Nullable bool
}

// Dialect captures the SQL syntax and type differences of one database engine.
type Dialect interface {
	// Name returns the unique dialect name (e.g. "mysql", "postgres").
	Name() string

	// DriverName returns the database/sql driver to open. variant selects an
	// alternative driver where one exists (e.g. "modernc" for sqlite).
	DriverName(variant string) string

	// DataSourceName renders a parsed DSN in the driver's native format.
	DataSourceName(dsn config.DSN) (string, error)

	// Quote wraps an identifier (table, column) in the engine's quotes.
	Quote(identifier string) string

	// BindVar returns the placeholder for the i-th parameter (1-based).
	BindVar(i int) string

	// Literal renders v as an escaped SQL literal.
	Literal(v any) string

	// ColumnType maps a field to its column type, e.g. "VARCHAR(255)".
	ColumnType(field *schema.Field) (string, error)

	// LimitOffset returns the trailing paging clause, or "" when neither is set.
	// hasOrder reports whether the statement already carries ORDER BY.
	LimitOffset(limit, offset int, hasOrder bool) string

	// InsertSQL builds an INSERT. returnsKey reports whether the statement
	// yields the generated primary key as a row instead of LastInsertId.
	InsertSQL(table string, columns, placeholders []string, primaryKey string) (query string, returnsKey bool)

	// CreateTableSQL returns the statements creating meta's table and keys.
	CreateTableSQL(meta *schema.Metadata) ([]string, error)

	// AlterTableSQL returns the statements bringing existing columns in line
	// with meta. No statements means nothing changed.
	AlterTableSQL(meta *schema.Metadata, existing []ColumnInfo) ([]string, error)

	// ColumnsSQL returns the introspection query listing table's columns.
	ColumnsSQL(table string) (string, []any)

	// ParseColumn converts one introspection row into a ColumnInfo.
	ParseColumn(row map[string]any) (ColumnInfo, error)

	TruncateSQL(table string) string
	DropTableSQL(table string) string
	CreateDatabaseSQL(name string) string
	DropDatabaseSQL(name string) string

	// Fulltext builds a full-text match over columns against placeholder.
	Fulltext(columns []string, placeholder string) (string, error)

	// CreateSchemaMigrationsTableSQL returns the statement creating the
	// migrations table if it doesn't exist.
	CreateSchemaMigrationsTableSQL(tableName string) string

	// GetAppliedMigrationsSQL lists applied migrations ordered by ID.
	GetAppliedMigrationsSQL(tableName string) string

	// InsertMigrationSQL records a migration (id, applied_at).
	InsertMigrationSQL(tableName string) string

	// DeleteMigrationSQL removes a migration record by id.
	DeleteMigrationSQL(tableName string) string
}

// Querier is the statement surface shared by DataSource and Tx.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) (Result, error)
	QueryRow(ctx context.Context, query string, args ...any) RowScanner
	Query(ctx context.Context, query string, args ...any) (Rows, error)
}

// DataSource is a configured connection pool for one dialect.
type DataSource interface {
	io.Closer
	Querier

	// Connect opens the pool described by cfg.
	Connect(cfg config.DatabaseConfig) error

	Ping(ctx context.Context) error

	// BeginTx starts a transaction. opts may be nil or a sql.TxOptions.
	BeginTx(ctx context.Context, opts any) (Tx, error)

	Dialect() Dialect
}

// Tx is an active transaction.
type Tx interface {
	Querier
	Commit() error
	Rollback() error
}

// Result mirrors sql.Result.
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

// Rows mirrors sql.Rows.
type Rows interface {
	io.Closer
	Next() bool
	Scan(dest ...any) error
	Columns() ([]string, error)
	Err() error
}

// RowScanner mirrors sql.Row.
type RowScanner interface {
	Scan(dest ...any) error
}
