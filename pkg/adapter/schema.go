// pkg/adapter/schema.go
package adapter

import (
	"context"
	"fmt"

	"github.com/vlucas/spot/pkg/dialects/common"
	"github.com/vlucas/spot/pkg/schema"
)

// Columns introspects the existing columns of table. A missing table has none.
func (a *Adapter) Columns(ctx context.Context, table string) ([]common.ColumnInfo, error) {
	sql, args := a.dialect.ColumnsSQL(table)
	rows, err := a.query(ctx, KindDDL, sql, args)
	if err != nil {
		return nil, err
	}
	cols := make([]common.ColumnInfo, 0, len(rows))
	for _, row := range rows {
		col, err := a.dialect.ParseColumn(row)
		if err != nil {
			return nil, fmt.Errorf("adapter: reading columns of %s: %w", table, err)
		}
		cols = append(cols, col)
	}
	return cols, nil
}

// MigrateSQL returns the statements that bring meta's table up to date:
// a CREATE when the table doesn't exist, otherwise the ALTERs for changed
// and added columns. No statements means the table already matches.
func (a *Adapter) MigrateSQL(ctx context.Context, meta *schema.Metadata) ([]string, error) {
	existing, err := a.Columns(ctx, meta.Datasource)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return a.dialect.CreateTableSQL(meta)
	}
	return a.dialect.AlterTableSQL(meta, existing)
}

// Migrate creates or alters meta's table.
func (a *Adapter) Migrate(ctx context.Context, meta *schema.Metadata) error {
	stmts, err := a.MigrateSQL(ctx, meta)
	if err != nil {
		return fmt.Errorf("adapter: migrating %s: %w", meta.Datasource, err)
	}
	if len(stmts) == 0 {
		a.logger.Debug("table is up to date", "adapter", a.name, "table", meta.Datasource)
		return nil
	}
	for _, stmt := range stmts {
		if _, err := a.exec(ctx, KindDDL, stmt, nil); err != nil {
			return fmt.Errorf("adapter: migrating %s: %w", meta.Datasource, err)
		}
	}
	a.logger.Info("table migrated", "adapter", a.name, "table", meta.Datasource, "statements", len(stmts))
	return nil
}

// --- Destructive operations ---

func (a *Adapter) destructive(ctx context.Context, op, target, sql string) error {
	if sql == "" {
		return &common.NotImplementedError{Dialect: a.dialect.Name(), Feature: op}
	}
	a.logger.Warn("executing destructive statement", "adapter", a.name, "op", op, "target", target, "sql", sql)
	_, err := a.exec(ctx, KindDDL, sql, nil)
	return err
}

// TruncateDatasource removes every row of table.
func (a *Adapter) TruncateDatasource(ctx context.Context, table string) error {
	return a.destructive(ctx, "truncating tables", table, a.dialect.TruncateSQL(table))
}

// DropDatasource drops table if it exists.
func (a *Adapter) DropDatasource(ctx context.Context, table string) error {
	return a.destructive(ctx, "dropping tables", table, a.dialect.DropTableSQL(table))
}

// CreateDatabase creates database name. SQLite has no databases to create.
func (a *Adapter) CreateDatabase(ctx context.Context, name string) error {
	return a.destructive(ctx, "creating databases", name, a.dialect.CreateDatabaseSQL(name))
}

// DropDatabase drops database name.
func (a *Adapter) DropDatabase(ctx context.Context, name string) error {
	return a.destructive(ctx, "dropping databases", name, a.dialect.DropDatabaseSQL(name))
}
