// pkg/adapter/crud.go
package adapter

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cast"

	"github.com/vlucas/spot/pkg/entity"
	"github.com/vlucas/spot/pkg/query"
)

// Hydrator turns result rows into entities. The mapper supplies one that
// also loads eager relations.
type Hydrator func(ctx context.Context, q *query.Query, rows []map[string]any) (*entity.Collection, error)

// --- SQL building ---

// SelectSQL renders q as a SELECT statement with its bind values.
func (a *Adapter) SelectSQL(q *query.Query) (string, []any, error) {
	if err := q.Err(); err != nil {
		return "", nil, err
	}
	st := q.State()
	c := query.NewCompiler(a.dialect, 0)

	fields := "*"
	if f := q.Fields(); len(f) > 0 {
		quoted := make([]string, len(f))
		for i, name := range f {
			quoted[i] = query.QuoteColumn(a.dialect, name)
		}
		fields = strings.Join(quoted, ", ")
	}

	var b strings.Builder
	b.WriteString("SELECT " + fields + " FROM " + a.dialect.Quote(q.Datasource()))
	binds, err := a.writeFilters(&b, c, st)
	if err != nil {
		return "", nil, err
	}
	if len(st.Order) > 0 {
		terms := make([]string, len(st.Order))
		for i, o := range st.Order {
			terms[i] = query.QuoteColumn(a.dialect, o.Field) + " " + o.Direction
		}
		b.WriteString(" ORDER BY " + strings.Join(terms, ", "))
	}
	if lo := a.dialect.LimitOffset(st.Limit, st.Offset, len(st.Order) > 0); lo != "" {
		b.WriteString(" " + lo)
	}
	return b.String(), query.Values(binds), nil
}

// CountSQL renders the row count of q, ignoring order, limit and offset.
// Grouped queries count their groups.
func (a *Adapter) CountSQL(q *query.Query) (string, []any, error) {
	if err := q.Err(); err != nil {
		return "", nil, err
	}
	st := q.State()
	c := query.NewCompiler(a.dialect, 0)

	var b strings.Builder
	if len(st.Group) > 0 {
		b.WriteString("SELECT COUNT(*) AS " + a.dialect.Quote("count") + " FROM (SELECT 1 AS " + a.dialect.Quote("g") + " FROM " + a.dialect.Quote(q.Datasource()))
	} else {
		b.WriteString("SELECT COUNT(*) AS " + a.dialect.Quote("count") + " FROM " + a.dialect.Quote(q.Datasource()))
	}
	binds, err := a.writeFilters(&b, c, st)
	if err != nil {
		return "", nil, err
	}
	if len(st.Group) > 0 {
		b.WriteString(") " + a.dialect.Quote("grouped"))
	}
	return b.String(), query.Values(binds), nil
}

func (a *Adapter) writeFilters(b *strings.Builder, c *query.Compiler, st query.State) ([]query.Bind, error) {
	where, binds, err := c.Compile(st.Where)
	if err != nil {
		return nil, err
	}
	if where != "" {
		b.WriteString(" WHERE " + where)
	}
	if len(st.Group) > 0 {
		cols := make([]string, len(st.Group))
		for i, g := range st.Group {
			cols[i] = query.QuoteColumn(a.dialect, g)
		}
		b.WriteString(" GROUP BY " + strings.Join(cols, ", "))
	}
	having, hbinds, err := c.Compile(st.Having)
	if err != nil {
		return nil, err
	}
	if having != "" {
		b.WriteString(" HAVING " + having)
	}
	return append(binds, hbinds...), nil
}

// InsertSQL renders an insert of data into table. Columns are sorted.
func (a *Adapter) InsertSQL(table string, data map[string]any, primaryKey string) (string, []any, bool) {
	cols := slices.Sorted(maps.Keys(data))
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		placeholders[i] = a.dialect.BindVar(i + 1)
		args[i] = data[col]
	}
	sql, returnsKey := a.dialect.InsertSQL(table, cols, placeholders, primaryKey)
	return sql, args, returnsKey
}

// UpdateSQL renders an update of data in table for rows matching where.
func (a *Adapter) UpdateSQL(table string, data map[string]any, where []query.Group) (string, []any, error) {
	cols := slices.Sorted(maps.Keys(data))
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols))
	for i, col := range cols {
		sets[i] = a.dialect.Quote(col) + " = " + a.dialect.BindVar(i+1)
		args = append(args, data[col])
	}
	sql := "UPDATE " + a.dialect.Quote(table) + " SET " + strings.Join(sets, ", ")
	cond, binds, err := query.NewCompiler(a.dialect, len(cols)).Compile(where)
	if err != nil {
		return "", nil, err
	}
	if cond != "" {
		sql += " WHERE " + cond
	}
	return sql, append(args, query.Values(binds)...), nil
}

// DeleteSQL renders a delete from table of rows matching where.
func (a *Adapter) DeleteSQL(table string, where []query.Group) (string, []any, error) {
	sql := "DELETE FROM " + a.dialect.Quote(table)
	cond, binds, err := query.Compile(where, a.dialect)
	if err != nil {
		return "", nil, err
	}
	if cond != "" {
		sql += " WHERE " + cond
	}
	return sql, query.Values(binds), nil
}

// --- CRUD ---

// Create inserts data into table and returns the new primary key value. A
// key present in data is returned as is; otherwise it is read back from the
// statement or the driver's last insert id.
func (a *Adapter) Create(ctx context.Context, table string, data map[string]any, primaryKey string) (any, error) {
	keyGiven := primaryKey != "" && data[primaryKey] != nil
	returning := primaryKey
	if keyGiven {
		returning = ""
	}
	sql, args, returnsKey := a.InsertSQL(table, data, returning)

	if returnsKey {
		rows, err := a.query(ctx, KindInsert, sql, args)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("adapter: insert into %s returned no key", table)
		}
		return rows[0][primaryKey], nil
	}

	res, err := a.exec(ctx, KindInsert, sql, args)
	if err != nil {
		return nil, err
	}
	if keyGiven {
		return data[primaryKey], nil
	}
	if primaryKey == "" {
		return nil, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("adapter: reading inserted key of %s: %w", table, err)
	}
	return id, nil
}

// Read executes q and hands the rows to hydrate.
func (a *Adapter) Read(ctx context.Context, q *query.Query, hydrate Hydrator) (*entity.Collection, error) {
	sql, args, err := a.SelectSQL(q)
	if err != nil {
		return nil, err
	}
	rows, err := a.query(ctx, KindSelect, sql, args)
	if err != nil {
		return nil, err
	}
	return hydrate(ctx, q, rows)
}

// Count returns the number of rows matching q.
func (a *Adapter) Count(ctx context.Context, q *query.Query) (int64, error) {
	sql, args, err := a.CountSQL(q)
	if err != nil {
		return 0, err
	}
	rows, err := a.query(ctx, KindCount, sql, args)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := cast.ToInt64E(rows[0]["count"])
	if err != nil {
		return 0, fmt.Errorf("adapter: reading count: %w", err)
	}
	return n, nil
}

// Update writes data to rows of table matching where and returns the number
// of affected rows. Empty data is a no-op.
func (a *Adapter) Update(ctx context.Context, table string, data map[string]any, where []query.Group) (int64, error) {
	if len(data) == 0 {
		return 0, nil
	}
	sql, args, err := a.UpdateSQL(table, data, where)
	if err != nil {
		return 0, err
	}
	res, err := a.exec(ctx, KindUpdate, sql, args)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete removes rows of table matching where. No conditions deletes every row.
func (a *Adapter) Delete(ctx context.Context, table string, where []query.Group) (int64, error) {
	sql, args, err := a.DeleteSQL(table, where)
	if err != nil {
		return 0, err
	}
	res, err := a.exec(ctx, KindDelete, sql, args)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
