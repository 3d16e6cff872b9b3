// pkg/adapter/sqlite_test.go
package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vlucas/spot/pkg/config"
	"github.com/vlucas/spot/pkg/dialects/common"
	"github.com/vlucas/spot/pkg/entity"
	"github.com/vlucas/spot/pkg/query"
	"github.com/vlucas/spot/pkg/schema"
	"github.com/vlucas/spot/pkg/types"
)

func newSQLiteAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := New(config.DatabaseConfig{Dialect: "sqlite3", DSN: "sqlite::memory:", Driver: "modernc"}, WithLogger(discard))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestSQLite_MigrateAndCRUD(t *testing.T) {
	ctx := context.Background()
	a := newSQLiteAdapter(t)
	assert.Equal(t, "sqlite", a.Name())
	meta := postsMeta(t)

	require.NoError(t, a.Migrate(ctx, meta))
	assert.Equal(t, Connected, a.State())
	stmts, err := a.MigrateSQL(ctx, meta)
	require.NoError(t, err)
	assert.Empty(t, stmts, "a migrated table needs no changes")

	id1, err := a.Create(ctx, "posts", map[string]any{"title": "first", "status": 1}, "id")
	require.NoError(t, err)
	id2, err := a.Create(ctx, "posts", map[string]any{"title": "second", "status": 2}, "id")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id1)
	assert.Equal(t, int64(2), id2)

	q := postsQuery(t).Where(query.Conditions{"status >": 0}).Order("id", "desc")
	n, err := a.Count(ctx, q)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	registry := types.NewRegistry()
	hydrate := func(_ context.Context, q *query.Query, rows []map[string]any) (*entity.Collection, error) {
		var out []*entity.Entity
		for _, row := range rows {
			e, err := entity.Load(q.Meta(), registry, row)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return entity.NewCollection(q.EntityName(), out), nil
	}
	col, err := a.Read(ctx, q, hydrate)
	require.NoError(t, err)
	assert.Equal(t, []any{"second", "first"}, col.Column("title"))

	affected, err := a.Update(ctx, "posts", map[string]any{"status": 5},
		[]query.Group{{Conditions: query.Conditions{"id": id1}}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	affected, err = a.Delete(ctx, "posts", []query.Group{{Conditions: query.Conditions{"status": 5}}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	require.NoError(t, a.TruncateDatasource(ctx, "posts"))
	n, err = a.Count(ctx, postsQuery(t))
	require.NoError(t, err)
	assert.Zero(t, n)
}

type postV2Def struct{ postDef }

func (postV2Def) Fields() []schema.Field {
	return append(postDef{}.Fields(), schema.Field{Name: "summary", Type: "text"})
}

func TestSQLite_MigrateAddsColumns(t *testing.T) {
	ctx := context.Background()
	a := newSQLiteAdapter(t)
	require.NoError(t, a.Migrate(ctx, postsMeta(t)))

	v2, err := schema.NewManager(types.NewRegistry(), nil).Metadata(postV2Def{})
	require.NoError(t, err)
	stmts, err := a.MigrateSQL(ctx, v2)
	require.NoError(t, err)
	assert.Equal(t, []string{`ALTER TABLE "posts" ADD COLUMN "summary" TEXT`}, stmts)
	require.NoError(t, a.Migrate(ctx, v2))

	cols, err := a.Columns(ctx, "posts")
	require.NoError(t, err)
	assert.Len(t, cols, 5)
}

func TestSQLite_Transaction(t *testing.T) {
	ctx := context.Background()
	a := newSQLiteAdapter(t)
	require.NoError(t, a.Migrate(ctx, postsMeta(t)))

	tx, err := a.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Create(ctx, "posts", map[string]any{"title": "gone"}, "id")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	n, err := a.Count(ctx, postsQuery(t))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLite_CreateDatabaseNotImplemented(t *testing.T) {
	a := newSQLiteAdapter(t)
	err := a.CreateDatabase(context.Background(), "app")
	assert.ErrorIs(t, err, common.ErrNotImplemented)
}
