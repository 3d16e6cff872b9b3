// pkg/spot/sqlmock_test.go
package spot

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vlucas/spot/pkg/adapter"
	"github.com/vlucas/spot/pkg/dialects/common"
	"github.com/vlucas/spot/pkg/dialects/postgres"
	"github.com/vlucas/spot/pkg/entity"
	"github.com/vlucas/spot/pkg/query"
)

// newPostgresMapper returns a mapper whose default connection is a sqlmock
// database speaking the postgres dialect.
func newPostgresMapper(t *testing.T) (*Mapper, sqlmock.Sqlmock, *adapter.Metrics) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	metrics, err := adapter.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	cfg := NewConfig(WithConfigLogger(discard))
	a := adapter.NewWithDataSource(common.WrapDB(db, postgres.Dialect{}),
		adapter.WithName("pg"), adapter.WithLogger(discard), adapter.WithQueryLog(cfg.QueryLog()), adapter.WithMetrics(metrics))
	require.NoError(t, cfg.AddAdapter("pg", a, true))
	return New(cfg), mock, metrics
}

func TestPostgres_InsertReturningKey(t *testing.T) {
	m, mock, metrics := newPostgresMapper(t)
	mock.ExpectQuery(`INSERT INTO "test_posts" ("status", "title") VALUES ($1, $2) RETURNING "id"`).
		WithArgs(int64(0), "Test Post").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	e, err := m.Create(context.Background(), Post{}, map[string]any{"title": "Test Post"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), e.PrimaryKey())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Queries.WithLabelValues("pg", adapter.KindInsert)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_EagerLoadUsesIn(t *testing.T) {
	m, mock, _ := newPostgresMapper(t)
	mock.ExpectQuery(`SELECT * FROM "test_posts" WHERE ("status" = $1)`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "status"}).
			AddRow(int64(1), "a", int64(1)).
			AddRow(int64(2), "b", int64(1)))
	mock.ExpectQuery(`SELECT * FROM "test_post_comments" WHERE ("post_id" IN (1, 2)) ORDER BY "id" ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "post_id", "name"}).
			AddRow(int64(10), int64(2), "on b"))

	q, err := m.All(Post{}, query.Conditions{"status": 1})
	require.NoError(t, err)
	posts, err := q.With("comments").Execute(context.Background())
	require.NoError(t, err)

	onA, _ := posts.At(0).Relation("comments")
	onB, _ := posts.At(1).Relation("comments")
	assert.Equal(t, 0, onA.(*entity.Collection).Len())
	assert.Equal(t, 1, onB.(*entity.Collection).Len())
	assert.NoError(t, mock.ExpectationsWereMet())
}
