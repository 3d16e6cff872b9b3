//go:build integration

package migration

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vlucas/spot/pkg/config"
)

// setupIntegration opens a runner against SPOT_TEST_DIALECT / SPOT_TEST_DSN
// with an empty migration directory and a clean history table.
func setupIntegration(t *testing.T) (context.Context, *Runner, string) {
	t.Helper()
	dialect, dsn := os.Getenv("SPOT_TEST_DIALECT"), os.Getenv("SPOT_TEST_DSN")
	if dialect == "" || dsn == "" {
		t.Skip("SPOT_TEST_DIALECT and SPOT_TEST_DSN are not set")
	}

	cfg := config.NewDefaultConfig()
	cfg.Database.Dialect = dialect
	cfg.Database.DSN = dsn
	cfg.Migration.Directory = t.TempDir()
	cfg.Migration.TableName = testMigrationTable

	r, err := Open(cfg, discard)
	require.NoError(t, err)
	ctx := context.Background()
	cleanup := func() {
		r.conn.Exec(ctx, r.conn.Dialect().DropTableSQL("it_widgets"))
		r.conn.Exec(ctx, r.conn.Dialect().DropTableSQL(testMigrationTable))
	}
	cleanup()
	t.Cleanup(func() {
		cleanup()
		r.Close()
	})
	return ctx, r, cfg.Migration.Directory
}

func TestIntegration_UpDown(t *testing.T) {
	ctx, r, dir := setupIntegration(t)
	writeMigration(t, dir, "20240101000000_widgets.sql", `-- +migrate Up
CREATE TABLE it_widgets (id INTEGER PRIMARY KEY, name VARCHAR(50));
INSERT INTO it_widgets (id, name) VALUES (1, 'first');
-- +migrate Down
DROP TABLE it_widgets;
`)

	applied, err := r.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"20240101000000"}, applied)

	rows, err := r.conn.Query(ctx, "SELECT name FROM it_widgets")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "first", rows[0]["name"])

	reverted, err := r.Down(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"20240101000000"}, reverted)
	assert.Empty(t, appliedIDs(t, r))
}

func TestIntegration_ErrorInSQL(t *testing.T) {
	ctx, r, dir := setupIntegration(t)
	writeMigration(t, dir, "20240101000000_broken.sql", "-- +migrate Up\nCREATE TABL it_widgets (id INTEGER);\n")

	_, err := r.Up(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "20240101000000")
	assert.Contains(t, err.Error(), "failed to execute 'Up' SQL")
	assert.Empty(t, appliedIDs(t, r))
}
