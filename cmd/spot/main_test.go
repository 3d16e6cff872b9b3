// cmd/spot/main_test.go
package main

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeCommand runs a fresh root command and captures its output.
func executeCommand(args ...string) (string, string, error) {
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	root := newRootCmd()
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

// writeConfig writes a config file pointing at a sqlite database and a
// migration directory inside a temp dir.
func writeConfig(t *testing.T) (cfgFile, migrationsDir string) {
	t.Helper()
	dir := t.TempDir()
	migrationsDir = filepath.Join(dir, "migrations")
	cfgFile = filepath.Join(dir, "spot.yaml")
	content := "database:\n" +
		"  dialect: sqlite\n" +
		"  driver: modernc\n" +
		"  dsn: " + filepath.Join(dir, "test.db") + "\n" +
		"migration:\n" +
		"  directory: " + migrationsDir + "\n" +
		"logging:\n" +
		"  level: error\n"
	require.NoError(t, os.WriteFile(cfgFile, []byte(content), 0o644))
	return cfgFile, migrationsDir
}

func TestMigrateCommands(t *testing.T) {
	cfgFile, dir := writeConfig(t)

	stdout, _, err := executeCommand("migrate", "status", "--config", cfgFile)
	require.NoError(t, err)
	assert.Contains(t, stdout, "No migrations found")

	stdout, _, err = executeCommand("migrate", "create", "CreateWidgets", "--config", cfgFile)
	require.NoError(t, err)
	path := regexp.MustCompile(`Created (\S+)`).FindStringSubmatch(stdout)
	require.Len(t, path, 2, stdout)
	assert.Regexp(t, `\d{14}_create_widgets\.sql$`, path[1])
	require.NoError(t, os.WriteFile(path[1], []byte("-- +migrate Up\nCREATE TABLE widgets (id INTEGER);\n-- +migrate Down\nDROP TABLE widgets;\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20000101000000_first.sql"), []byte("-- +migrate Up\nCREATE TABLE gizmos (id INTEGER);\n"), 0o644))

	stdout, _, err = executeCommand("migrate", "up", "--config", cfgFile)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Applied 20000101000000")

	stdout, _, err = executeCommand("migrate", "up", "--config", cfgFile)
	require.NoError(t, err)
	assert.Contains(t, stdout, "No pending migrations.")

	stdout, _, err = executeCommand("migrate", "status", "--config", cfgFile)
	require.NoError(t, err)
	assert.Regexp(t, `20000101000000\s+first\s+applied`, stdout)
	assert.Regexp(t, `create_widgets\s+applied`, stdout)

	stdout, _, err = executeCommand("migrate", "down", "--steps", "1", "--config", cfgFile)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Reverted ")

	stdout, _, err = executeCommand("migrate", "status", "--config", cfgFile)
	require.NoError(t, err)
	assert.Regexp(t, `create_widgets\s+pending`, stdout)
}

func TestMigrateCreateCommandErrors(t *testing.T) {
	_, stderr, err := executeCommand("migrate", "create")
	assert.Error(t, err)
	assert.Contains(t, stderr, "accepts 1 arg(s), received 0")

	_, _, err = executeCommand("migrate", "up", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "error loading configuration")
}

const definitions = `entities:
  - name: Widget
    datasource: widgets
    fields:
      - {name: id, type: integer, primary: true, serial: true}
      - {name: name, type: string, required: true}
`

func TestSchemaMigrateCommand(t *testing.T) {
	cfgFile, _ := writeConfig(t)
	defsFile := filepath.Join(t.TempDir(), "entities.yaml")
	require.NoError(t, os.WriteFile(defsFile, []byte(definitions), 0o644))

	stdout, _, err := executeCommand("schema", "migrate", defsFile, "--dry-run", "--config", cfgFile)
	require.NoError(t, err)
	assert.Contains(t, stdout, `CREATE TABLE IF NOT EXISTS "widgets"`)

	stdout, _, err = executeCommand("schema", "migrate", defsFile, "--show-queries", "--config", cfgFile)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Migrated Widget (widgets)")
	assert.Contains(t, stdout, `[default] CREATE TABLE IF NOT EXISTS "widgets"`)

	stdout, _, err = executeCommand("schema", "migrate", defsFile, "--dry-run", "--config", cfgFile)
	require.NoError(t, err)
	assert.Empty(t, stdout, "an up to date table needs no statements")

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("entities: []\n"), 0o644))
	_, _, err = executeCommand("schema", "migrate", empty, "--config", cfgFile)
	assert.ErrorContains(t, err, "no entity definitions")
}
