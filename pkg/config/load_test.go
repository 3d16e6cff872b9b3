// pkg/config/load_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"SPOT_DATABASE_DIALECT", "SPOT_DATABASE_DSN", "SPOT_DATABASE_DRIVER",
	"SPOT_DATABASE_POOL_MAXOPENCONNS", "SPOT_LOGGING_LEVEL", "SPOT_LOGGING_FORMAT",
	"SPOT_MIGRATION_DIRECTORY", "SPOT_MIGRATION_TABLENAME", "SPOT_QUERYLOG_LIMIT",
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const fullFile = `
database:
  dialect: sqlite
  driver: modernc
  dsn: "sqlite::memory:"
  pool:
    maxOpenConns: 20
    connMaxLifetime: 30m
connections:
  reporting:
    dialect: postgres
    dsn: "postgres://report:secret@db:5432/reports"
logging:
  level: debug
migration:
  directory: db/migrations
queryLog:
  limit: 50
`

func TestLoadConfig(t *testing.T) {
	defaults := NewDefaultConfig()

	tests := []struct {
		name  string
		file  string
		env   map[string]string
		check func(t *testing.T, cfg Config)
	}{
		{
			name: "defaults with required settings from env",
			env:  map[string]string{"SPOT_DATABASE_DIALECT": "sqlite", "SPOT_DATABASE_DSN": "sqlite::memory:"},
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, "sqlite", cfg.Database.Dialect)
				assert.Equal(t, defaults.Database.Pool, cfg.Database.Pool)
				assert.Equal(t, defaults.Logging, cfg.Logging)
				assert.Equal(t, defaults.Migration, cfg.Migration)
				assert.Equal(t, 200, cfg.QueryLog.Limit)
				assert.Empty(t, cfg.Connections)
			},
		},
		{
			name: "file values",
			file: fullFile,
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, "modernc", cfg.Database.Driver)
				assert.Equal(t, 20, cfg.Database.Pool.MaxOpenConns)
				assert.Equal(t, 30*time.Minute, cfg.Database.Pool.ConnMaxLifetime)
				assert.Equal(t, defaults.Database.Pool.MaxIdleConns, cfg.Database.Pool.MaxIdleConns)
				assert.Equal(t, "debug", cfg.Logging.Level)
				assert.Equal(t, "db/migrations", cfg.Migration.Directory)
				assert.Equal(t, defaults.Migration.TableName, cfg.Migration.TableName)
				assert.Equal(t, 50, cfg.QueryLog.Limit)
				require.Contains(t, cfg.Connections, "reporting")
				assert.Equal(t, "postgres", cfg.Connections["reporting"].Dialect)
			},
		},
		{
			name: "env over file",
			file: fullFile,
			env: map[string]string{
				"SPOT_DATABASE_DIALECT":    "mysql",
				"SPOT_DATABASE_DSN":        "mysql://root@localhost/app",
				"SPOT_LOGGING_FORMAT":      "json",
				"SPOT_MIGRATION_TABLENAME": "spot_history",
				"SPOT_QUERYLOG_LIMIT":      "0",
			},
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, "mysql", cfg.Database.Dialect)
				assert.Equal(t, "mysql://root@localhost/app", cfg.Database.DSN)
				assert.Equal(t, "json", cfg.Logging.Format)
				assert.Equal(t, "debug", cfg.Logging.Level, "file value kept")
				assert.Equal(t, "spot_history", cfg.Migration.TableName)
				assert.Equal(t, 0, cfg.QueryLog.Limit)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range envKeys {
				t.Setenv(k, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeFile(t, tt.file)
			}
			cfg, err := LoadConfig(path)
			require.NoError(t, err)
			tt.check(t, cfg)

			dsn, err := ParseDSN(cfg.Database.DSN)
			require.NoError(t, err)
			assert.Equal(t, cfg.Database.Dialect, dsn.Adapter)
		})
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		want []string
		not  []string
	}{
		{
			name: "missing required database settings",
			file: "logging:\n  level: info\n",
			want: []string{
				"invalid configuration:",
				"Field 'Config.Database.Dialect' failed validation on 'required'",
				"Field 'Config.Database.DSN' failed validation on 'required'",
			},
		},
		{
			name: "invalid named connection and logging",
			file: "database:\n  dialect: sqlite\n  dsn: \"sqlite::memory:\"\nconnections:\n  broken:\n    dialect: mysql\nlogging:\n  level: loud\n  format: xml\n",
			want: []string{
				"Config.Connections[broken].DSN' failed validation on 'required'",
				"Config.Logging.Level' failed validation on 'oneof'",
				"Config.Logging.Format' failed validation on 'oneof'",
			},
			not: []string{"Config.Database.Dialect'"},
		},
		{
			name: "negative query log limit",
			file: "database:\n  dialect: sqlite\n  dsn: \"sqlite::memory:\"\nqueryLog:\n  limit: -1\n",
			want: []string{"Config.QueryLog.Limit' failed validation on 'gte'"},
		},
		{
			name: "malformed yaml",
			file: "database:\n  dialect: mysql\"\nlogging: level: debug\n",
			want: []string{"error reading specified config file", "yaml:"},
			not:  []string{"invalid configuration"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range envKeys {
				t.Setenv(k, "")
			}
			_, err := LoadConfig(writeFile(t, tt.file))
			require.Error(t, err)
			for _, s := range tt.want {
				assert.Contains(t, err.Error(), s)
			}
			for _, s := range tt.not {
				assert.NotContains(t, err.Error(), s)
			}
		})
	}
}

func TestLoadConfig_SpecifiedFileNotFound(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading specified config file")
	assert.Contains(t, err.Error(), "missing.yaml")
}

func TestLoadConfig_DefaultFileOptional(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })
	t.Setenv("HOME", t.TempDir())
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	_, err = LoadConfig("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration:")
	assert.NotContains(t, err.Error(), "error reading")
}
