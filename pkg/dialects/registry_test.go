// pkg/dialects/registry_test.go
package dialects

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vlucas/spot/pkg/dialects/common"
)

// --- Stubs ---

// stubDataSource only needs Dialect(); the embedded nil interface is never called.
type stubDataSource struct {
	common.DataSource
	dialect common.Dialect
}

func (s *stubDataSource) Dialect() common.Dialect { return s.dialect }

type stubDialect struct {
	common.Dialect
	name string
}

func (s stubDialect) Name() string { return s.name }

func newStubFactory(name string) DataSourceFactory {
	return func() common.DataSource {
		return &stubDataSource{dialect: stubDialect{name: name}}
	}
}

func cleanupRegistry(t *testing.T) {
	t.Helper()
	driversMu.Lock()
	saved := drivers
	drivers = make(map[string]DataSourceFactory)
	driversMu.Unlock()
	t.Cleanup(func() {
		driversMu.Lock()
		drivers = saved
		driversMu.Unlock()
	})
}

// --- Tests ---

func TestRegisterAndGet(t *testing.T) {
	cleanupRegistry(t)

	Register("mock1", newStubFactory("mock1"))
	factory := Get("mock1")
	require.NotNil(t, factory)

	ds := factory()
	require.NotNil(t, ds.Dialect())
	assert.Equal(t, "mock1", ds.Dialect().Name())
}

func TestGet_NotFound(t *testing.T) {
	cleanupRegistry(t)
	assert.Nil(t, Get("nonexistent"))
}

func TestGet_Alias(t *testing.T) {
	cleanupRegistry(t)
	Register("postgres", newStubFactory("postgres"))
	Register("sqlserver", newStubFactory("sqlserver"))
	Register("sqlite", newStubFactory("sqlite"))

	for alias, want := range map[string]string{
		"pgsql":      "postgres",
		"PostgreSQL": "postgres",
		"mssql":      "sqlserver",
		"sqlite3":    "sqlite",
	} {
		f := Get(alias)
		require.NotNil(t, f, alias)
		assert.Equal(t, want, f().Dialect().Name(), alias)
	}
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "postgres", Canonical("pgsql"))
	assert.Equal(t, "mysql", Canonical("MariaDB"))
	assert.Equal(t, "oracle", Canonical("Oracle"))
}

func TestRegister_DuplicatePanic(t *testing.T) {
	cleanupRegistry(t)
	Register("mock-dup", newStubFactory("mock-dup"))
	assert.PanicsWithValue(t, "dialects: Register called twice for driver mock-dup", func() {
		Register("mock-dup", newStubFactory("other"))
	})
}

func TestRegister_NilFactoryPanic(t *testing.T) {
	cleanupRegistry(t)
	assert.PanicsWithValue(t, "dialects: Register factory is nil", func() {
		Register("mock-nil", nil)
	})
}

func TestRegisteredDrivers(t *testing.T) {
	cleanupRegistry(t)
	assert.Empty(t, RegisteredDrivers())
	Register("mockB", newStubFactory("mockB"))
	Register("mockA", newStubFactory("mockA"))
	assert.Equal(t, []string{"mockA", "mockB"}, RegisteredDrivers())
}
