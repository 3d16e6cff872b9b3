// pkg/dialects/registry.go
package dialects

import (
	"sort"
	"strings"
	"sync"

	"github.com/vlucas/spot/pkg/dialects/common"
)

// DataSourceFactory returns a new, unconnected DataSource for one dialect.
type DataSourceFactory func() common.DataSource

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]DataSourceFactory)

	// aliases maps alternative adapter names, as found in DSN schemes, to
	// registered dialect names.
	aliases = map[string]string{
		"pgsql":      "postgres",
		"postgresql": "postgres",
		"mssql":      "sqlserver",
		"sqlite3":    "sqlite",
		"mariadb":    "mysql",
	}
)

// Register makes a DataSource factory available under name.
// It panics if factory is nil or name is already registered.
func Register(name string, factory DataSourceFactory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if factory == nil {
		panic("dialects: Register factory is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("dialects: Register called twice for driver " + name)
	}
	drivers[name] = factory
}

// Canonical resolves an adapter alias ("pgsql", "mssql", ...) to its dialect name.
func Canonical(name string) string {
	n := strings.ToLower(name)
	if c, ok := aliases[n]; ok {
		return c
	}
	return n
}

// Get returns the factory registered under name or one of its aliases, nil if none.
func Get(name string) DataSourceFactory {
	driversMu.RLock()
	defer driversMu.RUnlock()
	if f, ok := drivers[name]; ok {
		return f
	}
	return drivers[Canonical(name)]
}

// RegisteredDrivers returns the registered dialect names, sorted.
func RegisteredDrivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	list := make([]string, 0, len(drivers))
	for name := range drivers {
		list = append(list, name)
	}
	sort.Strings(list)
	return list
}
