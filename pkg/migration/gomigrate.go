// pkg/migration/gomigrate.go
package migration

import (
	"context"
	"fmt"
	"sync"

	"github.com/vlucas/spot/pkg/adapter"
)

// GoMigration is a migration written in Go. Both directions run inside the
// migration's transaction; db is bound to it.
type GoMigration interface {
	Up(ctx context.Context, db *adapter.Adapter) error
	Down(ctx context.Context, db *adapter.Adapter) error
}

// GoMigrationFuncs adapts two functions to GoMigration. A nil Down is a no-op.
type GoMigrationFuncs struct {
	UpFunc   func(ctx context.Context, db *adapter.Adapter) error
	DownFunc func(ctx context.Context, db *adapter.Adapter) error
}

func (f GoMigrationFuncs) Up(ctx context.Context, db *adapter.Adapter) error {
	if f.UpFunc == nil {
		return nil
	}
	return f.UpFunc(ctx, db)
}

func (f GoMigrationFuncs) Down(ctx context.Context, db *adapter.Adapter) error {
	if f.DownFunc == nil {
		return nil
	}
	return f.DownFunc(ctx, db)
}

var (
	goMigrationsRegistry = make(map[string]GoMigration)
	goMigrationsMu       sync.RWMutex
)

// RegisterGoMigration registers a Go migration under the timestamp ID of its
// file, and is meant to be called from that file's init function. It panics
// on an empty ID, a nil migration or a duplicate ID.
func RegisterGoMigration(id string, migration GoMigration) {
	if id == "" {
		panic("migration: RegisterGoMigration called with empty ID")
	}
	if migration == nil {
		panic(fmt.Sprintf("migration: RegisterGoMigration called with nil migration for ID %s", id))
	}

	goMigrationsMu.Lock()
	defer goMigrationsMu.Unlock()
	if _, exists := goMigrationsRegistry[id]; exists {
		panic(fmt.Sprintf("migration: RegisterGoMigration called twice for ID %s", id))
	}
	goMigrationsRegistry[id] = migration
}

func getGoMigration(id string) (GoMigration, bool) {
	goMigrationsMu.RLock()
	defer goMigrationsMu.RUnlock()
	migration, found := goMigrationsRegistry[id]
	return migration, found
}
