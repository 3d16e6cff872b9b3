// pkg/migration/runner.go
package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/iancoleman/strcase"
	"github.com/spf13/cast"

	"github.com/vlucas/spot/pkg/adapter"
	"github.com/vlucas/spot/pkg/config"
	"github.com/vlucas/spot/pkg/dialects/common"
	"github.com/vlucas/spot/pkg/types"
)

// Runner applies the migrations of one directory to one connection and
// records them in the history table.
type Runner struct {
	conn   *adapter.Adapter
	dir    string
	table  string
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the time source used for IDs and history rows.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner returns a runner for conn. Empty settings fall back to the
// configuration defaults.
func NewRunner(conn *adapter.Adapter, cfg config.MigrationConfig, opts ...Option) *Runner {
	defaults := config.NewDefaultConfig().Migration
	if cfg.Directory == "" {
		cfg.Directory = defaults.Directory
	}
	if cfg.TableName == "" {
		cfg.TableName = defaults.TableName
	}
	r := &Runner{
		conn:   conn,
		dir:    cfg.Directory,
		table:  cfg.TableName,
		logger: conn.Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open connects to cfg.Database and returns a runner for it. Close releases
// the connection.
func Open(cfg config.Config, logger *slog.Logger) (*Runner, error) {
	conn, err := adapter.New(cfg.Database, adapter.WithName("migrate"), adapter.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := conn.Connect(); err != nil {
		return nil, err
	}
	return NewRunner(conn, cfg.Migration, WithLogger(logger)), nil
}

// Close closes the runner's connection.
func (r *Runner) Close() error { return r.conn.Close() }

// Directory returns the migration directory.
func (r *Runner) Directory() string { return r.dir }

// Create writes an empty SQL migration named after name and returns its path.
func (r *Runner) Create(name string) (string, error) {
	return create(r.dir, name, r.now().UTC())
}

// RunCreate writes an empty SQL migration into cfg.Migration.Directory.
func RunCreate(cfg config.Config, name string) (string, error) {
	return create(cfg.Migration.Directory, name, time.Now().UTC())
}

func create(dir, name string, now time.Time) (string, error) {
	safeName := strcase.ToSnake(name)
	if safeName == "" {
		return "", errors.New("migration name cannot be empty")
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", now.Format(idLayout), safeName))

	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create migration directory '%s': %w", dir, err)
	}
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("migration file '%s' already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed checking for existing file '%s': %w", path, err)
	}

	content := fmt.Sprintf("-- Migration: %s\n-- Created at: %s UTC\n\n%s\n-- SQL in this section is executed when migrating Up.\n\n\n%s\n-- SQL in this section is executed when migrating Down.\n\n",
		name, now.Format(time.RFC3339), markerUp, markerDown)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to create migration file '%s': %w", path, err)
	}
	return path, nil
}

// --- History ---

func (r *Runner) ensureTable(ctx context.Context) error {
	if _, err := r.conn.Exec(ctx, r.conn.Dialect().CreateSchemaMigrationsTableSQL(r.table)); err != nil {
		return fmt.Errorf("failed to create migrations table '%s': %w", r.table, err)
	}
	return nil
}

// Applied returns the history table ordered by ID, creating the table when
// it does not exist.
func (r *Runner) Applied(ctx context.Context) ([]common.MigrationRecord, error) {
	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}
	rows, err := r.conn.Query(ctx, r.conn.Dialect().GetAppliedMigrationsSQL(r.table))
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations table '%s': %w", r.table, err)
	}
	out := make([]common.MigrationRecord, 0, len(rows))
	for _, row := range rows {
		at, err := cast.ToTimeE(row["applied_at"])
		if err != nil {
			return nil, fmt.Errorf("migration %v: invalid applied_at: %w", row["id"], err)
		}
		out = append(out, common.MigrationRecord{ID: cast.ToString(row["id"]), AppliedAt: at})
	}
	return out, nil
}

// --- Up / Down ---

// Up applies every pending migration in ID order, each in its own
// transaction, and returns the IDs applied. It stops at the first failure;
// migrations applied before it stay applied.
func (r *Runner) Up(ctx context.Context) ([]string, error) {
	migrations, err := load(r.dir)
	if err != nil {
		return nil, err
	}
	records, err := r.Applied(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(records))
	for _, rec := range records {
		done[rec.ID] = true
	}

	var applied []string
	for _, m := range migrations {
		if done[m.ID] {
			continue
		}
		if err := r.run(ctx, m, true); err != nil {
			return applied, err
		}
		applied = append(applied, m.ID)
	}
	if len(applied) == 0 {
		r.logger.Info("no pending migrations", "directory", r.dir)
	}
	return applied, nil
}

// Down reverts the last steps applied migrations, newest first, and returns
// the IDs reverted.
func (r *Runner) Down(ctx context.Context, steps int) ([]string, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("steps must be positive, got %d", steps)
	}
	migrations, err := load(r.dir)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Migration, len(migrations))
	for _, m := range migrations {
		byID[m.ID] = m
	}
	records, err := r.Applied(ctx)
	if err != nil {
		return nil, err
	}

	var reverted []string
	for i := len(records) - 1; i >= 0 && len(reverted) < steps; i-- {
		m, ok := byID[records[i].ID]
		if !ok {
			return reverted, fmt.Errorf("migration %s is applied but its file is missing from '%s'", records[i].ID, r.dir)
		}
		if err := r.run(ctx, m, false); err != nil {
			return reverted, err
		}
		reverted = append(reverted, m.ID)
	}
	return reverted, nil
}

// run executes one direction of m and updates the history table in the same
// transaction.
func (r *Runner) run(ctx context.Context, m Migration, up bool) error {
	direction, statements := "Up", m.Up
	if !up {
		direction, statements = "Down", m.Down
	}

	tx, err := r.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("migration %s: %w", m.ID, err)
	}
	fail := func(err error) error {
		if rbErr := tx.Rollback(); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		return err
	}

	if m.Go != nil {
		step := m.Go.Down
		if up {
			step = m.Go.Up
		}
		if err := step(ctx, tx); err != nil {
			return fail(fmt.Errorf("migration %s: failed to execute '%s' Go migration: %w", m.ID, direction, err))
		}
	} else {
		for _, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fail(fmt.Errorf("migration %s: failed to execute '%s' SQL: %w", m.ID, direction, err))
			}
		}
	}

	d := r.conn.Dialect()
	if up {
		_, err = tx.Exec(ctx, d.InsertMigrationSQL(r.table), m.ID, r.now().UTC().Format(types.DatetimeFormat))
	} else {
		_, err = tx.Exec(ctx, d.DeleteMigrationSQL(r.table), m.ID)
	}
	if err != nil {
		return fail(fmt.Errorf("migration %s: failed to update migrations table: %w", m.ID, err))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration %s: %w", m.ID, err)
	}

	msg := "migration applied"
	if !up {
		msg = "migration reverted"
	}
	r.logger.Info(msg, "id", m.ID, "name", m.Name, "kind", m.Kind())
	return nil
}

// --- Status ---

// Status lists every known migration, plus history rows without a file,
// ordered by ID.
func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	migrations, err := load(r.dir)
	if err != nil {
		return nil, err
	}
	records, err := r.Applied(ctx)
	if err != nil {
		return nil, err
	}
	appliedAt := make(map[string]time.Time, len(records))
	for _, rec := range records {
		appliedAt[rec.ID] = rec.AppliedAt
	}

	out := make([]Status, 0, len(migrations))
	known := make(map[string]bool, len(migrations))
	for _, m := range migrations {
		known[m.ID] = true
		at, ok := appliedAt[m.ID]
		out = append(out, Status{ID: m.ID, Name: m.Name, Applied: ok, AppliedAt: at})
	}
	for _, rec := range records {
		if !known[rec.ID] {
			out = append(out, Status{ID: rec.ID, Applied: true, AppliedAt: rec.AppliedAt, Missing: true})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
