// pkg/adapter/adapter.go
package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vlucas/spot/pkg/config"
	"github.com/vlucas/spot/pkg/dialects"
	"github.com/vlucas/spot/pkg/dialects/common"
	"github.com/vlucas/spot/pkg/querylog"

	// Register the bundled dialects.
	_ "github.com/vlucas/spot/pkg/dialects/mysql"
	_ "github.com/vlucas/spot/pkg/dialects/postgres"
	_ "github.com/vlucas/spot/pkg/dialects/sqlite"
	_ "github.com/vlucas/spot/pkg/dialects/sqlserver"
)

// State is the connection state of an adapter.
type State int

const (
	Unconnected State = iota
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Unconnected:
		return "unconnected"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Adapter executes statements for one connection. It connects lazily on
// first use; a failed connection stays failed and every later call returns
// the same *common.ConnectionError.
type Adapter struct {
	name    string
	cfg     config.DatabaseConfig
	source  common.DataSource
	dialect common.Dialect

	mu      sync.Mutex
	state   State
	connErr error

	// tx is set on adapters returned by Begin.
	tx common.Tx

	log     *querylog.Log
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger. Statements are logged at DEBUG.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithQueryLog records every statement in log.
func WithQueryLog(log *querylog.Log) Option {
	return func(a *Adapter) { a.log = log }
}

// WithMetrics counts statements in m.
func WithMetrics(m *Metrics) Option {
	return func(a *Adapter) { a.metrics = m }
}

// WithName overrides the adapter name used in logs and metrics.
// It defaults to the dialect name.
func WithName(name string) Option {
	return func(a *Adapter) {
		if name != "" {
			a.name = name
		}
	}
}

// New returns an unconnected adapter for cfg.Dialect.
func New(cfg config.DatabaseConfig, opts ...Option) (*Adapter, error) {
	factory := dialects.Get(cfg.Dialect)
	if factory == nil {
		return nil, fmt.Errorf("adapter: unsupported dialect '%s' (registered: %v)", cfg.Dialect, dialects.RegisteredDrivers())
	}
	return newAdapter(factory(), cfg, Unconnected, opts), nil
}

// NewWithDataSource returns an adapter around an already connected data source.
func NewWithDataSource(ds common.DataSource, opts ...Option) *Adapter {
	return newAdapter(ds, config.DatabaseConfig{Dialect: ds.Dialect().Name()}, Connected, opts)
}

func newAdapter(ds common.DataSource, cfg config.DatabaseConfig, st State, opts []Option) *Adapter {
	a := &Adapter{
		name:    ds.Dialect().Name(),
		cfg:     cfg,
		source:  ds,
		dialect: ds.Dialect(),
		state:   st,
		log:     querylog.New(querylog.DefaultLimit),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string            { return a.name }
func (a *Adapter) Dialect() common.Dialect { return a.dialect }
func (a *Adapter) QueryLog() *querylog.Log { return a.log }
func (a *Adapter) Logger() *slog.Logger    { return a.logger }

// State returns the connection state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Connect opens the connection if it isn't open yet.
func (a *Adapter) Connect() error {
	if a.tx != nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.state {
	case Connected:
		return nil
	case Failed:
		return a.connErr
	}
	if err := a.source.Connect(a.cfg); err != nil {
		a.state = Failed
		a.connErr = &common.ConnectionError{Adapter: a.name, Err: err}
		a.logger.Error("database connection failed", "adapter", a.name, "error", err)
		return a.connErr
	}
	a.state = Connected
	a.logger.Debug("database connected", "adapter", a.name)
	return nil
}

// Ping verifies the connection, connecting first if needed.
func (a *Adapter) Ping(ctx context.Context) error {
	if err := a.Connect(); err != nil {
		return err
	}
	return a.source.Ping(ctx)
}

// Close releases the connection. A closed adapter reconnects on next use.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != Connected {
		return nil
	}
	a.state = Unconnected
	return a.source.Close()
}

// --- Transactions ---

// Begin starts a transaction and returns an adapter bound to it.
func (a *Adapter) Begin(ctx context.Context) (*Adapter, error) {
	if a.tx != nil {
		return nil, fmt.Errorf("adapter: nested transactions are not supported")
	}
	if err := a.Connect(); err != nil {
		return nil, err
	}
	tx, err := a.source.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("transaction started", "adapter", a.name)
	return &Adapter{
		name:    a.name,
		cfg:     a.cfg,
		source:  a.source,
		dialect: a.dialect,
		state:   Connected,
		tx:      tx,
		log:     a.log,
		logger:  a.logger,
		metrics: a.metrics,
	}, nil
}

// InTransaction reports whether the adapter is bound to a transaction.
func (a *Adapter) InTransaction() bool { return a.tx != nil }

// Commit commits the bound transaction.
func (a *Adapter) Commit() error {
	if a.tx == nil {
		return fmt.Errorf("adapter: no transaction to commit")
	}
	if err := a.tx.Commit(); err != nil {
		return fmt.Errorf("adapter: commit failed: %w", err)
	}
	a.logger.Debug("transaction committed", "adapter", a.name)
	return nil
}

// Rollback aborts the bound transaction.
func (a *Adapter) Rollback() error {
	if a.tx == nil {
		return fmt.Errorf("adapter: no transaction to roll back")
	}
	if err := a.tx.Rollback(); err != nil {
		return fmt.Errorf("adapter: rollback failed: %w", err)
	}
	a.logger.Debug("transaction rolled back", "adapter", a.name)
	return nil
}

// --- Execution ---

func (a *Adapter) querier() (common.Querier, error) {
	if a.tx != nil {
		return a.tx, nil
	}
	if err := a.Connect(); err != nil {
		return nil, err
	}
	return a.source, nil
}

func (a *Adapter) record(kind, sql string, args []any) {
	a.log.Add(a.name, sql, args)
	a.logger.Debug("executing statement", "adapter", a.name, "kind", kind, "sql", sql, "args", args)
}

func (a *Adapter) exec(ctx context.Context, kind, sql string, args []any) (common.Result, error) {
	q, err := a.querier()
	if err != nil {
		return nil, err
	}
	a.record(kind, sql, args)
	res, err := q.Exec(ctx, sql, args...)
	a.metrics.observe(a.name, kind, err)
	if err != nil {
		return nil, &common.QueryExecutionError{Op: kind, SQL: sql, Err: err}
	}
	return res, nil
}

func (a *Adapter) query(ctx context.Context, kind, sql string, args []any) ([]map[string]any, error) {
	q, err := a.querier()
	if err != nil {
		return nil, err
	}
	a.record(kind, sql, args)
	rows, err := q.Query(ctx, sql, args...)
	if err == nil {
		var out []map[string]any
		out, err = scanRows(rows)
		if err == nil {
			a.metrics.observe(a.name, kind, nil)
			return out, nil
		}
	}
	a.metrics.observe(a.name, kind, err)
	return nil, &common.QueryExecutionError{Op: kind, SQL: sql, Err: err}
}

// scanRows reads every row into a column-keyed map. Byte slices are
// returned as strings.
func scanRows(rows common.Rows) (out []map[string]any, err error) {
	defer func() {
		if cerr := rows.Close(); err == nil {
			err = cerr
		}
	}()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Exec runs a raw statement.
func (a *Adapter) Exec(ctx context.Context, sql string, args ...any) (common.Result, error) {
	return a.exec(ctx, KindRaw, sql, args)
}

// Query runs a raw query and returns its rows.
func (a *Adapter) Query(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
	return a.query(ctx, KindRaw, sql, args)
}
