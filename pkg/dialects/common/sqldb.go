// pkg/dialects/common/sqldb.go
package common

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vlucas/spot/pkg/config"
)

// SingleConnection is implemented by dialects whose engine must be used
// through one connection (e.g. in-memory SQLite).
type SingleConnection interface {
	SingleConnection() bool
}

var errNotConnected = errors.New("datasource is not connected")

// SQLDataSource is a DataSource backed by database/sql.
type SQLDataSource struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLDataSource returns an unconnected data source for d.
func NewSQLDataSource(d Dialect) *SQLDataSource {
	return &SQLDataSource{dialect: d}
}

// WrapDB returns a connected data source around an existing pool.
func WrapDB(db *sql.DB, d Dialect) *SQLDataSource {
	return &SQLDataSource{db: db, dialect: d}
}

// ResolveDSN turns cfg.DSN into the driver-native form for d.
func ResolveDSN(d Dialect, cfg config.DatabaseConfig) (string, error) {
	if !config.IsURL(cfg.DSN) {
		return cfg.DSN, nil
	}
	parsed, err := config.ParseDSN(cfg.DSN)
	if err != nil {
		return "", err
	}
	return d.DataSourceName(parsed)
}

// Connect opens and pings the pool described by cfg.
func (ds *SQLDataSource) Connect(cfg config.DatabaseConfig) error {
	if ds.db != nil {
		return fmt.Errorf("%s datasource is already connected", ds.dialect.Name())
	}
	if cfg.DSN == "" {
		return fmt.Errorf("database DSN is required in configuration")
	}
	dsn, err := ResolveDSN(ds.dialect, cfg)
	if err != nil {
		return err
	}

	driverName := ds.dialect.DriverName(cfg.Driver)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return fmt.Errorf("failed to open %s connection using driver '%s': %w", ds.dialect.Name(), driverName, err)
	}

	if cfg.Pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.Pool.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(2)
	}
	if cfg.Pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Pool.MaxOpenConns)
	}
	if cfg.Pool.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.Pool.ConnMaxIdleTime)
	}
	if cfg.Pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.Pool.ConnMaxLifetime)
	}
	if sc, ok := ds.dialect.(SingleConnection); ok && sc.SingleConnection() {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping %s database: %w", ds.dialect.Name(), err)
	}

	ds.db = db
	return nil
}

// DB exposes the underlying pool, nil until connected.
func (ds *SQLDataSource) DB() *sql.DB { return ds.db }

func (ds *SQLDataSource) Close() error {
	if ds.db == nil {
		return errNotConnected
	}
	err := ds.db.Close()
	ds.db = nil
	return err
}

func (ds *SQLDataSource) Ping(ctx context.Context) error {
	if ds.db == nil {
		return errNotConnected
	}
	return ds.db.PingContext(ctx)
}

func (ds *SQLDataSource) Dialect() Dialect { return ds.dialect }

func (ds *SQLDataSource) BeginTx(ctx context.Context, opts any) (Tx, error) {
	if ds.db == nil {
		return nil, errNotConnected
	}
	var txOptions *sql.TxOptions
	switch o := opts.(type) {
	case nil:
	case sql.TxOptions:
		txOptions = &o
	case *sql.TxOptions:
		txOptions = o
	default:
		return nil, fmt.Errorf("unsupported transaction options type: %T", opts)
	}
	tx, err := ds.db.BeginTx(ctx, txOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to begin %s transaction: %w", ds.dialect.Name(), err)
	}
	return &sqlTx{tx: tx}, nil
}

func (ds *SQLDataSource) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	if ds.db == nil {
		return nil, errNotConnected
	}
	return ds.db.ExecContext(ctx, query, args...)
}

func (ds *SQLDataSource) QueryRow(ctx context.Context, query string, args ...any) RowScanner {
	if ds.db == nil {
		return &errorRowScanner{err: errNotConnected}
	}
	return ds.db.QueryRowContext(ctx, query, args...)
}

func (ds *SQLDataSource) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	if ds.db == nil {
		return nil, errNotConnected
	}
	rows, err := ds.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// --- Tx ---

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Commit() error { return t.tx.Commit() }

// Rollback ignores sql.ErrTxDone so it is safe after Commit.
func (t *sqlTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func (t *sqlTx) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

func (t *sqlTx) QueryRow(ctx context.Context, query string, args ...any) RowScanner {
	return t.tx.QueryRowContext(ctx, query, args...)
}

func (t *sqlTx) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

type errorRowScanner struct{ err error }

func (ers *errorRowScanner) Scan(dest ...any) error { return ers.err }
