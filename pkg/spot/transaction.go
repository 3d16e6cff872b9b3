// pkg/spot/transaction.go
package spot

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/vlucas/spot/pkg/adapter"
	"github.com/vlucas/spot/pkg/schema"
)

// Transaction runs work inside a transaction on the connection of def (the
// default connection when def is omitted). work receives a Mapper bound to
// the transaction and must use it for every statement on that connection.
//
// A nil return commits. ErrRollback rolls back and Transaction returns nil.
// Any other error, or a panic, rolls back and is returned or re-panicked.
// A failed rollback is returned, or re-panicked, as *RollbackError.
func (m *Mapper) Transaction(ctx context.Context, work func(ctx context.Context, tx *Mapper) error, def ...schema.Definition) error {
	name := ""
	if len(def) > 0 && def[0] != nil {
		meta, err := m.manager.Metadata(def[0])
		if err != nil {
			return err
		}
		name = meta.Connection
	}
	if name == "" {
		name = m.config.DefaultName()
	}
	conn, err := m.Connection(name)
	if err != nil {
		return err
	}
	txConn, err := conn.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			if rbErr := txConn.Rollback(); rbErr != nil {
				m.logger.Error("rollback after panic failed", "connection", name, "error", rbErr)
				cause, ok := r.(error)
				if !ok {
					cause = fmt.Errorf("panic: %v", r)
				}
				panic(&RollbackError{Err: rbErr, Cause: cause})
			}
			panic(r)
		}
	}()

	if err := work(ctx, m.withTx(name, txConn)); err != nil {
		if rbErr := txConn.Rollback(); rbErr != nil {
			return &RollbackError{Err: rbErr, Cause: err}
		}
		if errors.Is(err, ErrRollback) {
			return nil
		}
		return err
	}
	return txConn.Commit()
}

func (m *Mapper) withTx(name string, conn *adapter.Adapter) *Mapper {
	cp := *m
	cp.tx = maps.Clone(m.tx)
	if cp.tx == nil {
		cp.tx = make(map[string]*adapter.Adapter, 1)
	}
	cp.tx[name] = conn
	return &cp
}
