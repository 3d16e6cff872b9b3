// pkg/spot/result.go
package spot

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/vlucas/spot/pkg/hooks"
)

// Result is the outcome of Save, Insert, Update and Delete.
type Result struct {
	// Value is the inserted primary key for inserts, the affected row count
	// for updates and deletes, or whatever an after-hook set with Override.
	Value        any
	RowsAffected int64
	Halted       bool  // A before-hook returned hooks.ErrHalt.
	Error        error // Operation failure, including *ValidationError.
}

// OK reports whether the operation ran and succeeded.
func (r *Result) OK() bool { return r != nil && r.Error == nil && !r.Halted }

// Err returns Error, or hooks.ErrHalt for a halted operation.
func (r *Result) Err() error {
	if r.Error != nil {
		return r.Error
	}
	if r.Halted {
		return hooks.ErrHalt
	}
	return nil
}

func halted() *Result { return &Result{Halted: true} }

func failed(err error) *Result { return &Result{Error: err} }

// ErrRollback, returned from a Transaction's work function, rolls the
// transaction back without reporting an error.
var ErrRollback = errors.New("spot: transaction rolled back")

// ValidationError lists the messages of every failed field. The same
// messages are stored on the entity.
type ValidationError struct {
	Entity string
	Errors map[string][]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, field := range slices.Sorted(maps.Keys(e.Errors)) {
		parts = append(parts, field+": "+strings.Join(e.Errors[field], ", "))
	}
	return fmt.Sprintf("spot: validation failed for %s: %s", e.Entity, strings.Join(parts, "; "))
}

// RollbackError reports a rollback that failed after Cause ended the
// transaction.
type RollbackError struct {
	Err   error
	Cause error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("spot: rollback failed: %v (after: %v)", e.Err, e.Cause)
}

func (e *RollbackError) Unwrap() []error { return []error{e.Err, e.Cause} }
