// pkg/dialects/common/errors.go
package common

import (
	"errors"
	"fmt"
)

// ErrNotImplemented is matched by every NotImplementedError.
var ErrNotImplemented = errors.New("not implemented")

// NotImplementedError reports a feature the dialect cannot express.
type NotImplementedError struct {
	Dialect string
	Feature string
}

func (e *NotImplementedError) Error() string {
	if e.Dialect == "" {
		return fmt.Sprintf("%s is not implemented", e.Feature)
	}
	return fmt.Sprintf("%s: %s is not implemented", e.Dialect, e.Feature)
}

func (e *NotImplementedError) Is(target error) bool { return target == ErrNotImplemented }

// ConnectionError reports a failure to open or reach the database.
type ConnectionError struct {
	Adapter string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.Adapter, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryExecutionError wraps a driver error with the statement that caused it.
type QueryExecutionError struct {
	Op  string
	SQL string
	Err error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("%s failed: %v [%s]", e.Op, e.Err, e.SQL)
}

func (e *QueryExecutionError) Unwrap() error { return e.Err }
