package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

// Sentinel errors for database operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConflict indicates the operation collides with existing state,
	// e.g. starting an indexing run while another run for the same base
	// is still active.
	ErrConflict = errors.New("conflicting operation in progress")

	// ErrInvalidTransition indicates a state change that the job lifecycle
	// forbids, such as mutating a job that already reached a terminal status.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrTransactionConflict indicates a SurrealDB transaction conflict.
	// Callers should typically retry the operation.
	ErrTransactionConflict = errors.New("transaction conflict")
)

// wrapQueryError inspects a SurrealDB error and wraps it with the appropriate
// sentinel error if it's a known query error type. Returns the original error
// if it's not a QueryError or doesn't match known patterns.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		msg := queryErr.Message
		if strings.Contains(msg, "active run exists") {
			return fmt.Errorf("%w: %s", ErrConflict, msg)
		}
		if strings.Contains(msg, "terminal status") {
			return fmt.Errorf("%w: %s", ErrInvalidTransition, msg)
		}
		if strings.Contains(msg, "not found") {
			return fmt.Errorf("%w: %s", ErrNotFound, msg)
		}
		if strings.Contains(msg, "Transaction conflict") {
			return fmt.Errorf("%w: %s", ErrTransactionConflict, msg)
		}
	}

	return err
}
