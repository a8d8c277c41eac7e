// Package storage defines the narrow relational-store interface the
// server consumes. The core never interprets SQL; it passes statements
// through and surfaces failures as *StorageError for the handler to
// decide on.
package storage

import (
	"context"
	"fmt"
)

// Row is one result row, column values in select order.
type Row []any

// Store is the collaborator contract for a relational store.
type Store interface {
	// Query runs a statement returning rows.
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
	// Execute runs a statement and returns the affected row count.
	Execute(ctx context.Context, query string, args ...any) (int64, error)
}

// StorageError wraps any failure from the underlying store. It is always
// surfaced to the handler, never swallowed.
type StorageError struct {
	Op    string
	Query string
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Query, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
