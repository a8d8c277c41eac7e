package storage

import (
	"context"
	"database/sql"
)

// SQLStore adapts a database/sql handle to the Store interface. The
// driver is registered by the embedding application; this package only
// depends on the generic interface.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Query implements Store.
func (s *SQLStore) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &StorageError{Op: "query", Query: query, Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &StorageError{Op: "query", Query: query, Err: err}
	}
	var out []Row
	for rows.Next() {
		vals := make(Row, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &StorageError{Op: "query", Query: query, Err: err}
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "query", Query: query, Err: err}
	}
	return out, nil
}

// Execute implements Store.
func (s *SQLStore) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, &StorageError{Op: "execute", Query: query, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &StorageError{Op: "execute", Query: query, Err: err}
	}
	return n, nil
}
