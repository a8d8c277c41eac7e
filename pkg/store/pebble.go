// Package store is the server's embedded key/value store, backed by
// pebble. A Store handle is opened once at startup and threaded through
// to the handlers that need it; operations on a nil or closed handle
// fail cleanly.
package store

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"servlite/pkg/logger"
)

// ErrKeyNotFound reports a missing key.
var ErrKeyNotFound = errors.New("key not found")

var errNotOpen = errors.New("store not open")

// Store is one open pebble database.
type Store struct {
	db   *pebble.DB
	path string
}

// Open opens (creating if necessary) the pebble database at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	logger.Info("store_opened", "path", path)
	return &Store{db: db, path: path}, nil
}

// Ready reports whether the store is open.
func (s *Store) Ready() bool { return s != nil && s.db != nil }

// Close closes the store.
func (s *Store) Close() error {
	if !s.Ready() {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	logger.Info("store_closed", "path", s.path)
	return err
}

// Get returns the value for key, or ErrKeyNotFound.
func (s *Store) Get(key string) ([]byte, error) {
	if !s.Ready() {
		return nil, errNotOpen
	}
	v, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	out := append([]byte(nil), v...)
	_ = closer.Close()
	return out, nil
}

// Set stores value under key, fsynced.
func (s *Store) Set(key string, value []byte) error {
	if !s.Ready() {
		return errNotOpen
	}
	return s.db.Set([]byte(key), value, pebble.Sync)
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	if !s.Ready() {
		return errNotOpen
	}
	return s.db.Delete([]byte(key), pebble.Sync)
}

// ListKeys returns all keys with the given prefix, in order.
func (s *Store) ListKeys(prefix string) ([]string, error) {
	if !s.Ready() {
		return nil, errNotOpen
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	pfx := []byte(prefix)
	var out []string
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		out = append(out, string(append([]byte(nil), iter.Key()...)))
	}
	return out, iter.Error()
}
