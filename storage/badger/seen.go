package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/intake/storage"
)

// SeenStore implements storage.SeenStore for BadgerDB. Keys are stored with
// their first-seen timestamp so that duplicate suppression survives restarts.
type SeenStore struct {
	backend *Backend
}

var _ storage.SeenStore = (*SeenStore)(nil)

// NewSeenStore creates a BadgerDB-backed duplicate-key store.
func NewSeenStore(backend *Backend) (storage.SeenStore, error) {
	if backend == nil {
		return nil, storage.ErrStorageClosed
	}
	return &SeenStore{backend: backend}, nil
}

// Close is a no-op; the backend owns the database handle.
func (s *SeenStore) Close() error {
	return nil
}

// Seen reports whether the key has been marked before.
func (s *SeenStore) Seen(ctx context.Context, key string) (bool, error) {
	if s.backend.IsClosed() {
		return false, storage.ErrStorageClosed
	}

	var seen bool
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get(makeSeenKey(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		seen = true
		return nil
	}, false)
	return seen, err
}

// Mark records the key as processed.
func (s *SeenStore) Mark(ctx context.Context, key string) error {
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}

	return s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeSeenKey(key), storage.MarshalSeenAt(time.Now().UTC())); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}
