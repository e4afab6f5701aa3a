package badger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/intake/storage"
)

const lookupPrefix = "lut"

// Lookup implements storage.Lookup for BadgerDB. Tables are flat key/value
// namespaces with JSON-encoded values, populated out of band via Put.
type Lookup struct {
	backend *Backend
}

var _ storage.Lookup = (*Lookup)(nil)

// NewLookup creates a BadgerDB-backed lookup table store.
func NewLookup(backend *Backend) (*Lookup, error) {
	if backend == nil {
		return nil, storage.ErrStorageClosed
	}
	return &Lookup{backend: backend}, nil
}

func makeLookupKey(table, key string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", lookupPrefix, table, key))
}

// Put stores a value in the named table.
func (l *Lookup) Put(ctx context.Context, table, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}
	return l.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeLookupKey(table, key), encoded); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Exists reports whether key is present in the named table.
func (l *Lookup) Exists(ctx context.Context, table, key string) (bool, error) {
	var exists bool
	err := l.backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get(makeLookupKey(table, key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	}, false)
	return exists, err
}

// Get returns the value stored for key in the named table.
func (l *Lookup) Get(ctx context.Context, table, key string) (any, error) {
	var value any
	err := l.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeLookupKey(table, key))
		if err == badger.ErrKeyNotFound {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &value)
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return value, nil
}
