package badger

import (
	"bytes"
	"context"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/intake/core"
	"github.com/poiesic/intake/storage"
)

// Adapter implements storage.Adapter for BadgerDB.
type Adapter struct {
	backend *Backend
}

var _ storage.Adapter = (*Adapter)(nil)

// NewAdapter creates a BadgerDB-backed storage adapter.
func NewAdapter(backend *Backend) (storage.Adapter, error) {
	if backend == nil {
		return nil, storage.ErrStorageClosed
	}
	return &Adapter{backend: backend}, nil
}

// Close is a no-op; the backend owns the database handle.
func (a *Adapter) Close() error {
	return nil
}

// StoreBatch persists every processed record of the batch, plus the
// per-source time index used by range queries.
func (a *Adapter) StoreBatch(ctx context.Context, batch *core.IngestionBatch, records []*core.DataRecord) error {
	if batch == nil || len(records) == 0 {
		return nil
	}
	if a.backend.IsClosed() {
		return storage.ErrStorageClosed
	}

	return a.backend.WithTx(func(tx *badger.Txn) error {
		for _, record := range records {
			if record.IngestedAt.IsZero() {
				record.IngestedAt = time.Now().UTC()
			}
			value, err := storage.MarshalDataRecord(record)
			if err != nil {
				return err
			}
			if err := tx.Set(makeDataRecordKey(record.RecordID), value); err != nil {
				return err
			}

			timeKey := makeSourceTimeKey(record.SourceID, record.IngestedAt, record.RecordID)
			if err := tx.Set(timeKey, []byte(record.RecordID)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// RetrieveRecords returns records for a source where start <= IngestedAt < end,
// ordered by ingestion time.
func (a *Adapter) RetrieveRecords(ctx context.Context, sourceID string, start, end time.Time) ([]*core.DataRecord, error) {
	if sourceID == "" || end.Before(start) {
		return nil, storage.ErrInvalidQuery
	}
	if a.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	var results []*core.DataRecord
	err := a.backend.WithTx(func(tx *badger.Txn) error {
		startKey := makePartialSourceTimeKey(sourceID, start)
		endKey := makePartialSourceTimeKey(sourceID, end)
		prefix := []byte(sourceTimePrefix + ":" + sourceID + ":")
		iter := tx.NewIterator(badger.DefaultIteratorOptions)
		defer iter.Close()

		for iter.Seek(startKey); iter.Valid(); iter.Next() {
			key := iter.Item().Key()
			// end is exclusive; the record suffix sorts any exact-end key
			// after endKey, so >= covers both cases
			if !bytes.HasPrefix(key, prefix) || slices.Compare(key, endKey) >= 0 {
				break
			}

			var recordID string
			if err := iter.Item().Value(func(val []byte) error {
				recordID = string(val)
				return nil
			}); err != nil {
				return err
			}

			record, err := a.readDataRecord(tx, recordID)
			if err != nil {
				return err
			}
			if record != nil {
				results = append(results, record)
			}
		}
		return nil
	}, false)

	return results, err
}

// UpdateRecordQuality sets the quality level of a stored record.
func (a *Adapter) UpdateRecordQuality(ctx context.Context, recordID string, quality core.DataQuality) error {
	if a.backend.IsClosed() {
		return storage.ErrStorageClosed
	}

	return a.backend.WithTx(func(tx *badger.Txn) error {
		record, err := a.readDataRecord(tx, recordID)
		if err != nil {
			return err
		}
		if record == nil {
			return storage.ErrNotFound
		}

		record.Quality = quality
		record.ProcessedAt = time.Now().UTC()

		value, err := storage.MarshalDataRecord(record)
		if err != nil {
			return err
		}
		if err := tx.Set(makeDataRecordKey(recordID), value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// readDataRecord reads and unmarshals a record, returning nil if absent.
func (a *Adapter) readDataRecord(tx *badger.Txn, recordID string) (*core.DataRecord, error) {
	item, err := tx.Get(makeDataRecordKey(recordID))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var record *core.DataRecord
	err = item.Value(func(val []byte) error {
		var err error
		record, err = storage.UnmarshalDataRecord(val)
		return err
	})
	return record, err
}
