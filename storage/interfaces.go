package storage

import (
	"context"
	"time"

	"github.com/poiesic/intake/core"
)

// Adapter is the durable sink and query layer for processed records.
// Implementations must be thread-safe and support concurrent access.
type Adapter interface {
	// StoreBatch durably persists every record carried in the batch's
	// processed data. The batch itself is not retained; only its records.
	StoreBatch(ctx context.Context, batch *core.IngestionBatch, records []*core.DataRecord) error

	// RetrieveRecords returns records for a source within a time range.
	// Returns records where start <= IngestedAt < end, ordered by time.
	RetrieveRecords(ctx context.Context, sourceID string, start, end time.Time) ([]*core.DataRecord, error)

	// UpdateRecordQuality sets the quality level of a stored record.
	// Returns ErrNotFound if the record doesn't exist.
	UpdateRecordQuality(ctx context.Context, recordID string, quality core.DataQuality) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// SeenStore persists duplicate-suppression keys so that duplicate detection
// survives process restarts. Implementations must be thread-safe.
type SeenStore interface {
	// Seen reports whether the key has been marked before.
	Seen(ctx context.Context, key string) (bool, error)

	// Mark records the key as processed.
	Mark(ctx context.Context, key string) error

	// Close releases resources held by the store.
	Close() error
}

// Lookup answers reference-integrity checks and lookup-table enrichment
// queries against an external store.
type Lookup interface {
	// Exists reports whether key is present in the named table.
	Exists(ctx context.Context, table, key string) (bool, error)

	// Get returns the value stored for key in the named table.
	// Returns ErrNotFound if no value exists.
	Get(ctx context.Context, table, key string) (any, error)
}
