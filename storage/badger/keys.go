package badger

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Key prefixes for different data types
const (
	dataRecordPrefix = "datrec"
	sourceTimePrefix = "srctime"
	seenKeyPrefix    = "dupkey"
)

// makeDataRecordKey generates a key for a data record by ID.
func makeDataRecordKey(recordID string) []byte {
	return []byte(fmt.Sprintf("%s:%s", dataRecordPrefix, recordID))
}

// makeSourceTimeKey generates a composite key for the per-source time index.
// Format: prefix:sourceID:timestamp:recordID
func makeSourceTimeKey(sourceID string, timestamp time.Time, recordID string) []byte {
	prefix := []byte(sourceTimePrefix + ":" + sourceID + ":")
	buf := make([]byte, len(prefix)+8+len(recordID))
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(timestamp.UnixMicro()))
	offset += 8
	copy(buf[offset:], recordID)
	return buf
}

// makePartialSourceTimeKey generates a partial key for time range queries.
// Format: prefix:sourceID:timestamp
func makePartialSourceTimeKey(sourceID string, timestamp time.Time) []byte {
	prefix := []byte(sourceTimePrefix + ":" + sourceID + ":")
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(timestamp.UnixMicro()))
	return buf
}

// makeSeenKey generates a key for a persisted duplicate-suppression key.
func makeSeenKey(dupKey string) []byte {
	return []byte(fmt.Sprintf("%s:%s", seenKeyPrefix, dupKey))
}
