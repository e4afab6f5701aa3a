package core

import (
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// Document is a semi-structured record payload passed between pipeline stages.
// Stages may add or remove keys; no closed schema is assumed.
type Document = map[string]any

// SourceType identifies the kind of origin a data source connects to.
type SourceType int

const (
	SourceTypeRESTAPI SourceType = iota + 1
	SourceTypeGraphQLAPI
	SourceTypeSQLDatabase
	SourceTypeNoSQLDatabase
	SourceTypeCSVFile
	SourceTypeJSONFile
	SourceTypeXMLFile
	SourceTypeMessageQueue
	SourceTypeSocketStream
	SourceTypeWebScrape
	SourceTypeMail
	SourceTypeFTP
)

var sourceTypeNames = map[SourceType]string{
	SourceTypeRESTAPI:       "rest_api",
	SourceTypeGraphQLAPI:    "graphql_api",
	SourceTypeSQLDatabase:   "sql_database",
	SourceTypeNoSQLDatabase: "nosql_database",
	SourceTypeCSVFile:       "csv_file",
	SourceTypeJSONFile:      "json_file",
	SourceTypeXMLFile:       "xml_file",
	SourceTypeMessageQueue:  "message_queue",
	SourceTypeSocketStream:  "socket_stream",
	SourceTypeWebScrape:     "web_scrape",
	SourceTypeMail:          "mail",
	SourceTypeFTP:           "ftp",
}

func (t SourceType) String() string {
	if name, ok := sourceTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("source_type(%d)", int(t))
}

// IngestionMode controls how a source delivers records.
type IngestionMode int

const (
	ModeBatch IngestionMode = iota + 1
	ModeStreaming
	ModeRealTime
	ModeScheduled
)

// DataQuality tracks how far a record has progressed through processing.
// Values are ordered: a record's quality only improves as stages succeed.
type DataQuality int

const (
	QualityRaw DataQuality = iota + 1
	QualityValidated
	QualityTransformed
	QualityEnriched
	QualityGoldStandard
)

var qualityNames = map[DataQuality]string{
	QualityRaw:          "raw",
	QualityValidated:    "validated",
	QualityTransformed:  "transformed",
	QualityEnriched:     "enriched",
	QualityGoldStandard: "gold_standard",
}

func (q DataQuality) String() string {
	if name, ok := qualityNames[q]; ok {
		return name
	}
	return fmt.Sprintf("quality(%d)", int(q))
}

// BatchStatus is the state of an ingestion batch.
// Transitions are one-directional: Pending -> Processing -> terminal,
// with Retrying as an optional sub-state for transient failures.
type BatchStatus int

const (
	BatchPending BatchStatus = iota + 1
	BatchProcessing
	BatchCompleted
	BatchFailed
	BatchRetrying
	BatchCancelled
)

var batchStatusNames = map[BatchStatus]string{
	BatchPending:    "pending",
	BatchProcessing: "processing",
	BatchCompleted:  "completed",
	BatchFailed:     "failed",
	BatchRetrying:   "retrying",
	BatchCancelled:  "cancelled",
}

func (s BatchStatus) String() string {
	if name, ok := batchStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Terminal reports whether the status ends a batch's lifecycle.
// A terminal batch is never reused.
func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchFailed || s == BatchCancelled
}

// SourceConfig describes one registered data source.
// SourceID is the registry key: at most one live source/pipeline pair
// may be associated with it at a time.
type SourceConfig struct {
	SourceID            string
	SourceName          string
	Type                SourceType
	Mode                IngestionMode
	PollInterval        time.Duration
	MaxRetries          int
	RetryDelay          time.Duration
	BatchSize           int
	ConnectionParams    map[string]string
	SourceOptions       Document // source-specific settings (paths, URLs, auth)
	TransformationRules Document
	ValidationRules     Document
}

// IngestionBatch is one unit of work: a group of records processed together,
// carrying its own status and error list.
type IngestionBatch struct {
	BatchID          string
	SourceID         string
	Status           BatchStatus
	StartTime        time.Time
	EndTime          time.Time
	RecordsProcessed int
	RecordsSucceeded int
	RecordsFailed    int
	RawData          []Document
	ProcessedData    []Document
	Errors           []string
	Metadata         Document
}

// DataRecord is the persisted unit produced by the pipeline at the end of
// stage processing. It is owned by the storage adapter thereafter.
type DataRecord struct {
	RecordID    string
	SourceID    string
	Quality     DataQuality
	Data        Document
	IngestedAt  time.Time
	ProcessedAt time.Time
	Pipeline    string // name of the pipeline that produced the record
	Metadata    Document
	Tags        []string
}

// Fingerprint generates a deterministic hex digest of text content using
// BLAKE2b hashing. Identical content always produces identical digests,
// which makes the result usable as a duplicate-suppression key.
func Fingerprint(text string) string {
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

var batchCounter atomic.Uint64

// NewBatchID generates a unique, roughly monotonic batch identifier.
func NewBatchID() string {
	return fmt.Sprintf("batch_%d_%d", time.Now().UnixMilli(), batchCounter.Add(1))
}
