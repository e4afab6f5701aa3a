// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/intake/core"
)

// DataRecord envelopes are stored in MUS format. The fixed header fields use
// varint/ord codecs; the open-schema Data and Metadata documents are embedded
// as JSON strings because their shape is not known ahead of time.

// MarshalDataRecord serializes a DataRecord to bytes.
func MarshalDataRecord(record *core.DataRecord) ([]byte, error) {
	data, err := json.Marshal(record.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	meta, err := json.Marshal(record.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}

	size := ord.String.Size(record.RecordID) +
		ord.String.Size(record.SourceID) +
		varint.Int.Size(int(record.Quality)) +
		varint.Int64.Size(record.IngestedAt.UnixMicro()) +
		varint.Int64.Size(record.ProcessedAt.UnixMicro()) +
		ord.String.Size(record.Pipeline) +
		ord.String.Size(string(data)) +
		ord.String.Size(string(meta)) +
		varint.Int.Size(len(record.Tags))
	for _, tag := range record.Tags {
		size += ord.String.Size(tag)
	}

	buf := make([]byte, size)
	n := ord.String.Marshal(record.RecordID, buf)
	n += ord.String.Marshal(record.SourceID, buf[n:])
	n += varint.Int.Marshal(int(record.Quality), buf[n:])
	n += varint.Int64.Marshal(record.IngestedAt.UnixMicro(), buf[n:])
	n += varint.Int64.Marshal(record.ProcessedAt.UnixMicro(), buf[n:])
	n += ord.String.Marshal(record.Pipeline, buf[n:])
	n += ord.String.Marshal(string(data), buf[n:])
	n += ord.String.Marshal(string(meta), buf[n:])
	n += varint.Int.Marshal(len(record.Tags), buf[n:])
	for _, tag := range record.Tags {
		n += ord.String.Marshal(tag, buf[n:])
	}
	return buf, nil
}

// UnmarshalDataRecord deserializes a DataRecord from bytes.
func UnmarshalDataRecord(bs []byte) (*core.DataRecord, error) {
	record := &core.DataRecord{}

	recordID, n, err := ord.String.Unmarshal(bs)
	if err != nil {
		return nil, fmt.Errorf("%w: record id: %w", ErrSerializationFailed, err)
	}
	record.RecordID = recordID

	sourceID, n2, err := ord.String.Unmarshal(bs[n:])
	if err != nil {
		return nil, fmt.Errorf("%w: source id: %w", ErrSerializationFailed, err)
	}
	record.SourceID = sourceID
	n += n2

	quality, n2, err := varint.Int.Unmarshal(bs[n:])
	if err != nil {
		return nil, fmt.Errorf("%w: quality: %w", ErrSerializationFailed, err)
	}
	record.Quality = core.DataQuality(quality)
	n += n2

	ingested, n2, err := varint.Int64.Unmarshal(bs[n:])
	if err != nil {
		return nil, fmt.Errorf("%w: ingested at: %w", ErrSerializationFailed, err)
	}
	record.IngestedAt = time.UnixMicro(ingested).UTC()
	n += n2

	processed, n2, err := varint.Int64.Unmarshal(bs[n:])
	if err != nil {
		return nil, fmt.Errorf("%w: processed at: %w", ErrSerializationFailed, err)
	}
	record.ProcessedAt = time.UnixMicro(processed).UTC()
	n += n2

	pipeline, n2, err := ord.String.Unmarshal(bs[n:])
	if err != nil {
		return nil, fmt.Errorf("%w: pipeline: %w", ErrSerializationFailed, err)
	}
	record.Pipeline = pipeline
	n += n2

	data, n2, err := ord.String.Unmarshal(bs[n:])
	if err != nil {
		return nil, fmt.Errorf("%w: data: %w", ErrSerializationFailed, err)
	}
	n += n2
	if err := json.Unmarshal([]byte(data), &record.Data); err != nil {
		return nil, fmt.Errorf("%w: data document: %w", ErrSerializationFailed, err)
	}

	meta, n2, err := ord.String.Unmarshal(bs[n:])
	if err != nil {
		return nil, fmt.Errorf("%w: metadata: %w", ErrSerializationFailed, err)
	}
	n += n2
	if err := json.Unmarshal([]byte(meta), &record.Metadata); err != nil {
		return nil, fmt.Errorf("%w: metadata document: %w", ErrSerializationFailed, err)
	}

	tagCount, n2, err := varint.Int.Unmarshal(bs[n:])
	if err != nil {
		return nil, fmt.Errorf("%w: tag count: %w", ErrSerializationFailed, err)
	}
	n += n2
	if tagCount < 0 || tagCount > len(bs) {
		return nil, fmt.Errorf("%w: implausible tag count %d", ErrTruncatedData, tagCount)
	}
	for range tagCount {
		tag, n2, err := ord.String.Unmarshal(bs[n:])
		if err != nil {
			return nil, fmt.Errorf("%w: tag: %w", ErrSerializationFailed, err)
		}
		record.Tags = append(record.Tags, tag)
		n += n2
	}

	return record, nil
}

// MarshalSeenAt serializes a duplicate-key timestamp.
func MarshalSeenAt(seenAt time.Time) []byte {
	buf := make([]byte, varint.Int64.Size(seenAt.UnixMicro()))
	varint.Int64.Marshal(seenAt.UnixMicro(), buf)
	return buf
}

// UnmarshalSeenAt deserializes a duplicate-key timestamp.
func UnmarshalSeenAt(bs []byte) (time.Time, error) {
	micro, _, err := varint.Int64.Unmarshal(bs)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: seen at: %w", ErrSerializationFailed, err)
	}
	return time.UnixMicro(micro).UTC(), nil
}
