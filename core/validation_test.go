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


package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *SourceConfig {
	return &SourceConfig{
		SourceID:  "sec-filings",
		Type:      SourceTypeRESTAPI,
		Mode:      ModeBatch,
		BatchSize: 100,
	}
}

func TestValidateSourceConfig(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, ValidateSourceConfig(validConfig()))
	})

	t.Run("nil config", func(t *testing.T) {
		err := ValidateSourceConfig(nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("empty source id", func(t *testing.T) {
		cfg := validConfig()
		cfg.SourceID = ""
		err := ValidateSourceConfig(cfg)
		assert.ErrorIs(t, err, ErrEmptySourceID)
	})

	t.Run("unknown source type", func(t *testing.T) {
		cfg := validConfig()
		cfg.Type = SourceType(42)
		err := ValidateSourceConfig(cfg)
		assert.ErrorIs(t, err, ErrInvalidSourceType)
	})

	t.Run("non-positive batch size", func(t *testing.T) {
		cfg := validConfig()
		cfg.BatchSize = 0
		err := ValidateSourceConfig(cfg)
		assert.ErrorIs(t, err, ErrInvalidBatchSize)
	})
}

func TestBatchIssues(t *testing.T) {
	now := time.Now().UTC()

	goodBatch := func() *IngestionBatch {
		return &IngestionBatch{
			BatchID:   NewBatchID(),
			SourceID:  "src",
			Status:    BatchPending,
			StartTime: now,
			RawData:   []Document{{"a": 1}, {"b": 2}},
		}
	}

	t.Run("clean batch has no issues", func(t *testing.T) {
		severe, advisory := BatchIssues(goodBatch(), 100)
		assert.Empty(t, severe)
		assert.Empty(t, advisory)
	})

	t.Run("nil batch is severe", func(t *testing.T) {
		severe, _ := BatchIssues(nil, 100)
		require.NotEmpty(t, severe)
	})

	t.Run("empty data is severe", func(t *testing.T) {
		b := goodBatch()
		b.RawData = nil
		severe, _ := BatchIssues(b, 100)
		assert.NotEmpty(t, severe)
	})

	t.Run("missing ids are severe", func(t *testing.T) {
		b := goodBatch()
		b.BatchID = ""
		b.SourceID = ""
		severe, _ := BatchIssues(b, 100)
		assert.Len(t, severe, 2)
	})

	t.Run("majority invalid items is severe", func(t *testing.T) {
		b := goodBatch()
		b.RawData = []Document{{}, {}, {"a": 1}}
		severe, _ := BatchIssues(b, 100)
		assert.NotEmpty(t, severe)
	})

	t.Run("minority invalid items is advisory", func(t *testing.T) {
		b := goodBatch()
		b.RawData = []Document{{}, {"a": 1}, {"b": 2}}
		severe, advisory := BatchIssues(b, 100)
		assert.Empty(t, severe)
		assert.NotEmpty(t, advisory)
	})

	t.Run("reversed timestamps are advisory", func(t *testing.T) {
		b := goodBatch()
		b.EndTime = now.Add(-time.Hour)
		severe, advisory := BatchIssues(b, 100)
		assert.Empty(t, severe)
		assert.NotEmpty(t, advisory)
	})

	t.Run("oversized batch is advisory", func(t *testing.T) {
		b := goodBatch()
		for range 50 {
			b.RawData = append(b.RawData, Document{"x": 1})
		}
		severe, advisory := BatchIssues(b, 5)
		assert.Empty(t, severe)
		assert.NotEmpty(t, advisory)
	})

	t.Run("inconsistent counts are severe", func(t *testing.T) {
		b := goodBatch()
		b.RecordsProcessed = 1
		b.RecordsSucceeded = 1
		b.RecordsFailed = 1
		severe, _ := BatchIssues(b, 100)
		assert.NotEmpty(t, severe)
	})

	t.Run("falls back to processed data", func(t *testing.T) {
		b := goodBatch()
		b.RawData = nil
		b.ProcessedData = []Document{{"a": 1}}
		severe, _ := BatchIssues(b, 100)
		assert.Empty(t, severe)
	})
}
