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

import "fmt"

// ValidateSourceConfig validates a SourceConfig according to domain rules.
//
// Validation rules:
//   - SourceID must not be empty
//   - Type must be a recognized SourceType
//   - BatchSize must be positive
//
// NOT validated (interpreted by sources and pipelines):
//   - ConnectionParams, SourceOptions, TransformationRules, ValidationRules
func ValidateSourceConfig(cfg *SourceConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}

	if cfg.SourceID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrEmptySourceID)
	}

	if _, ok := sourceTypeNames[cfg.Type]; !ok {
		return fmt.Errorf("%w: %w: value %d", ErrInvalidConfig, ErrInvalidSourceType, cfg.Type)
	}

	if cfg.BatchSize <= 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrInvalidBatchSize)
	}

	return nil
}

// BatchIssues inspects an IngestionBatch for structural problems and splits
// them into severe issues (the batch must not be trusted) and advisory ones
// (worth logging, but processing may continue).
//
// Severe: no data at all, missing batch or source ID, more than half of the
// items structurally invalid, or succeeded+failed exceeding processed.
// Advisory: end time before start time, batch more than 10x the configured
// batch size, nil items below the severe threshold.
func BatchIssues(batch *IngestionBatch, configuredBatchSize int) (severe, advisory []string) {
	if batch == nil {
		return []string{"batch is nil"}, nil
	}

	if batch.BatchID == "" {
		severe = append(severe, "missing batch id")
	}
	if batch.SourceID == "" {
		severe = append(severe, "missing source id")
	}

	data := batch.RawData
	if len(data) == 0 {
		data = batch.ProcessedData
	}
	if len(data) == 0 {
		severe = append(severe, "batch has no data")
		return severe, advisory
	}

	invalid := 0
	for _, doc := range data {
		if len(doc) == 0 {
			invalid++
		}
	}
	switch {
	case invalid*2 > len(data):
		severe = append(severe, fmt.Sprintf("%d of %d items structurally invalid", invalid, len(data)))
	case invalid > 0:
		advisory = append(advisory, fmt.Sprintf("%d of %d items empty", invalid, len(data)))
	}

	if !batch.EndTime.IsZero() && batch.EndTime.Before(batch.StartTime) {
		advisory = append(advisory, "end time precedes start time")
	}

	if configuredBatchSize > 0 && len(data) > configuredBatchSize*10 {
		advisory = append(advisory, fmt.Sprintf("batch size %d exceeds 10x configured size %d", len(data), configuredBatchSize))
	}

	if batch.RecordsSucceeded+batch.RecordsFailed > batch.RecordsProcessed {
		severe = append(severe, "succeeded+failed counts exceed processed count")
	}

	return severe, advisory
}
