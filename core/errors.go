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

import "errors"

// Domain errors
var (
	// ErrInvalidConfig indicates a SourceConfig failed validation.
	ErrInvalidConfig = errors.New("invalid source config")

	// ErrEmptySourceID indicates the SourceID field is empty.
	ErrEmptySourceID = errors.New("source id cannot be empty")

	// ErrInvalidSourceType indicates an unrecognized SourceType value.
	ErrInvalidSourceType = errors.New("invalid source type")

	// ErrInvalidBatchSize indicates a non-positive batch size.
	ErrInvalidBatchSize = errors.New("batch size must be positive")

	// ErrInvalidBatch indicates an IngestionBatch failed structural validation.
	ErrInvalidBatch = errors.New("invalid ingestion batch")

	// ErrEmptyBatch indicates a batch carries no data.
	ErrEmptyBatch = errors.New("batch has no data")

	// ErrFatal marks a non-retryable condition, such as corrupt
	// configuration. Callers must not retry operations that fail with it.
	ErrFatal = errors.New("fatal ingestion error")
)
