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


package intake

import "errors"

var (
	// ErrNotRunning means an operation needing a started engine ran on a
	// stopped one.
	ErrNotRunning = errors.New("engine not running")

	// ErrAlreadyRunning means Start was called twice.
	ErrAlreadyRunning = errors.New("engine already running")

	// ErrSourceNotFound means the source ID is not registered.
	ErrSourceNotFound = errors.New("source not found")

	// ErrSourceExists means the source ID is already registered.
	ErrSourceExists = errors.New("source already registered")

	// ErrSourceNotActive means ingestion was never started for the source.
	ErrSourceNotActive = errors.New("source not active")

	// ErrSourceActive means ingestion is already running for the source.
	ErrSourceActive = errors.New("source already active")

	// ErrQueueFull means the work queue rejected a batch. The batch is
	// dropped, not blocked on.
	ErrQueueFull = errors.New("ingestion queue full")

	// ErrBatchRejected means the pipeline refused the batch.
	ErrBatchRejected = errors.New("batch rejected")
)
