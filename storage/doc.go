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


// Package storage provides the storage abstraction layer for intake.
//
// This package defines the interfaces that decouple the ingestion engine and
// pipeline from the concrete persistence backend:
//
//   - Adapter: durable sink and time-range query layer for processed records
//   - SeenStore: persisted duplicate-suppression keys (survives restarts)
//   - Lookup: reference-integrity and lookup-table enrichment queries
//
// # Constructor Return Type Pattern
//
// Public constructors in backend packages return these interfaces rather than
// concrete types:
//
//	adapter, err := badger.NewAdapter(backend)  // returns storage.Adapter
//
// This keeps consumers decoupled from BadgerDB specifics, allows alternative
// backends (PostgreSQL, in-memory) without modification, and lets tests
// substitute mocks freely.
//
// # Serialization
//
// Stored record envelopes are encoded in MUS format. Fixed header fields use
// varint and ord codecs; the open-schema payload documents are embedded as
// JSON, since any pipeline stage may add or remove keys.
package storage
