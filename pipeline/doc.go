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


// Package pipeline implements the staged record-processing pipeline.
//
// A pipeline runs up to eight stages over each batch, always in the same
// canonical order regardless of which subset is enabled:
//
//	validation, cleaning, transformation, enrichment, quality check,
//	duplicate detection, compliance check, storage preparation
//
// Stage behavior is driven by the rule documents carried on the source
// configuration; ConfigFromSource parses them once at construction time so
// malformed rules surface as errors before any data flows. The Standard
// type is safe for concurrent use by the engine's worker pool.
package pipeline
