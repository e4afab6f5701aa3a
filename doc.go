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


// Package intake orchestrates data ingestion from heterogeneous sources
// through staged processing pipelines into embedded storage.
//
// The Engine is the entry point. Sources are registered with a
// configuration describing where data lives and which rules to apply, then
// started individually. Batches arrive either synchronously through
// IngestData, asynchronously through SubmitBatch, or from per-source poll
// loops; a bounded queue feeds a fixed worker pool, and when the queue is
// full the newest batch is dropped rather than blocking producers. A
// monitoring loop probes source connectivity and a cleanup loop reports
// sources that keep failing.
//
// Typical use:
//
//	engine, err := intake.New(intake.WithDataDir("/var/lib/intake"))
//	if err != nil { ... }
//	if err := engine.Start(ctx); err != nil { ... }
//	defer engine.Shutdown(ctx)
//
//	engine.RegisterSource(cfg)
//	engine.StartIngestion(ctx, cfg.SourceID)
package intake
