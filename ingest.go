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

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/poiesic/intake/core"
	"github.com/poiesic/intake/pipeline"
)

// IngestData runs records through the source's pipeline synchronously and
// stores the results. A failed batch returns an error and stores nothing.
func (e *Engine) IngestData(ctx context.Context, sourceID string, records []core.Document) ([]*core.DataRecord, error) {
	managed, err := e.activeSource(sourceID)
	if err != nil {
		return nil, err
	}

	batch := managed.pipeline.ProcessBatch(ctx, records)
	e.tracker.RecordBatch(sourceID, batch)

	if batch.Status == core.BatchFailed {
		return nil, fmt.Errorf("%w: %s", ErrBatchRejected, strings.Join(batch.Errors, "; "))
	}
	if !managed.pipeline.ValidateBatch(batch) {
		return nil, fmt.Errorf("%w: batch failed validation", ErrBatchRejected)
	}

	stored := e.makeRecords(managed, batch)
	if err := e.StoreRecords(ctx, batch, stored); err != nil {
		e.tracker.RecordError(sourceID, err)
		return nil, err
	}
	return stored, nil
}

// SubmitBatch queues records for asynchronous processing. A full queue
// drops the batch and returns ErrQueueFull; callers decide whether to
// retry, back off or surface the loss.
func (e *Engine) SubmitBatch(sourceID string, records []core.Document) error {
	e.mu.RLock()
	running := e.running
	_, known := e.sources[sourceID]
	e.mu.RUnlock()
	if !running {
		return ErrNotRunning
	}
	if !known {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, sourceID)
	}
	if len(records) == 0 {
		return nil
	}

	select {
	case e.queue <- workItem{sourceID: sourceID, records: records}:
		e.tracker.RecordQueueDepth(len(e.queue))
		return nil
	default:
		e.tracker.RecordQueueDrop()
		e.logger.Warn("queue full, dropping batch",
			"source", sourceID, "records", len(records))
		return ErrQueueFull
	}
}

// DrainSource fetches every batch an active source currently has and
// ingests them synchronously. Fetches are retried with exponential backoff
// per the source's retry settings. Returns the number of records stored.
func (e *Engine) DrainSource(ctx context.Context, sourceID string) (int, error) {
	managed, err := e.activeSource(sourceID)
	if err != nil {
		return 0, err
	}

	total := 0
	for {
		var records []core.Document
		err := pipeline.RetryWithBackoff(ctx, func() error {
			managed.mu.Lock()
			defer managed.mu.Unlock()
			var ferr error
			records, ferr = managed.src.FetchData(ctx, managed.cfg.BatchSize)
			return ferr
		}, max(managed.cfg.MaxRetries, 1), managed.cfg.RetryDelay, 0)
		if err != nil {
			e.tracker.RecordError(sourceID, err)
			return total, fmt.Errorf("fetching from %s: %w", sourceID, err)
		}
		if len(records) == 0 {
			return total, nil
		}

		stored, err := e.IngestData(ctx, sourceID, records)
		if err != nil {
			return total, err
		}
		total += len(stored)
	}
}

// StoreRecords persists a processed batch and its records.
func (e *Engine) StoreRecords(ctx context.Context, batch *core.IngestionBatch, records []*core.DataRecord) error {
	return e.store.StoreBatch(ctx, batch, records)
}

// QueryRecords returns a source's stored records with IngestedAt in
// [start, end).
func (e *Engine) QueryRecords(ctx context.Context, sourceID string, start, end time.Time) ([]*core.DataRecord, error) {
	return e.store.RetrieveRecords(ctx, sourceID, start, end)
}

// UpdateRecordQuality promotes a stored record to a new quality level.
func (e *Engine) UpdateRecordQuality(ctx context.Context, recordID string, quality core.DataQuality) error {
	return e.store.UpdateRecordQuality(ctx, recordID, quality)
}

func (e *Engine) makeRecords(managed *managedSource, batch *core.IngestionBatch) []*core.DataRecord {
	quality := managed.pipeline.ResultQuality()
	now := time.Now().UTC()

	records := make([]*core.DataRecord, 0, len(batch.ProcessedData))
	for _, doc := range batch.ProcessedData {
		records = append(records, &core.DataRecord{
			RecordID:    uuid.NewString(),
			SourceID:    batch.SourceID,
			Quality:     quality,
			Data:        doc,
			IngestedAt:  now,
			ProcessedAt: now,
			Pipeline:    managed.pipeline.Name(),
			Metadata:    core.Document{"batch_id": batch.BatchID},
		})
	}
	return records
}

func (e *Engine) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-e.queue:
			e.processItem(ctx, item)
		}
	}
}

func (e *Engine) processItem(ctx context.Context, item workItem) {
	e.mu.RLock()
	managed, ok := e.sources[item.sourceID]
	e.mu.RUnlock()
	if !ok || managed.pipeline == nil {
		e.logger.Warn("dropping batch for unknown or inactive source",
			"source", item.sourceID, "records", len(item.records))
		return
	}

	batch := managed.pipeline.ProcessBatch(ctx, item.records)
	e.tracker.RecordBatch(item.sourceID, batch)
	e.tracker.RecordQueueDepth(len(e.queue))

	if batch.Status == core.BatchFailed {
		e.logger.Error("batch failed",
			"source", item.sourceID,
			"batch", batch.BatchID,
			"errors", len(batch.Errors))
		return
	}

	stored := e.makeRecords(managed, batch)
	if err := e.StoreRecords(ctx, batch, stored); err != nil {
		e.tracker.RecordError(item.sourceID, err)
		e.logger.Error("storing batch failed",
			"source", item.sourceID, "batch", batch.BatchID, "err", err)
		return
	}

	e.logger.Debug("batch processed",
		"source", item.sourceID,
		"batch", batch.BatchID,
		"succeeded", batch.RecordsSucceeded,
		"failed", batch.RecordsFailed)
}

// monitorLoop probes every active source's connectivity on a fixed cadence
// and samples the queue depth.
func (e *Engine) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(e.monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.probeSources(ctx)
			e.tracker.RecordQueueDepth(len(e.queue))
		}
	}
}

func (e *Engine) probeSources(ctx context.Context) {
	e.mu.RLock()
	type probe struct {
		id      string
		managed *managedSource
	}
	var probes []probe
	for id, managed := range e.sources {
		probes = append(probes, probe{id: id, managed: managed})
	}
	e.mu.RUnlock()

	for _, p := range probes {
		p.managed.mu.Lock()
		active := p.managed.active
		src := p.managed.src
		p.managed.mu.Unlock()
		if !active {
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := src.ValidateConnection(probeCtx)
		cancel()

		e.tracker.RecordHealth(p.id, err == nil)
		if err != nil {
			e.tracker.RecordError(p.id, err)
			e.logger.Warn("health probe failed", "source", p.id, "err", err)
		}
	}
}

// cleanupLoop periodically reports sources that keep failing so operators
// can intervene.
func (e *Engine) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sourceID := range e.tracker.FailingSources() {
				snapshot, ok := e.tracker.Snapshot(sourceID)
				if !ok {
					continue
				}
				e.logger.Warn("source failing",
					"source", sourceID,
					"consecutive_failures", snapshot.ConsecutiveFailures,
					"last_success", snapshot.LastSuccess)
			}
		}
	}
}

// pollLoop fetches from a scheduled source on its configured interval and
// feeds the queue until ingestion stops.
func (e *Engine) pollLoop(ctx context.Context, sourceID string, managed *managedSource) {
	ticker := time.NewTicker(managed.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			managed.mu.Lock()
			if !managed.active {
				managed.mu.Unlock()
				return
			}
			records, err := managed.src.FetchData(ctx, managed.cfg.BatchSize)
			managed.mu.Unlock()

			if err != nil {
				e.tracker.RecordError(sourceID, err)
				e.logger.Error("poll fetch failed", "source", sourceID, "err", err)
				continue
			}
			if len(records) == 0 {
				continue
			}
			if err := e.SubmitBatch(sourceID, records); err != nil {
				e.logger.Warn("poll submit failed", "source", sourceID, "err", err)
			}
		}
	}
}
