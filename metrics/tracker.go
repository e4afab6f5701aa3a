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


package metrics

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/intake/core"
)

const (
	// A source is healthy only while its last success is fresher than this.
	healthWindow = time.Hour

	// Samples older than this are pruned on every update.
	retentionWindow = 24 * time.Hour

	maxHistorySamples = 1000
)

type sample struct {
	at    time.Time
	value float64
}

type sourceState struct {
	sourceID            string
	totalBatches        int64
	totalRecords        int64
	succeededRecords    int64
	failedRecords       int64
	consecutiveFailures int
	lastSuccess         time.Time
	lastFailure         time.Time
	healthy             bool
	errorCounts         map[string]int64
	throughput          []sample
	errorRates          []sample
}

// SourceSnapshot is a point-in-time copy of one source's metrics.
type SourceSnapshot struct {
	SourceID            string
	TotalBatches        int64
	TotalRecords        int64
	SucceededRecords    int64
	FailedRecords       int64
	ConsecutiveFailures int
	LastSuccess         time.Time
	LastFailure         time.Time
	Healthy             bool
	ErrorCounts         map[string]int64
}

// Tracker aggregates per-source ingestion metrics. It carries its own lock
// so the engine can update it from worker goroutines without coordination.
type Tracker struct {
	mu         sync.Mutex
	logger     *slog.Logger
	now        func() time.Time
	started    time.Time
	sources    map[string]*sourceState
	queueDepth []sample
	queueDrops int64
}

// NewTracker creates an empty tracker.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		logger:  logger,
		now:     time.Now,
		started: time.Now(),
		sources: make(map[string]*sourceState),
	}
}

// Register starts tracking a source. Registration counts as a success so a
// new source is not immediately reported failing.
func (t *Tracker) Register(sourceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sources[sourceID]; ok {
		return
	}
	t.sources[sourceID] = &sourceState{
		sourceID:    sourceID,
		lastSuccess: t.now(),
		healthy:     true,
		errorCounts: make(map[string]int64),
	}
}

// Forget drops all state for a source.
func (t *Tracker) Forget(sourceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sources, sourceID)
}

// RecordBatch folds a finished batch into the source's counters, throughput
// and error-rate history, then recomputes health.
func (t *Tracker) RecordBatch(sourceID string, batch *core.IngestionBatch) {
	if batch == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.state(sourceID)
	now := t.now()

	state.totalBatches++
	state.totalRecords += int64(batch.RecordsProcessed)
	state.succeededRecords += int64(batch.RecordsSucceeded)
	state.failedRecords += int64(batch.RecordsFailed)

	if batch.Status == core.BatchFailed {
		state.consecutiveFailures++
		state.lastFailure = now
	} else {
		state.consecutiveFailures = 0
		state.lastSuccess = now
	}

	elapsed := batch.EndTime.Sub(batch.StartTime).Seconds()
	if elapsed > 0 && batch.RecordsProcessed > 0 {
		state.throughput = appendSample(state.throughput, sample{
			at:    now,
			value: float64(batch.RecordsProcessed) / elapsed,
		}, now)
	}
	if batch.RecordsProcessed > 0 {
		state.errorRates = appendSample(state.errorRates, sample{
			at:    now,
			value: float64(batch.RecordsFailed) / float64(batch.RecordsProcessed),
		}, now)
	}

	t.recomputeHealth(state, now)
}

// RecordError counts one operational error against the source and marks a
// failure.
func (t *Tracker) RecordError(sourceID string, err error) {
	if err == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.state(sourceID)
	now := t.now()
	state.errorCounts[Categorize(err)]++
	state.consecutiveFailures++
	state.lastFailure = now
	t.recomputeHealth(state, now)
}

// RecordHealth folds a connectivity probe result into the source state.
func (t *Tracker) RecordHealth(sourceID string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.state(sourceID)
	now := t.now()
	if ok {
		state.consecutiveFailures = 0
		state.lastSuccess = now
	} else {
		state.consecutiveFailures++
		state.lastFailure = now
	}
	t.recomputeHealth(state, now)
}

// RecordQueueDepth samples the work queue depth.
func (t *Tracker) RecordQueueDepth(depth int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.queueDepth = appendSample(t.queueDepth, sample{at: now, value: float64(depth)}, now)
}

// RecordQueueDrop counts a batch rejected because the queue was full.
func (t *Tracker) RecordQueueDrop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queueDrops++
}

// Snapshot returns a copy of one source's metrics.
func (t *Tracker) Snapshot(sourceID string) (SourceSnapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.sources[sourceID]
	if !ok {
		return SourceSnapshot{}, false
	}
	return snapshotOf(state), true
}

// Sources returns the tracked source IDs in stable order.
func (t *Tracker) Sources() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.sources))
	for id := range t.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FailingSources returns the sources currently unhealthy, in stable order.
func (t *Tracker) FailingSources() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var failing []string
	for id, state := range t.sources {
		t.recomputeHealth(state, now)
		if !state.healthy {
			failing = append(failing, id)
		}
	}
	sort.Strings(failing)
	return failing
}

// GlobalMetrics aggregates counters across every source.
func (t *Tracker) GlobalMetrics() core.Document {
	t.mu.Lock()
	defer t.mu.Unlock()

	var batches, records, succeeded, failed int64
	healthy := 0
	now := t.now()
	for _, state := range t.sources {
		batches += state.totalBatches
		records += state.totalRecords
		succeeded += state.succeededRecords
		failed += state.failedRecords
		t.recomputeHealth(state, now)
		if state.healthy {
			healthy++
		}
	}

	doc := core.Document{
		"sources":           len(t.sources),
		"healthy_sources":   healthy,
		"total_batches":     batches,
		"total_records":     records,
		"succeeded_records": succeeded,
		"failed_records":    failed,
		"queue_drops":       t.queueDrops,
		"uptime_seconds":    now.Sub(t.started).Seconds(),
	}
	if n := len(t.queueDepth); n > 0 {
		doc["queue_depth"] = int(t.queueDepth[n-1].value)
	}
	return doc
}

// TopErrorTypes returns the most frequent error categories for a source,
// highest count first.
func (t *Tracker) TopErrorTypes(sourceID string, limit int) []ErrorTypeCount {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.sources[sourceID]
	if !ok {
		return nil
	}
	counts := make([]ErrorTypeCount, 0, len(state.errorCounts))
	for kind, count := range state.errorCounts {
		counts = append(counts, ErrorTypeCount{Type: kind, Count: count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Type < counts[j].Type
	})
	if limit > 0 && len(counts) > limit {
		counts = counts[:limit]
	}
	return counts
}

// ErrorTypeCount pairs an error category with its occurrence count.
type ErrorTypeCount struct {
	Type  string
	Count int64
}

// TrendSummary compares the older and newer halves of the throughput
// history. Direction is "improving", "degrading" or "steady".
func (t *Tracker) TrendSummary(sourceID string) core.Document {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.sources[sourceID]
	if !ok || len(state.throughput) < 4 {
		return core.Document{"direction": "steady", "samples": sampleCount(state)}
	}

	mid := len(state.throughput) / 2
	older := meanValue(state.throughput[:mid])
	newer := meanValue(state.throughput[mid:])

	direction := "steady"
	switch {
	case older > 0 && newer > older*1.1:
		direction = "improving"
	case older > 0 && newer < older*0.9:
		direction = "degrading"
	}
	var maxRPS float64
	for _, s := range state.throughput {
		if s.value > maxRPS {
			maxRPS = s.value
		}
	}
	return core.Document{
		"direction":       direction,
		"samples":         len(state.throughput),
		"older_mean_rps":  older,
		"recent_mean_rps": newer,
		"avg_rps":         meanValue(state.throughput),
		"max_rps":         maxRPS,
	}
}

func sampleCount(state *sourceState) int {
	if state == nil {
		return 0
	}
	return len(state.throughput)
}

func meanValue(samples []sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s.value
	}
	return sum / float64(len(samples))
}

// state returns the tracked source, registering it on first sight.
// Caller holds the lock.
func (t *Tracker) state(sourceID string) *sourceState {
	if state, ok := t.sources[sourceID]; ok {
		return state
	}
	state := &sourceState{
		sourceID:    sourceID,
		lastSuccess: t.now(),
		healthy:     true,
		errorCounts: make(map[string]int64),
	}
	t.sources[sourceID] = state
	return state
}

// recomputeHealth applies the health rule: no consecutive failures and a
// success within the window. Caller holds the lock.
func (t *Tracker) recomputeHealth(state *sourceState, now time.Time) {
	wasHealthy := state.healthy
	state.healthy = state.consecutiveFailures == 0 &&
		now.Sub(state.lastSuccess) < healthWindow
	if wasHealthy && !state.healthy {
		t.logger.Warn("source became unhealthy",
			"source", state.sourceID,
			"consecutive_failures", state.consecutiveFailures,
			"last_success", state.lastSuccess)
	}
}

func appendSample(history []sample, s sample, now time.Time) []sample {
	history = append(history, s)
	cutoff := now.Add(-retentionWindow)
	start := 0
	for start < len(history) && history[start].at.Before(cutoff) {
		start++
	}
	history = history[start:]
	if len(history) > maxHistorySamples {
		history = history[len(history)-maxHistorySamples:]
	}
	return history
}

func snapshotOf(state *sourceState) SourceSnapshot {
	counts := make(map[string]int64, len(state.errorCounts))
	for kind, count := range state.errorCounts {
		counts[kind] = count
	}
	return SourceSnapshot{
		SourceID:            state.sourceID,
		TotalBatches:        state.totalBatches,
		TotalRecords:        state.totalRecords,
		SucceededRecords:    state.succeededRecords,
		FailedRecords:       state.failedRecords,
		ConsecutiveFailures: state.consecutiveFailures,
		LastSuccess:         state.lastSuccess,
		LastFailure:         state.lastFailure,
		Healthy:             state.healthy,
		ErrorCounts:         counts,
	}
}

// Categorize maps an error to a coarse category for the per-source error
// histogram.
func Categorize(err error) string {
	if err == nil {
		return "none"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return "timeout"
	case strings.Contains(msg, "connection") || strings.Contains(msg, "refused") ||
		strings.Contains(msg, "dial") || strings.Contains(msg, "reset"):
		return "connection"
	case strings.Contains(msg, "parse") || strings.Contains(msg, "unmarshal") ||
		strings.Contains(msg, "decode") || strings.Contains(msg, "syntax"):
		return "parsing"
	default:
		return "other"
	}
}
