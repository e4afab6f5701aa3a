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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/intake/core"
)

func completedBatch(processed, failed int, duration time.Duration) *core.IngestionBatch {
	start := time.Now().Add(-duration)
	return &core.IngestionBatch{
		BatchID:          core.NewBatchID(),
		Status:           core.BatchCompleted,
		StartTime:        start,
		EndTime:          start.Add(duration),
		RecordsProcessed: processed,
		RecordsSucceeded: processed - failed,
		RecordsFailed:    failed,
	}
}

func TestRecordBatchCounters(t *testing.T) {
	tracker := NewTracker(nil)

	tracker.RecordBatch("s1", completedBatch(100, 5, time.Second))
	tracker.RecordBatch("s1", completedBatch(50, 0, time.Second))

	snap, ok := tracker.Snapshot("s1")
	require.True(t, ok)
	assert.Equal(t, int64(2), snap.TotalBatches)
	assert.Equal(t, int64(150), snap.TotalRecords)
	assert.Equal(t, int64(145), snap.SucceededRecords)
	assert.Equal(t, int64(5), snap.FailedRecords)
	assert.True(t, snap.Healthy)
	assert.Zero(t, snap.ConsecutiveFailures)
}

func TestFailedBatchMarksFailure(t *testing.T) {
	tracker := NewTracker(nil)

	batch := completedBatch(10, 10, time.Second)
	batch.Status = core.BatchFailed
	tracker.RecordBatch("s1", batch)

	snap, _ := tracker.Snapshot("s1")
	assert.False(t, snap.Healthy)
	assert.Equal(t, 1, snap.ConsecutiveFailures)
	assert.False(t, snap.LastFailure.IsZero())
}

func TestHealthTransitions(t *testing.T) {
	tracker := NewTracker(nil)
	tracker.Register("s1")

	snap, _ := tracker.Snapshot("s1")
	assert.True(t, snap.Healthy)

	tracker.RecordHealth("s1", false)
	snap, _ = tracker.Snapshot("s1")
	assert.False(t, snap.Healthy)
	assert.Equal(t, 1, snap.ConsecutiveFailures)

	// A single success clears the failure streak.
	tracker.RecordHealth("s1", true)
	snap, _ = tracker.Snapshot("s1")
	assert.True(t, snap.Healthy)
	assert.Zero(t, snap.ConsecutiveFailures)
}

func TestHealthExpiresWithoutRecentSuccess(t *testing.T) {
	tracker := NewTracker(nil)
	tracker.Register("s1")

	current := time.Now()
	tracker.now = func() time.Time { return current }
	tracker.RecordHealth("s1", true)

	// Just inside the window.
	current = current.Add(healthWindow - time.Minute)
	assert.Empty(t, tracker.FailingSources())

	// Past the window with no new success.
	current = current.Add(2 * time.Minute)
	assert.Equal(t, []string{"s1"}, tracker.FailingSources())
}

func TestRecordErrorCategorization(t *testing.T) {
	tracker := NewTracker(nil)

	tracker.RecordError("s1", errors.New("request timeout after 30s"))
	tracker.RecordError("s1", errors.New("connection refused"))
	tracker.RecordError("s1", errors.New("cannot unmarshal payload"))
	tracker.RecordError("s1", errors.New("connection reset by peer"))
	tracker.RecordError("s1", errors.New("something odd"))

	top := tracker.TopErrorTypes("s1", 2)
	require.Len(t, top, 2)
	assert.Equal(t, "connection", top[0].Type)
	assert.Equal(t, int64(2), top[0].Count)

	snap, _ := tracker.Snapshot("s1")
	assert.Equal(t, 5, snap.ConsecutiveFailures)
	assert.False(t, snap.Healthy)
}

func TestCategorize(t *testing.T) {
	assert.Equal(t, "timeout", Categorize(errors.New("context deadline exceeded")))
	assert.Equal(t, "connection", Categorize(errors.New("dial tcp: refused")))
	assert.Equal(t, "parsing", Categorize(errors.New("invalid character in JSON, decode failed")))
	assert.Equal(t, "other", Categorize(errors.New("disk full")))
	assert.Equal(t, "none", Categorize(nil))
}

func TestErrorRateAlert(t *testing.T) {
	tracker := NewTracker(nil)

	tracker.RecordBatch("s1", completedBatch(100, 2, time.Second))
	assert.False(t, tracker.ShouldAlertOnErrorRate("s1"))

	tracker.RecordBatch("s1", completedBatch(100, 30, time.Second))
	assert.True(t, tracker.ShouldAlertOnErrorRate("s1"))
}

func TestThroughputDropAlert(t *testing.T) {
	tracker := NewTracker(nil)

	tracker.RecordBatch("s1", completedBatch(1000, 0, time.Second))
	assert.False(t, tracker.ShouldAlertOnThroughputDrop("s1"))

	tracker.RecordBatch("s1", completedBatch(100, 0, time.Second))
	assert.True(t, tracker.ShouldAlertOnThroughputDrop("s1"))

	tracker.RecordBatch("s1", completedBatch(95, 0, time.Second))
	assert.False(t, tracker.ShouldAlertOnThroughputDrop("s1"))
}

func TestActiveAlerts(t *testing.T) {
	tracker := NewTracker(nil)

	tracker.RecordBatch("ok", completedBatch(100, 0, time.Second))

	failing := completedBatch(10, 10, time.Second)
	failing.Status = core.BatchFailed
	tracker.RecordBatch("bad", failing)

	alerts := tracker.ActiveAlerts()
	require.NotEmpty(t, alerts)
	for _, alert := range alerts {
		assert.Equal(t, "bad", alert.SourceID)
		assert.Equal(t, SeverityWarning, alert.Severity)
	}
}

func TestConsecutiveFailureAlertEscalates(t *testing.T) {
	tracker := NewTracker(nil)

	failing := completedBatch(10, 10, time.Second)
	failing.Status = core.BatchFailed
	for range 3 {
		tracker.RecordBatch("bad", failing)
	}

	alerts := tracker.ActiveAlerts()
	var critical *Alert
	for i := range alerts {
		if alerts[i].Kind == "consecutive_failures" {
			critical = &alerts[i]
		}
	}
	require.NotNil(t, critical)
	assert.Equal(t, SeverityCritical, critical.Severity)
}

func TestTrendSummary(t *testing.T) {
	tracker := NewTracker(nil)

	for range 4 {
		tracker.RecordBatch("s1", completedBatch(100, 0, time.Second))
	}
	for range 4 {
		tracker.RecordBatch("s1", completedBatch(400, 0, time.Second))
	}

	trend := tracker.TrendSummary("s1")
	assert.Equal(t, "improving", trend["direction"])
	assert.Equal(t, 400.0, trend["max_rps"])

	assert.Equal(t, "steady", tracker.TrendSummary("unknown")["direction"])
}

func TestGlobalMetricsAndQueue(t *testing.T) {
	tracker := NewTracker(nil)

	tracker.RecordBatch("a", completedBatch(10, 1, time.Second))
	tracker.RecordBatch("b", completedBatch(20, 0, time.Second))
	tracker.RecordQueueDepth(7)
	tracker.RecordQueueDrop()

	global := tracker.GlobalMetrics()
	assert.Equal(t, 2, global["sources"])
	assert.Equal(t, int64(30), global["total_records"])
	assert.Equal(t, int64(29), global["succeeded_records"])
	assert.Equal(t, int64(1), global["failed_records"])
	assert.Equal(t, 7, global["queue_depth"])
	assert.Equal(t, int64(1), global["queue_drops"])
	assert.GreaterOrEqual(t, global["uptime_seconds"], 0.0)
}

func TestForget(t *testing.T) {
	tracker := NewTracker(nil)
	tracker.Register("s1")
	tracker.Forget("s1")

	_, ok := tracker.Snapshot("s1")
	assert.False(t, ok)
	assert.Empty(t, tracker.Sources())
}

func TestSampleRetentionBounds(t *testing.T) {
	tracker := NewTracker(nil)
	current := time.Now()
	tracker.now = func() time.Time { return current }

	// Old samples fall out once they age past the retention window.
	tracker.RecordBatch("s1", completedBatch(10, 0, time.Second))
	current = current.Add(retentionWindow + time.Minute)
	tracker.RecordBatch("s1", completedBatch(10, 0, time.Second))

	trend := tracker.TrendSummary("s1")
	assert.Equal(t, 1, trend["samples"])
}
