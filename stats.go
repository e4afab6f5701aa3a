package intake

import (
	"github.com/poiesic/intake/core"
)

// GetIngestionStats returns one source's metrics, trends and pipeline
// performance counters.
func (e *Engine) GetIngestionStats(sourceID string) (core.Document, bool) {
	snapshot, ok := e.tracker.Snapshot(sourceID)
	if !ok {
		return nil, false
	}

	errorTypes := make([]core.Document, 0)
	for _, entry := range e.tracker.TopErrorTypes(sourceID, 5) {
		errorTypes = append(errorTypes, core.Document{
			"type":  entry.Type,
			"count": entry.Count,
		})
	}

	stats := core.Document{
		"source_id":            snapshot.SourceID,
		"total_batches":        snapshot.TotalBatches,
		"total_records":        snapshot.TotalRecords,
		"succeeded_records":    snapshot.SucceededRecords,
		"failed_records":       snapshot.FailedRecords,
		"consecutive_failures": snapshot.ConsecutiveFailures,
		"is_healthy":           snapshot.Healthy,
		"last_success":         snapshot.LastSuccess,
		"last_failure":         snapshot.LastFailure,
		"top_error_types":      errorTypes,
		"trend":                e.tracker.TrendSummary(sourceID),
	}

	if pipe, ok := e.Pipeline(sourceID); ok {
		stats["pipeline"] = pipe.PerformanceStats()
	}
	return stats, true
}

// GetFrameworkHealth reports engine-wide state: aggregate counters, the
// per-source health map and any active alerts.
func (e *Engine) GetFrameworkHealth() core.Document {
	e.mu.RLock()
	running := e.running
	e.mu.RUnlock()

	perSource := core.Document{}
	for _, sourceID := range e.tracker.Sources() {
		if snapshot, ok := e.tracker.Snapshot(sourceID); ok {
			perSource[sourceID] = snapshot.Healthy
		}
	}

	alerts := make([]core.Document, 0)
	for _, alert := range e.tracker.ActiveAlerts() {
		alerts = append(alerts, core.Document{
			"source":   alert.SourceID,
			"kind":     alert.Kind,
			"severity": alert.Severity,
			"message":  alert.Message,
		})
	}

	health := e.tracker.GlobalMetrics()
	health["running"] = running
	health["workers"] = e.workers
	health["source_health"] = perSource
	health["active_alerts"] = alerts
	health["queue_length"] = len(e.queue)
	return health
}
