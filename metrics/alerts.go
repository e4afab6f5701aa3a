package metrics

import "fmt"

const (
	// Alert when the latest batch error rate crosses this fraction.
	errorRateAlertThreshold = 0.10

	// Alert when throughput falls below this fraction of the prior sample.
	throughputDropFactor = 0.5

	// Escalate to critical after this many consecutive batch failures.
	consecutiveFailureAlertThreshold = 3
)

// Alert severities.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert flags a source condition worth operator attention.
type Alert struct {
	SourceID string
	Kind     string // "unhealthy", "error_rate", "throughput_drop" or "consecutive_failures"
	Severity string
	Message  string
}

// ShouldAlertOnErrorRate reports whether the source's most recent batch
// error rate crossed the alert threshold.
func (t *Tracker) ShouldAlertOnErrorRate(sourceID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.sources[sourceID]
	if !ok || len(state.errorRates) == 0 {
		return false
	}
	return state.errorRates[len(state.errorRates)-1].value > errorRateAlertThreshold
}

// ShouldAlertOnThroughputDrop reports whether the latest throughput sample
// fell to less than half of the one before it.
func (t *Tracker) ShouldAlertOnThroughputDrop(sourceID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.sources[sourceID]
	if !ok || len(state.throughput) < 2 {
		return false
	}
	n := len(state.throughput)
	previous := state.throughput[n-2].value
	latest := state.throughput[n-1].value
	return previous > 0 && latest < previous*throughputDropFactor
}

// ActiveAlerts evaluates every tracked source and returns the alerts that
// currently hold, in stable source order.
func (t *Tracker) ActiveAlerts() []Alert {
	var alerts []Alert
	for _, sourceID := range t.Sources() {
		snapshot, ok := t.Snapshot(sourceID)
		if !ok {
			continue
		}
		if !snapshot.Healthy {
			alerts = append(alerts, Alert{
				SourceID: sourceID,
				Kind:     "unhealthy",
				Severity: SeverityWarning,
				Message: fmt.Sprintf("source unhealthy, %d consecutive failures",
					snapshot.ConsecutiveFailures),
			})
		}
		if snapshot.ConsecutiveFailures >= consecutiveFailureAlertThreshold {
			alerts = append(alerts, Alert{
				SourceID: sourceID,
				Kind:     "consecutive_failures",
				Severity: SeverityCritical,
				Message: fmt.Sprintf("%d consecutive batch failures",
					snapshot.ConsecutiveFailures),
			})
		}
		if t.ShouldAlertOnErrorRate(sourceID) {
			alerts = append(alerts, Alert{
				SourceID: sourceID,
				Kind:     "error_rate",
				Severity: SeverityWarning,
				Message:  "batch error rate above threshold",
			})
		}
		if t.ShouldAlertOnThroughputDrop(sourceID) {
			alerts = append(alerts, Alert{
				SourceID: sourceID,
				Kind:     "throughput_drop",
				Severity: SeverityWarning,
				Message:  "throughput dropped by more than half",
			})
		}
	}
	return alerts
}
