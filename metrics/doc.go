// Package metrics tracks per-source ingestion health and performance.
//
// The Tracker carries its own lock; engine workers and the monitoring loop
// update it concurrently without external coordination. A source is healthy
// while it has no consecutive failures and its last success is under an
// hour old; the rule is re-evaluated on every update and on every read that
// reports health.
package metrics
