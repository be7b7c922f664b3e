// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Channel connection state and lifecycle events by cause
//   - Round-trip latency, stability score and packet loss
//   - Circuit breaker trips and cooldown remaining
//   - Recorder flush, insert and error counts
package metrics
