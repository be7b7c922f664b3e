// Package channel implements the persistent control channel to the gateway.
//
// The channel:
//   - Owns a single live WebSocket connection at a time
//   - Reconnects with profile-shaped, jittered backoff after failures
//   - Contains reconnect storms with an independent circuit breaker
//   - Probes connection quality and forces a reconnect on sustained degradation
//   - Publishes tagged ConnectionEvent values to subscribers
package channel
