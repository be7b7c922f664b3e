// Package recorder persists control-channel telemetry to PostgreSQL.
//
// A Recorder subscribes to the channel event stream and fans events into
// three batch writers: lifecycle events, quality samples, and server status
// snapshots. Writers accumulate rows and flush on batch size or a ticker.
// Message payloads are never stored.
package recorder
