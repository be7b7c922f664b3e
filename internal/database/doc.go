// Package database provides the PostgreSQL connection pool for telemetry.
//
// The agent writes connection lifecycle events, quality samples, and server
// status snapshots to a single telemetry database. The pool is optional:
// agents without a configured telemetry host run the channel alone.
package database
