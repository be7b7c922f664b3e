package channel

import (
	"encoding/json"
	"time"
)

// EventType discriminates ConnectionEvent variants.
type EventType int

const (
	// EventConnected fires when the socket transitions to Open.
	EventConnected EventType = iota
	// EventDisconnected fires when the socket closes, with code and reason.
	EventDisconnected
	// EventMessage carries an inbound frame not claimed by a typed handler.
	EventMessage
	// EventError carries a channel-level failure (stall, budget exhaustion,
	// server-side close).
	EventError
	// EventStatusUpdate carries a decoded server status snapshot.
	EventStatusUpdate
	// EventToolUpdate carries a decoded tool inventory.
	EventToolUpdate
	// EventQuality carries probe metrics for the open connection.
	EventQuality
)

// String returns the snake_case event name.
func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventStatusUpdate:
		return "status_update"
	case EventToolUpdate:
		return "tool_update"
	case EventQuality:
		return "quality"
	default:
		return "unknown"
	}
}

// Handler receives events published on the bus.
type Handler func(Event)

// Event is the tagged union delivered to subscribers. Type selects the
// variant; only that variant's fields are set. At and SessionID are stamped
// by the publisher.
type Event struct {
	Type      EventType
	At        time.Time
	SessionID string

	// EventDisconnected
	Code   int
	Reason string

	// EventMessage
	Payload json.RawMessage
	// Unparsed marks a payload that failed JSON decoding and is delivered
	// verbatim.
	Unparsed bool

	// EventError
	Err error

	// EventStatusUpdate
	Servers []ServerInfo

	// EventToolUpdate
	Tools []ToolInfo

	// EventQuality
	Quality QualityMetrics
}

// ServerInfo describes one managed server in a status update.
type ServerInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	ToolCount int    `json:"toolCount"`
}

// ToolInfo describes one tool exposed through the gateway.
type ToolInfo struct {
	Name        string `json:"name"`
	ServerID    string `json:"serverId"`
	Description string `json:"description,omitempty"`
}

// QualityMetrics summarizes recent probe results for the open connection.
type QualityMetrics struct {
	LatencyMs         float64 `json:"latencyMs"`
	PacketLossPercent float64 `json:"packetLossPercent"`
	StabilityScore    int     `json:"stabilityScore"`
	ConnectionAgeMs   int64   `json:"connectionAgeMs"`
}
