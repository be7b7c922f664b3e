package channel

import (
	"encoding/json"
	"time"
)

// Frame type discriminators on the control channel. Status and tool frames
// are accepted under either spelling.
const (
	frameStatusRequest = "status_request"
	framePing          = "ping"
	frameClientPong    = "client_pong"

	framePong          = "pong"
	frameServerPing    = "server_ping"
	frameServerStatus  = "server_status"
	frameServerStatus2 = "serverStatus"
	frameToolsUpdated  = "tools_updated"
	frameToolsUpdated2 = "serverTools"
)

// frameHeader is the minimal envelope shared by structured frames.
type frameHeader struct {
	Type string `json:"type"`
}

// statusRequestFrame asks the gateway for a full server status snapshot.
type statusRequestFrame struct {
	Type string `json:"type"`
}

func newStatusRequest() statusRequestFrame {
	return statusRequestFrame{Type: frameStatusRequest}
}

// pingFrame is an application-level probe sent by the quality monitor.
type pingFrame struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}

func newPing(id string, now time.Time) pingFrame {
	return pingFrame{Type: framePing, ID: id, Timestamp: now.UnixMilli()}
}

// pongFrame answers a pingFrame. ID echoes the ping's ID when present;
// pongs without an ID match the outstanding probe.
type pongFrame struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}

// serverPingFrame is an unsolicited gateway probe. It must be answered
// immediately with a clientPongFrame echoing its ID.
type serverPingFrame struct {
	ID         string `json:"id"`
	ServerTime int64  `json:"serverTime"`
}

// clientPongFrame answers a serverPingFrame, carrying client-side
// connection diagnostics.
type clientPongFrame struct {
	Type          string         `json:"type"`
	ID            string         `json:"id"`
	Timestamp     int64          `json:"timestamp"`
	RoundTripTime float64        `json:"roundTripTime"`
	Metrics       QualityMetrics `json:"metrics"`
}

// serverStatusFrame carries the gateway's server inventory.
type serverStatusFrame struct {
	Servers []ServerInfo `json:"servers"`
}

// toolsUpdatedFrame carries the gateway's tool inventory.
type toolsUpdatedFrame struct {
	Tools []ToolInfo `json:"tools"`
}

func decodeServerStatus(data []byte) ([]ServerInfo, error) {
	var f serverStatusFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return f.Servers, nil
}

func decodeToolsUpdated(data []byte) ([]ToolInfo, error) {
	var f toolsUpdatedFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return f.Tools, nil
}

func decodePong(data []byte) (pongFrame, error) {
	var f pongFrame
	err := json.Unmarshal(data, &f)
	return f, err
}

func decodeServerPing(data []byte) (serverPingFrame, error) {
	var f serverPingFrame
	err := json.Unmarshal(data, &f)
	return f, err
}
