package channel

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDecodeServerStatus(t *testing.T) {
	data := []byte(`{
		"type": "server_status",
		"servers": [
			{"id": "srv-1", "name": "files", "status": "running", "toolCount": 4},
			{"id": "srv-2", "name": "search", "status": "stopped", "toolCount": 0}
		]
	}`)

	servers, err := decodeServerStatus(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(servers))
	}
	if servers[0].ID != "srv-1" || servers[0].Name != "files" || servers[0].ToolCount != 4 {
		t.Errorf("unexpected first server: %+v", servers[0])
	}
	if servers[1].Status != "stopped" {
		t.Errorf("expected status stopped, got %q", servers[1].Status)
	}
}

func TestDecodeServerStatusEmpty(t *testing.T) {
	servers, err := decodeServerStatus([]byte(`{"type":"server_status"}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(servers) != 0 {
		t.Errorf("expected no servers, got %d", len(servers))
	}
}

func TestDecodeToolsUpdated(t *testing.T) {
	data := []byte(`{
		"type": "tools_updated",
		"tools": [
			{"name": "read_file", "serverId": "srv-1", "description": "reads a file"},
			{"name": "list_dir", "serverId": "srv-1"}
		]
	}`)

	tools, err := decodeToolsUpdated(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(tools))
	}
	if tools[0].Name != "read_file" || tools[0].ServerID != "srv-1" {
		t.Errorf("unexpected first tool: %+v", tools[0])
	}
	if tools[1].Description != "" {
		t.Errorf("expected empty description, got %q", tools[1].Description)
	}
}

func TestDecodePong(t *testing.T) {
	f, err := decodePong([]byte(`{"type":"pong","id":"abc","timestamp":1700000000000}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if f.ID != "abc" || f.Timestamp != 1700000000000 {
		t.Errorf("unexpected pong: %+v", f)
	}

	// Pongs without an ID are legal.
	f, err = decodePong([]byte(`{"type":"pong"}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if f.ID != "" {
		t.Errorf("expected empty id, got %q", f.ID)
	}
}

func TestDecodeServerPing(t *testing.T) {
	f, err := decodeServerPing([]byte(`{"type":"server_ping","id":"p-9","serverTime":123}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if f.ID != "p-9" || f.ServerTime != 123 {
		t.Errorf("unexpected server ping: %+v", f)
	}
}

func TestPingFrameShape(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	data, err := json.Marshal(newPing("ping-1", at))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if got["type"] != "ping" {
		t.Errorf("expected type ping, got %v", got["type"])
	}
	if got["id"] != "ping-1" {
		t.Errorf("expected id ping-1, got %v", got["id"])
	}
	if got["timestamp"] != float64(1700000000123) {
		t.Errorf("expected millisecond timestamp, got %v", got["timestamp"])
	}
}

func TestClientPongFrameShape(t *testing.T) {
	pong := clientPongFrame{
		Type:          frameClientPong,
		ID:            "p-9",
		Timestamp:     1700000000123,
		RoundTripTime: 42.5,
		Metrics: QualityMetrics{
			LatencyMs:         40,
			PacketLossPercent: 2,
			StabilityScore:    93,
			ConnectionAgeMs:   60000,
		},
	}
	data, err := json.Marshal(pong)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if got["type"] != "client_pong" || got["id"] != "p-9" {
		t.Errorf("unexpected envelope: %v", got)
	}
	metrics, ok := got["metrics"].(map[string]any)
	if !ok {
		t.Fatalf("metrics missing or wrong shape: %v", got["metrics"])
	}
	if metrics["stabilityScore"] != float64(93) {
		t.Errorf("expected stabilityScore 93, got %v", metrics["stabilityScore"])
	}
}

func TestStatusRequestShape(t *testing.T) {
	data, err := json.Marshal(newStatusRequest())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"type":"status_request"}` {
		t.Errorf("unexpected frame: %s", data)
	}
}
