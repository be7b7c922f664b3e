package recorder

import (
	"testing"
	"time"

	"github.com/avellar/opswire/internal/channel"
)

func TestStatusWriter_Transform_FansOutPerServer(t *testing.T) {
	input := newFeed[channel.Event](10)
	w := NewStatusWriter(DefaultConfig(), input, nil, nil)

	at := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	ev := channel.Event{
		Type: channel.EventStatusUpdate,
		At:   at,
		Servers: []channel.ServerInfo{
			{ID: "srv-1", Name: "files", Status: "running", ToolCount: 7},
			{ID: "srv-2", Name: "search", Status: "stopped", ToolCount: 0},
		},
	}

	rows := w.transform(ev)

	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if rows[0].ServerID != "srv-1" || rows[0].Status != "running" || rows[0].ToolCount != 7 {
		t.Errorf("rows[0] = %+v, want srv-1/running/7", rows[0])
	}
	if rows[1].ServerID != "srv-2" || rows[1].Status != "stopped" {
		t.Errorf("rows[1] = %+v, want srv-2/stopped", rows[1])
	}
	if rows[0].At != at.UnixMicro() {
		t.Errorf("At = %d, want %d", rows[0].At, at.UnixMicro())
	}
}

func TestStatusWriter_Transform_EmptyUpdate(t *testing.T) {
	input := newFeed[channel.Event](10)
	w := NewStatusWriter(DefaultConfig(), input, nil, nil)

	rows := w.transform(channel.Event{Type: channel.EventStatusUpdate, At: time.Now()})

	if len(rows) != 0 {
		t.Errorf("len(rows) = %d, want 0", len(rows))
	}
}
