package recorder

import (
	"testing"
	"time"

	"github.com/avellar/opswire/internal/channel"
)

// fakeSource satisfies Source without a live manager.
type fakeSource struct {
	handler channel.Handler
	stats   channel.ManagerStats
}

func (s *fakeSource) Subscribe(fn channel.Handler) int64 {
	s.handler = fn
	return 1
}

func (s *fakeSource) Unsubscribe(int64) { s.handler = nil }

func (s *fakeSource) Stats() channel.ManagerStats { return s.stats }

func TestRecorder_RoutesEventsToFeeds(t *testing.T) {
	src := &fakeSource{stats: channel.ManagerStats{State: channel.StateOpen, Attempt: 3}}
	r := New(Config{BufferSize: 10}, src, nil, nil, nil)

	// Route directly through the handler; no writers running.
	r.handleEvent(channel.Event{Type: channel.EventConnected, At: time.Now()})
	r.handleEvent(channel.Event{Type: channel.EventQuality, At: time.Now()})
	r.handleEvent(channel.Event{Type: channel.EventStatusUpdate, At: time.Now()})
	r.handleEvent(channel.Event{Type: channel.EventMessage, At: time.Now()})
	r.handleEvent(channel.Event{Type: channel.EventToolUpdate, At: time.Now()})

	if got := r.eventFeed.len(); got != 1 {
		t.Errorf("eventFeed len = %d, want 1", got)
	}
	if got := r.qualityFeed.len(); got != 1 {
		t.Errorf("qualityFeed len = %d, want 1", got)
	}
	if got := r.statusFeed.len(); got != 1 {
		t.Errorf("statusFeed len = %d, want 1", got)
	}

	rec, ok := r.eventFeed.tryPop()
	if !ok {
		t.Fatal("eventFeed empty")
	}
	if rec.Attempt != 3 {
		t.Errorf("Attempt = %d, want 3 from source stats", rec.Attempt)
	}
	if rec.State != channel.StateOpen {
		t.Errorf("State = %v, want open", rec.State)
	}
}

func TestRecorder_MessagePayloadsNeverQueued(t *testing.T) {
	src := &fakeSource{}
	r := New(Config{BufferSize: 10}, src, nil, nil, nil)

	for i := 0; i < 20; i++ {
		r.handleEvent(channel.Event{
			Type:    channel.EventMessage,
			At:      time.Now(),
			Payload: []byte(`{"secret":"payload"}`),
		})
	}

	if got := r.eventFeed.len() + r.qualityFeed.len() + r.statusFeed.len(); got != 0 {
		t.Errorf("queued rows = %d, want 0 for message payloads", got)
	}
}
