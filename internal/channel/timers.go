package channel

import (
	"sync"
	"time"
)

// Timer slot names. One named slot exists per waiting purpose; arming a
// slot replaces whatever was armed on it before.
const (
	slotStall     = "stall"
	slotReconnect = "reconnect"
	slotStatus    = "status"
	slotPong      = "pong"
)

// timerSet owns the named one-shot timers for a component. It enforces
// cancel-before-arm: a slot never has more than one outstanding timer.
type timerSet struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newTimerSet() *timerSet {
	return &timerSet{timers: make(map[string]*time.Timer)}
}

// Arm schedules fn to run after d on the named slot, replacing any timer
// already armed there. fn runs on the timer goroutine and must re-check
// state: a callback that already started cannot be cancelled.
func (t *timerSet) Arm(name string, d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.timers[name]; ok {
		old.Stop()
	}
	var tm *time.Timer
	tm = time.AfterFunc(d, func() {
		t.mu.Lock()
		if t.timers[name] == tm {
			delete(t.timers, name)
		}
		t.mu.Unlock()
		fn()
	})
	t.timers[name] = tm
}

// Cancel stops the named slot if armed.
func (t *timerSet) Cancel(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tm, ok := t.timers[name]; ok {
		tm.Stop()
		delete(t.timers, name)
	}
}

// CancelAll stops every armed slot.
func (t *timerSet) CancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, tm := range t.timers {
		tm.Stop()
		delete(t.timers, name)
	}
}

// Armed reports whether the named slot has an outstanding timer.
func (t *timerSet) Armed(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[name]
	return ok
}
