package channel

import "time"

// pingSample is one probe result. OK is false when the pong deadline passed
// without an answer; RTT is zero in that case.
type pingSample struct {
	RTT time.Duration
	OK  bool
	At  time.Time
}

// sampleRing is a fixed-capacity ring of recent probe results. Pushing into
// a full ring evicts the oldest sample. Not goroutine safe; the monitor
// guards it with its own mutex.
type sampleRing struct {
	buf   []pingSample
	head  int // index of the oldest sample
	count int
}

func newSampleRing(capacity int) *sampleRing {
	if capacity < 1 {
		capacity = 1
	}
	return &sampleRing{buf: make([]pingSample, capacity)}
}

// Push appends s, evicting the oldest sample when the ring is full.
func (r *sampleRing) Push(s pingSample) {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = s
		r.count++
		return
	}
	r.buf[r.head] = s
	r.head = (r.head + 1) % len(r.buf)
}

// Len returns the number of stored samples.
func (r *sampleRing) Len() int { return r.count }

// Snapshot returns the samples oldest first.
func (r *sampleRing) Snapshot() []pingSample {
	out := make([]pingSample, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Reset drops all samples.
func (r *sampleRing) Reset() {
	r.head = 0
	r.count = 0
}
