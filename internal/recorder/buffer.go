package recorder

import "sync"

// feed is a thread-safe queue between the bus subscription and a writer's
// consume loop. It grows by doubling when it passes 70% of capacity, so a
// slow flush never blocks event dispatch.
type feed[T any] struct {
	mu       sync.Mutex
	buf      []T
	head     int
	tail     int
	count    int
	capacity int
	closed   bool

	enqueued int64
	dequeued int64
	dropped  int64
	resizes  int
}

func newFeed[T any](capacity int) *feed[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &feed[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
	}
}

// push enqueues one item. Returns false once the feed is closed.
func (f *feed[T]) push(item T) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		f.dropped++
		return false
	}

	threshold := (f.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if f.count+1 >= threshold {
		f.grow()
	}

	f.buf[f.tail] = item
	f.tail = (f.tail + 1) % f.capacity
	f.count++
	f.enqueued++
	return true
}

// tryPop dequeues one item without blocking.
func (f *feed[T]) tryPop() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.count == 0 {
		var zero T
		return zero, false
	}

	item := f.buf[f.head]
	var zero T
	f.buf[f.head] = zero // release for GC
	f.head = (f.head + 1) % f.capacity
	f.count--
	f.dequeued++
	return item, true
}

func (f *feed[T]) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *feed[T]) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

// grow doubles capacity. Caller holds mu.
func (f *feed[T]) grow() {
	next := make([]T, f.capacity*2)
	if f.count > 0 {
		if f.head < f.tail {
			copy(next, f.buf[f.head:f.tail])
		} else {
			n := copy(next, f.buf[f.head:])
			copy(next[n:], f.buf[:f.tail])
		}
	}
	f.buf = next
	f.head = 0
	f.tail = f.count
	f.capacity *= 2
	f.resizes++
}

// FeedStats describes one writer's input queue.
type FeedStats struct {
	Count    int
	Capacity int
	Enqueued int64
	Dequeued int64
	Dropped  int64
	Resizes  int
}

func (f *feed[T]) stats() FeedStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return FeedStats{
		Count:    f.count,
		Capacity: f.capacity,
		Enqueued: f.enqueued,
		Dequeued: f.dequeued,
		Dropped:  f.dropped,
		Resizes:  f.resizes,
	}
}
