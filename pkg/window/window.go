// Package window provides a generic, thread-safe bounded retention window.
//
// Unlike a queue, a window is never drained by readers: it always retains
// the most recent items up to its capacity, evicting the oldest first, and
// hands out defensive copies of its contents. It tracks last-update time and
// a monotonically increasing update counter for observability.
package window

import (
	"sync"
	"time"
)

// Window is a bounded, ordered retention window over items of type T.
// Appends beyond capacity evict the oldest items (FIFO). All methods are
// safe for concurrent use.
type Window[T any] struct {
	mu    sync.RWMutex
	items []T
	cap   int
	start int // index of the oldest retained item
	size  int

	updateCount uint64
	evictions   uint64
	lastUpdate  time.Time
}

// New creates a window retaining at most capacity items. A capacity below 1
// is clamped to 1.
func New[T any](capacity int) *Window[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Window[T]{
		items: make([]T, capacity),
		cap:   capacity,
	}
}

// Append adds items to the end of the window, evicting oldest items as
// needed, and returns the number of evictions this call caused. The update
// counter is incremented once per call, not per item.
func (w *Window[T]) Append(items ...T) int {
	if len(items) == 0 {
		return 0
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	evicted := 0

	// A batch larger than the capacity can only ever retain its tail.
	if len(items) > w.cap {
		evicted += len(items) - w.cap
		items = items[len(items)-w.cap:]
	}

	for _, item := range items {
		if w.size == w.cap {
			var zero T
			w.items[w.start] = zero
			w.start = (w.start + 1) % w.cap
			w.size--
			evicted++
		}
		w.items[(w.start+w.size)%w.cap] = item
		w.size++
	}

	w.updateCount++
	w.evictions += uint64(evicted)
	w.lastUpdate = time.Now()

	return evicted
}

// Snapshot returns a defensive copy of the current contents in arrival
// order, oldest first. The result is never shared with the window.
func (w *Window[T]) Snapshot() []T {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]T, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.items[(w.start+i)%w.cap]
	}
	return out
}

// Len returns the number of items currently retained.
func (w *Window[T]) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.size
}

// Cap returns the maximum number of items the window retains.
func (w *Window[T]) Cap() int {
	return w.cap // immutable
}

// Clear removes all items. Counters and last-update time are preserved.
func (w *Window[T]) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()

	var zero T
	for i := range w.items {
		w.items[i] = zero
	}
	w.start = 0
	w.size = 0
}

// UpdateCount returns the number of Append calls since creation.
func (w *Window[T]) UpdateCount() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.updateCount
}

// Evictions returns the total number of items evicted due to capacity.
func (w *Window[T]) Evictions() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.evictions
}

// LastUpdate returns the time of the most recent Append, or the zero time
// if nothing has been appended yet.
func (w *Window[T]) LastUpdate() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastUpdate
}
