package engine

import (
	"sync"
	"time"
)

// DefaultDebounceWindow is the quiescence window for coalesced position
// writes, measured from the last change in a drag gesture.
const DefaultDebounceWindow = 500 * time.Millisecond

// debouncer holds one pending scheduled task per key. Scheduling a key that
// already has a pending task cancels and replaces it; keys never interfere
// with each other.
type debouncer struct {
	mu     sync.Mutex
	window time.Duration
	timers map[string]*time.Timer
}

func newDebouncer(window time.Duration) *debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}

	return &debouncer{
		window: window,
		timers: map[string]*time.Timer{},
	}
}

func (d *debouncer) Schedule(key string, task func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, ok := d.timers[key]; ok {
		timer.Stop()
	}

	d.timers[key] = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		delete(d.timers, key)
		d.mu.Unlock()

		task()
	})
}

func (d *debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, ok := d.timers[key]; ok {
		timer.Stop()
		delete(d.timers, key)
	}
}

func (d *debouncer) CancelAll() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, timer := range d.timers {
		timer.Stop()
		delete(d.timers, key)
	}
}
