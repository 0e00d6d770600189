package session

import (
	"sync"
	"sync/atomic"
	"time"
)

// gate is a single-flight guard: one holder at a time, no queueing.
// TryAcquire fails immediately instead of blocking, which is what
// use-cases that must not overlap themselves need.
type gate struct {
	held atomic.Bool
}

// TryAcquire takes the gate if free. Callers must Release on every
// path, typically with defer.
func (g *gate) TryAcquire() bool {
	return g.held.CompareAndSwap(false, true)
}

// Release frees the gate.
func (g *gate) Release() {
	g.held.Store(false)
}

// debouncer suppresses repeat triggers inside a cooldown window. Exit
// zones fire on every collision frame; only the first trigger within
// the window advances the chapter.
type debouncer struct {
	mu       sync.Mutex
	until    time.Time
	cooldown time.Duration
	now      func() time.Time // injectable for tests
}

func newDebouncer(cooldown time.Duration) *debouncer {
	return &debouncer{cooldown: cooldown, now: time.Now}
}

// Begin reports whether the trigger is outside the cooldown window and
// opens a new window when it is.
func (d *debouncer) Begin() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if now.Before(d.until) {
		return false
	}
	d.until = now.Add(d.cooldown)
	return true
}
