package debounce

import (
	"sync"
	"sync/atomic"
	"time"
)

// Debouncer runs the most recently triggered action once a quiet period has
// elapsed without further triggers. Each instance owns its own timer.
type Debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	duration time.Duration
	seq      uint64 // invalidates timers that fired while being replaced
	stopped  bool
}

// New creates a Debouncer with the given quiet period.
func New(duration time.Duration) *Debouncer {
	return &Debouncer{duration: duration}
}

// Duration returns the configured quiet period.
func (d *Debouncer) Duration() time.Duration {
	return d.duration
}

// Trigger schedules action to run after the quiet period, replacing any action
// still pending. Triggers after Stop are ignored.
func (d *Debouncer) Trigger(action func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}

	d.seq++
	currentSeq := d.seq

	d.timer = time.AfterFunc(d.duration, func() {
		d.mu.Lock()
		if d.seq != currentSeq || d.stopped {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()

		action()
	})
}

// Pending reports whether an action is scheduled and has not fired yet.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Cancel drops the pending action, if any. Safe to call when nothing is pending.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer == nil {
		return false
	}
	d.timer.Stop()
	d.timer = nil
	d.seq++
	return true
}

// Stop cancels the pending action and rejects future triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
}

// Epoch is a generation counter for a stream of overlapping requests. Only the
// holder of the current value may commit results.
type Epoch struct {
	n atomic.Uint64
}

// Next mints a new epoch and makes it current.
func (e *Epoch) Next() uint64 {
	return e.n.Add(1)
}

// Current returns the latest minted epoch, or 0 if none has been minted.
func (e *Epoch) Current() uint64 {
	return e.n.Load()
}

// IsCurrent reports whether v is still the latest minted epoch.
func (e *Epoch) IsCurrent(v uint64) bool {
	return e.n.Load() == v
}
