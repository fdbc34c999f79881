package viewport

import (
	"sync"
	"sync/atomic"
	"time"
)

// Fates reported to the Debouncer's observer.
const (
	FateFired      = "fired"
	FateSuperseded = "superseded"
	FateCancelled  = "cancelled"
)

// Debouncer runs the most recent of a burst of calls once the burst has been
// quiet for a fixed delay.  Every Trigger cancels the pending call; a
// superseded call never runs, even if its timer already expired.
type Debouncer struct {
	delay   time.Duration
	observe func(fate string)

	mu      sync.Mutex
	timer   *time.Timer
	seq     uint64
	stopped bool
	running sync.WaitGroup

	fired      atomic.Uint64
	superseded atomic.Uint64
}

// NewDebouncer builds a Debouncer.  observe, when non-nil, is told the fate
// of every triggered call.
func NewDebouncer(delay time.Duration, observe func(fate string)) *Debouncer {
	if observe == nil {
		observe = func(string) {}
	}
	return &Debouncer{delay: delay, observe: observe}
}

// Trigger schedules fn after the delay, cancelling whatever was pending.
// After Stop it is a no-op.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	d.seq++
	seq := d.seq
	// When Stop fails the callback is already waiting on mu and will see a
	// newer seq, so it accounts for itself.
	if d.timer != nil && d.timer.Stop() {
		d.superseded.Add(1)
		d.observe(FateSuperseded)
	}
	d.timer = time.AfterFunc(d.delay, func() { d.fire(seq, fn) })
}

func (d *Debouncer) fire(seq uint64, fn func()) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		d.observe(FateCancelled)
		return
	}
	if seq != d.seq {
		d.mu.Unlock()
		d.superseded.Add(1)
		d.observe(FateSuperseded)
		return
	}
	d.timer = nil
	d.running.Add(1)
	d.mu.Unlock()

	defer d.running.Done()
	d.fired.Add(1)
	d.observe(FateFired)
	fn()
}

// Stop cancels the pending call and waits for a running one to return.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	if d.timer != nil && d.timer.Stop() {
		d.observe(FateCancelled)
	}
	d.timer = nil
	d.mu.Unlock()

	d.running.Wait()
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stats returns how many calls ran and how many were superseded.
func (d *Debouncer) Stats() (fired, superseded uint64) {
	return d.fired.Load(), d.superseded.Load()
}

//Personal.AI order the ending
