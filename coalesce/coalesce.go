/*
	Package coalesce debounces bursts of local mutation events into a single
	outgoing sync request.  A brush stroke fires many mutation notifications
	per second; sending a diff for each would flood the channel, so the
	flush runs once the edits go quiet.
*/
package coalesce

import (
	"sync"
	"time"
)

// Coalescer collapses rapid Notify calls into one flush.  Each qualifying
// notification restarts the debounce window; the flush fires once the window
// expires with no further notifications, so it observes the union of all
// changes in the burst.  The final state is never dropped.
type Coalescer struct {
	mu       sync.Mutex
	interval time.Duration
	flush    func()
	timer    *time.Timer
	stopped  bool
}

// New returns a Coalescer with the given debounce window calling flush on
// its own goroutine when the window expires.
func New(interval time.Duration, flush func()) *Coalescer {
	return &Coalescer{interval: interval, flush: flush}
}

// Notify records a local mutation event, starting or restarting the window.
// It never blocks the caller.
func (c *Coalescer) Notify() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	if c.timer == nil {
		c.timer = time.AfterFunc(c.interval, c.fire)
	} else {
		c.timer.Reset(c.interval)
	}
}

func (c *Coalescer) fire() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()
	c.flush()
}

// Pending reports whether a flush is currently scheduled.
func (c *Coalescer) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

// Stop cancels any scheduled flush and ignores further notifications.  It is
// idempotent and safe to call from any goroutine.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
