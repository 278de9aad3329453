/*
	Package inproc provides an in-process loopback transport pair used by
	session tests and local tooling: frames sent on one side become
	receivable on the other, with no network involved.
*/
package inproc

import (
	"context"
	"fmt"
	"sync"
)

const queueDepth = 256

// Conn is one side of an in-process transport pair.
type Conn struct {
	mu     sync.Mutex
	peer   *Conn
	inbox  chan string
	open   bool
	closed bool
	// failNext, when set, makes the next Send or Receive return an error,
	// simulating a mid-session transport drop.
	failNext error
}

// Pair returns two connected transport ends.
func Pair() (*Conn, *Conn) {
	a := &Conn{inbox: make(chan string, queueDepth)}
	b := &Conn{inbox: make(chan string, queueDepth)}
	a.peer = b
	b.peer = a
	return a, b
}

// Open marks the side usable.  The endpoint is ignored, and a closed side
// may be reopened so reconnect flows can reuse one pair.
func (c *Conn) Open(ctx context.Context, endpoint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = true
	c.closed = false
	return nil
}

// Send queues a frame on the peer's inbox.
func (c *Conn) Send(frame string) error {
	c.mu.Lock()
	if err := c.failNext; err != nil {
		c.failNext = nil
		c.mu.Unlock()
		return err
	}
	if !c.open || c.closed {
		c.mu.Unlock()
		return fmt.Errorf("inproc transport not open")
	}
	peer := c.peer
	c.mu.Unlock()

	select {
	case peer.inbox <- frame:
		return nil
	default:
		return fmt.Errorf("inproc peer inbox full")
	}
}

// Receive polls the inbox without blocking.
func (c *Conn) Receive() (string, bool, error) {
	c.mu.Lock()
	if err := c.failNext; err != nil {
		c.failNext = nil
		c.mu.Unlock()
		return "", false, err
	}
	if c.closed {
		c.mu.Unlock()
		return "", false, fmt.Errorf("inproc transport closed")
	}
	c.mu.Unlock()

	select {
	case frame := <-c.inbox:
		return frame, true, nil
	default:
		return "", false, nil
	}
}

// Close marks the side closed.  Idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.open = false
	return nil
}

// FailNext arranges for the next Send or Receive to return err, simulating
// a transport failure.
func (c *Conn) FailNext(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = err
}

// Drain returns all frames currently queued for this side, for assertions
// in tests.
func (c *Conn) Drain() []string {
	var frames []string
	for {
		select {
		case frame := <-c.inbox:
			frames = append(frames, frame)
		default:
			return frames
		}
	}
}
