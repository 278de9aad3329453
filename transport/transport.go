/*
	Package transport abstracts the duplex, message-framed channel a sync
	session speaks over.  The engine only assumes ordered text-frame
	exchange; concrete implementations live in subpackages (an in-process
	loopback for tests, a websocket client for production).
*/
package transport

import "context"

// Transport is a duplex text-frame channel.
//
// Receive is non-blocking: it returns the next queued inbound frame with
// ok=true, or ok=false when nothing is waiting.  A non-nil error from any
// method signals transport-level failure, which is the only authoritative
// disconnect trigger; the session then tears down and must re-bootstrap on
// the next connect.
type Transport interface {
	// Open establishes the channel to the given endpoint.  It blocks until
	// connected, the context is done, or the dial fails.
	Open(ctx context.Context, endpoint string) error

	// Send transmits one text frame.
	Send(frame string) error

	// Receive polls for one inbound text frame without blocking.
	Receive() (frame string, ok bool, err error)

	// Close releases the channel.  It is idempotent.
	Close() error
}
