/*
	Package ws implements the sync transport over a websocket client
	connection.  Dialing retries with exponential backoff until the context
	is done; once open, a reader goroutine queues inbound text frames for
	non-blocking Receive polls.
*/
package ws

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	"github.com/janelia-flyem/voxelsync/voxelsync"
)

const inboxDepth = 256

// Conn is a websocket-backed transport.
type Conn struct {
	mu     sync.Mutex
	ws     *websocket.Conn
	inbox  chan string
	rdErr  error
	closed bool
}

// New returns an unopened websocket transport.
func New() *Conn {
	return &Conn{inbox: make(chan string, inboxDepth)}
}

// SessionURL builds the websocket endpoint for a session on a relay,
// mirroring the relay's routing: {base}/ws/sessions/{id}?token={token}.
// An http(s) base is rewritten to ws(s).
func SessionURL(base, sessionID, token string) string {
	base = strings.TrimRight(base, "/")
	if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	} else if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	}
	endpoint := base + "/ws/sessions/" + url.PathEscape(sessionID)
	if token != "" {
		endpoint += "?token=" + url.QueryEscape(token)
	}
	return endpoint
}

// Open dials the endpoint, retrying transient failures with exponential
// backoff until the context is done.
func (c *Conn) Open(ctx context.Context, endpoint string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return &voxelsync.TransportError{Op: "open", Err: fmt.Errorf("transport already closed")}
	}
	c.mu.Unlock()

	var ws *websocket.Conn
	dial := func() error {
		var err error
		ws, _, err = websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
		return err
	}
	policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	if err := backoff.Retry(dial, policy); err != nil {
		return &voxelsync.TransportError{Op: "open", Err: err}
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()

	go c.readLoop(ws)
	voxelsync.Infof("websocket transport open: %s\n", endpoint)
	return nil
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		msgType, raw, err := ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.rdErr == nil && !c.closed {
				c.rdErr = err
			}
			c.mu.Unlock()
			return
		}
		if msgType != websocket.TextMessage {
			voxelsync.Debugf("ignoring non-text websocket frame (%d)\n", msgType)
			continue
		}
		select {
		case c.inbox <- string(raw):
		default:
			// Inbox full: the poll loop has stalled badly.  Dropping the
			// oldest frame keeps liveness; a later full snapshot repairs
			// any missed delta.
			select {
			case <-c.inbox:
			default:
			}
			c.inbox <- string(raw)
			voxelsync.Warningf("websocket inbox overflow; dropped oldest frame\n")
		}
	}
}

// Send transmits one text frame.
func (c *Conn) Send(frame string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil || c.closed {
		return &voxelsync.TransportError{Op: "send", Err: fmt.Errorf("transport not open")}
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		return &voxelsync.TransportError{Op: "send", Err: err}
	}
	return nil
}

// Receive polls for one inbound frame without blocking.  Once the reader
// has failed and the queue is drained, the read error surfaces here.
func (c *Conn) Receive() (string, bool, error) {
	select {
	case frame := <-c.inbox:
		return frame, true, nil
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rdErr != nil {
		return "", false, &voxelsync.TransportError{Op: "receive", Err: c.rdErr}
	}
	if c.closed {
		return "", false, &voxelsync.TransportError{Op: "receive", Err: fmt.Errorf("transport closed")}
	}
	return "", false, nil
}

// Close releases the websocket.  Idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.ws != nil {
		// Best-effort close handshake; the peer's relay treats an abrupt
		// drop the same way.
		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteMessage(websocket.CloseMessage, closeMsg)
		return c.ws.Close()
	}
	return nil
}
