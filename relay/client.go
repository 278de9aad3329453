package relay

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/twinj/uuid"

	"github.com/janelia-flyem/voxelsync/voxelsync"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// sendQueueDepth bounds the per-participant outbound queue; a full
	// queue gets the participant disconnected rather than stalling peers.
	sendQueueDepth = 64
)

// client is one websocket participant attached to a hub.  The userID starts
// as a placeholder and is replaced by the identifier in the participant's
// join handshake.
type client struct {
	hub    *Hub
	ws     *websocket.Conn
	send   chan string
	userID string
}

func newClient(h *Hub, ws *websocket.Conn, userID string) *client {
	if userID == "" {
		userID = "anon-" + uuid.NewV4().String()
	}
	return &client{
		hub:    h,
		ws:     ws,
		send:   make(chan string, sendQueueDepth),
		userID: userID,
	}
}

// serve attaches the client to its hub and runs the read and write pumps.
// It returns when the connection is gone.
func (c *client) serve() {
	select {
	case c.hub.register <- c:
	case <-c.hub.quit:
		c.ws.Close()
		return
	}
	go c.writePump()
	c.readPump()
}

// readPump forwards inbound frames to the hub until the connection drops.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
		}
		c.ws.Close()
	}()
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		msgType, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				voxelsync.Debugf("session %s: %s read error: %v\n",
					c.hub.sessionID, c.userID, err)
			}
			return
		}
		// Application-level pings also refresh the read deadline.
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		if msgType != websocket.TextMessage {
			continue
		}
		select {
		case c.hub.broadcast <- inbound{origin: c, frame: string(raw)}:
		case <-c.hub.quit:
			return
		}
	}
}

// writePump drains the send queue onto the websocket and keeps the
// connection alive with protocol pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
