/*
	Package relay implements the session relay: a websocket fan-out server
	that forwards sync frames between the participants of a session.  The
	relay never decodes voxel payloads; it parses only the envelope to learn
	the originating participant and to convert join handshakes into
	user_joined announcements.
*/
package relay

import (
	"sync"

	"github.com/janelia-flyem/voxelsync/message"
	"github.com/janelia-flyem/voxelsync/voxelsync"
)

// Bridge propagates frames between relay instances so participants of one
// session can land on different servers.  A nil Bridge keeps the session
// single-instance.
type Bridge interface {
	// Publish sends a locally originated frame to the other instances
	// serving the session.
	Publish(sessionID, frame string)

	// Subscribe starts delivering remote frames for the session to sink
	// until the returned cancel func is called.
	Subscribe(sessionID string, sink func(frame string)) (cancel func())
}

// inbound is a frame received from one local participant.
type inbound struct {
	origin *client
	frame  string
}

// Hub fans frames out to the participants of one session.  All session
// state is owned by the run loop; external readers go through Stats.
type Hub struct {
	sessionID string

	register   chan *client
	unregister chan *client
	broadcast  chan inbound
	remote     chan string
	endReq     chan struct{}
	quit       chan struct{}

	clients map[*client]bool

	bridge         Bridge
	cancelBridge   func()
	onEmpty        func(*Hub)
	closeOnce      sync.Once
	statsMu        sync.Mutex
	connectedUsers int
	framesRelayed  uint64
}

func newHub(sessionID string, bridge Bridge, onEmpty func(*Hub)) *Hub {
	h := &Hub{
		sessionID:  sessionID,
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan inbound, 64),
		remote:     make(chan string, 64),
		endReq:     make(chan struct{}),
		quit:       make(chan struct{}),
		clients:    make(map[*client]bool),
		bridge:     bridge,
		onEmpty:    onEmpty,
	}
	if bridge != nil {
		h.cancelBridge = bridge.Subscribe(sessionID, func(frame string) {
			select {
			case h.remote <- frame:
			case <-h.quit:
			}
		})
	}
	go h.run()
	return h
}

// SessionID returns the session this hub serves.
func (h *Hub) SessionID() string {
	return h.sessionID
}

// Stats reports the current participant count and relayed frame total.
func (h *Hub) Stats() (users int, relayed uint64) {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	return h.connectedUsers, h.framesRelayed
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			h.setUserCount(len(h.clients))
			voxelsync.Infof("session %s: %s connected, %d participants\n",
				h.sessionID, c.userID, len(h.clients))
			h.sendRoster(c)
			h.announce(message.TypeUserJoined, c.userID)

		case c := <-h.unregister:
			if !h.clients[c] {
				break
			}
			delete(h.clients, c)
			close(c.send)
			h.setUserCount(len(h.clients))
			voxelsync.Infof("session %s: %s disconnected, %d participants\n",
				h.sessionID, c.userID, len(h.clients))
			h.announce(message.TypeUserLeft, c.userID)
			if len(h.clients) == 0 && h.onEmpty != nil {
				h.onEmpty(h)
			}

		case in := <-h.broadcast:
			h.relayLocal(in)

		case frame := <-h.remote:
			// Frames from other instances go to every local participant;
			// clients suppress their own echoes by userId.
			h.fanOut(frame, nil)

		case <-h.endReq:
			if env, err := message.New(message.TypeSessionEnded, "", nil); err == nil {
				if frame, err := env.Marshal(); err == nil {
					h.fanOut(frame, nil)
					if h.bridge != nil {
						h.bridge.Publish(h.sessionID, frame)
					}
				}
			}
			h.shutdown()
			return

		case <-h.quit:
			h.shutdown()
			return
		}
	}
}

func (h *Hub) shutdown() {
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.setUserCount(0)
	if h.cancelBridge != nil {
		h.cancelBridge()
	}
	h.stop()
}

// relayLocal routes one frame from a local participant.  Joins become
// user_joined announcements; everything else is forwarded opaquely.
func (h *Hub) relayLocal(in inbound) {
	env, err := message.Parse(in.frame)
	if err != nil {
		voxelsync.Warningf("session %s: dropping frame from %s: %v\n",
			h.sessionID, in.origin.userID, err)
		return
	}

	switch env.Type {
	case message.TypeJoin:
		// The handshake carries the participant's self-chosen identifier,
		// which overrides any placeholder assigned at upgrade time.
		if env.UserID != "" {
			in.origin.userID = env.UserID
		}
		h.announce(message.TypeUserJoined, in.origin.userID)

	case message.TypePing:
		// Liveness only; not forwarded.

	default:
		if h.fanOut(in.frame, in.origin) {
			h.statsMu.Lock()
			h.framesRelayed++
			h.statsMu.Unlock()
		}
		if h.bridge != nil {
			h.bridge.Publish(h.sessionID, in.frame)
		}
	}
}

// fanOut queues a frame on every participant except origin, reporting
// whether anyone got it.  A participant whose send queue is full is dropped
// rather than allowed to stall the whole session.
func (h *Hub) fanOut(frame string, origin *client) bool {
	delivered := false
	for c := range h.clients {
		if c == origin {
			continue
		}
		select {
		case c.send <- frame:
			delivered = true
		default:
			voxelsync.Warningf("session %s: %s cannot keep up, disconnecting\n",
				h.sessionID, c.userID)
			delete(h.clients, c)
			close(c.send)
			h.setUserCount(len(h.clients))
			h.announce(message.TypeUserLeft, c.userID)
		}
	}
	return delivered
}

// announce broadcasts a user_joined or user_left event with the current
// participant total to everyone, the subject included.
func (h *Hub) announce(t message.Type, userID string) {
	env, err := message.New(t, userID, message.UserEventData{TotalUsers: len(h.clients)})
	if err != nil {
		voxelsync.Errorf("session %s: unable to build %s announcement: %v\n", h.sessionID, t, err)
		return
	}
	frame, err := env.Marshal()
	if err != nil {
		voxelsync.Errorf("session %s: unable to marshal %s announcement: %v\n", h.sessionID, t, err)
		return
	}
	h.fanOut(frame, nil)
	if h.bridge != nil {
		h.bridge.Publish(h.sessionID, frame)
	}
}

// sendRoster gives a newly registered participant the current user list.
func (h *Hub) sendRoster(c *client) {
	users := make([]string, 0, len(h.clients))
	for member := range h.clients {
		users = append(users, member.userID)
	}
	env, err := message.New(message.TypeUserList, "", message.UserListData{Users: users})
	if err != nil {
		return
	}
	frame, err := env.Marshal()
	if err != nil {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

// end broadcasts session_ended to all participants and shuts the hub down.
func (h *Hub) end() {
	select {
	case h.endReq <- struct{}{}:
	case <-h.quit:
	}
}

func (h *Hub) stop() {
	h.closeOnce.Do(func() { close(h.quit) })
}

func (h *Hub) setUserCount(n int) {
	h.statsMu.Lock()
	h.connectedUsers = n
	h.statsMu.Unlock()
}

// Registry tracks the live hubs of a relay instance, one per session.
type Registry struct {
	mu     sync.Mutex
	hubs   map[string]*Hub
	bridge Bridge
}

// NewRegistry returns an empty hub registry.  The bridge may be nil for
// single-instance deployments.
func NewRegistry(bridge Bridge) *Registry {
	return &Registry{
		hubs:   make(map[string]*Hub),
		bridge: bridge,
	}
}

// Get returns the hub for a session, creating it on first use.
func (r *Registry) Get(sessionID string) *Hub {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, found := r.hubs[sessionID]; found {
		return h
	}
	h := newHub(sessionID, r.bridge, r.release)
	r.hubs[sessionID] = h
	voxelsync.Infof("created hub for session %s\n", sessionID)
	return h
}

// Sessions returns the identifiers of all live sessions.
func (r *Registry) Sessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.hubs))
	for id := range r.hubs {
		ids = append(ids, id)
	}
	return ids
}

// End terminates a session, notifying its participants.  Returns false if
// no such session is live.
func (r *Registry) End(sessionID string) bool {
	r.mu.Lock()
	h, found := r.hubs[sessionID]
	if found {
		delete(r.hubs, sessionID)
	}
	r.mu.Unlock()
	if found {
		h.end()
	}
	return found
}

// Shutdown ends every live session.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	hubs := make([]*Hub, 0, len(r.hubs))
	for _, h := range r.hubs {
		hubs = append(hubs, h)
	}
	r.hubs = make(map[string]*Hub)
	r.mu.Unlock()
	for _, h := range hubs {
		h.end()
	}
}

// release removes an empty hub so an idle session does not leak its run
// goroutine forever.
func (r *Registry) release(h *Hub) {
	r.mu.Lock()
	if r.hubs[h.sessionID] == h {
		delete(r.hubs, h.sessionID)
	}
	r.mu.Unlock()
	go h.stop()
	voxelsync.Debugf("released empty hub for session %s\n", h.sessionID)
}
