/*
	Package session owns the connection lifecycle of one participant's sync
	engine: join handshake, keepalive, inbound dispatch, echo suppression,
	debounced outbound diffs, and teardown.  All mutation and diffing for
	one volume happens on one logical sequence guarded by the session lock;
	independent sessions share nothing.
*/
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/janelia-flyem/voxelsync/coalesce"
	"github.com/janelia-flyem/voxelsync/codec"
	"github.com/janelia-flyem/voxelsync/diff"
	"github.com/janelia-flyem/voxelsync/message"
	"github.com/janelia-flyem/voxelsync/transport"
	"github.com/janelia-flyem/voxelsync/volume"
	"github.com/janelia-flyem/voxelsync/voxelsync"
)

// State is the connection state of a session.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Callbacks let the embedding application observe session events.  All are
// optional and are invoked outside the session lock.
type Callbacks struct {
	// OnStateChange fires on every connection state transition.
	OnStateChange func(State)

	// OnError surfaces peer-reported errors and the transport failure that
	// ended a session.
	OnError func(error)

	// OnSessionEnded fires when the relay announces the session was ended
	// by its host.
	OnSessionEnded func()
}

// Stats is a snapshot of session counters.
type Stats struct {
	State          State
	Sent           uint64
	Received       uint64
	ConnectedUsers int
}

// Session synchronizes one volume with remote participants over a
// transport.
type Session struct {
	mu sync.Mutex

	cfg    voxelsync.EngineConfig
	userID string
	codec  codec.Codec
	differ *diff.Engine
	tr     transport.Transport

	vol  *volume.Buffer
	prev *volume.Buffer // diffing baseline; nil until first successful sync

	coal *coalesce.Coalescer
	done chan struct{}

	state          State
	sent           uint64
	received       uint64
	connectedUsers int

	// applyingRemote guards against feedback loops: while a remote payload
	// is being applied, local mutation notifications are ignored so the
	// in-process write cannot recursively trigger an outgoing diff.
	applyingRemote bool

	callbacks Callbacks
}

// New creates a session for the given volume.  The participant identifier
// and endpoint come from the caller; the engine never reads ambient state.
func New(vol *volume.Buffer, tr transport.Transport, userID string, cfg voxelsync.EngineConfig, cb Callbacks) (*Session, error) {
	if vol == nil {
		return nil, fmt.Errorf("session requires a volume buffer")
	}
	if tr == nil {
		return nil, fmt.Errorf("session requires a transport")
	}
	if userID == "" {
		return nil, fmt.Errorf("session requires a participant identifier")
	}
	cfg.FillDefaults()
	compression, err := codec.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	return &Session{
		cfg:       cfg,
		userID:    userID,
		codec:     codec.New(compression),
		differ:    diff.NewEngine(cfg.FullResyncRatio),
		tr:        tr,
		vol:       vol,
		state:     Disconnected,
		callbacks: cb,
	}, nil
}

// UserID returns the local participant identifier.
func (s *Session) UserID() string {
	return s.userID
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		State:          s.state,
		Sent:           s.sent,
		Received:       s.received,
		ConnectedUsers: s.connectedUsers,
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	cb := s.callbacks.OnStateChange
	s.mu.Unlock()
	if changed && cb != nil {
		cb(state)
	}
}

// Connect opens the transport, performs the join handshake, and starts the
// keepalive and poll loops.  The wait for the Connected transition is
// bounded by the config's connect timeout unless ctx is stricter.
func (s *Session) Connect(ctx context.Context, endpoint string) error {
	s.mu.Lock()
	if s.state != Disconnected {
		s.mu.Unlock()
		return fmt.Errorf("connect attempted while %s", s.state)
	}
	s.mu.Unlock()
	s.setState(Connecting)

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout())
	defer cancel()
	if err := s.tr.Open(dialCtx, endpoint); err != nil {
		s.setState(Disconnected)
		if _, ok := err.(*voxelsync.TransportError); ok {
			return err
		}
		return &voxelsync.TransportError{Op: "open", Err: err}
	}

	join, err := message.New(message.TypeJoin, s.userID, message.JoinData{Version: voxelsync.Version})
	if err == nil {
		err = s.sendEnvelope(join)
	}
	if err != nil {
		s.tr.Close()
		s.setState(Disconnected)
		return err
	}

	s.mu.Lock()
	s.done = make(chan struct{})
	s.coal = coalesce.New(s.cfg.DebounceInterval(), s.flushUpdate)
	done := s.done
	s.mu.Unlock()
	s.setState(Connected)

	go s.pollLoop(done)
	go s.keepaliveLoop(done)

	voxelsync.Infof("session %s connected to %s\n", s.userID, endpoint)
	voxelsync.LogActivityToKafka(map[string]interface{}{
		"action": "join", "user": s.userID, "endpoint": endpoint,
	})
	return nil
}

// Disconnect tears the session down: stops all timers, releases the
// transport, resets counters, and clears the diffing baseline so the next
// connection re-bootstraps with a full snapshot.  Safe to call from any
// state and idempotent.
func (s *Session) Disconnect() {
	s.teardown(nil)
}

func (s *Session) teardown(cause error) {
	s.mu.Lock()
	if s.state == Disconnected && s.done == nil {
		s.mu.Unlock()
		return
	}
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	coal := s.coal
	s.coal = nil
	s.sent = 0
	s.received = 0
	s.connectedUsers = 0
	// Stale baselines across reconnects are unsafe to diff against.
	s.prev = nil
	cb := s.callbacks
	s.mu.Unlock()

	if coal != nil {
		coal.Stop()
	}
	s.tr.Close()
	if cause != nil {
		voxelsync.Errorf("session %s ended: %v\n", s.userID, cause)
		if cb.OnError != nil {
			cb.OnError(cause)
		}
	}
	s.setState(Disconnected)
}

// NotifyLocalMutation records a local edit event.  It never blocks: the
// actual diff is computed when the debounce window expires.  Notifications
// during a remote apply are ignored to avoid feedback loops.
func (s *Session) NotifyLocalMutation() {
	s.mu.Lock()
	if s.state != Connected || s.applyingRemote || s.coal == nil {
		s.mu.Unlock()
		return
	}
	coal := s.coal
	s.mu.Unlock()
	coal.Notify()
}

func (s *Session) flushUpdate() {
	if err := s.SendUpdate(); err != nil {
		if _, ok := err.(*voxelsync.TransportError); ok {
			s.teardown(err)
			return
		}
		voxelsync.Errorf("session %s sync send failed: %v\n", s.userID, err)
	}
}

// SendUpdate computes the diff between the baseline and the current volume
// state and transmits it immediately, bypassing the debounce window.  A
// missing baseline or an over-threshold change ratio sends a full snapshot
// instead of a delta; no difference sends nothing.
func (s *Session) SendUpdate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Connected {
		return nil
	}

	r := s.differ.Compute(s.prev, s.vol)
	switch {
	case r.FullRequired:
		return s.sendFullLocked()
	case r.Delta != nil:
		for dim := uint8(0); dim < 3; dim++ {
			if s.vol.Dims[dim] > message.MaxDeltaDim {
				return s.sendFullLocked()
			}
		}
		return s.sendDeltaLocked(r.Delta)
	default:
		return nil
	}
}

func (s *Session) sendDeltaLocked(d *volume.Delta) error {
	data, err := message.EncodeDelta(d, s.vol.Spacing, s.vol.Origin, s.codec)
	if err != nil {
		return err
	}
	env, err := message.New(message.TypeDelta, s.userID, data)
	if err != nil {
		return err
	}
	frame, err := env.Marshal()
	if err != nil {
		return err
	}
	if err := s.tr.Send(frame); err != nil {
		return err
	}
	s.sent++
	s.prev = s.vol.Snapshot()
	voxelsync.Infof("session %s sent delta #%d: %d voxels, %s frame\n",
		s.userID, s.sent, d.NumChanges(), humanize.Bytes(uint64(len(frame))))
	voxelsync.LogActivityToKafka(map[string]interface{}{
		"action": "delta-sent", "user": s.userID, "voxels": d.NumChanges(),
	})
	return nil
}

func (s *Session) sendFullLocked() error {
	data, err := message.EncodeSnapshot(s.vol, s.codec)
	if err != nil {
		return err
	}
	env, err := message.New(message.TypeFullSnapshot, s.userID, data)
	if err != nil {
		return err
	}
	frame, err := env.Marshal()
	if err != nil {
		return err
	}
	if err := s.tr.Send(frame); err != nil {
		return err
	}
	s.sent++
	s.prev = s.vol.Snapshot()
	voxelsync.Infof("session %s sent full snapshot #%d: %d voxels, %s frame\n",
		s.userID, s.sent, s.vol.NumVoxels(), humanize.Bytes(uint64(len(frame))))
	voxelsync.LogActivityToKafka(map[string]interface{}{
		"action": "snapshot-sent", "user": s.userID, "voxels": s.vol.NumVoxels(),
	})
	return nil
}

// sendEnvelope transmits a non-counted control message (join, ping).
func (s *Session) sendEnvelope(env *message.Envelope) error {
	frame, err := env.Marshal()
	if err != nil {
		return err
	}
	return s.tr.Send(frame)
}
