package session

import (
	"fmt"
	"time"

	"github.com/janelia-flyem/voxelsync/message"
	"github.com/janelia-flyem/voxelsync/reconcile"
	"github.com/janelia-flyem/voxelsync/voxelsync"
)

// pollLoop drains inbound frames on a fixed interval and routes them by
// message tag.  A transport-level receive error is authoritative and ends
// the session; per-message failures are logged and isolated.
func (s *Session) pollLoop(done chan struct{}) {
	ticker := time.NewTicker(s.cfg.PollInterval())
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			for {
				frame, ok, err := s.tr.Receive()
				if err != nil {
					s.teardown(err)
					return
				}
				if !ok {
					break
				}
				s.dispatch(frame)
			}
		}
	}
}

// keepaliveLoop sends a ping on a fixed interval to detect half-open
// connections.  A missed response is a soft signal only; the transport's
// own error event is what ends the session.
func (s *Session) keepaliveLoop(done chan struct{}) {
	ticker := time.NewTicker(s.cfg.KeepaliveInterval())
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ping, err := message.New(message.TypePing, "", nil)
			if err == nil {
				err = s.sendEnvelope(ping)
			}
			if err != nil {
				if _, ok := err.(*voxelsync.TransportError); ok {
					s.teardown(err)
					return
				}
				voxelsync.Warningf("session %s keepalive send failed: %v\n", s.userID, err)
			}
		}
	}
}

func (s *Session) dispatch(frame string) {
	env, err := message.Parse(frame)
	if err != nil {
		voxelsync.Warningf("session %s ignoring message: %v\n", s.userID, err)
		return
	}

	switch env.Type {
	case message.TypeDelta:
		if s.isEcho(env) {
			return
		}
		s.applyDelta(env)

	case message.TypeFullSnapshot:
		if s.isEcho(env) {
			return
		}
		s.applyFull(env)

	case message.TypeJoin:
		// Relays convert joins to user_joined broadcasts, but a direct
		// peer-to-peer transport delivers them raw.
		join, err := env.DecodeJoin()
		if err != nil {
			voxelsync.Warningf("session %s: %v\n", s.userID, err)
			return
		}
		if !voxelsync.VersionCompatible(join.Version) {
			voxelsync.Warningf("participant %s runs incompatible engine version %s (local %s)\n",
				env.UserID, join.Version, voxelsync.Version)
		}

	case message.TypeUserJoined, message.TypeUserLeft:
		data, err := env.DecodeUserEvent()
		if err != nil {
			voxelsync.Warningf("session %s: %v\n", s.userID, err)
			return
		}
		s.mu.Lock()
		s.connectedUsers = data.TotalUsers
		s.mu.Unlock()
		voxelsync.Debugf("session %s: %s %s, %d users connected\n",
			s.userID, env.UserID, env.Type, data.TotalUsers)

	case message.TypeUserList:
		data, err := env.DecodeUserList()
		if err != nil {
			voxelsync.Warningf("session %s: %v\n", s.userID, err)
			return
		}
		s.mu.Lock()
		s.connectedUsers = len(data.Users)
		s.mu.Unlock()

	case message.TypeSessionEnded:
		voxelsync.Infof("session %s ended by host\n", s.userID)
		s.mu.Lock()
		cb := s.callbacks.OnSessionEnded
		s.mu.Unlock()
		if cb != nil {
			cb()
		}
		// Teardown must not block the poll loop that called us.
		go s.teardown(nil)

	case message.TypeError:
		data, _ := env.DecodeError()
		voxelsync.Errorf("session %s peer error: %s\n", s.userID, data.Message)
		s.mu.Lock()
		cb := s.callbacks.OnError
		s.mu.Unlock()
		if cb != nil {
			cb(fmt.Errorf("peer error: %s", data.Message))
		}

	case message.TypePing:
		// Liveness only.

	default:
		// Parse already rejects unknown tags; nothing to do.
	}
}

// isEcho discards inbound payloads that originated from this participant,
// preventing re-application of our own just-sent edits when the transport
// reflects them back.  Echoes do not count as received messages.
func (s *Session) isEcho(env *message.Envelope) bool {
	if env.UserID == s.userID {
		voxelsync.Debugf("session %s suppressed echoed %s\n", s.userID, env.Type)
		return true
	}
	return false
}

func (s *Session) applyDelta(env *message.Envelope) {
	d, err := env.DecodeDeltaPayload(s.codec)
	if err != nil {
		voxelsync.Errorf("session %s dropping delta from %s: %v\n", s.userID, env.UserID, err)
		return
	}

	s.mu.Lock()
	s.applyingRemote = true
	err = reconcile.ApplyDelta(s.vol, d)
	if applyErr, ok := err.(*voxelsync.ApplyError); ok {
		voxelsync.Warningf("session %s delta from %s: %v\n", s.userID, env.UserID, applyErr)
		err = nil
	}
	if err == nil {
		// Remote-derived state becomes the new diffing baseline so the next
		// local diff does not re-send voxels the peer already supplied.
		s.prev = s.vol.Snapshot()
		s.received++
	}
	s.applyingRemote = false
	received := s.received
	s.mu.Unlock()

	if err != nil {
		voxelsync.Errorf("session %s failed to apply delta from %s: %v\n", s.userID, env.UserID, err)
		return
	}
	voxelsync.Infof("session %s applied delta #%d from %s: %d voxels\n",
		s.userID, received, env.UserID, d.NumChanges())
	voxelsync.LogActivityToKafka(map[string]interface{}{
		"action": "delta-applied", "user": s.userID, "from": env.UserID, "voxels": d.NumChanges(),
	})
}

func (s *Session) applyFull(env *message.Envelope) {
	snap, err := env.DecodeSnapshotPayload(s.codec)
	if err != nil {
		voxelsync.Errorf("session %s dropping snapshot from %s: %v\n", s.userID, env.UserID, err)
		return
	}

	s.mu.Lock()
	s.applyingRemote = true
	err = reconcile.ApplyFull(s.vol, snap)
	if err == nil {
		s.prev = s.vol.Snapshot()
		s.received++
	}
	s.applyingRemote = false
	received := s.received
	s.mu.Unlock()

	if err != nil {
		voxelsync.Errorf("session %s failed to apply snapshot from %s: %v\n", s.userID, env.UserID, err)
		return
	}
	voxelsync.Infof("session %s applied full snapshot #%d from %s: %d voxels\n",
		s.userID, received, env.UserID, snap.NumVoxels())
	voxelsync.LogActivityToKafka(map[string]interface{}{
		"action": "snapshot-applied", "user": s.userID, "from": env.UserID, "voxels": snap.NumVoxels(),
	})
}
