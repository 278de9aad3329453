package relay

import (
	"sync"
	"testing"
	"time"

	"github.com/janelia-flyem/voxelsync/message"
)

// fakeParticipant attaches to a hub without a websocket so hub routing can
// be tested in-memory.
func fakeParticipant(t *testing.T, h *Hub, userID string) *client {
	t.Helper()
	c := &client{hub: h, send: make(chan string, sendQueueDepth), userID: userID}
	select {
	case h.register <- c:
	case <-time.After(time.Second):
		t.Fatalf("hub did not accept registration for %s\n", userID)
	}
	return c
}

func say(t *testing.T, h *Hub, origin *client, frame string) {
	t.Helper()
	select {
	case h.broadcast <- inbound{origin: origin, frame: frame}:
	case <-time.After(time.Second):
		t.Fatalf("hub did not accept frame from %s\n", origin.userID)
	}
}

// nextFrame waits for one frame of the wanted type on a participant's queue,
// failing on any other non-announcement type.
func nextFrame(t *testing.T, c *client, want message.Type) *message.Envelope {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				t.Fatalf("send queue closed while waiting for %s\n", want)
			}
			env, err := message.Parse(frame)
			if err != nil {
				t.Fatalf("hub relayed unparseable frame: %v\n", err)
			}
			if env.Type == want {
				return env
			}
		case <-deadline:
			t.Fatalf("no %s frame within a second\n", want)
		}
	}
}

func marshalFrame(t *testing.T, typ message.Type, userID string, data interface{}) string {
	t.Helper()
	env, err := message.New(typ, userID, data)
	if err != nil {
		t.Fatalf("message.New error: %v\n", err)
	}
	frame, err := env.Marshal()
	if err != nil {
		t.Fatalf("Marshal error: %v\n", err)
	}
	return frame
}

func TestRegistrationAnnouncesAndSendsRoster(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Shutdown()
	h := r.Get("s1")

	alice := fakeParticipant(t, h, "alice")
	roster := nextFrame(t, alice, message.TypeUserList)
	list, err := roster.DecodeUserList()
	if err != nil || len(list.Users) != 1 || list.Users[0] != "alice" {
		t.Errorf("Expected roster [alice], got %+v (%v)\n", list, err)
	}

	bob := fakeParticipant(t, h, "bob")
	joined := nextFrame(t, alice, message.TypeUserJoined)
	if joined.UserID != "bob" {
		t.Errorf("Expected user_joined for bob, got %q\n", joined.UserID)
	}
	ev, _ := joined.DecodeUserEvent()
	if ev.TotalUsers != 2 {
		t.Errorf("Expected totalUsers 2, got %d\n", ev.TotalUsers)
	}

	roster = nextFrame(t, bob, message.TypeUserList)
	list, _ = roster.DecodeUserList()
	if len(list.Users) != 2 {
		t.Errorf("Expected 2-user roster for bob, got %+v\n", list)
	}
}

func TestFanOutExcludesOrigin(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Shutdown()
	h := r.Get("s1")
	alice := fakeParticipant(t, h, "alice")
	bob := fakeParticipant(t, h, "bob")

	frame := marshalFrame(t, message.TypeDelta, "alice", map[string]string{"indices": "", "values": "", "dataType": "uint8"})
	say(t, h, alice, frame)

	env := nextFrame(t, bob, message.TypeDelta)
	if env.UserID != "alice" {
		t.Errorf("Relayed delta lost its origin userId: %q\n", env.UserID)
	}

	// The origin must not get its own frame back from the hub.
	time.Sleep(50 * time.Millisecond)
	for drained := false; !drained; {
		select {
		case f := <-alice.send:
			env, err := message.Parse(f)
			if err == nil && env.Type == message.TypeDelta {
				t.Errorf("Origin received its own delta back\n")
			}
		default:
			drained = true
		}
	}

	if _, relayed := h.Stats(); relayed != 1 {
		t.Errorf("Expected 1 relayed frame, got %d\n", relayed)
	}
}

func TestJoinBecomesUserJoined(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Shutdown()
	h := r.Get("s1")
	anon := fakeParticipant(t, h, "anon-1")
	bob := fakeParticipant(t, h, "bob")

	say(t, h, anon, marshalFrame(t, message.TypeJoin, "alice", message.JoinData{Version: "1.0.0"}))

	env := nextFrame(t, bob, message.TypeUserJoined)
	if env.UserID != "alice" {
		t.Errorf("Join handshake not converted to user_joined for alice, got %q\n", env.UserID)
	}
	if anon.userID != "alice" {
		t.Errorf("Handshake did not replace placeholder identifier, still %q\n", anon.userID)
	}
}

func TestMalformedAndPingFramesNotRelayed(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Shutdown()
	h := r.Get("s1")
	alice := fakeParticipant(t, h, "alice")
	bob := fakeParticipant(t, h, "bob")
	nextFrame(t, bob, message.TypeUserList)

	say(t, h, alice, "garbage{{{")
	say(t, h, alice, marshalFrame(t, message.TypePing, "", nil))

	time.Sleep(50 * time.Millisecond)
	select {
	case f := <-bob.send:
		env, err := message.Parse(f)
		if err != nil || env.Type == message.TypePing {
			t.Errorf("Non-relayable frame reached a peer: %q\n", f)
		}
	default:
	}

	// The session survives bad input.
	say(t, h, alice, marshalFrame(t, message.TypeDelta, "alice", map[string]string{"dataType": "uint8"}))
	nextFrame(t, bob, message.TypeDelta)
}

func TestDepartureAnnounced(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Shutdown()
	h := r.Get("s1")
	alice := fakeParticipant(t, h, "alice")
	bob := fakeParticipant(t, h, "bob")

	select {
	case h.unregister <- bob:
	case <-time.After(time.Second):
		t.Fatalf("hub did not accept unregistration\n")
	}

	env := nextFrame(t, alice, message.TypeUserLeft)
	if env.UserID != "bob" {
		t.Errorf("Expected user_left for bob, got %q\n", env.UserID)
	}
	ev, _ := env.DecodeUserEvent()
	if ev.TotalUsers != 1 {
		t.Errorf("Expected totalUsers 1 after departure, got %d\n", ev.TotalUsers)
	}
}

func TestEndSessionNotifiesParticipants(t *testing.T) {
	r := NewRegistry(nil)
	h := r.Get("s1")
	alice := fakeParticipant(t, h, "alice")

	if !r.End("s1") {
		t.Fatalf("End reported no live session\n")
	}
	nextFrame(t, alice, message.TypeSessionEnded)

	// The send queue closes once the hub is gone.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-alice.send:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("send queue not closed after session end\n")
		}
	}
}

func TestEmptyHubReleased(t *testing.T) {
	r := NewRegistry(nil)
	h := r.Get("s1")
	alice := fakeParticipant(t, h, "alice")
	select {
	case h.unregister <- alice:
	case <-time.After(time.Second):
		t.Fatalf("hub did not accept unregistration\n")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(r.Sessions()) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("Empty hub still registered: %v\n", r.Sessions())
}

// memoryBridge is an in-process Bridge connecting two registries, standing
// in for the redis pub/sub layer.
type memoryBridge struct {
	mu    sync.Mutex
	sinks map[string][]func(string)
}

func newMemoryBridge() *memoryBridge {
	return &memoryBridge{sinks: make(map[string][]func(string))}
}

type memoryBridgeEnd struct {
	shared *memoryBridge
	id     int
}

var bridgeEndSeq int

func (m *memoryBridge) end() *memoryBridgeEnd {
	bridgeEndSeq++
	return &memoryBridgeEnd{shared: m, id: bridgeEndSeq}
}

func (e *memoryBridgeEnd) Publish(sessionID, frame string) {
	e.shared.mu.Lock()
	sinks := append([]func(string){}, e.shared.sinks[sessionID]...)
	e.shared.mu.Unlock()
	// Every end hears every publication except its own; keying sinks by a
	// tag mirrors the instance filter of the redis bridge.
	for i, sink := range sinks {
		if i+1 == e.id {
			continue
		}
		sink(frame)
	}
}

func (e *memoryBridgeEnd) Subscribe(sessionID string, sink func(string)) func() {
	e.shared.mu.Lock()
	defer e.shared.mu.Unlock()
	e.shared.sinks[sessionID] = append(e.shared.sinks[sessionID], sink)
	return func() {}
}

func TestBridgePropagatesAcrossInstances(t *testing.T) {
	shared := newMemoryBridge()
	bridgeEndSeq = 0
	r1 := NewRegistry(shared.end())
	r2 := NewRegistry(shared.end())
	defer r1.Shutdown()
	defer r2.Shutdown()

	h1 := r1.Get("s1")
	h2 := r2.Get("s1")
	alice := fakeParticipant(t, h1, "alice")
	bob := fakeParticipant(t, h2, "bob")

	frame := marshalFrame(t, message.TypeDelta, "alice", map[string]string{"dataType": "uint8"})
	say(t, h1, alice, frame)

	env := nextFrame(t, bob, message.TypeDelta)
	if env.UserID != "alice" {
		t.Errorf("Bridged delta lost its origin userId: %q\n", env.UserID)
	}
}
