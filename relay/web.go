package relay

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/janelia-flyem/voxelsync/voxelsync"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origin policy is enforced by the CORS layer configured per server.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the relay's HTTP surface: the websocket session endpoint plus a
// small management API.
type Server struct {
	registry *Registry
	config   *Config
}

// NewServer wires a relay server around the given registry.
func NewServer(registry *Registry, config *Config) *Server {
	return &Server{registry: registry, config: config}
}

// Handler builds the routed, CORS-wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.health).Methods("GET")
	r.HandleFunc("/api/sessions", s.listSessions).Methods("GET")
	r.HandleFunc("/api/sessions/{session}", s.sessionInfo).Methods("GET")
	r.HandleFunc("/api/sessions/{session}", s.endSession).Methods("DELETE")
	r.HandleFunc("/ws/sessions/{session}", s.joinSession)

	c := cors.New(cors.Options{
		AllowedOrigins: s.config.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "DELETE"},
	})
	return c.Handler(r)
}

// ListenAndServe runs the relay until the listener fails.
func (s *Server) ListenAndServe() error {
	addr := s.config.Server.HTTPAddress
	voxelsync.Infof("relay listening on %s\n", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "voxsync relay %s\n", voxelsync.Version)
}

type sessionStatus struct {
	SessionID      string `json:"sessionId"`
	ConnectedUsers int    `json:"connectedUsers"`
	FramesRelayed  uint64 `json:"framesRelayed"`
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	var out []sessionStatus
	for _, id := range s.registry.Sessions() {
		users, relayed := s.registry.Get(id).Stats()
		out = append(out, sessionStatus{SessionID: id, ConnectedUsers: users, FramesRelayed: relayed})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (s *Server) sessionInfo(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session"]
	for _, id := range s.registry.Sessions() {
		if id == sessionID {
			users, relayed := s.registry.Get(id).Stats()
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(sessionStatus{
				SessionID: id, ConnectedUsers: users, FramesRelayed: relayed})
			return
		}
	}
	http.Error(w, fmt.Sprintf("no live session %q", sessionID), http.StatusNotFound)
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session"]
	if !s.registry.End(sessionID) {
		http.Error(w, fmt.Sprintf("no live session %q", sessionID), http.StatusNotFound)
		return
	}
	voxelsync.Infof("session %s ended via management API\n", sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// joinSession upgrades the connection and attaches the participant to the
// session's hub.  The optional user query parameter seeds the participant
// identifier until the join handshake arrives.
func (s *Server) joinSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session"]
	if sessionID == "" {
		http.Error(w, "missing session identifier", http.StatusBadRequest)
		return
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		voxelsync.Errorf("websocket upgrade failed for session %s: %v\n", sessionID, err)
		return
	}
	hub := s.registry.Get(sessionID)
	c := newClient(hub, ws, r.URL.Query().Get("user"))
	go c.serve()
}
