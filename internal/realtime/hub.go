package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/websocket"
)

// Authenticator resolves an access token presented at the websocket
// handshake to a user id.
type Authenticator func(ctx context.Context, token string) (string, error)

// Hub is the server side of the realtime wire: it tracks per-user groups of
// connected peers and fans events out to them. Used by the stub backend and
// by tests.
type Hub struct {
	logger *zap.Logger

	mu     sync.Mutex
	groups map[string]map[*hubPeer]struct{}
	joins  map[string]int
}

type hubPeer struct {
	mu   sync.Mutex
	conn *websocket.Conn
	enc  *json.Encoder
}

func (p *hubPeer) send(frame Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc.Encode(frame)
}

// NewHub builds an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger: logger,
		groups: make(map[string]map[*hubPeer]struct{}),
		joins:  make(map[string]int),
	}
}

// Handler serves the /ws endpoint. When authn is non-nil the bearer token is
// resolved before the upgrade and JoinUserGroup is only honored for the
// authenticated user's own group.
func (h *Hub) Handler(authn Authenticator) http.Handler {
	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		h.serveConn(conn)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if authn != nil {
			token := bearerToken(r)
			if token == "" {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			userID, err := authn(r.Context(), token)
			if err != nil || strings.TrimSpace(userID) == "" {
				h.logger.Warn("websocket auth rejected", zap.Error(err))
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			r = r.WithContext(context.WithValue(r.Context(), hubUserKey{}, userID))
		}

		wsHandler.ServeHTTP(w, r)
	})
	return mux
}

type hubUserKey struct{}

func (h *Hub) serveConn(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	authUserID := ""
	if req := conn.Request(); req != nil {
		if resolved, ok := req.Context().Value(hubUserKey{}).(string); ok {
			authUserID = resolved
		}
	}

	peer := &hubPeer{conn: conn, enc: json.NewEncoder(conn)}
	joined := ""
	defer func() {
		if joined != "" {
			h.leave(joined, peer)
		}
	}()

	decoder := json.NewDecoder(conn)
	for {
		var frame Frame
		if err := decoder.Decode(&frame); err != nil {
			return
		}
		if frame.Event != InvokeJoinUserGroup {
			continue
		}

		var payload JoinUserGroupPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil || payload.UserID == "" {
			continue
		}
		if authUserID != "" && payload.UserID != authUserID {
			h.logger.Warn("join for foreign user group rejected",
				zap.String("requested", payload.UserID),
				zap.String("authenticated", authUserID))
			continue
		}
		if joined == payload.UserID {
			continue
		}
		if joined != "" {
			h.leave(joined, peer)
		}
		joined = payload.UserID
		h.join(joined, peer)
	}
}

// Publish fans an event out to every peer in the user's group and returns
// the number of deliveries.
func (h *Hub) Publish(userID, event string, payload any) int {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal event payload", zap.Error(err))
		return 0
	}
	frame := Frame{Event: event, Payload: raw}

	h.mu.Lock()
	peers := make([]*hubPeer, 0, len(h.groups[userID]))
	for peer := range h.groups[userID] {
		peers = append(peers, peer)
	}
	h.mu.Unlock()

	delivered := 0
	for _, peer := range peers {
		if err := peer.send(frame); err == nil {
			delivered++
		}
	}
	return delivered
}

// GroupSize returns how many peers are currently in the user's group.
func (h *Hub) GroupSize(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.groups[userID])
}

// CloseUser force-closes every connection in the user's group, simulating a
// server-side drop.
func (h *Hub) CloseUser(userID string) {
	h.mu.Lock()
	peers := make([]*hubPeer, 0, len(h.groups[userID]))
	for peer := range h.groups[userID] {
		peers = append(peers, peer)
	}
	h.mu.Unlock()

	for _, peer := range peers {
		_ = peer.conn.Close()
	}
}

// JoinCount returns how many JoinUserGroup invocations the hub has honored
// for the user across the hub's lifetime.
func (h *Hub) JoinCount(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.joins[userID]
}

func (h *Hub) join(userID string, peer *hubPeer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.groups[userID] == nil {
		h.groups[userID] = make(map[*hubPeer]struct{})
	}
	h.groups[userID][peer] = struct{}{}
	h.joins[userID]++
}

func (h *Hub) leave(userID string, peer *hubPeer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.groups[userID], peer)
	if len(h.groups[userID]) == 0 {
		delete(h.groups, userID)
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
