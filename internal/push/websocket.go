package push

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jkindrix/scamshield/internal/domain"
	"github.com/jkindrix/scamshield/internal/metrics"
)

// Websocket timing.
const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

// SocketServer streams session snapshots over a websocket. Each
// row-change event triggers a fresh snapshot read, so the client always
// sees a consistent view and dropped events cost nothing.
type SocketServer struct {
	hub             *Hub
	store           domain.Store
	transcriptLimit int
	logger          *zap.Logger
	metrics         *metrics.Metrics
	upgrader        websocket.Upgrader
}

// NewSocketServer creates a SocketServer. metrics may be nil.
func NewSocketServer(hub *Hub, store domain.Store, transcriptLimit int, logger *zap.Logger, m *metrics.Metrics) *SocketServer {
	if logger == nil {
		panic("logger is required")
	}
	return &SocketServer{
		hub:             hub,
		store:           store,
		transcriptLimit: transcriptLimit,
		logger:          logger,
		metrics:         m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The slug acts as the access capability, so cross-origin
			// browser clients are acceptable.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handle upgrades the connection and streams snapshots until the client
// disconnects or the call is gone.
func (s *SocketServer) Handle(w http.ResponseWriter, r *http.Request) {
	callID := r.URL.Query().Get("callId")
	slug := r.URL.Query().Get("slug")
	if callID == "" || slug == "" {
		http.Error(w, "callId and slug are required", http.StatusBadRequest)
		return
	}

	// Authorize before upgrading: a wrong slug reads as a missing session.
	snap, err := s.store.GetSnapshot(r.Context(), callID, slug, s.transcriptLimit)
	if err != nil {
		s.logger.Error("snapshot read failed", zap.String("call_id", callID), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if snap == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.SocketOpened()
		defer s.metrics.SocketClosed()
	}

	events, cancel := s.hub.Subscribe(callID)
	defer cancel()

	if err := s.writeSnapshot(conn, snap); err != nil {
		return
	}

	// Reader goroutine: consumes control frames and signals disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-events:
			// Coalesce a burst of changes into one snapshot read.
			drain(events)
			snap, err := s.store.GetSnapshot(r.Context(), callID, slug, s.transcriptLimit)
			if err != nil {
				s.logger.Warn("snapshot re-read failed", zap.String("call_id", callID), zap.Error(err))
				continue
			}
			if snap == nil {
				return
			}
			if err := s.writeSnapshot(conn, snap); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *SocketServer) writeSnapshot(conn *websocket.Conn, snap *domain.Snapshot) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(snap.View())
}

func drain(ch <-chan Event) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
