package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jkindrix/scamshield/internal/domain"
	apperrors "github.com/jkindrix/scamshield/internal/errors"
	"github.com/jkindrix/scamshield/internal/push"
)

// LiveHandler serves the live session view: a polled JSON snapshot and a
// websocket feed of the same shape.
type LiveHandler struct {
	store           domain.Store
	socket          *push.SocketServer
	transcriptLimit int
	logger          *zap.Logger
}

// LiveHandlerConfig holds configuration for LiveHandler.
type LiveHandlerConfig struct {
	Store           domain.Store
	Socket          *push.SocketServer
	TranscriptLimit int
	Logger          *zap.Logger
}

// NewLiveHandler creates a new LiveHandler with all required dependencies.
func NewLiveHandler(cfg LiveHandlerConfig) *LiveHandler {
	if cfg.Logger == nil {
		panic("logger is required")
	}
	return &LiveHandler{
		store:           cfg.Store,
		socket:          cfg.Socket,
		transcriptLimit: cfg.TranscriptLimit,
		logger:          cfg.Logger,
	}
}

// RegisterRoutes registers live view routes on the router.
func (h *LiveHandler) RegisterRoutes(r chi.Router) {
	r.Get("/live", h.HandleSnapshot)
	if h.socket != nil {
		r.Get("/live/ws", h.socket.Handle)
	}
}

// HandleSnapshot returns the current session state and trailing
// transcript. The slug acts as a capability: a wrong slug is
// indistinguishable from a missing session.
func (h *LiveHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	callID := r.URL.Query().Get("callId")
	slug := r.URL.Query().Get("slug")
	if callID == "" || slug == "" {
		WriteError(w, r, apperrors.MissingField("callId and slug"), h.logger)
		return
	}

	snap, err := h.store.GetSnapshot(r.Context(), callID, slug, h.transcriptLimit)
	if err != nil {
		WriteError(w, r, apperrors.DatabaseError("live.Snapshot", err), h.logger)
		return
	}
	if snap == nil {
		WriteError(w, r, apperrors.NotFound("session"), h.logger)
		return
	}

	// Live state changes on every webhook; intermediaries must not cache it.
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, snap.View(), h.logger)
}
