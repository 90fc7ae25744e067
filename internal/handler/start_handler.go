package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jkindrix/scamshield/internal/audit"
	"github.com/jkindrix/scamshield/internal/domain"
	apperrors "github.com/jkindrix/scamshield/internal/errors"
	"github.com/jkindrix/scamshield/internal/middleware"
)

// StartHandler provisions new cases.
type StartHandler struct {
	cases  domain.CaseStore
	logger *zap.Logger
	audit  *audit.Logger
}

// StartHandlerConfig holds configuration for StartHandler.
type StartHandlerConfig struct {
	Cases  domain.CaseStore
	Logger *zap.Logger
	Audit  *audit.Logger
}

// NewStartHandler creates a new StartHandler with all required dependencies.
func NewStartHandler(cfg StartHandlerConfig) *StartHandler {
	if cfg.Logger == nil {
		panic("logger is required")
	}
	return &StartHandler{cases: cfg.Cases, logger: cfg.Logger, audit: cfg.Audit}
}

// RegisterRoutes registers provisioning routes on the router.
func (h *StartHandler) RegisterRoutes(r chi.Router) {
	r.Get("/start", h.HandleStart)
	r.Post("/start", h.HandleStart)
}

// startResponse carries the one-time case credentials.
type startResponse struct {
	OK            bool   `json:"ok"`
	Slug          string `json:"slug"`
	OverrideToken string `json:"overrideToken"`
}

// HandleStart creates a case with a fresh slug and a one-time override
// token. The token hash is stored; the token itself appears only in
// this response.
func (h *StartHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	slug := newSlug()
	token := uuid.NewString()

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		WriteError(w, r, apperrors.InternalError("failed to provision case", err), h.logger)
		return
	}

	if err := h.cases.CreateCase(r.Context(), domain.Case{
		Slug:      slug,
		TokenHash: hash,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		WriteError(w, r, apperrors.DatabaseError("start.CreateCase", err), h.logger)
		return
	}

	h.logger.Info("case provisioned", zap.String("slug", slug))
	if h.audit != nil {
		h.audit.CaseProvisioned(r.Context(), clientIP(r), middleware.GetRequestID(r.Context()), slug)
	}

	// Browser flow: hand the token over in a cookie and send the user
	// straight to their case page. API clients POST and get JSON.
	if r.Method == http.MethodGet {
		http.SetCookie(w, &http.Cookie{
			Name:     overrideTokenCookie,
			Value:    token,
			Path:     "/",
			MaxAge:   int((24 * time.Hour).Seconds()),
			SameSite: http.SameSiteLaxMode,
		})
		http.Redirect(w, r, "/t/"+slug, http.StatusFound)
		return
	}
	WriteJSON(w, http.StatusOK, startResponse{OK: true, Slug: slug, OverrideToken: token}, h.logger)
}

// overrideTokenCookie carries the one-time override token through the
// provisioning redirect.
const overrideTokenCookie = "scamshield_token"

// newSlug derives a short lowercase case slug.
func newSlug() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
