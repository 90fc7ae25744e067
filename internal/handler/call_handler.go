package handler

import (
	"encoding/json"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jkindrix/scamshield/internal/audit"
	"github.com/jkindrix/scamshield/internal/config"
	"github.com/jkindrix/scamshield/internal/domain"
	apperrors "github.com/jkindrix/scamshield/internal/errors"
	"github.com/jkindrix/scamshield/internal/metrics"
	"github.com/jkindrix/scamshield/internal/middleware"
	"github.com/jkindrix/scamshield/internal/ratelimit"
	"github.com/jkindrix/scamshield/internal/telephony"
	"github.com/jkindrix/scamshield/internal/validation"
)

// CallHandler starts outbound monitor calls for registered cases.
type CallHandler struct {
	store    domain.Store
	cases    domain.CaseStore
	dialer   telephony.Dialer
	limiter  ratelimit.Limiter
	cooldown ratelimit.CooldownLimiter
	limits   config.RateLimitConfig
	baseURL  string
	logger   *zap.Logger
	audit    *audit.Logger
	metrics  *metrics.Metrics
}

// CallHandlerConfig holds configuration for CallHandler.
type CallHandlerConfig struct {
	Store    domain.Store
	Cases    domain.CaseStore
	Dialer   telephony.Dialer
	Limiter  ratelimit.Limiter
	Cooldown ratelimit.CooldownLimiter
	Limits   config.RateLimitConfig
	BaseURL  string
	Logger   *zap.Logger
	Audit    *audit.Logger
	Metrics  *metrics.Metrics
}

// NewCallHandler creates a new CallHandler with all required dependencies.
func NewCallHandler(cfg CallHandlerConfig) *CallHandler {
	if cfg.Logger == nil {
		panic("logger is required")
	}
	return &CallHandler{
		store:    cfg.Store,
		cases:    cfg.Cases,
		dialer:   cfg.Dialer,
		limiter:  cfg.Limiter,
		cooldown: cfg.Cooldown,
		limits:   cfg.Limits,
		baseURL:  cfg.BaseURL,
		logger:   cfg.Logger,
		audit:    cfg.Audit,
		metrics:  cfg.Metrics,
	}
}

// RegisterRoutes registers call routes on the router.
func (h *CallHandler) RegisterRoutes(r chi.Router) {
	r.With(middleware.BodySizeLimiterJSON()).Post("/call", h.HandleStartCall)
}

// startCallRequest is the request body for starting a monitor call.
type startCallRequest struct {
	Slug string `json:"slug"`
}

// startCallResponse is the response for a started call.
type startCallResponse struct {
	OK     bool   `json:"ok"`
	CallID string `json:"callId"`
	Status string `json:"status"`
}

// HandleStartCall places an outbound call to the case's registered
// number. Per-IP and per-slug limits guard the dial endpoint since it
// spends provider minutes.
func (h *CallHandler) HandleStartCall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req startCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, apperrors.BadRequest("invalid JSON body"), h.logger)
		return
	}

	v := validation.New()
	if !v.Slug("slug", req.Slug) {
		WriteError(w, r, apperrors.InvalidFormat("slug", "3-64 lowercase letters, digits, or hyphens"), h.logger)
		return
	}

	if !h.limiter.Take(ctx, "call:ip:"+clientIP(r), h.limits.CallPerIP, h.limits.CallPerIPWindow) {
		h.rateLimited(r, "call_ip")
		WriteError(w, r, apperrors.RateLimited(int(h.limits.CallPerIPWindow.Seconds())), h.logger)
		return
	}

	c, err := h.cases.GetCase(ctx, req.Slug)
	if err != nil {
		WriteError(w, r, apperrors.DatabaseError("call.GetCase", err), h.logger)
		return
	}
	if c == nil {
		WriteError(w, r, apperrors.NotFound("case"), h.logger)
		return
	}
	if c.PhoneNumber == "" {
		WriteError(w, r, apperrors.BadRequest("no phone number registered for this case"), h.logger)
		return
	}

	if remaining := h.cooldown.TakeCooldown(ctx, "call:slug:"+req.Slug, h.limits.CallSlugCooldown); remaining > 0 {
		h.rateLimited(r, "call_slug")
		WriteError(w, r, apperrors.RateLimited(int(math.Ceil(remaining.Seconds()))), h.logger)
		return
	}

	webhookURL := telephony.WebhookURL(h.baseURL, telephony.OriginFromRequest(r), req.Slug)
	callID, status, err := h.dialer.Dial(ctx, c.PhoneNumber, webhookURL)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordCallStarted(false)
		}
		WriteError(w, r, err, h.logger)
		return
	}

	if err := h.store.UpsertSession(ctx, callID, req.Slug, domain.NormalizeStatus(status), nil); err != nil {
		// The call is already in flight; the first webhook will create
		// the session row if this write lost.
		h.logger.Warn("failed to seed session after dial",
			zap.String("call_id", callID),
			zap.Error(err),
		)
	}

	h.logger.Info("monitor call started",
		zap.String("slug", req.Slug),
		zap.String("call_id", callID),
		zap.String("status", status),
	)
	if h.audit != nil {
		h.audit.CallInitiated(ctx, clientIP(r), middleware.GetRequestID(ctx), req.Slug, c.PhoneNumber)
	}
	if h.metrics != nil {
		h.metrics.RecordCallStarted(true)
	}
	WriteJSON(w, http.StatusOK, startCallResponse{OK: true, CallID: callID, Status: status}, h.logger)
}

func (h *CallHandler) rateLimited(r *http.Request, limiter string) {
	if h.audit != nil {
		h.audit.RateLimitExceeded(r.Context(), clientIP(r), middleware.GetRequestID(r.Context()), limiter)
	}
	if h.metrics != nil {
		h.metrics.RecordRateLimitHit(limiter)
	}
}
