package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jkindrix/scamshield/internal/audit"
	"github.com/jkindrix/scamshield/internal/config"
	"github.com/jkindrix/scamshield/internal/domain"
	apperrors "github.com/jkindrix/scamshield/internal/errors"
	"github.com/jkindrix/scamshield/internal/metrics"
	"github.com/jkindrix/scamshield/internal/middleware"
	"github.com/jkindrix/scamshield/internal/ratelimit"
	"github.com/jkindrix/scamshield/internal/validation"
)

// PhoneHandler manages the protected phone number of a case.
type PhoneHandler struct {
	cases   domain.CaseStore
	limiter ratelimit.Limiter
	limits  config.RateLimitConfig
	logger  *zap.Logger
	audit   *audit.Logger
	metrics *metrics.Metrics
}

// PhoneHandlerConfig holds configuration for PhoneHandler.
type PhoneHandlerConfig struct {
	Cases   domain.CaseStore
	Limiter ratelimit.Limiter
	Limits  config.RateLimitConfig
	Logger  *zap.Logger
	Audit   *audit.Logger
	Metrics *metrics.Metrics
}

// NewPhoneHandler creates a new PhoneHandler with all required dependencies.
func NewPhoneHandler(cfg PhoneHandlerConfig) *PhoneHandler {
	if cfg.Logger == nil {
		panic("logger is required")
	}
	return &PhoneHandler{
		cases:   cfg.Cases,
		limiter: cfg.Limiter,
		limits:  cfg.Limits,
		logger:  cfg.Logger,
		audit:   cfg.Audit,
		metrics: cfg.Metrics,
	}
}

// RegisterRoutes registers phone routes on the router.
func (h *PhoneHandler) RegisterRoutes(r chi.Router) {
	r.With(middleware.BodySizeLimiterJSON()).Put("/phone", h.HandleSetPhone)
}

// setPhoneRequest is the request body for registering a phone number.
type setPhoneRequest struct {
	Slug          string `json:"slug"`
	PhoneNumber   string `json:"phoneNumber"`
	OverrideToken string `json:"overrideToken"`
}

// HandleSetPhone registers the number a case's monitor calls dial. Once
// set, the number only changes with the override token issued at
// provisioning time, so a leaked slug cannot redirect calls.
func (h *PhoneHandler) HandleSetPhone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.limiter.Take(ctx, "phone:ip:"+clientIP(r), h.limits.PhonePerIP, h.limits.PhonePerIPWindow) {
		if h.audit != nil {
			h.audit.RateLimitExceeded(ctx, clientIP(r), middleware.GetRequestID(ctx), "phone_ip")
		}
		if h.metrics != nil {
			h.metrics.RecordRateLimitHit("phone_ip")
		}
		WriteError(w, r, apperrors.RateLimited(int(h.limits.PhonePerIPWindow.Seconds())), h.logger)
		return
	}

	var req setPhoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, apperrors.BadRequest("invalid JSON body"), h.logger)
		return
	}

	phone := validation.SanitizePhoneNumber(req.PhoneNumber)
	v := validation.New()
	v.Slug("slug", req.Slug)
	v.Required("phoneNumber", phone)
	v.PhoneNumber("phoneNumber", phone)
	if !v.IsValid() {
		WriteError(w, r, apperrors.BadRequest(v.Errors().Error()), h.logger)
		return
	}

	c, err := h.cases.GetCase(ctx, req.Slug)
	if err != nil {
		WriteError(w, r, apperrors.DatabaseError("phone.GetCase", err), h.logger)
		return
	}
	if c == nil {
		WriteError(w, r, apperrors.NotFound("case"), h.logger)
		return
	}

	if c.PhoneNumber != "" {
		if req.OverrideToken == "" {
			WriteError(w, r, apperrors.Conflict("phone number already set"), h.logger)
			return
		}
		if bcrypt.CompareHashAndPassword(c.TokenHash, []byte(req.OverrideToken)) != nil {
			h.logger.Warn("phone override with invalid token",
				zap.String("slug", req.Slug),
				zap.String("remote", clientIP(r)),
			)
			if h.audit != nil {
				h.audit.PhoneChangeDenied(ctx, clientIP(r), middleware.GetRequestID(ctx), req.Slug)
			}
			WriteError(w, r, apperrors.Conflict("phone number already set"), h.logger)
			return
		}
	}

	if err := h.cases.SetPhone(ctx, req.Slug, phone); err != nil {
		WriteError(w, r, apperrors.DatabaseError("phone.SetPhone", err), h.logger)
		return
	}

	h.logger.Info("phone number registered", zap.String("slug", req.Slug))
	if h.audit != nil {
		h.audit.PhoneChanged(ctx, clientIP(r), middleware.GetRequestID(ctx), req.Slug)
	}
	WriteJSON(w, http.StatusOK, okResponse{OK: true}, h.logger)
}
