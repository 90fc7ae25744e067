package handler

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jkindrix/scamshield/internal/audit"
	"github.com/jkindrix/scamshield/internal/domain"
	"github.com/jkindrix/scamshield/internal/event"
	"github.com/jkindrix/scamshield/internal/metrics"
	"github.com/jkindrix/scamshield/internal/middleware"
	"github.com/jkindrix/scamshield/internal/signature"
)

// Enqueuer schedules advice recomputation for a call.
type Enqueuer interface {
	Enqueue(callID string, force bool)
}

// WebhookHandler ingests call status and transcription webhooks from the
// voice provider.
type WebhookHandler struct {
	store         domain.Store
	dispatcher    Enqueuer
	verifier      *signature.Verifier
	accountID     string
	skipSignature bool
	logger        *zap.Logger
	audit         *audit.Logger
	metrics       *metrics.Metrics
}

// WebhookHandlerConfig holds configuration for WebhookHandler.
type WebhookHandlerConfig struct {
	Store         domain.Store
	Dispatcher    Enqueuer
	Verifier      *signature.Verifier
	AccountID     string
	SkipSignature bool
	Logger        *zap.Logger
	Audit         *audit.Logger
	Metrics       *metrics.Metrics
}

// NewWebhookHandler creates a new WebhookHandler with all required dependencies.
func NewWebhookHandler(cfg WebhookHandlerConfig) *WebhookHandler {
	if cfg.Logger == nil {
		panic("logger is required")
	}
	return &WebhookHandler{
		store:         cfg.Store,
		dispatcher:    cfg.Dispatcher,
		verifier:      cfg.Verifier,
		accountID:     cfg.AccountID,
		skipSignature: cfg.SkipSignature,
		logger:        cfg.Logger,
		audit:         cfg.Audit,
		metrics:       cfg.Metrics,
	}
}

// RegisterRoutes registers webhook routes on the router.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.With(middleware.BodySizeLimiterWebhook()).Post("/webhook", h.HandleWebhook)
}

// HandleWebhook processes one provider event. Events that carry no call
// id are acknowledged without side effects; the provider retries on any
// non-2xx, so the handler answers 200 once the event is persisted.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.recordWebhook("read_error", start)
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	contentType := r.Header.Get("Content-Type")
	isJSON := isJSONPayload(contentType, body)

	if !h.skipSignature {
		var form url.Values
		if !isJSON {
			// The signature covers the decoded form fields.
			if parsed, perr := url.ParseQuery(string(body)); perr == nil {
				form = parsed
			}
		}
		sig := r.Header.Get(signature.Header)
		if !h.verifier.Verify(sig, signature.CandidateURLs(r), body, form, isJSON) {
			h.logger.Warn("webhook signature validation failed",
				zap.String("remote", clientIP(r)),
			)
			if h.audit != nil {
				h.audit.WebhookValidationFailed(r.Context(), clientIP(r),
					middleware.GetRequestID(r.Context()), "signature mismatch")
			}
			h.recordWebhook("invalid_signature", start)
			http.Error(w, "invalid webhook signature", http.StatusUnauthorized)
			return
		}
	}

	ev, err := event.Parse(body, contentType, r.URL.Query().Get("slug"))
	if err != nil {
		h.logger.Warn("failed to parse webhook payload", zap.Error(err))
		h.recordWebhook("parse_error", start)
		http.Error(w, "invalid webhook payload", http.StatusBadRequest)
		return
	}

	if h.accountID != "" && ev.AccountID != "" && ev.AccountID != h.accountID {
		h.logger.Warn("webhook for foreign account rejected",
			zap.String("account_id", ev.AccountID),
		)
		if h.audit != nil {
			h.audit.WebhookForeignAccount(r.Context(), clientIP(r),
				middleware.GetRequestID(r.Context()), ev.AccountID)
		}
		h.recordWebhook("account_mismatch", start)
		http.Error(w, "unknown account", http.StatusUnauthorized)
		return
	}

	// Events without a call id cannot be attributed to a session.
	// Acknowledge them so the provider stops retrying.
	if ev.CallID == "" {
		h.recordWebhook("no_call_id", start)
		WriteJSON(w, http.StatusOK, okResponse{OK: true}, h.logger)
		return
	}

	ctx := r.Context()
	status := domain.NormalizeStatus(ev.RawStatus)

	// Slug resolution: query, then event payload, then the session
	// already on file. An event that cannot be tied to any case would
	// create a session no live view can ever reach.
	if ev.Slug == "" {
		summary, err := h.store.GetSummary(ctx, ev.CallID)
		if err != nil {
			h.logger.Error("failed to load session for slug resolution",
				zap.String("call_id", ev.CallID),
				zap.Error(err),
			)
			h.recordWebhook("store_error", start)
			http.Error(w, "failed to process webhook", http.StatusInternalServerError)
			return
		}
		if summary == nil || summary.Slug == "" {
			h.recordWebhook("no_slug", start)
			http.Error(w, "missing slug", http.StatusBadRequest)
			return
		}
		ev.Slug = summary.Slug
	}

	var lastError *string
	if status == domain.StatusFailed {
		msg := "The call could not be completed."
		lastError = &msg
	}

	if err := h.store.UpsertSession(ctx, ev.CallID, ev.Slug, status, lastError); err != nil {
		h.logger.Error("failed to persist session",
			zap.String("call_id", ev.CallID),
			zap.Error(err),
		)
		h.recordWebhook("store_error", start)
		http.Error(w, "failed to process webhook", http.StatusInternalServerError)
		return
	}

	force := status.Terminal()
	if tr := ev.Transcript; tr != nil {
		inserted, err := h.store.AppendChunk(ctx, domain.TranscriptChunk{
			CallID:        ev.CallID,
			SourceEventID: tr.Fingerprint,
			Speaker:       tr.Speaker,
			Text:          tr.Text,
			TimestampMS:   tr.TimestampMS,
			IsFinal:       tr.IsFinal,
		})
		if err != nil {
			h.logger.Error("failed to persist transcript chunk",
				zap.String("call_id", ev.CallID),
				zap.Error(err),
			)
			h.recordWebhook("store_error", start)
			http.Error(w, "failed to process webhook", http.StatusInternalServerError)
			return
		}
		if !inserted {
			h.logger.Debug("duplicate transcript chunk ignored",
				zap.String("call_id", ev.CallID),
				zap.String("source_event_id", tr.SourceEventID),
			)
		}
		if h.metrics != nil {
			h.metrics.RecordChunk(inserted)
		}
		force = force || tr.IsFinal
	}

	if h.dispatcher != nil {
		h.dispatcher.Enqueue(ev.CallID, force)
	}

	h.logger.Debug("webhook processed",
		zap.String("call_id", ev.CallID),
		zap.String("status", string(status)),
		zap.Bool("transcript", ev.Transcript != nil),
	)
	h.recordWebhook("success", start)
	WriteJSON(w, http.StatusOK, okResponse{OK: true}, h.logger)
}

func (h *WebhookHandler) recordWebhook(outcome string, start time.Time) {
	if h.metrics != nil {
		h.metrics.RecordWebhook(outcome, time.Since(start))
	}
}

// isJSONPayload sniffs whether the body should be treated as JSON for
// parsing and signature purposes.
func isJSONPayload(contentType string, body []byte) bool {
	if strings.Contains(contentType, "json") {
		return true
	}
	trimmed := strings.TrimSpace(string(body))
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}
