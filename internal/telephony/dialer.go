// Package telephony places outbound monitor calls through the voice
// provider's REST API and builds the webhook URLs those calls report
// back to.
package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/jkindrix/scamshield/internal/errors"
	"github.com/jkindrix/scamshield/internal/sanitize"
)

// Dialer starts an outbound call and returns the provider call id and
// its initial status.
type Dialer interface {
	Dial(ctx context.Context, toNumber, webhookURL string) (callID, status string, err error)
}

// Config holds provider API settings.
type Config struct {
	AccountID  string
	AuthToken  string
	APIURL     string
	FromNumber string
}

// Client is a Dialer against a Twilio-style REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.twilio.com/2010-04-01"
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// dialResponse is the subset of the provider's call resource we read.
type dialResponse struct {
	Sid     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Dial places an outbound call. The provider streams call status and
// live transcription events to webhookURL.
func (c *Client) Dial(ctx context.Context, toNumber, webhookURL string) (string, string, error) {
	form := url.Values{}
	form.Set("To", toNumber)
	form.Set("From", c.cfg.FromNumber)
	form.Set("Url", webhookURL)
	form.Set("StatusCallback", webhookURL)
	form.Set("StatusCallbackEvent", "initiated ringing answered completed")

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", c.cfg.APIURL, c.cfg.AccountID)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", "", fmt.Errorf("failed to create dial request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.AccountID, c.cfg.AuthToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", apperrors.ProviderError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("failed to read dial response: %w", err)
	}

	var dr dialResponse
	if err := json.Unmarshal(body, &dr); err != nil {
		return "", "", fmt.Errorf("failed to parse dial response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("provider rejected outbound call",
			zap.Int("status", resp.StatusCode),
			zap.String("message", sanitize.Text(dr.Message)),
		)
		return "", "", apperrors.ProviderError(fmt.Errorf("status %d: %s", resp.StatusCode, sanitize.Text(dr.Message)))
	}

	c.logger.Info("outbound call placed",
		zap.String("call_id", dr.Sid),
		zap.String("status", dr.Status),
		zap.String("to", sanitize.Phone(toNumber)),
	)
	return dr.Sid, dr.Status, nil
}

// WebhookURL builds the ingest URL for a case. baseURL is the
// externally visible origin; an empty base falls back to the request's
// forwarded host.
func WebhookURL(baseURL, forwardedOrigin, slug string) string {
	origin := strings.TrimSuffix(baseURL, "/")
	if origin == "" {
		origin = strings.TrimSuffix(forwardedOrigin, "/")
	}
	return origin + "/webhook?slug=" + url.QueryEscape(slug)
}

// OriginFromRequest reconstructs the external origin from forwarding
// headers, for deployments without a configured base URL.
func OriginFromRequest(r *http.Request) string {
	scheme := "https"
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if r.TLS == nil {
		scheme = "http"
	}
	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		host = strings.TrimSpace(fwd)
	}
	return scheme + "://" + host
}
