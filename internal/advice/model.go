package advice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jkindrix/scamshield/internal/circuitbreaker"
	"github.com/jkindrix/scamshield/internal/domain"
)

// modelRequestTimeout bounds one scoring request end to end.
const modelRequestTimeout = 8 * time.Second

const (
	modelTemperature = 0.15
	modelMaxTokens   = 240
	modelWindow      = 40
)

// ModelError reports a non-2xx response from the model API. RetryAfter
// is zero when the server sent no hint.
type ModelError struct {
	Status     int
	RetryAfter time.Duration
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model api error: status %d", e.Status)
}

// RateLimited reports whether the error is a 429.
func (e *ModelError) RateLimited() bool {
	return e.Status == http.StatusTooManyRequests
}

// ModelConfig configures the remote scorer.
type ModelConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// ModelScorer asks a chat-completions API to assess the call. A scorer
// without an API key is disabled and returns (nil, nil) from Score.
type ModelScorer struct {
	cfg            ModelConfig
	httpClient     *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	logger         *zap.Logger
}

// NewModelScorer creates a ModelScorer.
func NewModelScorer(cfg ModelConfig, logger *zap.Logger) *ModelScorer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cbConfig := &circuitbreaker.Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		OpenTimeout:         30 * time.Second,
		HalfOpenMaxRequests: 2,
	}
	return &ModelScorer{
		cfg:            cfg,
		httpClient:     &http.Client{Timeout: modelRequestTimeout},
		circuitBreaker: circuitbreaker.New("model-api", cbConfig, logger),
		logger:         logger,
	}
}

// Enabled reports whether an API key is configured.
func (s *ModelScorer) Enabled() bool {
	return s.cfg.APIKey != ""
}

// IsCircuitOpen reports whether the model API circuit breaker is
// currently rejecting calls.
func (s *ModelScorer) IsCircuitOpen() bool {
	return s.circuitBreaker.IsOpen()
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

const systemPrompt = `You are a real-time anti-scam coach listening to a phone call on behalf of a potential victim.
Respond with exactly one JSON object, no prose, matching:
{"riskScore": <0-100 integer>, "riskLevel": "low"|"medium"|"high", "feedback": "<string>", "whatToSay": "<string>", "whatToDo": "<string>", "nextSteps": ["<string>", "<string>"], "confidence": <0-1 number>}
Rules: never advise sharing personal data, codes, passwords, or payments. Lead with the action the user should take right now. Do not move the score sharply without concrete evidence in the transcript.`

// Score assesses the trailing transcript against the previous advice.
// Returns (nil, nil) when no API key is configured.
func (s *ModelScorer) Score(ctx context.Context, chunks []domain.TranscriptChunk, prev *domain.CoachingAdvice, now time.Time) (*domain.CoachingAdvice, error) {
	if !s.Enabled() {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, modelRequestTimeout)
	defer cancel()

	var result *domain.CoachingAdvice
	err := s.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		var execErr error
		result, execErr = s.doScore(ctx, chunks, prev, now)
		return execErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *ModelScorer) doScore(ctx context.Context, chunks []domain.TranscriptChunk, prev *domain.CoachingAdvice, now time.Time) (*domain.CoachingAdvice, error) {
	reqBody := chatRequest{
		Model: s.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserMessage(chunks, prev)},
		},
		Temperature: modelTemperature,
		MaxTokens:   modelMaxTokens,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.cfg.BaseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ModelError{
			Status:     resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("empty response from model")
	}

	advice, err := parseAdviceContent(chat.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	advice.UpdatedAt = now.UnixMilli()

	s.logger.Debug("model advice parsed",
		zap.Int("risk_score", advice.RiskScore),
		zap.Float64("confidence", advice.Confidence),
	)
	return advice, nil
}

// buildUserMessage renders the continuity snapshot and the transcript,
// newest line at the bottom.
func buildUserMessage(chunks []domain.TranscriptChunk, prev *domain.CoachingAdvice) string {
	if len(chunks) > modelWindow {
		chunks = chunks[len(chunks)-modelWindow:]
	}

	var b strings.Builder
	if prev != nil {
		if snapshot, err := json.Marshal(prev); err == nil {
			b.WriteString("Previous advice (for continuity):\n")
			b.Write(snapshot)
			b.WriteString("\n\n")
		}
	}
	b.WriteString("Transcript so far:\n")
	for _, c := range chunks {
		b.WriteString(string(c.Speaker))
		b.WriteString(": ")
		b.WriteString(c.Text)
		b.WriteString("\n")
	}
	return b.String()
}

var fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// parseAdviceContent extracts the advice JSON from the model output:
// a bare object, a fenced code block, or the first {...} substring.
func parseAdviceContent(content string) (*domain.CoachingAdvice, error) {
	content = strings.TrimSpace(content)

	candidates := []string{content}
	if m := fencedJSONPattern.FindStringSubmatch(content); m != nil {
		candidates = append(candidates, m[1])
	}
	if start := strings.Index(content, "{"); start >= 0 {
		if end := strings.LastIndex(content, "}"); end > start {
			candidates = append(candidates, content[start:end+1])
		}
	}

	for _, candidate := range candidates {
		var raw struct {
			RiskScore  float64  `json:"riskScore"`
			Feedback   string   `json:"feedback"`
			WhatToSay  string   `json:"whatToSay"`
			WhatToDo   string   `json:"whatToDo"`
			NextSteps  []string `json:"nextSteps"`
			Confidence float64  `json:"confidence"`
		}
		if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
			continue
		}
		if raw.Feedback == "" && raw.WhatToDo == "" && raw.RiskScore == 0 {
			continue
		}

		score := domain.ClampScore(raw.RiskScore)
		steps := raw.NextSteps
		if len(steps) > domain.MaxNextSteps {
			steps = steps[:domain.MaxNextSteps]
		}
		return &domain.CoachingAdvice{
			RiskScore:  score,
			RiskLevel:  domain.LevelForScore(score),
			Feedback:   domain.TruncateText(raw.Feedback),
			WhatToSay:  domain.TruncateText(raw.WhatToSay),
			WhatToDo:   domain.TruncateText(raw.WhatToDo),
			NextSteps:  steps,
			Confidence: domain.ClampConfidence(raw.Confidence),
		}, nil
	}
	return nil, fmt.Errorf("model response contained no advice object")
}

// parseRetryAfter reads a Retry-After header as delta seconds.
func parseRetryAfter(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
