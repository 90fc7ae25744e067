package domain

import (
	"math"
	"unicode/utf8"
)

// RiskLevel buckets a risk score for display.
type RiskLevel string

// Risk levels derived from the risk score.
const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Risk score boundaries.
const (
	// MediumRiskThreshold is the lowest score classified as medium risk.
	MediumRiskThreshold = 40
	// HighRiskThreshold is the lowest score classified as high risk.
	HighRiskThreshold = 70
)

// LevelForScore derives the risk level from a risk score.
func LevelForScore(score int) RiskLevel {
	switch {
	case score >= HighRiskThreshold:
		return RiskHigh
	case score >= MediumRiskThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Limits on advice content.
const (
	// MaxAdviceTextLen caps feedback, what-to-say and what-to-do strings.
	MaxAdviceTextLen = 220
	// MaxNextSteps caps the queued follow-up actions.
	MaxNextSteps = 2
)

// CoachingAdvice is the coaching payload pushed to the live view.
// It is a pure value: scorers produce candidates, the stabilizer
// reconciles them against the previously persisted advice, and only
// the per-call worker writes the result.
type CoachingAdvice struct {
	RiskScore  int       `json:"riskScore"`
	RiskLevel  RiskLevel `json:"riskLevel"`
	Feedback   string    `json:"feedback"`
	WhatToSay  string    `json:"whatToSay"`
	WhatToDo   string    `json:"whatToDo"`
	NextSteps  []string  `json:"nextSteps"`
	Confidence float64   `json:"confidence"`
	UpdatedAt  int64     `json:"updatedAt"` // epoch milliseconds
}

// ClampScore bounds a raw score into [0, 100], rounding fractional input.
func ClampScore(raw float64) int {
	score := int(math.Round(raw))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// ClampConfidence bounds confidence into [0, 1].
func ClampConfidence(raw float64) float64 {
	if raw < 0 {
		return 0
	}
	if raw > 1 {
		return 1
	}
	return raw
}

// TruncateText enforces the advice text length cap, cutting on a rune
// boundary so the result stays valid UTF-8.
func TruncateText(s string) string {
	if len(s) <= MaxAdviceTextLen {
		return s
	}
	cut := MaxAdviceTextLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
