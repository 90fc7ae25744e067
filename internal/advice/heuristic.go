// Package advice produces and smooths coaching guidance for a live
// call. The heuristic scorer is a pure regex pass over recent
// transcript text; the model scorer asks a remote LLM; the stabilizer
// sits between either source and persistence.
package advice

import (
	"regexp"
	"strings"
	"time"

	"github.com/jkindrix/scamshield/internal/domain"
)

// heuristicWindow is how many trailing chunks the scorer reads.
const heuristicWindow = 10

const (
	heuristicBaseScore = 20
	highPatternWeight  = 15
	mediumPatternWeight = 8
	heuristicFloor     = 5
	heuristicCeiling   = 95
)

// Risk-pattern banks. Text is lowercased before matching, so the
// patterns are written lowercase.
var highPatterns = []*regexp.Regexp{
	regexp.MustCompile(`gift card`),
	regexp.MustCompile(`wire transfer`),
	regexp.MustCompile(`crypto|bitcoin`),
	regexp.MustCompile(`one.?time passcode|otp|verification code`),
	regexp.MustCompile(`\bssn\b|social security`),
	regexp.MustCompile(`bank account|routing number`),
	regexp.MustCompile(`remote access|screen share|install app`),
	regexp.MustCompile(`urgent|immediately|act now|final warning`),
	regexp.MustCompile(`arrest|warrant|lawsuit|jail`),
}

var mediumPatterns = []*regexp.Regexp{
	regexp.MustCompile(`keep confidential|don.?t tell`),
	regexp.MustCompile(`suspicious activity`),
	regexp.MustCompile(`refund department|tech support`),
	regexp.MustCompile(`pay now|security hold`),
	regexp.MustCompile(`confirm your identity`),
}

type levelTemplate struct {
	feedback  string
	whatToSay string
	whatToDo  string
	nextSteps []string
}

var heuristicTemplates = map[domain.RiskLevel]levelTemplate{
	domain.RiskLow: {
		feedback:  "Nothing alarming so far. Stay alert and verify anything the caller claims through an official channel.",
		whatToSay: "Can I have your name and a reference number so I can call you back through the official line?",
		whatToDo:  "Keep listening and do not volunteer personal details.",
		nextSteps: []string{"Ask who is calling and why.", "Write down any names or numbers they give."},
	},
	domain.RiskMedium: {
		feedback:  "Some pressure tactics are showing up. Slow the conversation down and verify the caller's identity independently before acting.",
		whatToSay: "I don't act on phone requests. I'll verify this with the organization directly and call back on their official number.",
		whatToDo:  "Do not share codes, passwords, or account numbers with this caller.",
		nextSteps: []string{"Hang up and call the organization's published number.", "Do not make any payment during this call."},
	},
	domain.RiskHigh: {
		feedback:  "This call carries strong scam indicators. Legitimate organizations never demand payment or secret codes over an unsolicited call — verify through an official channel before doing anything.",
		whatToSay: "I'm ending this call. I will contact the organization myself using the number on their official website.",
		whatToDo:  "Hang up now. Do not share codes, passwords, or account numbers, and do not send any payment.",
		nextSteps: []string{"Call the real organization on its official number.", "If money or data was shared, contact your bank immediately."},
	},
}

// heuristicConfidence maps a risk level to the scorer's self-reported
// confidence.
var heuristicConfidence = map[domain.RiskLevel]float64{
	domain.RiskLow:    0.45,
	domain.RiskMedium: 0.50,
	domain.RiskHigh:   0.55,
}

// HeuristicScore derives provisional advice from the trailing
// transcript chunks. Pure: same input, same output, no I/O.
func HeuristicScore(chunks []domain.TranscriptChunk, now time.Time) *domain.CoachingAdvice {
	if len(chunks) > heuristicWindow {
		chunks = chunks[len(chunks)-heuristicWindow:]
	}

	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Text)
		b.WriteString(" ")
	}
	text := strings.ToLower(b.String())

	score := heuristicBaseScore
	for _, p := range highPatterns {
		if p.MatchString(text) {
			score += highPatternWeight
		}
	}
	for _, p := range mediumPatterns {
		if p.MatchString(text) {
			score += mediumPatternWeight
		}
	}
	if score < heuristicFloor {
		score = heuristicFloor
	}
	if score > heuristicCeiling {
		score = heuristicCeiling
	}

	level := domain.LevelForScore(score)
	tpl := heuristicTemplates[level]

	return &domain.CoachingAdvice{
		RiskScore:  score,
		RiskLevel:  level,
		Feedback:   tpl.feedback,
		WhatToSay:  tpl.whatToSay,
		WhatToDo:   tpl.whatToDo,
		NextSteps:  append([]string(nil), tpl.nextSteps...),
		Confidence: heuristicConfidence[level],
		UpdatedAt:  now.UnixMilli(),
	}
}
