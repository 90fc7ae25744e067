package advice

import (
	"strings"
	"time"

	"github.com/jkindrix/scamshield/internal/domain"
)

// StepCaps bounds how far one advice update may move the risk score,
// by the confidence of the new advice. Caps must be monotone
// non-decreasing in confidence.
type StepCaps struct {
	High int // confidence >= 0.75
	Mid  int // confidence >= 0.55
	Low  int // everything below
}

// DefaultStepCaps is the production tuning.
var DefaultStepCaps = StepCaps{High: 18, Mid: 14, Low: 10}

const (
	deadZone        = 3
	bandCrossingCap = 22
	fallbackAction  = "Stay calm and verify the caller through an official channel before acting."
)

func (c StepCaps) forConfidence(conf float64) int {
	switch {
	case conf >= 0.75:
		return c.High
	case conf >= 0.55:
		return c.Mid
	default:
		return c.Low
	}
}

// Stabilize smooths a new advice against the previously persisted one
// and merges their action queues. Pure; the caller persists the result.
// With no previous advice the new advice passes through (actions still
// deduplicated, level re-derived).
func Stabilize(prev, next *domain.CoachingAdvice, caps StepCaps, now time.Time) *domain.CoachingAdvice {
	out := *next
	out.NextSteps = append([]string(nil), next.NextSteps...)

	if prev != nil {
		p, n := prev.RiskScore, next.RiskScore
		switch {
		case abs(n-p) <= deadZone:
			out.RiskScore = p
		default:
			limit := caps.forConfidence(next.Confidence)
			// The raised cap only applies when it can actually land the
			// score in the high band; a far-below score still climbs at
			// its confidence cap.
			if p < domain.HighRiskThreshold && n >= domain.HighRiskThreshold &&
				p+bandCrossingCap >= domain.HighRiskThreshold && limit < bandCrossingCap {
				limit = bandCrossingCap
			}
			if n > p+limit {
				out.RiskScore = p + limit
			} else if n < p-limit {
				out.RiskScore = p - limit
			}
		}
	}

	out.RiskLevel = domain.LevelForScore(out.RiskScore)
	out.WhatToDo, out.NextSteps = mergeActions(prev, next)
	out.UpdatedAt = now.UnixMilli()
	return &out
}

// mergeActions unions the action candidates of both advices in
// priority order and splits the survivors into what_to_do plus up to
// two next steps.
func mergeActions(prev, next *domain.CoachingAdvice) (string, []string) {
	var candidates []string
	candidates = append(candidates, next.WhatToDo)
	if prev != nil {
		candidates = append(candidates, prev.WhatToDo)
		candidates = append(candidates, prev.NextSteps...)
	}
	candidates = append(candidates, next.NextSteps...)

	seen := make(map[string]struct{}, len(candidates))
	var actions []string
	for _, c := range candidates {
		canon := canonicalizeAction(c)
		if canon == "" {
			continue
		}
		key := strings.ToLower(canon)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		actions = append(actions, canon)
	}

	if len(actions) == 0 {
		return fallbackAction, nil
	}
	whatToDo := actions[0]
	rest := actions[1:]
	if len(rest) > domain.MaxNextSteps {
		rest = rest[:domain.MaxNextSteps]
	}
	return whatToDo, rest
}

// canonicalizeAction collapses internal whitespace and trims.
func canonicalizeAction(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
