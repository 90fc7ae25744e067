package advice

import (
	"strings"
	"testing"
	"time"

	"github.com/jkindrix/scamshield/internal/domain"
)

func adviceWith(score int, conf float64) *domain.CoachingAdvice {
	return &domain.CoachingAdvice{
		RiskScore:  score,
		RiskLevel:  domain.LevelForScore(score),
		WhatToDo:   "Hang up now.",
		Confidence: conf,
	}
}

func TestStabilizeNoPrevious(t *testing.T) {
	next := adviceWith(80, 0.6)
	got := Stabilize(nil, next, DefaultStepCaps, time.Now())
	if got.RiskScore != 80 {
		t.Errorf("RiskScore = %d, want 80 (pass-through)", got.RiskScore)
	}
	if got.RiskLevel != domain.RiskHigh {
		t.Errorf("RiskLevel = %q, want high", got.RiskLevel)
	}
}

func TestStabilizeDeadZone(t *testing.T) {
	for _, n := range []int{47, 48, 50, 52, 53} {
		prev := adviceWith(50, 0.5)
		got := Stabilize(prev, adviceWith(n, 0.9), DefaultStepCaps, time.Now())
		if got.RiskScore != 50 {
			t.Errorf("Stabilize(50 -> %d) = %d, want 50 (dead-zone)", n, got.RiskScore)
		}
	}
}

func TestStabilizeStepCaps(t *testing.T) {
	tests := []struct {
		name string
		prev int
		next int
		conf float64
		want int
	}{
		{"low confidence caps at 10", 25, 90, 0.4, 35},
		{"mid confidence caps at 14", 25, 60, 0.6, 39},
		{"high confidence caps at 18", 25, 60, 0.8, 43},
		{"downward move capped too", 60, 10, 0.4, 50},
		{"within cap passes through", 40, 48, 0.8, 48},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Stabilize(adviceWith(tt.prev, 0.5), adviceWith(tt.next, tt.conf), DefaultStepCaps, time.Now())
			if got.RiskScore != tt.want {
				t.Errorf("Stabilize(%d -> %d, conf %v) = %d, want %d",
					tt.prev, tt.next, tt.conf, got.RiskScore, tt.want)
			}
		})
	}
}

func TestStabilizeBandCrossing(t *testing.T) {
	// Crossing into the high band lifts the cap to 22 even at low
	// confidence.
	got := Stabilize(adviceWith(55, 0.5), adviceWith(92, 0.4), DefaultStepCaps, time.Now())
	if got.RiskScore != 77 {
		t.Errorf("RiskScore = %d, want 77 (55 + 22)", got.RiskScore)
	}
	if got.RiskLevel != domain.RiskHigh {
		t.Errorf("RiskLevel = %q, want high", got.RiskLevel)
	}

	// Already in the high band: no acceleration.
	got = Stabilize(adviceWith(72, 0.5), adviceWith(95, 0.4), DefaultStepCaps, time.Now())
	if got.RiskScore != 82 {
		t.Errorf("RiskScore = %d, want 82 (72 + 10, no band crossing)", got.RiskScore)
	}

	// Too far below the band for the raised cap to reach it: the
	// confidence cap applies unchanged.
	got = Stabilize(adviceWith(25, 0.5), adviceWith(90, 0.4), DefaultStepCaps, time.Now())
	if got.RiskScore != 35 {
		t.Errorf("RiskScore = %d, want 35 (25 + 10, band out of reach)", got.RiskScore)
	}

	// Raised cap lands exactly on the threshold.
	got = Stabilize(adviceWith(48, 0.5), adviceWith(95, 0.4), DefaultStepCaps, time.Now())
	if got.RiskScore != 70 {
		t.Errorf("RiskScore = %d, want 70 (48 + 22)", got.RiskScore)
	}
	if got.RiskLevel != domain.RiskHigh {
		t.Errorf("RiskLevel = %q, want high at the threshold", got.RiskLevel)
	}
}

func TestStabilizeLevelRederived(t *testing.T) {
	// The capped score, not the raw one, drives the level.
	got := Stabilize(adviceWith(40, 0.5), adviceWith(90, 0.4), DefaultStepCaps, time.Now())
	if got.RiskScore != 50 {
		t.Fatalf("RiskScore = %d, want 50", got.RiskScore)
	}
	if got.RiskLevel != domain.RiskMedium {
		t.Errorf("RiskLevel = %q, want medium for capped score 50", got.RiskLevel)
	}
}

func TestStabilizeActionQueue(t *testing.T) {
	prev := &domain.CoachingAdvice{
		RiskScore: 50,
		WhatToDo:  "Hang up  now.",
		NextSteps: []string{"Call the bank.", "Do not pay."},
	}
	next := &domain.CoachingAdvice{
		RiskScore:  52,
		WhatToDo:   "hang up now.",
		NextSteps:  []string{"Verify the number."},
		Confidence: 0.6,
	}

	got := Stabilize(prev, next, DefaultStepCaps, time.Now())
	if got.WhatToDo != "hang up now." {
		t.Errorf("WhatToDo = %q, want the new action first", got.WhatToDo)
	}
	want := []string{"Call the bank.", "Do not pay."}
	if len(got.NextSteps) != len(want) {
		t.Fatalf("NextSteps = %v, want %v", got.NextSteps, want)
	}
	for i := range want {
		if got.NextSteps[i] != want[i] {
			t.Errorf("NextSteps[%d] = %q, want %q", i, got.NextSteps[i], want[i])
		}
	}

	// Uniqueness after normalization.
	seen := map[string]bool{canonKey(got.WhatToDo): true}
	for _, s := range got.NextSteps {
		if seen[canonKey(s)] {
			t.Errorf("duplicate action %q after normalization", s)
		}
		seen[canonKey(s)] = true
	}
}

func canonKey(s string) string {
	return strings.ToLower(canonicalizeAction(s))
}

func TestStabilizeActionFallback(t *testing.T) {
	prev := &domain.CoachingAdvice{RiskScore: 30}
	next := &domain.CoachingAdvice{RiskScore: 32, Confidence: 0.5}
	got := Stabilize(prev, next, DefaultStepCaps, time.Now())
	if got.WhatToDo == "" {
		t.Error("WhatToDo empty, want fallback action")
	}
	if len(got.NextSteps) != 0 {
		t.Errorf("NextSteps = %v, want empty", got.NextSteps)
	}
}
