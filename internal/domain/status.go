package domain

import "strings"

// Status is the canonical lifecycle state of a monitor call session.
type Status string

// Canonical session statuses.
const (
	StatusQueued     Status = "queued"
	StatusRinging    Status = "ringing"
	StatusInProgress Status = "in-progress"
	StatusEnded      Status = "ended"
	StatusFailed     Status = "failed"
	StatusUnknown    Status = "unknown"
)

// NormalizeStatus maps a raw provider status string onto the canonical
// status set. Providers disagree on vocabulary ("completed", "busy",
// "canceled", "active"), so matching is by substring.
func NormalizeStatus(raw string) Status {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case s == "":
		return StatusUnknown
	case strings.Contains(s, "queued"):
		return StatusQueued
	case strings.Contains(s, "ring"):
		return StatusRinging
	case strings.Contains(s, "in progress"), strings.Contains(s, "in-progress"), strings.Contains(s, "active"):
		return StatusInProgress
	case strings.Contains(s, "fail"), strings.Contains(s, "error"), strings.Contains(s, "busy"):
		return StatusFailed
	case strings.Contains(s, "end"), strings.Contains(s, "complete"), strings.Contains(s, "cancel"):
		return StatusEnded
	default:
		return StatusUnknown
	}
}

// Terminal reports whether the status blocks further status transitions.
func (s Status) Terminal() bool {
	return s == StatusEnded || s == StatusFailed
}
