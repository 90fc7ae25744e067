// Package domain defines the core types of the live coaching pipeline:
// call sessions, transcript chunks, coaching advice, and the store
// contracts the pipeline is built against.
package domain

import "time"

// Speaker identifies which side of the monitored conversation a
// transcript chunk belongs to.
type Speaker string

// Speaker classifications.
const (
	SpeakerCaller  Speaker = "caller"
	SpeakerOther   Speaker = "other"
	SpeakerUnknown Speaker = "unknown"
)

// CallSession is the persisted state of one outbound monitor call.
// The ingest path owns status and the failure note; the per-call worker
// is the sole mutator of advice, analyzing, and last_error.
type CallSession struct {
	CallID         string          `json:"callId"`
	Slug           string          `json:"slug"`
	Status         Status          `json:"status"`
	AssistantMuted bool            `json:"assistantMuted"`
	Analyzing      bool            `json:"analyzing"`
	LastError      *string         `json:"lastError"`
	Advice         *CoachingAdvice `json:"advice"`
	LastAdviceAt   *time.Time      `json:"lastAdviceAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// TranscriptChunk is one speech-to-text fragment. Chunks are append-only
// and deduplicated by (call_id, source_event_id).
type TranscriptChunk struct {
	ID            int64   `json:"id"`
	CallID        string  `json:"callId"`
	SourceEventID string  `json:"sourceEventId"`
	Speaker       Speaker `json:"speaker"`
	Text          string  `json:"text"`
	TimestampMS   int64   `json:"timestampMs"`
	IsFinal       bool    `json:"isFinal"`
}

// SessionSummary is the worker's read model of a session.
type SessionSummary struct {
	Slug         string
	Status       Status
	LastAdviceAt *time.Time
	Advice       *CoachingAdvice
}

// Snapshot is the live view read model: session state plus the most
// recent transcript chunks, oldest first.
type Snapshot struct {
	Session    CallSession
	Transcript []TranscriptChunk
}

// LiveView is the wire document served to the live view, flat so the
// polling and websocket clients share one decoder.
type LiveView struct {
	OK             bool              `json:"ok"`
	CallID         string            `json:"callId"`
	Slug           string            `json:"slug"`
	Status         Status            `json:"status"`
	AssistantMuted bool              `json:"assistantMuted"`
	Analyzing      bool              `json:"analyzing"`
	LastError      *string           `json:"lastError"`
	UpdatedAt      time.Time         `json:"updatedAt"`
	Version        int64             `json:"version"`
	Advice         *CoachingAdvice   `json:"advice"`
	Transcript     []TranscriptChunk `json:"transcript"`
}

// View renders the snapshot as the live wire document. Version is the
// updated_at instant in milliseconds; every store mutation bumps
// updated_at, so it is monotonic per session.
func (s *Snapshot) View() *LiveView {
	return &LiveView{
		OK:             true,
		CallID:         s.Session.CallID,
		Slug:           s.Session.Slug,
		Status:         s.Session.Status,
		AssistantMuted: s.Session.AssistantMuted,
		Analyzing:      s.Session.Analyzing,
		LastError:      s.Session.LastError,
		UpdatedAt:      s.Session.UpdatedAt,
		Version:        s.Session.UpdatedAt.UnixMilli(),
		Advice:         s.Session.Advice,
		Transcript:     s.Transcript,
	}
}

// Case is a protected-number registration. The override token hash
// guards phone-number replacement; the token itself is shown once at
// provisioning time.
type Case struct {
	Slug        string
	PhoneNumber string
	TokenHash   []byte
	CreatedAt   time.Time
}
