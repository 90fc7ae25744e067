package domain

import "context"

// Store persists call sessions and transcript chunks. Implementations
// must bump the session's updated_at on every mutation and deliver a
// row-change notification for each committed write.
type Store interface {
	// UpsertSession creates the session row if absent and applies the
	// given status transition when status is non-empty. The slug is
	// immutable once set; transitions out of a terminal status are
	// ignored. lastError, when non-nil, replaces the stored note.
	UpsertSession(ctx context.Context, callID, slug string, status Status, lastError *string) error

	// AppendChunk inserts a transcript chunk, ignoring duplicates of
	// (call_id, source_event_id). It reports whether a row was inserted.
	AppendChunk(ctx context.Context, chunk TranscriptChunk) (bool, error)

	// GetChunks returns the last limit chunks for the call ordered by
	// insertion id ascending.
	GetChunks(ctx context.Context, callID string, limit int) ([]TranscriptChunk, error)

	// GetSummary returns the worker's view of a session, or nil if the
	// session does not exist.
	GetSummary(ctx context.Context, callID string) (*SessionSummary, error)

	// GetSnapshot returns the live view of a session, or nil when the
	// row is absent or its slug does not match.
	GetSnapshot(ctx context.Context, callID, slug string, transcriptLimit int) (*Snapshot, error)

	// SetStatus applies a status transition, honoring terminal finality.
	SetStatus(ctx context.Context, callID string, status Status, lastError *string) error

	// SetAnalyzing flips the model-call-in-flight flag.
	SetAnalyzing(ctx context.Context, callID string, analyzing bool) error

	// SetAdvice persists a stabilized advice snapshot together with the
	// user-safe error note and the analyzing flag.
	SetAdvice(ctx context.Context, callID string, advice CoachingAdvice, lastError *string, analyzing bool) error
}

// CaseStore persists protected-number registrations.
type CaseStore interface {
	CreateCase(ctx context.Context, c Case) error
	GetCase(ctx context.Context, slug string) (*Case, error)
	SetPhone(ctx context.Context, slug, phoneNumber string) error
}
