// Package repository implements data persistence using PostgreSQL.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jkindrix/scamshield/internal/domain"
	"github.com/jkindrix/scamshield/internal/push"
)

// SessionRepository implements domain.Store using PostgreSQL. Every
// committed mutation publishes a row-change event for the call.
type SessionRepository struct {
	pool     *pgxpool.Pool
	notifier push.Notifier
}

// NewSessionRepository creates a new SessionRepository. A nil notifier
// disables change notifications.
func NewSessionRepository(pool *pgxpool.Pool, notifier push.Notifier) *SessionRepository {
	if notifier == nil {
		notifier = push.NopNotifier{}
	}
	return &SessionRepository{pool: pool, notifier: notifier}
}

// UpsertSession creates or updates a session row. The slug is written
// only on insert; terminal statuses latch; an unknown status never
// overwrites a known one.
func (r *SessionRepository) UpsertSession(ctx context.Context, callID, slug string, status domain.Status, lastError *string) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO sessions (call_id, slug, status, last_error, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (call_id) DO UPDATE SET
			status = CASE
				WHEN sessions.status IN ('ended', 'failed') THEN sessions.status
				WHEN $3 = 'unknown' THEN sessions.status
				ELSE $3
			END,
			last_error = COALESCE($4, sessions.last_error),
			updated_at = now()`

	if status == "" {
		status = domain.StatusUnknown
	}
	if _, err := r.pool.Exec(ctx, query, callID, slug, string(status), lastError); err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	r.notifier.Notify(push.Event{Kind: push.KindSession, CallID: callID})
	return nil
}

// AppendChunk inserts a transcript chunk, reporting false on a
// duplicate (call_id, source_event_id).
func (r *SessionRepository) AppendChunk(ctx context.Context, chunk domain.TranscriptChunk) (bool, error) {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO transcript_chunks (call_id, source_event_id, speaker, text, timestamp_ms, is_final)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (call_id, source_event_id) DO NOTHING
		RETURNING id`

	var id int64
	err := r.pool.QueryRow(ctx, query,
		chunk.CallID,
		chunk.SourceEventID,
		string(chunk.Speaker),
		chunk.Text,
		chunk.TimestampMS,
		chunk.IsFinal,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert transcript chunk: %w", err)
	}

	r.notifier.Notify(push.Event{Kind: push.KindChunk, CallID: chunk.CallID})
	return true, nil
}

// GetChunks returns the last limit chunks for a call, oldest first.
func (r *SessionRepository) GetChunks(ctx context.Context, callID string, limit int) ([]domain.TranscriptChunk, error) {
	ctx, cancel := WithQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, call_id, source_event_id, speaker, text, timestamp_ms, is_final
		FROM (
			SELECT id, call_id, source_event_id, speaker, text, timestamp_ms, is_final
			FROM transcript_chunks
			WHERE call_id = $1
			ORDER BY id DESC
			LIMIT $2
		) recent
		ORDER BY id ASC`

	rows, err := r.pool.Query(ctx, query, callID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.TranscriptChunk
	for rows.Next() {
		var c domain.TranscriptChunk
		var speaker string
		if err := rows.Scan(&c.ID, &c.CallID, &c.SourceEventID, &speaker, &c.Text, &c.TimestampMS, &c.IsFinal); err != nil {
			return nil, fmt.Errorf("failed to scan transcript chunk: %w", err)
		}
		c.Speaker = domain.Speaker(speaker)
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transcript chunks: %w", err)
	}
	return chunks, nil
}

// GetSummary returns the worker's read model, or nil when the session
// does not exist.
func (r *SessionRepository) GetSummary(ctx context.Context, callID string) (*domain.SessionSummary, error) {
	ctx, cancel := WithQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT slug, status, last_advice_at, advice
		FROM sessions
		WHERE call_id = $1`

	var s domain.SessionSummary
	var status string
	var adviceJSON []byte
	err := r.pool.QueryRow(ctx, query, callID).Scan(&s.Slug, &status, &s.LastAdviceAt, &adviceJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	s.Status = domain.Status(status)

	if len(adviceJSON) > 0 {
		var a domain.CoachingAdvice
		if err := json.Unmarshal(adviceJSON, &a); err != nil {
			return nil, fmt.Errorf("failed to decode stored advice: %w", err)
		}
		s.Advice = &a
	}
	return &s, nil
}

// GetSnapshot returns the live view, or nil when the session is absent
// or its slug does not match.
func (r *SessionRepository) GetSnapshot(ctx context.Context, callID, slug string, transcriptLimit int) (*domain.Snapshot, error) {
	ctx, cancel := WithQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT call_id, slug, status, assistant_muted, analyzing, last_error, advice, last_advice_at, updated_at
		FROM sessions
		WHERE call_id = $1 AND slug = $2`

	var sess domain.CallSession
	var status string
	var adviceJSON []byte
	err := r.pool.QueryRow(ctx, query, callID, slug).Scan(
		&sess.CallID,
		&sess.Slug,
		&status,
		&sess.AssistantMuted,
		&sess.Analyzing,
		&sess.LastError,
		&adviceJSON,
		&sess.LastAdviceAt,
		&sess.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session snapshot: %w", err)
	}
	sess.Status = domain.Status(status)

	if len(adviceJSON) > 0 {
		var a domain.CoachingAdvice
		if err := json.Unmarshal(adviceJSON, &a); err != nil {
			return nil, fmt.Errorf("failed to decode stored advice: %w", err)
		}
		sess.Advice = &a
	}

	chunks, err := r.GetChunks(ctx, callID, transcriptLimit)
	if err != nil {
		return nil, err
	}
	return &domain.Snapshot{Session: sess, Transcript: chunks}, nil
}

// SetStatus applies a status transition, honoring terminal finality.
func (r *SessionRepository) SetStatus(ctx context.Context, callID string, status domain.Status, lastError *string) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	query := `
		UPDATE sessions SET
			status = CASE
				WHEN sessions.status IN ('ended', 'failed') THEN sessions.status
				WHEN $2 = 'unknown' THEN sessions.status
				ELSE $2
			END,
			last_error = COALESCE($3, sessions.last_error),
			updated_at = now()
		WHERE call_id = $1`

	tag, err := r.pool.Exec(ctx, query, callID, string(status), lastError)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	r.notifier.Notify(push.Event{Kind: push.KindSession, CallID: callID})
	return nil
}

// SetAnalyzing flips the model-call-in-flight flag.
func (r *SessionRepository) SetAnalyzing(ctx context.Context, callID string, analyzing bool) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	query := `UPDATE sessions SET analyzing = $2, updated_at = now() WHERE call_id = $1`
	if _, err := r.pool.Exec(ctx, query, callID, analyzing); err != nil {
		return fmt.Errorf("failed to update analyzing flag: %w", err)
	}

	r.notifier.Notify(push.Event{Kind: push.KindSession, CallID: callID})
	return nil
}

// SetAdvice persists a stabilized advice snapshot with the user-safe
// error note and the analyzing flag. A nil note clears the stored one.
func (r *SessionRepository) SetAdvice(ctx context.Context, callID string, a domain.CoachingAdvice, lastError *string, analyzing bool) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	adviceJSON, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal advice: %w", err)
	}

	query := `
		UPDATE sessions SET
			advice = $2,
			last_error = $3,
			analyzing = $4,
			last_advice_at = now(),
			updated_at = now()
		WHERE call_id = $1`

	tag, err := r.pool.Exec(ctx, query, callID, adviceJSON, lastError, analyzing)
	if err != nil {
		return fmt.Errorf("failed to update advice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	r.notifier.Notify(push.Event{Kind: push.KindSession, CallID: callID})
	return nil
}
