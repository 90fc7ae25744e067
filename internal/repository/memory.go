package repository

import (
	"context"
	"sync"
	"time"

	"github.com/jkindrix/scamshield/internal/domain"
	"github.com/jkindrix/scamshield/internal/push"
)

// MemoryStore is an in-memory implementation of domain.Store and
// domain.CaseStore. It backs tests and single-process development runs
// where PostgreSQL is not available.
type MemoryStore struct {
	notifier push.Notifier

	mu          sync.Mutex
	sessions    map[string]*domain.CallSession
	chunks      map[string][]domain.TranscriptChunk
	cases       map[string]*domain.Case
	nextChunkID int64
}

// NewMemoryStore creates a MemoryStore. A nil notifier disables change
// notifications.
func NewMemoryStore(notifier push.Notifier) *MemoryStore {
	if notifier == nil {
		notifier = push.NopNotifier{}
	}
	return &MemoryStore{
		notifier: notifier,
		sessions: make(map[string]*domain.CallSession),
		chunks:   make(map[string][]domain.TranscriptChunk),
		cases:    make(map[string]*domain.Case),
	}
}

// applyStatus implements the shared transition rules: terminal statuses
// latch and unknown never overwrites a known status.
func applyStatus(current, next domain.Status) domain.Status {
	if current.Terminal() {
		return current
	}
	if next == "" || next == domain.StatusUnknown {
		return current
	}
	return next
}

// UpsertSession creates or updates a session row.
func (m *MemoryStore) UpsertSession(ctx context.Context, callID, slug string, status domain.Status, lastError *string) error {
	m.mu.Lock()
	s, ok := m.sessions[callID]
	if !ok {
		if status == "" {
			status = domain.StatusUnknown
		}
		s = &domain.CallSession{CallID: callID, Slug: slug, Status: status}
	} else {
		s.Status = applyStatus(s.Status, status)
	}
	if lastError != nil {
		s.LastError = lastError
	}
	s.UpdatedAt = time.Now()
	m.sessions[callID] = s
	m.mu.Unlock()

	m.notifier.Notify(push.Event{Kind: push.KindSession, CallID: callID})
	return nil
}

// AppendChunk inserts a transcript chunk, reporting false on a
// duplicate (call_id, source_event_id).
func (m *MemoryStore) AppendChunk(ctx context.Context, chunk domain.TranscriptChunk) (bool, error) {
	m.mu.Lock()
	for _, existing := range m.chunks[chunk.CallID] {
		if existing.SourceEventID == chunk.SourceEventID {
			m.mu.Unlock()
			return false, nil
		}
	}
	m.nextChunkID++
	chunk.ID = m.nextChunkID
	m.chunks[chunk.CallID] = append(m.chunks[chunk.CallID], chunk)
	m.mu.Unlock()

	m.notifier.Notify(push.Event{Kind: push.KindChunk, CallID: chunk.CallID})
	return true, nil
}

// GetChunks returns the last limit chunks for a call, oldest first.
func (m *MemoryStore) GetChunks(ctx context.Context, callID string, limit int) ([]domain.TranscriptChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.chunks[callID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]domain.TranscriptChunk, len(all))
	copy(out, all)
	return out, nil
}

// GetSummary returns the worker's read model, or nil when absent.
func (m *MemoryStore) GetSummary(ctx context.Context, callID string) (*domain.SessionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[callID]
	if !ok {
		return nil, nil
	}
	summary := &domain.SessionSummary{
		Slug:         s.Slug,
		Status:       s.Status,
		LastAdviceAt: s.LastAdviceAt,
	}
	if s.Advice != nil {
		a := *s.Advice
		summary.Advice = &a
	}
	return summary, nil
}

// GetSnapshot returns the live view, or nil when the session is absent
// or its slug does not match.
func (m *MemoryStore) GetSnapshot(ctx context.Context, callID, slug string, transcriptLimit int) (*domain.Snapshot, error) {
	m.mu.Lock()
	s, ok := m.sessions[callID]
	if !ok || s.Slug != slug {
		m.mu.Unlock()
		return nil, nil
	}
	sess := *s
	if s.Advice != nil {
		a := *s.Advice
		sess.Advice = &a
	}
	m.mu.Unlock()

	chunks, err := m.GetChunks(ctx, callID, transcriptLimit)
	if err != nil {
		return nil, err
	}
	return &domain.Snapshot{Session: sess, Transcript: chunks}, nil
}

// SetStatus applies a status transition, honoring terminal finality.
func (m *MemoryStore) SetStatus(ctx context.Context, callID string, status domain.Status, lastError *string) error {
	m.mu.Lock()
	s, ok := m.sessions[callID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	s.Status = applyStatus(s.Status, status)
	if lastError != nil {
		s.LastError = lastError
	}
	s.UpdatedAt = time.Now()
	m.mu.Unlock()

	m.notifier.Notify(push.Event{Kind: push.KindSession, CallID: callID})
	return nil
}

// SetAnalyzing flips the model-call-in-flight flag.
func (m *MemoryStore) SetAnalyzing(ctx context.Context, callID string, analyzing bool) error {
	m.mu.Lock()
	if s, ok := m.sessions[callID]; ok {
		s.Analyzing = analyzing
		s.UpdatedAt = time.Now()
	}
	m.mu.Unlock()

	m.notifier.Notify(push.Event{Kind: push.KindSession, CallID: callID})
	return nil
}

// SetAdvice persists an advice snapshot with the error note and the
// analyzing flag. A nil note clears the stored one.
func (m *MemoryStore) SetAdvice(ctx context.Context, callID string, a domain.CoachingAdvice, lastError *string, analyzing bool) error {
	m.mu.Lock()
	s, ok := m.sessions[callID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	adv := a
	s.Advice = &adv
	s.LastError = lastError
	s.Analyzing = analyzing
	now := time.Now()
	s.LastAdviceAt = &now
	s.UpdatedAt = now
	m.mu.Unlock()

	m.notifier.Notify(push.Event{Kind: push.KindSession, CallID: callID})
	return nil
}

// CreateCase inserts a case registration.
func (m *MemoryStore) CreateCase(ctx context.Context, c domain.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cases[c.Slug] = &c
	return nil
}

// GetCase fetches a case by slug, or nil when unknown.
func (m *MemoryStore) GetCase(ctx context.Context, slug string) (*domain.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[slug]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}

// SetPhone stores the protected phone number for a case.
func (m *MemoryStore) SetPhone(ctx context.Context, slug, phoneNumber string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[slug]
	if !ok {
		return ErrNotFound
	}
	c.PhoneNumber = phoneNumber
	return nil
}
