package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/jkindrix/scamshield/internal/domain"
	"github.com/jkindrix/scamshield/internal/push"
	"github.com/jkindrix/scamshield/internal/repository"
	"github.com/jkindrix/scamshield/internal/signature"
)

type stubEnqueuer struct {
	mu    sync.Mutex
	calls []struct {
		callID string
		force  bool
	}
}

func (s *stubEnqueuer) Enqueue(callID string, force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, struct {
		callID string
		force  bool
	}{callID, force})
}

func (s *stubEnqueuer) last(t *testing.T) (string, bool) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		t.Fatal("no enqueue calls recorded")
	}
	c := s.calls[len(s.calls)-1]
	return c.callID, c.force
}

func newWebhookHandler(store domain.Store, enq Enqueuer) *WebhookHandler {
	return NewWebhookHandler(WebhookHandlerConfig{
		Store:         store,
		Dispatcher:    enq,
		Verifier:      signature.NewVerifier("secret"),
		AccountID:     "AC123",
		SkipSignature: true,
		Logger:        zap.NewNop(),
	})
}

func TestHandleWebhookTranscriptEvent(t *testing.T) {
	store := repository.NewMemoryStore(push.NopNotifier{})
	enq := &stubEnqueuer{}
	h := newWebhookHandler(store, enq)

	form := url.Values{}
	form.Set("CallSid", "CA100")
	form.Set("CallStatus", "in-progress")
	form.Set("TranscriptionText", "read me the code from your bank")
	form.Set("Track", "inbound_track")

	r := httptest.NewRequest("POST", "/webhook?slug=my-case", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()

	h.HandleWebhook(rr, r)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"ok":true`) {
		t.Errorf("body = %s, want ok response", rr.Body.String())
	}

	snap, err := store.GetSnapshot(context.Background(), "CA100", "my-case", 10)
	if err != nil || snap == nil {
		t.Fatalf("GetSnapshot() = (%v, %v), want session", snap, err)
	}
	if snap.Session.Status != domain.StatusInProgress {
		t.Errorf("status = %q, want in-progress", snap.Session.Status)
	}
	if len(snap.Transcript) != 1 {
		t.Fatalf("transcript length = %d, want 1", len(snap.Transcript))
	}
	if snap.Transcript[0].Speaker != domain.SpeakerCaller {
		t.Errorf("speaker = %q, want caller", snap.Transcript[0].Speaker)
	}

	callID, force := enq.last(t)
	if callID != "CA100" || force {
		t.Errorf("Enqueue = (%q, %v), want (CA100, false)", callID, force)
	}
}

func TestHandleWebhookDuplicateChunk(t *testing.T) {
	store := repository.NewMemoryStore(push.NopNotifier{})
	h := newWebhookHandler(store, &stubEnqueuer{})

	form := url.Values{}
	form.Set("CallSid", "CA101")
	form.Set("TranscriptionText", "hello")
	form.Set("SegmentSid", "SG1")
	body := form.Encode()

	for i := 0; i < 2; i++ {
		r := httptest.NewRequest("POST", "/webhook?slug=s", strings.NewReader(body))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		h.HandleWebhook(rr, r)
		if rr.Code != http.StatusOK {
			t.Fatalf("delivery %d status = %d, want 200", i+1, rr.Code)
		}
	}

	chunks, err := store.GetChunks(context.Background(), "CA101", 10)
	if err != nil {
		t.Fatalf("GetChunks() error = %v", err)
	}
	if len(chunks) != 1 {
		t.Errorf("chunk count after redelivery = %d, want 1", len(chunks))
	}
}

func TestHandleWebhookFinalForcesModel(t *testing.T) {
	store := repository.NewMemoryStore(push.NopNotifier{})
	enq := &stubEnqueuer{}
	h := newWebhookHandler(store, enq)

	form := url.Values{}
	form.Set("CallSid", "CA102")
	form.Set("TranscriptionText", "wire the money now")
	form.Set("IsFinal", "true")

	r := httptest.NewRequest("POST", "/webhook?slug=s", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	h.HandleWebhook(httptest.NewRecorder(), r)

	if _, force := enq.last(t); !force {
		t.Error("final transcript should force a model pass")
	}
}

func TestHandleWebhookTerminalStatus(t *testing.T) {
	store := repository.NewMemoryStore(push.NopNotifier{})
	enq := &stubEnqueuer{}
	h := newWebhookHandler(store, enq)

	form := url.Values{}
	form.Set("CallSid", "CA103")
	form.Set("CallStatus", "completed")

	r := httptest.NewRequest("POST", "/webhook?slug=s", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	h.HandleWebhook(httptest.NewRecorder(), r)

	callID, force := enq.last(t)
	if callID != "CA103" || !force {
		t.Errorf("Enqueue = (%q, %v), want (CA103, true)", callID, force)
	}
}

func TestHandleWebhookNoCallID(t *testing.T) {
	store := repository.NewMemoryStore(push.NopNotifier{})
	enq := &stubEnqueuer{}
	h := newWebhookHandler(store, enq)

	r := httptest.NewRequest("POST", "/webhook", strings.NewReader("Foo=bar"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.HandleWebhook(rr, r)

	// Unattributable events are acknowledged so the provider stops retrying.
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
	enq.mu.Lock()
	n := len(enq.calls)
	enq.mu.Unlock()
	if n != 0 {
		t.Errorf("enqueue calls = %d, want 0", n)
	}
}

func TestHandleWebhookAccountMismatch(t *testing.T) {
	store := repository.NewMemoryStore(push.NopNotifier{})
	h := newWebhookHandler(store, &stubEnqueuer{})

	form := url.Values{}
	form.Set("CallSid", "CA104")
	form.Set("AccountSid", "AC999")

	r := httptest.NewRequest("POST", "/webhook", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.HandleWebhook(rr, r)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

func TestHandleWebhookSignatureRequired(t *testing.T) {
	store := repository.NewMemoryStore(push.NopNotifier{})
	verifier := signature.NewVerifier("secret")
	h := NewWebhookHandler(WebhookHandlerConfig{
		Store:      store,
		Dispatcher: &stubEnqueuer{},
		Verifier:   verifier,
		Logger:     zap.NewNop(),
	})

	form := url.Values{}
	form.Set("CallSid", "CA105")
	body := form.Encode()

	// Unsigned request is rejected.
	r := httptest.NewRequest("POST", "http://coach.example.com/webhook?slug=s", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Host = "coach.example.com"
	rr := httptest.NewRecorder()
	h.HandleWebhook(rr, r)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned status = %d, want 401", rr.Code)
	}

	// Correctly signed request passes.
	r = httptest.NewRequest("POST", "http://coach.example.com/webhook?slug=s", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Host = "coach.example.com"
	r.Header.Set(signature.Header, verifier.Sign("http://coach.example.com/webhook?slug=s", form))
	rr = httptest.NewRecorder()
	h.HandleWebhook(rr, r)
	if rr.Code != http.StatusOK {
		t.Errorf("signed status = %d, want 200; body %s", rr.Code, rr.Body.String())
	}
}

func TestHandleWebhookMissingSlugRejected(t *testing.T) {
	store := repository.NewMemoryStore(push.NopNotifier{})
	enq := &stubEnqueuer{}
	h := newWebhookHandler(store, enq)

	form := url.Values{}
	form.Set("CallSid", "CA110")
	form.Set("CallStatus", "in-progress")

	r := httptest.NewRequest("POST", "/webhook", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.HandleWebhook(rr, r)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	summary, err := store.GetSummary(context.Background(), "CA110")
	if err != nil {
		t.Fatalf("GetSummary() error = %v", err)
	}
	if summary != nil {
		t.Errorf("session persisted without a slug: %+v", summary)
	}
	enq.mu.Lock()
	n := len(enq.calls)
	enq.mu.Unlock()
	if n != 0 {
		t.Errorf("enqueue calls = %d, want 0", n)
	}
}

func TestHandleWebhookAdoptsExistingSlug(t *testing.T) {
	store := repository.NewMemoryStore(push.NopNotifier{})
	h := newWebhookHandler(store, &stubEnqueuer{})

	ctx := context.Background()
	if err := store.UpsertSession(ctx, "CA111", "known-case", domain.StatusQueued, nil); err != nil {
		t.Fatalf("UpsertSession() error = %v", err)
	}

	// Status callbacks carry no slug; the session on file supplies it.
	form := url.Values{}
	form.Set("CallSid", "CA111")
	form.Set("CallStatus", "in-progress")

	r := httptest.NewRequest("POST", "/webhook", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.HandleWebhook(rr, r)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rr.Code, rr.Body.String())
	}
	snap, err := store.GetSnapshot(ctx, "CA111", "known-case", 10)
	if err != nil || snap == nil {
		t.Fatalf("GetSnapshot() = (%v, %v), want session under original slug", snap, err)
	}
	if snap.Session.Status != domain.StatusInProgress {
		t.Errorf("status = %q, want in-progress", snap.Session.Status)
	}
}

func TestHandleWebhookFailedStatusSetsNote(t *testing.T) {
	store := repository.NewMemoryStore(push.NopNotifier{})
	h := newWebhookHandler(store, &stubEnqueuer{})

	form := url.Values{}
	form.Set("CallSid", "CA112")
	form.Set("CallStatus", "failed")

	r := httptest.NewRequest("POST", "/webhook?slug=s", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.HandleWebhook(rr, r)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	snap, err := store.GetSnapshot(context.Background(), "CA112", "s", 10)
	if err != nil || snap == nil {
		t.Fatalf("GetSnapshot() = (%v, %v), want session", snap, err)
	}
	if snap.Session.Status != domain.StatusFailed {
		t.Errorf("status = %q, want failed", snap.Session.Status)
	}
	if snap.Session.LastError == nil || *snap.Session.LastError == "" {
		t.Error("LastError empty, want a user-safe failure note")
	}
}

func TestHandleWebhookJSONBody(t *testing.T) {
	store := repository.NewMemoryStore(push.NopNotifier{})
	enq := &stubEnqueuer{}
	h := newWebhookHandler(store, enq)

	body := `{"call_id":"CA106","status":"in-progress","transcript":"they want a gift card","final":true}`
	r := httptest.NewRequest("POST", "/webhook?slug=s", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.HandleWebhook(rr, r)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rr.Code, rr.Body.String())
	}
	chunks, err := store.GetChunks(context.Background(), "CA106", 10)
	if err != nil || len(chunks) != 1 {
		t.Fatalf("GetChunks() = (%d, %v), want 1 chunk", len(chunks), err)
	}
	if !chunks[0].IsFinal {
		t.Error("chunk IsFinal = false, want true")
	}
}
