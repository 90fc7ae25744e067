package push_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jkindrix/scamshield/internal/domain"
	"github.com/jkindrix/scamshield/internal/push"
	"github.com/jkindrix/scamshield/internal/repository"
)

func dialSocket(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/live/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) *domain.LiveView {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var view domain.LiveView
	if err := conn.ReadJSON(&view); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	return &view
}

func TestSocketStreamsSnapshots(t *testing.T) {
	hub := push.NewHub()
	store := repository.NewMemoryStore(hub)
	ctx := context.Background()

	if err := store.UpsertSession(ctx, "CA400", "my-case", domain.StatusInProgress, nil); err != nil {
		t.Fatalf("UpsertSession() error = %v", err)
	}

	s := push.NewSocketServer(hub, store, 200, zap.NewNop(), nil)
	server := httptest.NewServer(http.HandlerFunc(s.Handle))
	defer server.Close()

	conn := dialSocket(t, server, "callId=CA400&slug=my-case")
	defer conn.Close()

	// Initial snapshot arrives before any change.
	snap := readSnapshot(t, conn)
	if !snap.OK || snap.CallID != "CA400" {
		t.Fatalf("initial snapshot = %+v, want ok CA400", snap)
	}
	if len(snap.Transcript) != 0 {
		t.Fatalf("initial transcript length = %d, want 0", len(snap.Transcript))
	}

	// A store mutation pushes a fresh snapshot.
	if _, err := store.AppendChunk(ctx, domain.TranscriptChunk{
		CallID:        "CA400",
		SourceEventID: "ev1",
		Speaker:       domain.SpeakerOther,
		Text:          "is this the account holder",
	}); err != nil {
		t.Fatalf("AppendChunk() error = %v", err)
	}

	snap = readSnapshot(t, conn)
	if len(snap.Transcript) != 1 {
		t.Fatalf("pushed transcript length = %d, want 1", len(snap.Transcript))
	}
	if snap.Transcript[0].Text != "is this the account holder" {
		t.Errorf("pushed chunk text = %q", snap.Transcript[0].Text)
	}
}

func TestSocketRejectsWrongSlug(t *testing.T) {
	hub := push.NewHub()
	store := repository.NewMemoryStore(hub)
	if err := store.UpsertSession(context.Background(), "CA401", "my-case", domain.StatusInProgress, nil); err != nil {
		t.Fatalf("UpsertSession() error = %v", err)
	}

	s := push.NewSocketServer(hub, store, 200, zap.NewNop(), nil)
	server := httptest.NewServer(http.HandlerFunc(s.Handle))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/live/ws?callId=CA401&slug=wrong"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial succeeded with a wrong slug")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("handshake response = %+v, want 404", resp)
	}
}

func TestSocketRequiresParams(t *testing.T) {
	hub := push.NewHub()
	store := repository.NewMemoryStore(hub)
	s := push.NewSocketServer(hub, store, 200, zap.NewNop(), nil)
	server := httptest.NewServer(http.HandlerFunc(s.Handle))
	defer server.Close()

	resp, err := http.Get(server.URL + "/live/ws?callId=CA1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
