package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestVerifyFormSignature(t *testing.T) {
	v := NewVerifier("secret-token")
	form := url.Values{}
	form.Set("CallSid", "CA123")
	form.Set("CallStatus", "in-progress")

	rawURL := "https://coach.example.com/webhooks/voice?slug=my-case"
	sig := v.Sign(rawURL, form)

	if !v.Verify(sig, []string{rawURL}, nil, form, false) {
		t.Error("Verify() = false for a correctly signed form request")
	}
	if v.Verify(sig, []string{"https://other.example.com/webhooks/voice"}, nil, form, false) {
		t.Error("Verify() = true for the wrong URL")
	}
	if v.Verify("bogus", []string{rawURL}, nil, form, false) {
		t.Error("Verify() = true for a bogus signature")
	}
}

func TestVerifyFormSignatureSortedParams(t *testing.T) {
	// Parameter order in the request must not matter: the payload is
	// built from sorted keys.
	v := NewVerifier("secret-token")
	a := url.Values{}
	a.Set("Zebra", "1")
	a.Set("Alpha", "2")

	rawURL := "https://coach.example.com/hook"
	sig := v.Sign(rawURL, a)

	b := url.Values{}
	b.Set("Alpha", "2")
	b.Set("Zebra", "1")
	if !v.Verify(sig, []string{rawURL}, nil, b, false) {
		t.Error("Verify() sensitive to parameter insertion order")
	}
}

func TestVerifyJSONSignature(t *testing.T) {
	v := NewVerifier("secret-token")
	body := []byte(`{"CallSid":"CA1","text":"hello"}`)
	sum := sha256.Sum256(body)
	rawURL := "https://coach.example.com/webhooks/voice?bodySHA256=" + hex.EncodeToString(sum[:])

	sig := v.Sign(rawURL, nil)
	if !v.Verify(sig, []string{rawURL}, body, nil, true) {
		t.Error("Verify() = false for a correctly signed JSON request")
	}

	// Tampered body fails even with a valid URL signature.
	if v.Verify(sig, []string{rawURL}, []byte(`{"CallSid":"CA1","text":"evil"}`), nil, true) {
		t.Error("Verify() = true for a tampered JSON body")
	}

	// Missing bodySHA256 never verifies.
	bare := "https://coach.example.com/webhooks/voice"
	if v.Verify(v.Sign(bare, nil), []string{bare}, body, nil, true) {
		t.Error("Verify() = true for JSON without bodySHA256")
	}
}

func TestVerifyEmptyToken(t *testing.T) {
	v := NewVerifier("")
	if v.Verify("anything", []string{"https://x"}, nil, nil, false) {
		t.Error("Verify() = true with an empty auth token")
	}
}

func TestCandidateURLs(t *testing.T) {
	r := httptest.NewRequest("POST", "http://internal:8080/webhooks/voice?slug=s", nil)
	r.Host = "internal:8080"
	r.Header.Set("X-Forwarded-Host", "coach.example.com")
	r.Header.Set("X-Forwarded-Proto", "https")

	got := CandidateURLs(r)
	want := map[string]bool{
		"https://internal:8080/webhooks/voice?slug=s":     false,
		"https://coach.example.com/webhooks/voice?slug=s": false,
	}
	for _, u := range got {
		if _, ok := want[u]; ok {
			want[u] = true
		}
	}
	for u, seen := range want {
		if !seen {
			t.Errorf("CandidateURLs() missing %q, got %v", u, got)
		}
	}
}

func TestCandidateURLsForwardedHostList(t *testing.T) {
	r := httptest.NewRequest("POST", "http://internal/hook", nil)
	r.Host = "internal"
	r.Header.Set("X-Forwarded-Host", "edge.example.com, internal")

	got := CandidateURLs(r)
	found := false
	for _, u := range got {
		if u == "https://edge.example.com/hook" {
			found = true
		}
	}
	if !found {
		t.Errorf("CandidateURLs() = %v, want first forwarded host only", got)
	}
}
