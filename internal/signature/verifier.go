// Package signature verifies provider webhook signatures. The scheme is
// HMAC-SHA1 over the request URL plus the sorted form parameters,
// base64-encoded; JSON bodies are covered indirectly through a
// bodySHA256 query parameter and the signature covers the URL alone.
package signature

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Header carries the provider's request signature.
const Header = "X-Twilio-Signature"

// Verifier checks webhook authenticity against the shared auth token.
type Verifier struct {
	authToken string
}

// NewVerifier creates a Verifier. An empty token never verifies.
func NewVerifier(authToken string) *Verifier {
	return &Verifier{authToken: authToken}
}

// Verify checks the signature against every candidate URL. Form bodies
// are signed as URL+sorted(k,v); JSON bodies require a bodySHA256 query
// parameter matching the raw body and are signed as the URL alone.
// Comparison is constant-time.
func (v *Verifier) Verify(sig string, candidates []string, body []byte, form url.Values, isJSON bool) bool {
	if v.authToken == "" || sig == "" {
		return false
	}

	for _, candidate := range candidates {
		if isJSON {
			if !bodyHashMatches(candidate, body) {
				continue
			}
			if constantTimeEqual(sig, v.sign(candidate, nil)) {
				return true
			}
			continue
		}
		if constantTimeEqual(sig, v.sign(candidate, form)) {
			return true
		}
	}
	return false
}

// Sign computes the expected signature for a URL and form parameters.
// Exposed for outbound-webhook tests and local tooling.
func (v *Verifier) Sign(rawURL string, form url.Values) string {
	return v.sign(rawURL, form)
}

func (v *Verifier) sign(rawURL string, form url.Values) string {
	var payload strings.Builder
	payload.WriteString(rawURL)

	if len(form) > 0 {
		keys := make([]string, 0, len(form))
		for k := range form {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			for _, value := range form[k] {
				payload.WriteString(k)
				payload.WriteString(value)
			}
		}
	}

	mac := hmac.New(sha1.New, []byte(v.authToken))
	mac.Write([]byte(payload.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// bodyHashMatches checks the bodySHA256 query parameter of a candidate
// URL against the raw request body.
func bodyHashMatches(rawURL string, body []byte) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	declared := u.Query().Get("bodySHA256")
	if declared == "" {
		return false
	}
	sum := sha256.Sum256(body)
	return constantTimeEqual(strings.ToLower(declared), hex.EncodeToString(sum[:]))
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// CandidateURLs reconstructs the URLs the provider may have signed:
// the request as received, plus a variant rewritten from the proxy
// forwarding headers. Duplicates are collapsed preserving order.
func CandidateURLs(r *http.Request) []string {
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	hosts := []string{r.Host}
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		// Proxies may append hops comma-separated; the first is the
		// externally visible host.
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		hosts = append(hosts, strings.TrimSpace(fwd))
	}

	seen := make(map[string]struct{}, len(hosts)*2)
	var out []string
	for _, host := range hosts {
		if host == "" {
			continue
		}
		for _, s := range []string{scheme, "https"} {
			u := s + "://" + host + r.URL.RequestURI()
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	return out
}
