// Package event decodes telephony provider webhook payloads into a
// normalized form the ingest pipeline consumes. Providers deliver either
// form-encoded or JSON bodies with inconsistent field naming; parsing is
// defined against the FieldExtractor alias lookup so both shapes share
// one code path.
package event

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jkindrix/scamshield/internal/domain"
)

// ParsedEvent is a provider webhook reduced to the fields the pipeline
// cares about. Absent fields are empty strings; Transcript is nil when
// the event carries no speech text.
type ParsedEvent struct {
	CallID     string
	AccountID  string
	Slug       string
	RawStatus  string
	Transcript *TranscriptEvent
}

// TranscriptEvent is one speech fragment extracted from a webhook.
type TranscriptEvent struct {
	Speaker       domain.Speaker
	Text          string
	IsFinal       bool
	TimestampMS   int64
	SourceEventID string
	Fingerprint   string
}

// Alias banks for the semantic fields. Matching is normalization-based,
// so each entry covers its snake_case and camelCase spellings too.
var (
	callIDAliases    = []string{"CallSid", "CallId", "call_id"}
	accountIDAliases = []string{"AccountSid", "AccountId", "account_id"}
	slugAliases      = []string{"slug", "case", "case_slug"}
	statusAliases    = []string{"CallStatus", "call_status", "status"}
	textAliases      = []string{"TranscriptionText", "transcript", "text", "SpeechResult"}
	trackAliases     = []string{"Track", "Channel", "ParticipantRole"}
	finalAliases     = []string{"IsFinal", "final"}
	eventTypeAliases = []string{"TranscriptionEvent", "EventType", "event", "type"}
	timestampAliases = []string{"Timestamp", "timestamp_ms", "SequenceTime"}
	segmentAliases   = []string{"SegmentSid", "segment_id"}
	sourceAliases    = []string{"SourceEventId", "EventSid"}
	trSidAliases     = []string{"TranscriptionSid", "transcription_id"}
	sequenceAliases  = []string{"SequenceId", "sequence_number"}
)

var finalEventPattern = regexp.MustCompile(`(?i)(final|complete|stopped)`)

// Parse decodes a raw webhook body. slugHint is the slug passed on the
// webhook URL and wins over any slug embedded in the payload.
func Parse(body []byte, contentType, slugHint string) (*ParsedEvent, error) {
	ex, nested, err := buildExtractor(body, contentType)
	if err != nil {
		return nil, err
	}

	ev := &ParsedEvent{Slug: slugHint}
	ev.CallID, _ = ex.Get(callIDAliases...)
	ev.AccountID, _ = ex.Get(accountIDAliases...)
	ev.RawStatus, _ = ex.Get(statusAliases...)
	if ev.Slug == "" {
		ev.Slug, _ = ex.Get(slugAliases...)
	}

	text, _ := ex.Get(textAliases...)
	text = strings.TrimSpace(text)
	if text == "" && nested != nil {
		text = strings.TrimSpace(nestedText(nested))
	}
	if text == "" {
		return ev, nil
	}

	track, _ := ex.Get(trackAliases...)
	speaker := ClassifySpeaker(track)
	final := parseFinality(ex, nested)
	ts := parseTimestamp(ex)
	primary := primaryEventID(ex, ts, speaker)

	ev.Transcript = &TranscriptEvent{
		Speaker:       speaker,
		Text:          text,
		IsFinal:       final,
		TimestampMS:   ts,
		SourceEventID: primary,
		Fingerprint:   Fingerprint(ev.CallID, primary, text),
	}
	return ev, nil
}

// buildExtractor sniffs the payload shape. Declared JSON, or a body that
// starts with '{' or '[', parses as JSON; everything else parses as a
// form. The nested TranscriptionData object, when present, is returned
// for segment-level field recovery.
func buildExtractor(body []byte, contentType string) (FieldExtractor, map[string]any, error) {
	trimmed := strings.TrimSpace(string(body))
	isJSON := strings.Contains(strings.ToLower(contentType), "json") ||
		strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")

	if isJSON {
		var root any
		if err := json.Unmarshal(body, &root); err != nil {
			return nil, nil, fmt.Errorf("invalid json payload: %w", err)
		}
		ex := newJSONExtractor(root)
		nested, _ := ex.Object("TranscriptionData", "transcription_data")
		return ex, nested, nil
	}

	values, err := url.ParseQuery(trimmed)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid form payload: %w", err)
	}
	// Some providers pack TranscriptionData as a JSON string inside a
	// form field.
	if raw := values.Get("TranscriptionData"); raw != "" {
		var nested map[string]any
		if err := json.Unmarshal([]byte(raw), &nested); err == nil {
			return newFormExtractor(values), nested, nil
		}
	}
	return newFormExtractor(values), nil, nil
}

// ClassifySpeaker maps a provider track/channel/role hint onto a speaker.
func ClassifySpeaker(hint string) domain.Speaker {
	h := strings.ToLower(hint)
	switch {
	case strings.Contains(h, "caller"), strings.Contains(h, "customer"), strings.Contains(h, "inbound"):
		return domain.SpeakerCaller
	case strings.Contains(h, "outbound"), strings.Contains(h, "callee"), strings.Contains(h, "agent"),
		strings.Contains(h, "recipient"), strings.Contains(h, "other"):
		return domain.SpeakerOther
	default:
		return domain.SpeakerUnknown
	}
}

// parseFinality resolves whether a fragment is final. An explicit
// IsFinal field wins, then the nested transcription data, then the
// event type name.
func parseFinality(ex FieldExtractor, nested map[string]any) bool {
	if raw, ok := ex.Get(finalAliases...); ok {
		return truthy(raw)
	}
	if nested != nil {
		for k, v := range nested {
			if normalizeKey(k) == "isfinal" {
				if s, ok := scalarString(v); ok {
					return truthy(s)
				}
			}
		}
	}
	if evType, ok := ex.Get(eventTypeAliases...); ok {
		return finalEventPattern.MatchString(evType)
	}
	return false
}

// nestedText pulls the transcript text out of a TranscriptionData
// object, recursing into segments[0] when the top level has none.
func nestedText(nested map[string]any) string {
	for k, v := range nested {
		norm := normalizeKey(k)
		if norm == "text" || norm == "transcript" {
			if s, ok := scalarString(v); ok {
				return s
			}
		}
	}
	for k, v := range nested {
		if normalizeKey(k) != "segments" {
			continue
		}
		segments, ok := v.([]any)
		if !ok || len(segments) == 0 {
			continue
		}
		if first, ok := segments[0].(map[string]any); ok {
			return nestedText(first)
		}
	}
	return ""
}

func parseTimestamp(ex FieldExtractor) int64 {
	raw, ok := ex.Get(timestampAliases...)
	if !ok {
		return 0
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		// Second-resolution timestamps are promoted to milliseconds.
		if ms > 0 && ms < 1e12 {
			return ms * 1000
		}
		return ms
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UnixMilli()
	}
	return 0
}

// primaryEventID picks the deduplication identity for a fragment: the
// segment sid, an explicit source hint, transcription_sid:sequence_id,
// or finally timestamp:speaker.
func primaryEventID(ex FieldExtractor, timestampMS int64, speaker domain.Speaker) string {
	if id, ok := ex.Get(segmentAliases...); ok {
		return id
	}
	if id, ok := ex.Get(sourceAliases...); ok {
		return id
	}
	trSid, okSid := ex.Get(trSidAliases...)
	seq, okSeq := ex.Get(sequenceAliases...)
	if okSid && okSeq {
		return trSid + ":" + seq
	}
	if okSid {
		return trSid
	}
	return fmt.Sprintf("%d:%s", timestampMS, speaker)
}

// Fingerprint builds the SHA-1 dedup key for a transcript fragment.
func Fingerprint(callID, primaryID, text string) string {
	h := sha1.New()
	h.Write([]byte(callID))
	h.Write([]byte("|"))
	h.Write([]byte(primaryID))
	h.Write([]byte("|"))
	h.Write([]byte(strings.ToLower(strings.TrimSpace(text))))
	return hex.EncodeToString(h.Sum(nil))
}

func truthy(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "final":
		return true
	default:
		return false
	}
}
