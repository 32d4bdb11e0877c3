// Package envelope implements the standard event envelope (C1): the sole
// wire format carried in a Stream entry's payload field.
package envelope

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	eberrors "github.com/aire-platform/eventbus/internal/errors"
)

// Version is the envelope schema version stamped on every envelope built
// by this package.
const Version = "1.0"

// DefaultEventType is used when a publisher omits event_type.
const DefaultEventType = "UnknownEventType"

// Envelope wraps a business payload with the metadata used for routing,
// tracing, and replay. Envelopes are immutable once built.
type Envelope struct {
	EventID           string         `json:"event_id"`
	EventType         string         `json:"event_type"`
	SourceService     string         `json:"source_service"`
	PublishedAtUTC    string         `json:"published_at_utc"`
	Version           string         `json:"version"`
	TraceID           *string        `json:"trace_id"`
	DialogueSessionID *string        `json:"dialogue_session_id"`
	ActualPayload     map[string]any `json:"actual_payload"`
}

// BuildParams carries the optional fields a caller may supply to Build.
type BuildParams struct {
	EventType         string
	TraceID           *string
	DialogueSessionID *string
}

// Build produces a fresh envelope: a UUIDv4 event_id, the current UTC
// instant at millisecond precision, and the fixed schema Version. An empty
// EventType defaults to DefaultEventType.
func Build(payload map[string]any, sourceService string, params BuildParams) *Envelope {
	eventType := params.EventType
	if eventType == "" {
		eventType = DefaultEventType
	}
	return &Envelope{
		EventID:           uuid.NewString(),
		EventType:         eventType,
		SourceService:     sourceService,
		PublishedAtUTC:    nowUTCMillis(),
		Version:           Version,
		TraceID:           params.TraceID,
		DialogueSessionID: params.DialogueSessionID,
		ActualPayload:     payload,
	}
}

func nowUTCMillis() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

// Serialize encodes the envelope as UTF-8 JSON, preserving non-ASCII
// characters in the payload rather than escaping them.
func Serialize(e *Envelope) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return nil, eberrors.Serialization(err)
	}
	// json.Encoder.Encode appends a trailing newline; trim it so the
	// serialized envelope carries no trailing newline.
	b := buf.Bytes()
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
	}
	return b, nil
}

// Parse decodes a wire-format envelope. Malformed JSON yields a
// DeserializationError.
func Parse(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, eberrors.Deserialization(err)
	}
	return &e, nil
}
