// Package envelope defines the wire envelope shared by every transport mode.
//
// An envelope is a minimal wrapper around an opaque payload: an optional
// monotonically increasing sequence number used for gap detection and an
// optional origin timestamp used for latency sampling. The SDK never
// interprets the payload.
package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is the unit of delivery for all transport modes. Sequence and
// Timestamp are optional on the wire; zero means absent.
type Envelope struct {
	// Sequence is a monotonically increasing message number assigned by the
	// origin. Gaps are detected and counted as loss, never corrected.
	Sequence int64 `json:"sequence,omitempty"`

	// Timestamp is the origin time in milliseconds since the Unix epoch.
	Timestamp int64 `json:"timestamp,omitempty"`

	// Payload is opaque to the SDK and owned by the consumer.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// HasSequence reports whether the envelope carries a sequence number.
func (e *Envelope) HasSequence() bool {
	return e.Sequence > 0
}

// HasTimestamp reports whether the envelope carries an origin timestamp.
func (e *Envelope) HasTimestamp() bool {
	return e.Timestamp > 0
}

// OriginTime returns the origin timestamp as a time.Time. Only meaningful
// when HasTimestamp reports true.
func (e *Envelope) OriginTime() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Parse decodes a single envelope from raw bytes. Whitespace-only input is
// rejected; unknown fields are ignored so origins may extend the shape.
func Parse(data []byte) (*Envelope, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty envelope")
	}

	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return &env, nil
}

// PollResponse is the body returned by a poll endpoint: zero or more
// envelopes in delivery order.
type PollResponse struct {
	Messages []Envelope `json:"messages"`
}

// ParsePollResponse decodes a poll response body.
func ParsePollResponse(data []byte) (*PollResponse, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return &PollResponse{}, nil
	}

	var resp PollResponse
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal poll response: %w", err)
	}
	return &resp, nil
}

// Now returns the current time in envelope timestamp units. Origins embedding
// this SDK on the server side use it to stamp outbound envelopes.
func Now() int64 {
	return time.Now().UnixMilli()
}
