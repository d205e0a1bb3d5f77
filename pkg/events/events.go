// Package events defines the normalized event stream a client publishes and
// the synchronous fan-out bus consumers subscribe through.
//
// Events are a tagged variant: the Type field selects which of the optional
// fields carry data. Consumers switch on Type for exhaustive handling
// instead of type-asserting on an open interface.
package events

import (
	"time"

	"github.com/openfleet/conduit-go/pkg/envelope"
	"github.com/openfleet/conduit-go/pkg/quality"
	"github.com/openfleet/conduit-go/pkg/transport"
)

// Type tags an Event variant.
type Type string

const (
	// TypeConnected fires when a transport is established. Mode is set.
	TypeConnected Type = "connected"

	// TypeDisconnected fires when a transport terminates. Reason may be set.
	TypeDisconnected Type = "disconnected"

	// TypeMessage carries one inbound envelope. Envelope is set.
	TypeMessage Type = "message"

	// TypeError reports a recoverable fault. Cause is set.
	TypeError Type = "error"

	// TypeModeChanged reports a fallback or recovery transition. From, To,
	// and Reason are set.
	TypeModeChanged Type = "mode_changed"

	// TypeQualityChanged fires when the score crosses below the configured
	// threshold. Quality is set.
	TypeQualityChanged Type = "quality_changed"

	// TypeReconnecting announces a scheduled same-mode retry. Attempt and
	// Delay are set.
	TypeReconnecting Type = "reconnecting"
)

// Event is the tagged variant delivered to subscribers.
type Event struct {
	Type Type

	Mode     transport.Mode     // connected
	Reason   string             // disconnected, mode_changed
	Envelope *envelope.Envelope // message
	Cause    error              // error
	From     transport.Mode     // mode_changed
	To       transport.Mode     // mode_changed
	Quality  *quality.Quality   // quality_changed
	Attempt  int                // reconnecting
	Delay    time.Duration      // reconnecting
}

// Connected builds a connected event.
func Connected(mode transport.Mode) Event {
	return Event{Type: TypeConnected, Mode: mode}
}

// Disconnected builds a disconnected event.
func Disconnected(reason string) Event {
	return Event{Type: TypeDisconnected, Reason: reason}
}

// Message builds a message event.
func Message(env *envelope.Envelope) Event {
	return Event{Type: TypeMessage, Envelope: env}
}

// Error builds an error event.
func Error(cause error) Event {
	return Event{Type: TypeError, Cause: cause}
}

// ModeChanged builds a mode_changed event.
func ModeChanged(from, to transport.Mode, reason string) Event {
	return Event{Type: TypeModeChanged, From: from, To: to, Reason: reason}
}

// QualityChanged builds a quality_changed event.
func QualityChanged(q quality.Quality) Event {
	return Event{Type: TypeQualityChanged, Quality: &q}
}

// Reconnecting builds a reconnecting event.
func Reconnecting(attempt int, delay time.Duration) Event {
	return Event{Type: TypeReconnecting, Attempt: attempt, Delay: delay}
}
