package conduit

import (
	"github.com/openfleet/conduit-go/pkg/client"
	"github.com/openfleet/conduit-go/pkg/events"
	"github.com/openfleet/conduit-go/pkg/transport"
)

// Version represents the current version of the library
const Version = "1.0.0"

// These exports provide direct access to the core components
var (
	// New creates a new connection client
	New = client.New

	// DefaultConfig returns the default client configuration
	DefaultConfig = client.DefaultConfig
)

// Transport modes in default fallback order
const (
	ModeWebSocket = transport.ModeWebSocket
	ModeSSE       = transport.ModeSSE
	ModePolling   = transport.ModePolling
)

// Connection lifecycle states
const (
	StateDisconnected = client.StateDisconnected
	StateConnecting   = client.StateConnecting
	StateConnected    = client.StateConnected
	StateDegraded     = client.StateDegraded
	StateReconnecting = client.StateReconnecting
)

// Event types published by the client
const (
	EventConnected      = events.TypeConnected
	EventDisconnected   = events.TypeDisconnected
	EventMessage        = events.TypeMessage
	EventError          = events.TypeError
	EventModeChanged    = events.TypeModeChanged
	EventQualityChanged = events.TypeQualityChanged
	EventReconnecting   = events.TypeReconnecting
)

// Client is the connection controller type.
type Client = client.Client

// Config is the client configuration type.
type Config = client.Config

// Event is the normalized event type delivered to subscribers.
type Event = events.Event
