// Package transport provides the three transport adapters behind one
// callback contract.
//
// Each adapter normalizes its native I/O into four callbacks: opened,
// message, error, closed. Nothing past that boundary ever panics or sees a
// raw transport error; failures are classified and delivered as typed
// errors. The set of modes is closed: a full-duplex WebSocket connection,
// a unidirectional server-sent event stream, and sequential HTTP polling.
//
// Usage:
//
//	config := transport.Config{
//		Mode:      transport.ModeWebSocket,
//		StreamURL: "wss://api.example.com/stream",
//		Callbacks: callbacks,
//	}
//	adapter, err := transport.New(config)
package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/openfleet/conduit-go/pkg/envelope"
	conduiterrors "github.com/openfleet/conduit-go/pkg/errors"
	"github.com/openfleet/conduit-go/pkg/logging"
)

// Mode identifies a transport strategy. Ordered from most capable to most
// compatible: websocket needs a clean full-duplex path, sse traverses most
// HTTP intermediaries, polling works anywhere requests work.
type Mode string

const (
	// ModeWebSocket is the persistent full-duplex socket. Lowest latency,
	// least tolerant of restrictive networks and proxies.
	ModeWebSocket Mode = "websocket"

	// ModeSSE is the unidirectional server-push stream over HTTP.
	ModeSSE Mode = "sse"

	// ModePolling issues sequential HTTP requests carrying a cursor.
	ModePolling Mode = "polling"
)

// Valid reports whether m names a known transport mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeWebSocket, ModeSSE, ModePolling:
		return true
	}
	return false
}

// DefaultFallbackOrder is the mode priority used when none is configured.
func DefaultFallbackOrder() []Mode {
	return []Mode{ModeWebSocket, ModeSSE, ModePolling}
}

// Callbacks is the contract every adapter reports through. All fields are
// optional; nil callbacks are skipped. Adapters guarantee no panic and no
// raw transport error crosses this boundary.
type Callbacks struct {
	// OnOpen fires once when the transport is established.
	OnOpen func()

	// OnMessage fires for each decoded inbound envelope, in delivery order.
	OnMessage func(env *envelope.Envelope)

	// OnError fires for recoverable faults that leave the transport up:
	// a single undecodable envelope, a failed poll. Errors are typed
	// (pkg/errors) for classification.
	OnError func(err error)

	// OnClose fires once when the transport terminates, whether by peer,
	// network fault, or Close. The adapter is dead afterward.
	OnClose func(reason string)
}

func (cb Callbacks) open() {
	if cb.OnOpen != nil {
		cb.OnOpen()
	}
}

func (cb Callbacks) message(env *envelope.Envelope) {
	if cb.OnMessage != nil {
		cb.OnMessage(env)
	}
}

func (cb Callbacks) fault(err error) {
	if cb.OnError != nil {
		cb.OnError(err)
	}
}

func (cb Callbacks) closed(reason string) {
	if cb.OnClose != nil {
		cb.OnClose(reason)
	}
}

// Adapter is the closed contract the controller drives. One adapter instance
// serves one connection attempt: Open at most once, Close at most once.
type Adapter interface {
	// Mode returns the transport strategy this adapter implements.
	Mode() Mode

	// Open establishes the transport. A nil return means the transport is
	// live and callbacks are flowing; an error means the attempt failed
	// before anything was established and no callback has fired.
	Open(ctx context.Context) error

	// Close tears the transport down. Idempotent. Pending I/O is cancelled;
	// the adapter stops invoking callbacks as soon as its loops observe the
	// cancellation.
	Close() error
}

// Config carries everything an adapter needs. The controller fills it from
// the client configuration.
type Config struct {
	// Mode selects the adapter implementation.
	Mode Mode

	// StreamURL is the endpoint for websocket and sse modes.
	StreamURL string

	// PollURL is the endpoint for polling mode.
	PollURL string

	// Callbacks receives all adapter events.
	Callbacks Callbacks

	// HTTPClient serves sse and polling. A client with a global Timeout is
	// unsuitable for streaming; the sse adapter strips it. Defaults to a
	// fresh client when nil.
	HTTPClient *http.Client

	// HandshakeTimeout bounds the websocket dial and the sse/poll request
	// setup. Zero means DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// PollingInterval is the steady delay between polls.
	PollingInterval time.Duration

	// FastPollingInterval replaces PollingInterval while quality is poor
	// and EnableDynamicPolling is set.
	FastPollingInterval time.Duration

	// EnableDynamicPolling switches between the two intervals on quality.
	EnableDynamicPolling bool

	// BackoffBase and BackoffMax shape the delay after a failed poll.
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// Cursor supplies the lastSequence value each poll request carries.
	Cursor func() int64

	// QualityScore supplies the current 0-100 score for dynamic polling.
	QualityScore func() float64

	// Logger receives adapter diagnostics. Defaults to a no-op logger.
	Logger logging.Logger
}

// DefaultHandshakeTimeout bounds transport establishment.
const DefaultHandshakeTimeout = 10 * time.Second

func (c *Config) logger() logging.Logger {
	if c.Logger == nil {
		return logging.NewNop()
	}
	return c.Logger
}

func (c *Config) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return &http.Client{}
	}
	return c.HTTPClient
}

func (c *Config) handshakeTimeout() time.Duration {
	if c.HandshakeTimeout <= 0 {
		return DefaultHandshakeTimeout
	}
	return c.HandshakeTimeout
}

// New creates the adapter for the configured mode.
func New(config Config) (Adapter, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	switch config.Mode {
	case ModeWebSocket:
		return newWebSocketAdapter(config), nil
	case ModeSSE:
		return newSSEAdapter(config), nil
	case ModePolling:
		return newPollingAdapter(config), nil
	default:
		return nil, conduiterrors.InvalidMode(string(config.Mode))
	}
}

func validateConfig(config Config) error {
	switch config.Mode {
	case ModeWebSocket, ModeSSE:
		if config.StreamURL == "" {
			return conduiterrors.InvalidConfig("stream URL is required for " + string(config.Mode) + " mode")
		}
	case ModePolling:
		if config.PollURL == "" {
			return conduiterrors.InvalidConfig("poll URL is required for polling mode")
		}
	default:
		return conduiterrors.InvalidMode(string(config.Mode))
	}
	return nil
}
