// Package client implements the adaptive connection controller: it owns the
// active transport adapter, degrades through the fallback order when a mode
// keeps failing, and recovers through reconnection with exponential backoff.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfleet/conduit-go/pkg/envelope"
	conduiterrors "github.com/openfleet/conduit-go/pkg/errors"
	"github.com/openfleet/conduit-go/pkg/events"
	"github.com/openfleet/conduit-go/pkg/logging"
	"github.com/openfleet/conduit-go/pkg/observability"
	"github.com/openfleet/conduit-go/pkg/quality"
	"github.com/openfleet/conduit-go/pkg/transport"
)

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDegraded     State = "degraded"
	StateReconnecting State = "reconnecting"
)

// Switch reasons carried on mode_changed events.
const (
	reasonManualOverride = "Manual override"
	reasonMaxAttempts    = "Max reconnect attempts reached"
	reasonQuality        = "Quality degraded"
	reasonErrorStorm     = "Too many errors"
)

// errorStormLimit is the per-mode-session error count beyond which the
// engine forces a switch without waiting for a disconnect.
const errorStormLimit = 5

// Client is the connection controller. One instance owns one logical
// connection lifecycle at a time and is safe for concurrent use.
//
// All adapter callbacks and timers are tagged with a session generation;
// anything arriving from a torn-down session is dropped, so no event fires
// after Disconnect returns.
type Client struct {
	config  Config
	id      string
	logger  logging.Logger
	bus     *events.Bus
	quality *quality.Monitor
	metrics *observability.ConnectionMetrics
	tracer  trace.Tracer

	mu            sync.Mutex
	state         State
	mode          transport.Mode
	adapter       transport.Adapter
	session       uint64
	streamURL     string
	pollURL       string
	attempts      int
	errorCount    int
	totalErrors   int64
	lastMessageAt time.Time
	lastErrorAt   time.Time
	modeStartedAt time.Time
	belowThresh   bool
	retryTimer    *time.Timer
	heartbeatStop chan struct{}
	lifeCtx       context.Context
	lifeCancel    context.CancelFunc

	now        func() time.Time
	newAdapter func(transport.Config) (transport.Adapter, error)
}

// New creates a disconnected client from config. Zero-valued config fields
// are filled with defaults; an invalid combination is rejected here, never
// at connect time.
func New(config Config) (*Client, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	logger := config.Logger.WithFields(
		logging.String("client_id", id),
		logging.String("component", "client"),
	)

	return &Client{
		config:     config,
		id:         id,
		logger:     logger,
		bus:        events.NewBus(logger),
		quality:    quality.NewMonitor(),
		metrics:    config.Metrics,
		tracer:     otel.Tracer(observability.InstrumentationName),
		state:      StateDisconnected,
		mode:       config.PreferredMode,
		now:        time.Now,
		newAdapter: transport.New,
	}, nil
}

// ID returns the client's unique identifier.
func (c *Client) ID() string {
	return c.id
}

// On subscribes a handler to all events. Handlers run synchronously in
// registration order; the returned function removes the subscription.
func (c *Client) On(h events.Handler) func() {
	return c.bus.On(h)
}

// Connect begins the connection lifecycle on the preferred mode. The stream
// URL serves websocket and sse; the poll URL serves polling and may be empty
// when polling is not in the fallback order. Cancelling ctx is equivalent to
// calling Disconnect.
//
// Open failures are not returned: they enter the reconnection engine like
// any later failure. Only configuration problems surface as errors here.
func (c *Client) Connect(ctx context.Context, streamURL, pollURL string) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return conduiterrors.NewError(conduiterrors.CodeAlreadyConnected, "client is already connected",
			conduiterrors.CategoryConfig, conduiterrors.SeverityError)
	}
	c.streamURL = streamURL
	c.pollURL = pollURL
	lifeCtx, cancel := context.WithCancel(context.Background())
	c.lifeCtx = lifeCtx
	c.lifeCancel = cancel
	c.state = StateConnecting
	mode := c.config.PreferredMode
	gen := c.session
	c.mu.Unlock()

	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				c.Disconnect()
			case <-lifeCtx.Done():
			}
		}()
	}

	c.logger.Info("connecting",
		logging.String("mode", string(mode)),
		logging.String("stream_url", streamURL),
		logging.String("poll_url", pollURL),
	)
	return c.connectWith(mode, gen)
}

// ConnectWithMode tears down the current transport, if any, and opens the
// given mode. The mode dwell timer restarts. The client must have an active
// lifecycle.
func (c *Client) ConnectWithMode(mode transport.Mode) error {
	if !c.config.contains(mode) {
		return conduiterrors.InvalidMode(string(mode))
	}
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return conduiterrors.NewError(conduiterrors.CodeClientClosed, "client is disconnected",
			conduiterrors.CategoryCancelled, conduiterrors.SeverityInfo)
	}
	gen := c.session
	c.mu.Unlock()
	return c.connectWith(mode, gen)
}

// ForceMode switches to the given mode immediately, bypassing the adaptation
// guards, and resets the reconnect counter. Forcing the current mode is a
// no-op. A mode_changed event with reason "Manual override" fires before the
// new mode opens.
func (c *Client) ForceMode(mode transport.Mode) error {
	if !c.config.contains(mode) {
		return conduiterrors.InvalidMode(string(mode))
	}

	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return conduiterrors.NewError(conduiterrors.CodeClientClosed, "client is disconnected",
			conduiterrors.CategoryCancelled, conduiterrors.SeverityInfo)
	}
	if mode == c.mode {
		c.mu.Unlock()
		return nil
	}
	from := c.mode
	c.attempts = 0
	gen := c.session
	c.mu.Unlock()

	c.logger.Info("forcing mode switch",
		logging.String("from", string(from)),
		logging.String("to", string(mode)),
	)
	c.metrics.RecordModeSwitch(string(from), string(mode), reasonManualOverride)
	c.bus.Emit(events.ModeChanged(from, mode, reasonManualOverride))
	return c.connectWith(mode, gen)
}

// Disconnect ends the lifecycle: every timer is cancelled and the transport
// closed before it returns. A final disconnected event fires; nothing fires
// after that. A later Connect starts a fresh lifecycle.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	old := c.teardownLocked()
	c.state = StateDisconnected
	c.quality.MarkDisconnected()
	if c.lifeCancel != nil {
		c.lifeCancel()
		c.lifeCancel = nil
	}
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	c.logger.Info("disconnected")
	c.metrics.SetConnectionState(string(StateDisconnected))
	c.bus.Emit(events.Disconnected("client disconnected"))
}

// connectWith opens mode within the current lifecycle. Any existing adapter
// and timers are torn down first. Sequence tracking and the error counter
// restart with the new mode session.
//
// gen is the session generation the caller observed when it decided to
// connect. A Disconnect or a newer session landing between that decision and
// this call makes the request stale, and it is dropped here under the lock.
func (c *Client) connectWith(mode transport.Mode, gen uint64) error {
	c.mu.Lock()
	if gen != c.session || c.state == StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	old := c.teardownLocked()
	sid := c.session
	c.mode = mode
	c.state = StateConnecting
	c.modeStartedAt = c.now()
	c.errorCount = 0
	c.belowThresh = false
	c.quality.MarkModeStart()
	cfg := c.adapterConfigLocked(mode, sid)
	ctx := c.lifeCtx
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	c.metrics.SetConnectionState(string(StateConnecting))
	c.metrics.SetTransportMode(string(mode))

	adapter, err := c.newAdapter(cfg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if sid != c.session {
		// Torn down while we were building the adapter.
		c.mu.Unlock()
		_ = adapter.Close()
		return nil
	}
	c.adapter = adapter
	c.mu.Unlock()

	spanCtx, span := c.tracer.Start(ctx, "conduit.connect",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("conduit.mode", string(mode))),
	)

	if err := adapter.Open(spanCtx); err != nil {
		span.RecordError(err)
		span.End()
		c.logger.WithError(err).Warn("open failed", logging.String("mode", string(mode)))
		c.handleFailure(sid, openFailureReason(err))
		return nil
	}
	span.End()
	return nil
}

// teardownLocked invalidates the current session: the generation counter
// advances so in-flight callbacks and timer fires become stale, the retry
// timer and heartbeat stop, and the adapter is detached for the caller to
// close outside the lock.
func (c *Client) teardownLocked() transport.Adapter {
	c.session++
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
	old := c.adapter
	c.adapter = nil
	return old
}

func (c *Client) adapterConfigLocked(mode transport.Mode, sid uint64) transport.Config {
	return transport.Config{
		Mode:                 mode,
		StreamURL:            c.streamURL,
		PollURL:              c.pollURL,
		HTTPClient:           c.config.HTTPClient,
		HandshakeTimeout:     c.config.HandshakeTimeout,
		PollingInterval:      c.config.PollingInterval,
		FastPollingInterval:  c.config.FastPollingInterval,
		EnableDynamicPolling: c.config.EnableDynamicPolling,
		BackoffBase:          c.config.ReconnectDelayBase,
		BackoffMax:           c.config.ReconnectDelayMax,
		Cursor:               c.quality.LastSequence,
		QualityScore:         c.quality.Score,
		Logger:               c.logger.WithFields(logging.String("component", "transport")),
		Callbacks: transport.Callbacks{
			OnOpen:    func() { c.onOpened(sid) },
			OnMessage: func(env *envelope.Envelope) { c.onMessage(sid, env) },
			OnError:   func(err error) { c.onAdapterError(sid, err) },
			OnClose:   func(reason string) { c.onAdapterClosed(sid, reason) },
		},
	}
}

func (c *Client) onOpened(sid uint64) {
	c.mu.Lock()
	if sid != c.session {
		c.mu.Unlock()
		return
	}
	c.state = StateConnected
	c.attempts = 0
	c.errorCount = 0
	c.lastMessageAt = c.now()
	c.quality.MarkConnected()
	c.startHeartbeatLocked(sid)
	mode := c.mode
	c.mu.Unlock()

	c.logger.Info("connected", logging.String("mode", string(mode)))
	c.metrics.SetConnectionState(string(StateConnected))
	c.bus.Emit(events.Connected(mode))
}

func (c *Client) onMessage(sid uint64, env *envelope.Envelope) {
	c.mu.Lock()
	if sid != c.session {
		c.mu.Unlock()
		return
	}
	c.lastMessageAt = c.now()
	c.mu.Unlock()

	c.quality.Observe(env)
	q := c.quality.Snapshot()

	if env.HasTimestamp() {
		c.metrics.RecordMessage(float64(envelope.Now()-env.Timestamp), true)
	} else {
		c.metrics.RecordMessage(0, false)
	}
	c.metrics.SetQualityScore(q.Score)
	c.metrics.SetMissedMessages(float64(c.quality.MissedMessages()))

	evts := []events.Event{events.Message(env)}

	c.mu.Lock()
	if sid != c.session {
		// Torn down between observe and evaluation. Dropping the message
		// keeps the no-events-after-disconnect guarantee.
		c.mu.Unlock()
		return
	}
	below := q.Score < c.config.QualityThreshold
	crossed := below && !c.belowThresh
	c.belowThresh = below
	if crossed {
		evts = append(evts, events.QualityChanged(q))
	}

	var switchTo transport.Mode
	var old transport.Adapter
	var gen uint64
	doSwitch := false
	if below && c.state == StateConnected && c.switchAllowedLocked() {
		if next, ok := c.config.nextMode(c.mode); ok {
			from := c.mode
			old = c.teardownLocked()
			gen = c.session
			c.attempts = 0
			evts = append(evts, events.ModeChanged(from, next, reasonQuality))
			c.metrics.RecordModeSwitch(string(from), string(next), reasonQuality)
			switchTo = next
			doSwitch = true
		}
	}
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	c.emit(evts)
	if doSwitch {
		c.logger.Warn("quality below threshold, switching mode",
			logging.Float64("score", q.Score),
			logging.String("to", string(switchTo)),
		)
		_ = c.connectWith(switchTo, gen)
	}
}

func (c *Client) onAdapterError(sid uint64, err error) {
	c.mu.Lock()
	if sid != c.session {
		c.mu.Unlock()
		return
	}
	c.lastErrorAt = c.now()
	c.totalErrors++
	c.errorCount++
	storm := c.errorCount > errorStormLimit

	evts := []events.Event{events.Error(err)}
	var switchTo transport.Mode
	var old transport.Adapter
	var gen uint64
	doSwitch := false
	if storm && c.switchAllowedLocked() {
		if next, ok := c.config.nextMode(c.mode); ok {
			from := c.mode
			old = c.teardownLocked()
			gen = c.session
			c.attempts = 0
			evts = append(evts, events.ModeChanged(from, next, reasonErrorStorm))
			c.metrics.RecordModeSwitch(string(from), string(next), reasonErrorStorm)
			switchTo = next
			doSwitch = true
		}
	}
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	c.logger.WithError(err).Warn("transport error")
	c.metrics.RecordError()
	c.emit(evts)
	if doSwitch {
		_ = c.connectWith(switchTo, gen)
	}
}

func (c *Client) onAdapterClosed(sid uint64, reason string) {
	c.handleFailure(sid, reason)
}

// switchAllowedLocked applies the adaptation guards: switching requires
// adaptation enabled and the minimum dwell time spent in the current mode.
func (c *Client) switchAllowedLocked() bool {
	if !c.config.EnableAdaptation {
		return false
	}
	return c.now().Sub(c.modeStartedAt) >= c.config.MinModeTime
}

// emit publishes events in order. Called without the client lock held, so
// subscribers may re-enter the client.
func (c *Client) emit(evts []events.Event) {
	for _, e := range evts {
		c.bus.Emit(e)
	}
}

func openFailureReason(err error) string {
	if ce, ok := conduiterrors.AsConduitError(err); ok {
		return ce.Message()
	}
	return err.Error()
}
