package client

import (
	"net/http"
	"time"

	conduiterrors "github.com/openfleet/conduit-go/pkg/errors"
	"github.com/openfleet/conduit-go/pkg/logging"
	"github.com/openfleet/conduit-go/pkg/observability"
	"github.com/openfleet/conduit-go/pkg/transport"
)

// Config controls mode selection, reconnection and adaptation. It is fixed at
// construction; New merges zero-valued fields with defaults. Boolean fields
// are taken as-is, so start from DefaultConfig when the defaults are wanted.
type Config struct {
	// PreferredMode is the mode tried first on connect. Must appear in
	// FallbackOrder.
	PreferredMode transport.Mode

	// FallbackOrder lists modes from most to least preferred. A switch moves
	// one step down the order; the last entry has nowhere to go.
	FallbackOrder []transport.Mode

	// PollingInterval is the steady poll delay; FastPollingInterval replaces
	// it while quality is poor and EnableDynamicPolling is set.
	PollingInterval      time.Duration
	FastPollingInterval  time.Duration
	EnableDynamicPolling bool

	// ReconnectDelayBase and ReconnectDelayMax shape the exponential backoff
	// between same-mode retries.
	ReconnectDelayBase time.Duration
	ReconnectDelayMax  time.Duration

	// MaxReconnectAttempts is the attempt count at which the engine stops
	// retrying the current mode and switches to the next one.
	MaxReconnectAttempts int

	// HeartbeatInterval is how often the liveness check runs while connected.
	// HeartbeatTimeout is the silence duration that counts as a dead
	// connection. Zero interval disables the monitor.
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	// QualityThreshold is the score below which the engine considers the
	// current mode degraded enough to switch.
	QualityThreshold float64

	// MinModeTime is the minimum dwell time in a mode before any automatic
	// switch, guarding against thrashing.
	MinModeTime time.Duration

	// EnableAdaptation gates all automatic mode switching. Manual ForceMode
	// works regardless.
	EnableAdaptation bool

	// HandshakeTimeout bounds transport establishment.
	HandshakeTimeout time.Duration

	// Logger receives controller and adapter diagnostics. Defaults to a
	// no-op logger.
	Logger logging.Logger

	// HTTPClient serves the sse and polling transports.
	HTTPClient *http.Client

	// Metrics receives connection metrics when set. Nil disables recording.
	Metrics *observability.ConnectionMetrics
}

// Defaults applied by New for zero-valued fields.
const (
	DefaultPollingInterval      = 5 * time.Second
	DefaultFastPollingInterval  = 2 * time.Second
	DefaultReconnectDelayBase   = 1 * time.Second
	DefaultReconnectDelayMax    = 30 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultHeartbeatInterval    = 5 * time.Second
	DefaultHeartbeatTimeout     = 15 * time.Second
	DefaultQualityThreshold     = 40.0
	DefaultMinModeTime          = 30 * time.Second
)

// DefaultConfig returns the default client configuration: websocket first,
// full fallback order, adaptation and dynamic polling enabled.
func DefaultConfig() Config {
	return Config{
		PreferredMode:        transport.ModeWebSocket,
		FallbackOrder:        transport.DefaultFallbackOrder(),
		PollingInterval:      DefaultPollingInterval,
		FastPollingInterval:  DefaultFastPollingInterval,
		EnableDynamicPolling: true,
		ReconnectDelayBase:   DefaultReconnectDelayBase,
		ReconnectDelayMax:    DefaultReconnectDelayMax,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		HeartbeatInterval:    DefaultHeartbeatInterval,
		HeartbeatTimeout:     DefaultHeartbeatTimeout,
		QualityThreshold:     DefaultQualityThreshold,
		MinModeTime:          DefaultMinModeTime,
		EnableAdaptation:     true,
		HandshakeTimeout:     transport.DefaultHandshakeTimeout,
	}
}

func (c *Config) applyDefaults() {
	if c.PreferredMode == "" {
		c.PreferredMode = transport.ModeWebSocket
	}
	if len(c.FallbackOrder) == 0 {
		c.FallbackOrder = transport.DefaultFallbackOrder()
	}
	if c.PollingInterval <= 0 {
		c.PollingInterval = DefaultPollingInterval
	}
	if c.FastPollingInterval <= 0 {
		c.FastPollingInterval = DefaultFastPollingInterval
	}
	if c.ReconnectDelayBase <= 0 {
		c.ReconnectDelayBase = DefaultReconnectDelayBase
	}
	if c.ReconnectDelayMax <= 0 {
		c.ReconnectDelayMax = DefaultReconnectDelayMax
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.QualityThreshold <= 0 {
		c.QualityThreshold = DefaultQualityThreshold
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = transport.DefaultHandshakeTimeout
	}
	if c.Logger == nil {
		c.Logger = logging.NewNop()
	}
}

func (c *Config) validate() error {
	for _, mode := range c.FallbackOrder {
		if !mode.Valid() {
			return conduiterrors.InvalidMode(string(mode))
		}
	}
	if !c.contains(c.PreferredMode) {
		return conduiterrors.InvalidConfig("preferred mode " + string(c.PreferredMode) + " is not in the fallback order")
	}
	if c.ReconnectDelayMax < c.ReconnectDelayBase {
		return conduiterrors.InvalidConfig("reconnect delay max is below the base delay")
	}
	if c.HeartbeatInterval > 0 && c.HeartbeatTimeout < c.HeartbeatInterval {
		return conduiterrors.InvalidConfig("heartbeat timeout is below the heartbeat interval")
	}
	return nil
}

func (c *Config) contains(mode transport.Mode) bool {
	for _, m := range c.FallbackOrder {
		if m == mode {
			return true
		}
	}
	return false
}

// nextMode returns the mode one step down the fallback order from current.
func (c *Config) nextMode(current transport.Mode) (transport.Mode, bool) {
	for i, m := range c.FallbackOrder {
		if m == current && i+1 < len(c.FallbackOrder) {
			return c.FallbackOrder[i+1], true
		}
	}
	return "", false
}
