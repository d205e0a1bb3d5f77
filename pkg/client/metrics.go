package client

import (
	"time"

	"github.com/openfleet/conduit-go/pkg/quality"
	"github.com/openfleet/conduit-go/pkg/transport"
)

// Metrics is a point-in-time view of connection health and counters,
// recomputed at call time rather than cached.
type Metrics struct {
	Quality quality.Quality `json:"quality"`

	State State          `json:"state"`
	Mode  transport.Mode `json:"mode"`

	TotalMessages     int64 `json:"totalMessages"`
	TotalErrors       int64 `json:"totalErrors"`
	MissedMessages    int64 `json:"missedMessages"`
	ReconnectAttempts int   `json:"reconnectAttempts"`

	ConnectedAt   time.Time     `json:"connectedAt,omitempty"`
	LastMessageAt time.Time     `json:"lastMessageAt,omitempty"`
	LastErrorAt   time.Time     `json:"lastErrorAt,omitempty"`
	Uptime        time.Duration `json:"uptime"`
}

// GetState returns the current lifecycle state.
func (c *Client) GetState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// GetMode returns the current transport mode.
func (c *Client) GetMode() transport.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// IsConnected reports whether the client is in the connected state.
func (c *Client) IsConnected() bool {
	return c.GetState() == StateConnected
}

// GetQuality returns the current quality snapshot with a freshly computed
// score.
func (c *Client) GetQuality() quality.Quality {
	return c.quality.Snapshot()
}

// GetMetrics returns the full metrics view.
func (c *Client) GetMetrics() Metrics {
	q := c.quality.Snapshot()
	connectedAt := c.quality.ConnectedAt()

	c.mu.Lock()
	defer c.mu.Unlock()

	m := Metrics{
		Quality:           q,
		State:             c.state,
		Mode:              c.mode,
		TotalMessages:     c.quality.TotalMessages(),
		TotalErrors:       c.totalErrors,
		MissedMessages:    c.quality.MissedMessages(),
		ReconnectAttempts: c.attempts,
		ConnectedAt:       connectedAt,
		LastMessageAt:     c.lastMessageAt,
		LastErrorAt:       c.lastErrorAt,
	}
	if c.state == StateConnected && !connectedAt.IsZero() {
		m.Uptime = c.now().Sub(connectedAt)
	}
	return m
}

// ResetMetrics clears the quality windows and counters without touching the
// live transport. The reconnect attempt counter is engine state and is left
// alone.
func (c *Client) ResetMetrics() {
	c.quality.Reset()
	c.mu.Lock()
	c.totalErrors = 0
	c.errorCount = 0
	c.lastErrorAt = time.Time{}
	if c.state == StateConnected {
		// Restart the heartbeat baseline instead of zeroing it, otherwise
		// the next tick would read an arbitrarily long silence.
		c.lastMessageAt = c.now()
	} else {
		c.lastMessageAt = time.Time{}
	}
	c.mu.Unlock()
}
