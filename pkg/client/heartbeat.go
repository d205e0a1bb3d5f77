package client

import (
	"time"

	conduiterrors "github.com/openfleet/conduit-go/pkg/errors"
	"github.com/openfleet/conduit-go/pkg/logging"
)

// startHeartbeatLocked starts the liveness monitor for the current session.
// Disabled when the interval is zero. Caller holds the lock.
func (c *Client) startHeartbeatLocked(sid uint64) {
	if c.config.HeartbeatInterval <= 0 {
		return
	}
	stop := make(chan struct{})
	c.heartbeatStop = stop
	go c.heartbeatLoop(sid, stop)
}

// heartbeatLoop checks message recency on every tick. A connection that
// reports open but delivers nothing within the timeout window is treated as
// a failure. The teardown performed by the failure path closes the stop
// channel, so the timeout fires at most once per session.
func (c *Client) heartbeatLoop(sid uint64, stop chan struct{}) {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if c.heartbeatExpired(sid) {
				return
			}
		}
	}
}

func (c *Client) heartbeatExpired(sid uint64) bool {
	c.mu.Lock()
	if sid != c.session || c.state != StateConnected {
		c.mu.Unlock()
		return true
	}
	silence := c.now().Sub(c.lastMessageAt)
	if silence <= c.config.HeartbeatTimeout {
		c.mu.Unlock()
		return false
	}
	c.state = StateDegraded
	mode := c.mode
	c.mu.Unlock()

	c.logger.Warn("heartbeat timeout",
		logging.String("mode", string(mode)),
		logging.Duration("silence", silence),
	)
	c.metrics.RecordHeartbeatTimeout()
	c.metrics.SetConnectionState(string(StateDegraded))

	err := conduiterrors.HeartbeatTimeout(string(mode))
	c.handleFailure(sid, err.Message())
	return true
}
