package client

import (
	"time"

	"github.com/openfleet/conduit-go/pkg/events"
	"github.com/openfleet/conduit-go/pkg/logging"
	"github.com/openfleet/conduit-go/pkg/transport"
)

// handleFailure is the single entry point for connection failures: open
// errors, transport-reported closes and heartbeat timeouts all land here.
// It increments the attempt counter, emits disconnected, then either
// switches to the next fallback mode or schedules a same-mode retry.
func (c *Client) handleFailure(sid uint64, reason string) {
	c.mu.Lock()
	if sid != c.session || c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	old := c.teardownLocked()
	gen := c.session
	c.attempts++
	attempts := c.attempts
	mode := c.mode
	score := c.quality.Score()

	evts := []events.Event{events.Disconnected(reason)}

	var switchTo transport.Mode
	doSwitch := false
	var delay time.Duration

	shouldSwitch := c.switchAllowedLocked() &&
		(attempts >= c.config.MaxReconnectAttempts || score < c.config.QualityThreshold)
	if shouldSwitch {
		if next, ok := c.config.nextMode(mode); ok {
			switchReason := reasonQuality
			if attempts >= c.config.MaxReconnectAttempts {
				switchReason = reasonMaxAttempts
			}
			c.attempts = 0
			evts = append(evts, events.ModeChanged(mode, next, switchReason))
			c.metrics.RecordModeSwitch(string(mode), string(next), switchReason)
			switchTo = next
			doSwitch = true
		}
	}
	if !doSwitch {
		delay = backoffDelay(attempts, c.config.ReconnectDelayBase, c.config.ReconnectDelayMax)
		c.state = StateReconnecting
		evts = append(evts, events.Reconnecting(attempts, delay))
		c.retryTimer = time.AfterFunc(delay, func() { c.retryFire(gen) })
	}
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	c.logger.Warn("connection failed",
		logging.String("mode", string(mode)),
		logging.String("reason", reason),
		logging.Int("attempt", attempts),
	)
	c.metrics.RecordReconnect()
	if !doSwitch {
		c.metrics.SetConnectionState(string(StateReconnecting))
	}
	c.emit(evts)
	if doSwitch {
		_ = c.connectWith(switchTo, gen)
	}
}

// retryFire runs when the backoff timer expires. A stale session or a state
// change since scheduling makes it a no-op; connectWith re-checks the
// generation under the lock, so a Disconnect landing between here and there
// still wins.
func (c *Client) retryFire(sid uint64) {
	c.mu.Lock()
	if sid != c.session || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	mode := c.mode
	c.mu.Unlock()

	c.logger.Info("retrying connection", logging.String("mode", string(mode)))
	_ = c.connectWith(mode, sid)
}

// backoffDelay is the Nth retry delay: base doubled per attempt, capped.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
