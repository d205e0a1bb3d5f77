package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfleet/conduit-go/pkg/envelope"
	"github.com/openfleet/conduit-go/pkg/events"
)

func heartbeatConfig() Config {
	cfg := testConfig()
	cfg.EnableAdaptation = false
	cfg.HeartbeatInterval = 10 * time.Millisecond
	cfg.HeartbeatTimeout = 40 * time.Millisecond
	// Park the retry far enough out that the test observes the quiet gap
	// between the timeout firing and the reconnect.
	cfg.ReconnectDelayBase = time.Hour
	cfg.ReconnectDelayMax = time.Hour
	return cfg
}

func TestHeartbeatTimeoutFiresOnce(t *testing.T) {
	c, col, _ := newTestClient(t, heartbeatConfig(), nil)

	require.NoError(t, c.Connect(context.Background(), "wss://example.com/stream", ""))
	col.waitFor(t, events.TypeConnected)

	e := col.waitFor(t, events.TypeDisconnected)
	assert.Equal(t, "heartbeat timeout", e.Reason)
	col.waitFor(t, events.TypeReconnecting)

	// The monitor must not fire again while the retry is pending.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, col.count(events.TypeDisconnected))
	assert.Equal(t, 1, col.count(events.TypeReconnecting))
	assert.Equal(t, StateReconnecting, c.GetState())
}

func TestHeartbeatSatisfiedByTraffic(t *testing.T) {
	c, col, factory := newTestClient(t, heartbeatConfig(), nil)

	require.NoError(t, c.Connect(context.Background(), "wss://example.com/stream", ""))
	col.waitFor(t, events.TypeConnected)

	// Keep traffic flowing faster than the timeout; no failure may fire.
	adapter := factory.adapter(0)
	var seq int64
	deadline := time.Now().Add(120 * time.Millisecond)
	for time.Now().Before(deadline) {
		seq++
		adapter.cfg.Callbacks.OnMessage(&envelope.Envelope{Sequence: seq, Timestamp: envelope.Now()})
		time.Sleep(10 * time.Millisecond)
	}

	assert.Equal(t, 0, col.count(events.TypeDisconnected))
	assert.Equal(t, StateConnected, c.GetState())

	// Starve it and the timeout fires.
	e := col.waitFor(t, events.TypeDisconnected)
	assert.Equal(t, "heartbeat timeout", e.Reason)
}

func TestHeartbeatDisabledByZeroInterval(t *testing.T) {
	cfg := heartbeatConfig()
	cfg.HeartbeatInterval = 0

	c, col, _ := newTestClient(t, cfg, nil)
	require.NoError(t, c.Connect(context.Background(), "wss://example.com/stream", ""))
	col.waitFor(t, events.TypeConnected)

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 0, col.count(events.TypeDisconnected))
	assert.Equal(t, StateConnected, c.GetState())
}

func TestHeartbeatStopsOnDisconnect(t *testing.T) {
	c, col, _ := newTestClient(t, heartbeatConfig(), nil)

	require.NoError(t, c.Connect(context.Background(), "wss://example.com/stream", ""))
	col.waitFor(t, events.TypeConnected)

	c.Disconnect()
	col.waitFor(t, events.TypeDisconnected)
	before := len(col.all())

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, before, len(col.all()))
	assert.Equal(t, StateDisconnected, c.GetState())
}
