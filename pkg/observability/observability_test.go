package observability

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionMetricsNilSafe(t *testing.T) {
	var m *ConnectionMetrics

	m.RecordMessage(12.5, true)
	m.RecordError()
	m.RecordReconnect()
	m.RecordModeSwitch("websocket", "sse", "Quality degraded")
	m.RecordHeartbeatTimeout()
	m.SetQualityScore(87.5)
	m.SetMissedMessages(3)
	m.SetConnectionState("connected")
	m.SetTransportMode("websocket")

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestConnectionMetricsExposition(t *testing.T) {
	m, err := NewConnectionMetrics(MetricsConfig{
		ServiceName: "test-service",
		Environment: "test",
	})
	require.NoError(t, err)

	m.RecordMessage(42, true)
	m.RecordMessage(0, false)
	m.RecordError()
	m.RecordModeSwitch("websocket", "sse", "Too many errors")
	m.SetQualityScore(73.5)
	m.SetConnectionState("connected")
	m.SetTransportMode("sse")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `conduit_messages_total{environment="test",service="test-service"} 2`)
	assert.Contains(t, body, `conduit_errors_total{environment="test",service="test-service"} 1`)
	assert.Contains(t, body, `conduit_quality_score{environment="test",service="test-service"} 73.5`)
	assert.Contains(t, body, `reason="Too many errors"`)

	// The active mode is 1, the others 0.
	assert.Contains(t, body, `mode="sse"`)
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "conduit_transport_mode") {
			if strings.Contains(line, `mode="sse"`) {
				assert.True(t, strings.HasSuffix(line, " 1"), line)
			} else {
				assert.True(t, strings.HasSuffix(line, " 0"), line)
			}
		}
	}
}

func TestConnectionMetricsSharedRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()

	// Two providers on one registry must not collide.
	_, err := NewConnectionMetrics(MetricsConfig{Registry: registry})
	require.NoError(t, err)
	_, err = NewConnectionMetrics(MetricsConfig{Registry: registry})
	require.NoError(t, err)
}

func TestTracingProviderDefaults(t *testing.T) {
	tp, err := NewTracingProvider(TracingConfig{})
	require.NoError(t, err)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.StartConnectSpan(context.Background(), "websocket")
	require.NotNil(t, span)
	span.End()

	tp.AddEvent(ctx, "noop")
	tp.RecordError(ctx, assert.AnError)
	assert.NotNil(t, tp.Tracer())
}

func TestTracingProviderRejectsUnknownExporter(t *testing.T) {
	_, err := NewTracingProvider(TracingConfig{ExporterType: "carrier-pigeon"})
	require.Error(t, err)
}
