// Package observability provides Prometheus metrics and OpenTelemetry tracing
// for conduit connections.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig configures the connection metrics collectors.
type MetricsConfig struct {
	// Service identification
	ServiceName    string
	ServiceVersion string
	Environment    string

	// HTTP exposition
	MetricsPath string // HTTP path for metrics endpoint (default: /metrics)
	MetricsPort int    // Port for metrics server (default: 9090)

	// Metric options
	Namespace        string    // Prometheus namespace (default: conduit)
	Subsystem        string    // Prometheus subsystem
	HistogramBuckets []float64 // Custom histogram buckets for latency

	// Registry to register collectors with. A fresh registry is created
	// when nil, so multiple clients in one process do not collide.
	Registry *prometheus.Registry

	// Labels to add to all metrics
	ConstLabels prometheus.Labels
}

// ConnectionMetrics records connection lifecycle, message flow and quality
// observations for a single client. All methods are safe on a nil receiver
// so callers can leave metrics unconfigured.
type ConnectionMetrics struct {
	config   MetricsConfig
	registry *prometheus.Registry
	server   *http.Server

	messagesTotal     prometheus.Counter
	errorsTotal       prometheus.Counter
	reconnectsTotal   prometheus.Counter
	modeSwitchesTotal *prometheus.CounterVec
	heartbeatTimeouts prometheus.Counter

	qualityScore    prometheus.Gauge
	missedMessages  prometheus.Gauge
	connectionState *prometheus.GaugeVec
	transportMode   *prometheus.GaugeVec

	messageLatency prometheus.Histogram
}

var knownStates = []string{"disconnected", "connecting", "connected", "degraded", "reconnecting"}

var knownModes = []string{"websocket", "sse", "polling"}

// NewConnectionMetrics creates and registers the connection metric collectors.
func NewConnectionMetrics(config MetricsConfig) (*ConnectionMetrics, error) {
	if config.Namespace == "" {
		config.Namespace = "conduit"
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	if config.MetricsPort == 0 {
		config.MetricsPort = 9090
	}
	if config.HistogramBuckets == nil {
		// Default buckets for milliseconds
		config.HistogramBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}
	}
	if config.ConstLabels == nil {
		config.ConstLabels = prometheus.Labels{}
	}
	if config.ServiceName != "" {
		config.ConstLabels["service"] = config.ServiceName
	}
	if config.ServiceVersion != "" {
		config.ConstLabels["version"] = config.ServiceVersion
	}
	if config.Environment != "" {
		config.ConstLabels["environment"] = config.Environment
	}

	registry := config.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &ConnectionMetrics{
		config:   config,
		registry: registry,
	}
	m.initializeCollectors()

	if err := m.registerCollectors(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return m, nil
}

func (m *ConnectionMetrics) initializeCollectors() {
	m.messagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   m.config.Namespace,
			Subsystem:   m.config.Subsystem,
			Name:        "messages_total",
			Help:        "Total number of messages received across all transport modes",
			ConstLabels: m.config.ConstLabels,
		},
	)

	m.errorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   m.config.Namespace,
			Subsystem:   m.config.Subsystem,
			Name:        "errors_total",
			Help:        "Total number of transport errors",
			ConstLabels: m.config.ConstLabels,
		},
	)

	m.reconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   m.config.Namespace,
			Subsystem:   m.config.Subsystem,
			Name:        "reconnects_total",
			Help:        "Total number of reconnect attempts",
			ConstLabels: m.config.ConstLabels,
		},
	)

	m.modeSwitchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.config.Namespace,
			Subsystem:   m.config.Subsystem,
			Name:        "mode_switches_total",
			Help:        "Total number of transport mode switches",
			ConstLabels: m.config.ConstLabels,
		},
		[]string{"from", "to", "reason"},
	)

	m.heartbeatTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   m.config.Namespace,
			Subsystem:   m.config.Subsystem,
			Name:        "heartbeat_timeouts_total",
			Help:        "Total number of heartbeat timeouts",
			ConstLabels: m.config.ConstLabels,
		},
	)

	m.qualityScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   m.config.Namespace,
			Subsystem:   m.config.Subsystem,
			Name:        "quality_score",
			Help:        "Current connection quality score (0-100)",
			ConstLabels: m.config.ConstLabels,
		},
	)

	m.missedMessages = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   m.config.Namespace,
			Subsystem:   m.config.Subsystem,
			Name:        "missed_messages",
			Help:        "Messages inferred lost from sequence gaps",
			ConstLabels: m.config.ConstLabels,
		},
	)

	m.connectionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   m.config.Namespace,
			Subsystem:   m.config.Subsystem,
			Name:        "connection_state",
			Help:        "Current connection state (1 for active state, 0 otherwise)",
			ConstLabels: m.config.ConstLabels,
		},
		[]string{"state"},
	)

	m.transportMode = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   m.config.Namespace,
			Subsystem:   m.config.Subsystem,
			Name:        "transport_mode",
			Help:        "Current transport mode (1 for active mode, 0 otherwise)",
			ConstLabels: m.config.ConstLabels,
		},
		[]string{"mode"},
	)

	m.messageLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   m.config.Namespace,
			Subsystem:   m.config.Subsystem,
			Name:        "message_latency_milliseconds",
			Help:        "Origin-to-receipt latency of timestamped messages in milliseconds",
			Buckets:     m.config.HistogramBuckets,
			ConstLabels: m.config.ConstLabels,
		},
	)
}

func (m *ConnectionMetrics) registerCollectors() error {
	collectors := []prometheus.Collector{
		m.messagesTotal,
		m.errorsTotal,
		m.reconnectsTotal,
		m.modeSwitchesTotal,
		m.heartbeatTimeouts,
		m.qualityScore,
		m.missedMessages,
		m.connectionState,
		m.transportMode,
		m.messageLatency,
	}

	for _, collector := range collectors {
		if err := m.registry.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

// RecordMessage records a received message and its origin latency when known.
func (m *ConnectionMetrics) RecordMessage(latencyMs float64, hasLatency bool) {
	if m == nil {
		return
	}
	m.messagesTotal.Inc()
	if hasLatency {
		m.messageLatency.Observe(latencyMs)
	}
}

// RecordError records a transport error.
func (m *ConnectionMetrics) RecordError() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// RecordReconnect records a reconnect attempt.
func (m *ConnectionMetrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.reconnectsTotal.Inc()
}

// RecordModeSwitch records a transport mode switch.
func (m *ConnectionMetrics) RecordModeSwitch(from, to, reason string) {
	if m == nil {
		return
	}
	m.modeSwitchesTotal.WithLabelValues(from, to, reason).Inc()
}

// RecordHeartbeatTimeout records a heartbeat expiry.
func (m *ConnectionMetrics) RecordHeartbeatTimeout() {
	if m == nil {
		return
	}
	m.heartbeatTimeouts.Inc()
}

// SetQualityScore updates the quality score gauge.
func (m *ConnectionMetrics) SetQualityScore(score float64) {
	if m == nil {
		return
	}
	m.qualityScore.Set(score)
}

// SetMissedMessages updates the missed message gauge.
func (m *ConnectionMetrics) SetMissedMessages(missed float64) {
	if m == nil {
		return
	}
	m.missedMessages.Set(missed)
}

// SetConnectionState marks the given state active and all others inactive.
func (m *ConnectionMetrics) SetConnectionState(state string) {
	if m == nil {
		return
	}
	for _, s := range knownStates {
		m.connectionState.WithLabelValues(s).Set(0)
	}
	m.connectionState.WithLabelValues(state).Set(1)
}

// SetTransportMode marks the given mode active and all others inactive.
func (m *ConnectionMetrics) SetTransportMode(mode string) {
	if m == nil {
		return
	}
	for _, known := range knownModes {
		m.transportMode.WithLabelValues(known).Set(0)
	}
	m.transportMode.WithLabelValues(mode).Set(1)
}

// Handler returns an HTTP handler serving the metrics registry.
func (m *ConnectionMetrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Start serves the metrics endpoint on the configured port until Shutdown.
func (m *ConnectionMetrics) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(m.config.MetricsPath, m.Handler())

	m.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", m.config.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Server start failures surface on scrape, not here.
			_ = err
		}
	}()
	return nil
}

// Shutdown stops the metrics server if one was started.
func (m *ConnectionMetrics) Shutdown(ctx context.Context) error {
	if m == nil || m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
