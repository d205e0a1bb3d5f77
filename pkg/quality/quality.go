// Package quality computes a rolling connection quality score.
//
// The monitor ingests every inbound envelope and maintains bounded windows
// of latency samples and message timestamps. From these it derives latency,
// jitter, packet loss, message rate, and uptime, collapsed into a single
// 0-100 score the mode-switch engine compares against its threshold.
package quality

import (
	"math"
	"sync"
	"time"

	"github.com/openfleet/conduit-go/pkg/envelope"
)

// Window bounds and the latency sample acceptance limit.
const (
	latencyWindowSize   = 50
	timestampWindowSize = 100

	// maxLatencySampleAge rejects stale or clock-skewed samples: a latency
	// sample is accepted only when 0 <= now-origin < this bound.
	maxLatencySampleAge = 60 * time.Second

	rateWindow = time.Minute
)

// Quality is a point-in-time snapshot of the connection health metrics.
type Quality struct {
	LatencyMs            float64 `json:"latency_ms"`
	JitterMs             float64 `json:"jitter_ms"`
	PacketLossPercent    float64 `json:"packet_loss_percent"`
	MessageRatePerMinute float64 `json:"message_rate_per_minute"`
	UptimePercent        float64 `json:"uptime_percent"`
	Score                float64 `json:"score"`
}

// Monitor ingests envelopes and derives Quality snapshots. Safe for
// concurrent use.
type Monitor struct {
	mu  sync.Mutex
	now func() time.Time

	latencies []float64
	msgTimes  []time.Time

	lastSequence  int64
	totalMessages int64
	missed        int64

	modeStartedAt  time.Time
	connectedAt    time.Time // zero while disconnected
	connectedAccum time.Duration
}

// NewMonitor creates a monitor using the wall clock.
func NewMonitor() *Monitor {
	return &Monitor{now: time.Now}
}

// MarkModeStart begins a new mode-session. Sequence tracking restarts so
// gaps are never counted across modes; latency history carries over as it
// describes the network, not the mode.
func (m *Monitor) MarkModeStart() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.modeStartedAt = now
	m.connectedAt = time.Time{}
	m.connectedAccum = 0
	m.lastSequence = 0
}

// MarkConnected records the transport opening.
func (m *Monitor) MarkConnected() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connectedAt.IsZero() {
		m.connectedAt = m.now()
	}
	if m.modeStartedAt.IsZero() {
		m.modeStartedAt = m.connectedAt
	}
}

// MarkDisconnected records the transport dropping; connected time so far is
// folded into the uptime accumulator.
func (m *Monitor) MarkDisconnected() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connectedAt.IsZero() {
		m.connectedAccum += m.now().Sub(m.connectedAt)
		m.connectedAt = time.Time{}
	}
}

// Observe ingests one inbound envelope: sequence gaps increment the missed
// counter, an acceptable origin timestamp contributes a latency sample, and
// the arrival feeds the message-rate window.
func (m *Monitor) Observe(env *envelope.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.totalMessages++

	if env.HasSequence() {
		if m.lastSequence > 0 && env.Sequence > m.lastSequence+1 {
			m.missed += env.Sequence - m.lastSequence - 1
		}
		if env.Sequence > m.lastSequence {
			m.lastSequence = env.Sequence
		}
	}

	if env.HasTimestamp() {
		age := now.Sub(env.OriginTime())
		if age >= 0 && age < maxLatencySampleAge {
			m.latencies = append(m.latencies, float64(age.Milliseconds()))
			if len(m.latencies) > latencyWindowSize {
				m.latencies = m.latencies[len(m.latencies)-latencyWindowSize:]
			}
		}
	}

	m.msgTimes = append(m.msgTimes, now)
	if len(m.msgTimes) > timestampWindowSize {
		m.msgTimes = m.msgTimes[len(m.msgTimes)-timestampWindowSize:]
	}
}

// LastSequence returns the highest sequence seen this mode-session. The
// polling adapter uses it as its cursor.
func (m *Monitor) LastSequence() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSequence
}

// TotalMessages returns the count of envelopes observed since the last reset.
func (m *Monitor) TotalMessages() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalMessages
}

// MissedMessages returns the cumulative sequence-gap count.
func (m *Monitor) MissedMessages() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.missed
}

// Snapshot recomputes every metric from the current windows. Never cached.
func (m *Monitor) Snapshot() Quality {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Score recomputes and returns only the composite score.
func (m *Monitor) Score() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked().Score
}

// Reset clears every window and counter. The transport is untouched; this
// exists for operator resets and test isolation.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.latencies = nil
	m.msgTimes = nil
	m.lastSequence = 0
	m.totalMessages = 0
	m.missed = 0
	m.connectedAccum = 0
	now := m.now()
	m.modeStartedAt = now
	if !m.connectedAt.IsZero() {
		m.connectedAt = now
	}
}

func (m *Monitor) snapshotLocked() Quality {
	q := Quality{
		LatencyMs:            m.meanLatencyLocked(),
		JitterMs:             m.jitterLocked(),
		PacketLossPercent:    m.lossPercentLocked(),
		MessageRatePerMinute: m.messageRateLocked(),
		UptimePercent:        m.uptimePercentLocked(),
	}
	q.Score = score(q)
	return q
}

func (m *Monitor) meanLatencyLocked() float64 {
	if len(m.latencies) == 0 {
		return 0
	}
	var sum float64
	for _, v := range m.latencies {
		sum += v
	}
	return sum / float64(len(m.latencies))
}

// jitterLocked is the mean absolute delta between consecutive accepted
// latency samples.
func (m *Monitor) jitterLocked() float64 {
	if len(m.latencies) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(m.latencies); i++ {
		sum += math.Abs(m.latencies[i] - m.latencies[i-1])
	}
	return sum / float64(len(m.latencies)-1)
}

func (m *Monitor) lossPercentLocked() float64 {
	total := m.totalMessages + m.missed
	if total == 0 {
		return 0
	}
	return float64(m.missed) / float64(total) * 100
}

func (m *Monitor) messageRateLocked() float64 {
	cutoff := m.now().Add(-rateWindow)
	var count int
	for _, t := range m.msgTimes {
		if t.After(cutoff) {
			count++
		}
	}
	return float64(count)
}

func (m *Monitor) uptimePercentLocked() float64 {
	if m.modeStartedAt.IsZero() {
		return 0
	}
	now := m.now()
	modeTime := now.Sub(m.modeStartedAt)
	if modeTime <= 0 {
		return 100
	}

	connected := m.connectedAccum
	if !m.connectedAt.IsZero() {
		connected += now.Sub(m.connectedAt)
	}

	pct := float64(connected) / float64(modeTime) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// ConnectedAt returns when the current connection was established, zero if
// not connected.
func (m *Monitor) ConnectedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectedAt
}

// score collapses the metrics into 0-100: penalties for latency, jitter,
// loss, and downtime, each capped so no single metric dominates.
func score(q Quality) float64 {
	s := 100.0
	s -= math.Min(30, q.LatencyMs/100)
	s -= math.Min(20, q.JitterMs/50)
	s -= math.Min(30, q.PacketLossPercent*3)
	s -= math.Max(0, 20-q.UptimePercent/5)

	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
