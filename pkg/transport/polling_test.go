package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfleet/conduit-go/pkg/envelope"
)

// pollServer serves canned poll responses and records the cursor carried by
// each request.
type pollServer struct {
	mu      sync.Mutex
	cursors []string
	handler func(lastSequence string, w http.ResponseWriter)
	srv     *httptest.Server
}

func newPollServer(handler func(lastSequence string, w http.ResponseWriter)) *pollServer {
	ps := &pollServer{handler: handler}
	ps.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cursor := r.URL.Query().Get("lastSequence")
		ps.mu.Lock()
		ps.cursors = append(ps.cursors, cursor)
		ps.mu.Unlock()
		ps.handler(cursor, w)
	}))
	return ps
}

func (ps *pollServer) recordedCursors() []string {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	out := make([]string, len(ps.cursors))
	copy(out, ps.cursors)
	return out
}

func pollingConfig(url string, rec *recorder) Config {
	return Config{
		Mode:            ModePolling,
		PollURL:         url,
		Callbacks:       rec.callbacks(),
		PollingInterval: 20 * time.Millisecond,
		BackoffBase:     10 * time.Millisecond,
		BackoffMax:      50 * time.Millisecond,
	}
}

func TestPollingOpenFiresImmediately(t *testing.T) {
	ps := newPollServer(func(_ string, w http.ResponseWriter) {
		fmt.Fprint(w, `{"messages": []}`)
	})
	defer ps.srv.Close()

	rec := newRecorder()
	adapter := newPollingAdapter(pollingConfig(ps.srv.URL, rec))

	require.NoError(t, adapter.Open(context.Background()))
	defer func() { _ = adapter.Close() }()

	rec.waitOpen(t)
}

func TestPollingCursorAdvances(t *testing.T) {
	// The server answers cursor 0 with sequence 9, cursor 9 with sequence
	// 10, and everything after that with nothing.
	ps := newPollServer(func(lastSequence string, w http.ResponseWriter) {
		switch lastSequence {
		case "0":
			fmt.Fprint(w, `{"messages": [{"sequence": 9, "payload": "a"}]}`)
		case "9":
			fmt.Fprint(w, `{"messages": [{"sequence": 10, "payload": "b"}]}`)
		default:
			fmt.Fprint(w, `{"messages": []}`)
		}
	})
	defer ps.srv.Close()

	var mu sync.Mutex
	var last int64

	rec := newRecorder()
	cfg := pollingConfig(ps.srv.URL, rec)
	cfg.Cursor = func() int64 {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
	// The cursor must move before the next poll is scheduled, so track it in
	// the callback rather than in the test body.
	forward := cfg.Callbacks.OnMessage
	cfg.Callbacks.OnMessage = func(env *envelope.Envelope) {
		mu.Lock()
		if env.Sequence > last {
			last = env.Sequence
		}
		mu.Unlock()
		forward(env)
	}

	adapter := newPollingAdapter(cfg)
	require.NoError(t, adapter.Open(context.Background()))
	defer func() { _ = adapter.Close() }()

	env := rec.waitMessage(t)
	assert.Equal(t, int64(9), env.Sequence)

	env = rec.waitMessage(t)
	assert.Equal(t, int64(10), env.Sequence)

	// Give the loop one more poll so the cursor=10 request lands.
	time.Sleep(100 * time.Millisecond)

	cursors := ps.recordedCursors()
	require.GreaterOrEqual(t, len(cursors), 3)
	assert.Equal(t, "0", cursors[0])
	assert.Equal(t, "9", cursors[1])
	assert.Equal(t, "10", cursors[2])
}

func TestPollingFailureReportsErrorAndRetries(t *testing.T) {
	var mu sync.Mutex
	failures := 2

	ps := newPollServer(func(_ string, w http.ResponseWriter) {
		mu.Lock()
		defer mu.Unlock()
		if failures > 0 {
			failures--
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"messages": [{"sequence": 1}]}`)
	})
	defer ps.srv.Close()

	rec := newRecorder()
	adapter := newPollingAdapter(pollingConfig(ps.srv.URL, rec))
	require.NoError(t, adapter.Open(context.Background()))
	defer func() { _ = adapter.Close() }()

	// Two failed polls surface as errors, not closes; the loop recovers.
	rec.waitError(t)
	rec.waitError(t)
	env := rec.waitMessage(t)
	assert.Equal(t, int64(1), env.Sequence)

	select {
	case reason := <-rec.closes:
		t.Fatalf("poll failures must not close the transport, got close %q", reason)
	default:
	}
}

func TestPollingCloseStopsLoop(t *testing.T) {
	ps := newPollServer(func(_ string, w http.ResponseWriter) {
		fmt.Fprint(w, `{"messages": []}`)
	})
	defer ps.srv.Close()

	rec := newRecorder()
	adapter := newPollingAdapter(pollingConfig(ps.srv.URL, rec))
	require.NoError(t, adapter.Open(context.Background()))
	rec.waitOpen(t)

	require.NoError(t, adapter.Close())
	assert.Equal(t, "closed", rec.waitClose(t))

	// Close is idempotent.
	require.NoError(t, adapter.Close())
}

func TestPollingBackoffDelay(t *testing.T) {
	adapter := newPollingAdapter(Config{
		Mode:        ModePolling,
		PollURL:     "http://example.com/poll",
		BackoffBase: time.Second,
		BackoffMax:  30 * time.Second,
	})

	tests := []struct {
		failures int
		want     time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{20, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, adapter.backoffDelay(tt.failures),
			"failures=%d", tt.failures)
	}
}

func TestPollingDynamicInterval(t *testing.T) {
	score := 100.0
	adapter := newPollingAdapter(Config{
		Mode:                 ModePolling,
		PollURL:              "http://example.com/poll",
		PollingInterval:      5 * time.Second,
		FastPollingInterval:  2 * time.Second,
		EnableDynamicPolling: true,
		QualityScore:         func() float64 { return score },
	})

	assert.Equal(t, 5*time.Second, adapter.steadyInterval())

	score = 49.9
	assert.Equal(t, 2*time.Second, adapter.steadyInterval())

	// Hard cutoff at 50: exactly 50 polls at the steady interval.
	score = 50.0
	assert.Equal(t, 5*time.Second, adapter.steadyInterval())

	// Disabled dynamic polling ignores the score entirely.
	adapter.config.EnableDynamicPolling = false
	score = 10
	assert.Equal(t, 5*time.Second, adapter.steadyInterval())
}
