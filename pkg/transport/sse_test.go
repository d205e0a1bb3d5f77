package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	conduiterrors "github.com/openfleet/conduit-go/pkg/errors"
)

// sseServer streams scripted lines to the first client and then blocks until
// the test finishes.
func sseServer(t *testing.T, lines []string) *httptest.Server {
	t.Helper()
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		require.True(t, ok, "response writer must support flushing")

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for _, line := range lines {
			fmt.Fprint(w, line)
			flusher.Flush()
		}

		select {
		case <-done:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(done)
		srv.Close()
	})
	return srv
}

func sseConfig(url string, rec *recorder) Config {
	return Config{
		Mode:      ModeSSE,
		StreamURL: url,
		Callbacks: rec.callbacks(),
	}
}

func TestSSEReceivesEvents(t *testing.T) {
	srv := sseServer(t, []string{
		": heartbeat\n\n",
		"id: 1\ndata: {\"sequence\": 1, \"payload\": \"first\"}\n\n",
		"data: {\"sequence\": 2, \"payload\": \"second\"}\n\n",
	})

	rec := newRecorder()
	adapter := newSSEAdapter(sseConfig(srv.URL, rec))
	require.NoError(t, adapter.Open(context.Background()))
	defer func() { _ = adapter.Close() }()

	rec.waitOpen(t)

	env := rec.waitMessage(t)
	assert.Equal(t, int64(1), env.Sequence)

	env = rec.waitMessage(t)
	assert.Equal(t, int64(2), env.Sequence)
	assert.Equal(t, `"second"`, string(env.Payload))
}

func TestSSEMultilineData(t *testing.T) {
	srv := sseServer(t, []string{
		"data: {\"sequence\": 7,\ndata: \"payload\": \"split\"}\n\n",
	})

	rec := newRecorder()
	adapter := newSSEAdapter(sseConfig(srv.URL, rec))
	require.NoError(t, adapter.Open(context.Background()))
	defer func() { _ = adapter.Close() }()

	env := rec.waitMessage(t)
	assert.Equal(t, int64(7), env.Sequence)
}

func TestSSEUndecodableEventReportsFault(t *testing.T) {
	srv := sseServer(t, []string{
		"data: definitely-not-json\n\n",
		"data: {\"sequence\": 3}\n\n",
	})

	rec := newRecorder()
	adapter := newSSEAdapter(sseConfig(srv.URL, rec))
	require.NoError(t, adapter.Open(context.Background()))
	defer func() { _ = adapter.Close() }()

	err := rec.waitError(t)
	assert.True(t, conduiterrors.IsCode(err, conduiterrors.CodeParseFailure))

	// The stream survives the bad event.
	env := rec.waitMessage(t)
	assert.Equal(t, int64(3), env.Sequence)
}

func TestSSEServerCloseEvent(t *testing.T) {
	srv := sseServer(t, []string{
		"event: close\ndata: bye\n\n",
	})

	rec := newRecorder()
	adapter := newSSEAdapter(sseConfig(srv.URL, rec))
	require.NoError(t, adapter.Open(context.Background()))
	defer func() { _ = adapter.Close() }()

	assert.Equal(t, "server closed stream", rec.waitClose(t))
}

func TestSSEOpenRejectsWrongContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	rec := newRecorder()
	adapter := newSSEAdapter(sseConfig(srv.URL, rec))

	err := adapter.Open(context.Background())
	require.Error(t, err)
	assert.True(t, conduiterrors.IsCode(err, conduiterrors.CodeConnectionFailed))
}

func TestSSEOpenRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rec := newRecorder()
	adapter := newSSEAdapter(sseConfig(srv.URL, rec))

	err := adapter.Open(context.Background())
	require.Error(t, err)
	assert.True(t, conduiterrors.IsCode(err, conduiterrors.CodeConnectionFailed))

	// A failed open fires no callbacks.
	select {
	case <-rec.opens:
		t.Fatal("OnOpen fired for a failed open")
	case <-rec.closes:
		t.Fatal("OnClose fired for a failed open")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSSECloseIsQuiet(t *testing.T) {
	srv := sseServer(t, []string{
		"data: {\"sequence\": 1}\n\n",
	})

	rec := newRecorder()
	adapter := newSSEAdapter(sseConfig(srv.URL, rec))
	require.NoError(t, adapter.Open(context.Background()))
	rec.waitOpen(t)
	rec.waitMessage(t)

	require.NoError(t, adapter.Close())
	assert.Equal(t, "closed", rec.waitClose(t))
}

func TestSSEStreamEndReportsClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "data: {\"sequence\": 1}\n\n")
		flusher.Flush()
		// Handler returns, ending the stream.
	}))
	defer srv.Close()

	rec := newRecorder()
	adapter := newSSEAdapter(sseConfig(srv.URL, rec))
	require.NoError(t, adapter.Open(context.Background()))
	defer func() { _ = adapter.Close() }()

	rec.waitMessage(t)
	reason := rec.waitClose(t)
	assert.NotEmpty(t, reason)
}
