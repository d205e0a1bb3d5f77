package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/openfleet/conduit-go/pkg/envelope"
	conduiterrors "github.com/openfleet/conduit-go/pkg/errors"
	"github.com/openfleet/conduit-go/pkg/logging"
)

const sseReadBufferSize = 4096

// sseAdapter implements the server-push mode over a long-lived
// text/event-stream response. The stream is read line by line; comment
// lines are server heartbeats, blank lines delimit events.
type sseAdapter struct {
	config Config
	logger logging.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	body      io.ReadCloser
	closeOnce sync.Once
}

func newSSEAdapter(config Config) *sseAdapter {
	return &sseAdapter{
		config: config,
		logger: config.logger().WithFields(logging.String("component", "sse")),
	}
}

func (a *sseAdapter) Mode() Mode { return ModeSSE }

// Open issues the streaming GET and starts the event reader once the server
// has committed to an event stream.
func (a *sseAdapter) Open(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(loopCtx, http.MethodGet, a.config.StreamURL, nil)
	if err != nil {
		cancel()
		return conduiterrors.ConnectionFailed(err, string(ModeSSE), a.config.StreamURL)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := a.streamingClient().Do(req)
	if err != nil {
		cancel()
		return conduiterrors.ConnectionFailed(err, string(ModeSSE), a.config.StreamURL)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
		cancel()
		err := fmt.Errorf("unexpected status %s", resp.Status)
		if len(body) > 0 {
			err = fmt.Errorf("unexpected status %s: %s", resp.Status, string(body))
		}
		return conduiterrors.ConnectionFailed(err, string(ModeSSE), a.config.StreamURL)
	}

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		_ = resp.Body.Close()
		cancel()
		return conduiterrors.ConnectionFailed(
			fmt.Errorf("server returned %q, not text/event-stream", ct),
			string(ModeSSE), a.config.StreamURL)
	}

	a.mu.Lock()
	a.cancel = cancel
	a.body = resp.Body
	a.mu.Unlock()

	a.logger.Debug("event stream established", logging.String("url", a.config.StreamURL))
	a.config.Callbacks.open()

	go a.readEvents(loopCtx, resp.Body)

	return nil
}

// streamingClient returns the configured HTTP client with any global
// Timeout stripped; a deadline on the whole request would kill the stream.
func (a *sseAdapter) streamingClient() *http.Client {
	base := a.config.httpClient()
	if base.Timeout == 0 {
		return base
	}
	clone := *base
	clone.Timeout = 0
	return &clone
}

// readEvents parses the SSE wire format: data:/id:/event:/retry: lines
// accumulate into one event, a blank line dispatches it, ":" comment lines
// are heartbeats.
func (a *sseAdapter) readEvents(ctx context.Context, body io.ReadCloser) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("sse reader panic", logging.Any("panic", r))
			a.reportClose(fmt.Sprintf("internal fault: %v", r))
		}
	}()
	defer func() { _ = body.Close() }()

	reader := bufio.NewReaderSize(body, sseReadBufferSize)

	var eventData, eventType string

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() != nil {
				a.reportClose("closed")
				return
			}
			reason := "stream ended"
			if err != io.EOF {
				reason = conduiterrors.ClassifyNetError(err, string(ModeSSE)).Message()
				a.logger.Debug("stream read failed", logging.ErrorField(err))
			}
			a.reportClose(reason)
			return
		}

		line = strings.TrimSuffix(line, "\n")
		line = strings.TrimSuffix(line, "\r")

		// Comment lines are server heartbeats.
		if strings.HasPrefix(line, ":") {
			a.logger.Debug("stream heartbeat")
			continue
		}

		if line == "" {
			if eventData == "" {
				continue
			}
			if eventType == "close" {
				a.reportClose("server closed stream")
				return
			}

			a.dispatch(eventData)
			eventData, eventType = "", ""
			continue
		}

		switch {
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if eventData == "" {
				eventData = data
			} else {
				eventData += "\n" + data
			}
		case strings.HasPrefix(line, "id:"):
			// Event ids are advisory on this stream. Resume is cursor-based
			// through the envelope sequence, not Last-Event-ID: each adapter
			// instance serves a single attempt and never re-requests.
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "retry:"):
			// Server retry hints are advisory; reconnect pacing is owned by
			// the reconnection engine.
		default:
			a.logger.Debug("ignoring unknown stream line", logging.String("line", line))
		}
	}
}

func (a *sseAdapter) dispatch(data string) {
	env, err := envelope.Parse([]byte(data))
	if err != nil {
		a.logger.Warn("dropping undecodable event", logging.ErrorField(err))
		a.config.Callbacks.fault(conduiterrors.ParseFailure(err, string(ModeSSE)))
		return
	}
	a.config.Callbacks.message(env)
}

// Close cancels the stream request. The reader observes the cancellation
// through its blocked read and reports a quiet close.
func (a *sseAdapter) Close() error {
	a.mu.Lock()
	cancel := a.cancel
	body := a.body
	a.cancel = nil
	a.body = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if body != nil {
		_ = body.Close()
	}
	return nil
}

func (a *sseAdapter) reportClose(reason string) {
	a.closeOnce.Do(func() {
		a.config.Callbacks.closed(reason)
	})
}
