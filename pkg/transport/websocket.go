package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/openfleet/conduit-go/pkg/envelope"
	conduiterrors "github.com/openfleet/conduit-go/pkg/errors"
	"github.com/openfleet/conduit-go/pkg/logging"
)

// WebSocket keepalive parameters.
const (
	wsMaxMessageSize = 512 * 1024 // 512KB
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsWriteWait      = 10 * time.Second
)

// webSocketAdapter implements the persistent-socket mode over a single
// gorilla/websocket connection.
type webSocketAdapter struct {
	config Config
	logger logging.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	cancel    context.CancelFunc
	opened    bool
	closeOnce sync.Once
}

func newWebSocketAdapter(config Config) *webSocketAdapter {
	return &webSocketAdapter{
		config: config,
		logger: config.logger().WithFields(logging.String("component", "websocket")),
	}
}

func (a *webSocketAdapter) Mode() Mode { return ModeWebSocket }

// Open dials the stream endpoint and starts the read and keepalive loops.
func (a *webSocketAdapter) Open(ctx context.Context) error {
	wsURL, err := toWebSocketURL(a.config.StreamURL)
	if err != nil {
		return conduiterrors.ConnectionFailed(err, string(ModeWebSocket), a.config.StreamURL)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: a.config.handshakeTimeout(),
	}

	dialCtx, dialCancel := context.WithTimeout(ctx, a.config.handshakeTimeout())
	defer dialCancel()

	conn, resp, err := dialer.DialContext(dialCtx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return conduiterrors.ConnectionFailed(err, string(ModeWebSocket), wsURL)
	}

	conn.SetReadLimit(wsMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	loopCtx, cancel := context.WithCancel(ctx)

	a.mu.Lock()
	a.conn = conn
	a.cancel = cancel
	a.opened = true
	a.mu.Unlock()

	a.logger.Debug("websocket established", logging.String("url", wsURL))
	a.config.Callbacks.open()

	go a.run(loopCtx, conn)

	return nil
}

// run owns the connection until it dies. The read loop and the ping loop
// share an errgroup so either failing tears down both.
func (a *webSocketAdapter) run(ctx context.Context, conn *websocket.Conn) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("websocket loop panic", logging.Any("panic", r))
			a.reportClose(fmt.Sprintf("internal fault: %v", r))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.readLoop(gctx, conn) })
	g.Go(func() error { return a.pingLoop(gctx, conn) })

	err := g.Wait()
	_ = conn.Close()

	if ctx.Err() != nil {
		// Local Close: the owner already knows; report the close quietly.
		a.reportClose("closed")
		return
	}

	reason := "connection lost"
	if err != nil {
		reason = conduiterrors.ClassifyNetError(err, string(ModeWebSocket)).Message()
		a.logger.Debug("websocket terminated", logging.ErrorField(err))
	}
	a.reportClose(reason)
}

func (a *webSocketAdapter) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("peer closed: %w", err)
			}
			return err
		}

		env, perr := envelope.Parse(data)
		if perr != nil {
			// A single bad frame is dropped, the connection stays up.
			a.logger.Warn("dropping undecodable frame", logging.ErrorField(perr))
			a.config.Callbacks.fault(conduiterrors.ParseFailure(perr, string(ModeWebSocket)))
			continue
		}

		a.config.Callbacks.message(env)
	}
}

func (a *webSocketAdapter) pingLoop(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return fmt.Errorf("ping failed: %w", err)
			}
		}
	}
}

// Close tears the connection down. Safe to call from any state and more
// than once.
func (a *webSocketAdapter) Close() error {
	a.mu.Lock()
	conn := a.conn
	cancel := a.cancel
	a.conn = nil
	a.cancel = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		deadline := time.Now().Add(wsWriteWait)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	}
	return nil
}

func (a *webSocketAdapter) reportClose(reason string) {
	a.closeOnce.Do(func() {
		a.config.Callbacks.closed(reason)
	})
}

// toWebSocketURL converts an http(s) endpoint to its ws(s) equivalent and
// validates the result.
func toWebSocketURL(raw string) (string, error) {
	converted := raw
	switch {
	case strings.HasPrefix(raw, "https://"):
		converted = "wss://" + strings.TrimPrefix(raw, "https://")
	case strings.HasPrefix(raw, "http://"):
		converted = "ws://" + strings.TrimPrefix(raw, "http://")
	}

	u, err := url.Parse(converted)
	if err != nil {
		return "", err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}
