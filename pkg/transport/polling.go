package transport

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/openfleet/conduit-go/pkg/envelope"
	conduiterrors "github.com/openfleet/conduit-go/pkg/errors"
	"github.com/openfleet/conduit-go/pkg/logging"
)

// Polling defaults and the dynamic-interval cutoff.
const (
	DefaultPollingInterval     = 5 * time.Second
	DefaultFastPollingInterval = 2 * time.Second
	defaultPollBackoffBase     = time.Second
	defaultPollBackoffMax      = 30 * time.Second

	// fastPollScoreCutoff switches to the fast interval below this score.
	// Hard cutoff, no hysteresis: a score oscillating around the boundary
	// flips the interval with it.
	fastPollScoreCutoff = 50.0

	pollResponseLimit = 4 * 1024 * 1024 // 4MB
)

// pollingAdapter implements the polling mode: strictly sequential requests
// carrying a lastSequence cursor. The next poll is scheduled only after the
// current one settles; a failed poll pushes the next attempt out to the
// exponential backoff delay instead of the steady interval.
type pollingAdapter struct {
	config Config
	logger logging.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	closeOnce sync.Once

	consecutiveFailures int
}

func newPollingAdapter(config Config) *pollingAdapter {
	return &pollingAdapter{
		config: config,
		logger: config.logger().WithFields(logging.String("component", "polling")),
	}
}

func (a *pollingAdapter) Mode() Mode { return ModePolling }

// Open starts the poll loop. Polling has no handshake, so the transport is
// considered open as soon as the loop is running; individual poll failures
// surface through OnError and internal backoff.
func (a *pollingAdapter) Open(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)

	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	a.config.Callbacks.open()

	go a.run(loopCtx)

	return nil
}

func (a *pollingAdapter) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("poll loop panic", logging.Any("panic", r))
			a.reportClose(fmt.Sprintf("internal fault: %v", r))
		}
	}()

	timer := time.NewTimer(0) // first poll fires immediately
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			a.reportClose("closed")
			return
		case <-timer.C:
		}

		delay := a.pollOnce(ctx)

		if ctx.Err() != nil {
			a.reportClose("closed")
			return
		}
		timer.Reset(delay)
	}
}

// pollOnce performs one request and returns the delay before the next.
func (a *pollingAdapter) pollOnce(ctx context.Context) time.Duration {
	envelopes, err := a.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return time.Second
		}
		a.consecutiveFailures++
		a.logger.Warn("poll failed",
			logging.Int("consecutive_failures", a.consecutiveFailures),
			logging.ErrorField(err))
		a.config.Callbacks.fault(conduiterrors.PollFailed(err, a.config.PollURL))
		return a.backoffDelay(a.consecutiveFailures)
	}

	a.consecutiveFailures = 0
	for i := range envelopes {
		a.config.Callbacks.message(&envelopes[i])
	}
	return a.steadyInterval()
}

func (a *pollingAdapter) fetch(ctx context.Context) ([]envelope.Envelope, error) {
	reqCtx, reqCancel := context.WithTimeout(ctx, a.config.handshakeTimeout())
	defer reqCancel()

	u, err := url.Parse(a.config.PollURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("lastSequence", strconv.FormatInt(a.cursor(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.config.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, pollResponseLimit))
	if err != nil {
		return nil, err
	}

	parsed, err := envelope.ParsePollResponse(body)
	if err != nil {
		return nil, err
	}
	return parsed.Messages, nil
}

func (a *pollingAdapter) cursor() int64 {
	if a.config.Cursor == nil {
		return 0
	}
	return a.config.Cursor()
}

// steadyInterval picks the fast interval while quality is poor, when
// dynamic polling is enabled.
func (a *pollingAdapter) steadyInterval() time.Duration {
	interval := a.config.PollingInterval
	if interval <= 0 {
		interval = DefaultPollingInterval
	}

	if !a.config.EnableDynamicPolling || a.config.QualityScore == nil {
		return interval
	}

	if a.config.QualityScore() < fastPollScoreCutoff {
		fast := a.config.FastPollingInterval
		if fast <= 0 {
			fast = DefaultFastPollingInterval
		}
		return fast
	}
	return interval
}

func (a *pollingAdapter) backoffDelay(failures int) time.Duration {
	base := a.config.BackoffBase
	if base <= 0 {
		base = defaultPollBackoffBase
	}
	max := a.config.BackoffMax
	if max <= 0 {
		max = defaultPollBackoffMax
	}

	delay := time.Duration(float64(base) * math.Pow(2, float64(failures-1)))
	if delay > max || delay <= 0 {
		delay = max
	}
	return delay
}

// Close stops the loop. The pending request, if any, is cancelled through
// the loop context.
func (a *pollingAdapter) Close() error {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

func (a *pollingAdapter) reportClose(reason string) {
	a.closeOnce.Do(func() {
		a.config.Callbacks.closed(reason)
	})
}
