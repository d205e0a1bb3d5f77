package errors

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Transport error constructors. Adapters use these so every failure that
// crosses the adapter boundary carries a code the engine can classify.

// ConnectionFailed reports a failed connection attempt to an endpoint.
func ConnectionFailed(err error, mode, endpoint string) ConduitError {
	return WrapError(err, CodeConnectionFailed, "failed to establish connection", CategoryTransport, SeverityError).
		WithContext(&Context{Mode: mode, Endpoint: endpoint, Component: "transport", Operation: "open"})
}

// ConnectionLost reports an established connection dropping.
func ConnectionLost(err error, mode string) ConduitError {
	return WrapError(err, CodeConnectionLost, "connection lost", CategoryTransport, SeverityError).
		WithContext(&Context{Mode: mode, Component: "transport", Operation: "read"})
}

// ConnectionTimeout reports a dial or read deadline being exceeded.
func ConnectionTimeout(err error, mode string) ConduitError {
	return WrapError(err, CodeConnectionTimeout, "connection timed out", CategoryTimeout, SeverityError).
		WithContext(&Context{Mode: mode, Component: "transport"})
}

// HeartbeatTimeout reports the liveness window being exceeded while the
// transport still claims to be open.
func HeartbeatTimeout(mode string) ConduitError {
	return NewError(CodeHeartbeatTimeout, "heartbeat timeout", CategoryTimeout, SeverityError).
		WithContext(&Context{Mode: mode, Component: "heartbeat"})
}

// PollFailed reports a single poll request failing. Recoverable; the poller
// retries at the backoff delay.
func PollFailed(err error, endpoint string) ConduitError {
	return WrapError(err, CodePollFailed, "poll request failed", CategoryTransport, SeverityWarning).
		WithContext(&Context{Mode: "polling", Endpoint: endpoint, Component: "transport", Operation: "poll"})
}

// ParseFailure reports a single envelope that could not be decoded. The
// connection stays up; the envelope is dropped.
func ParseFailure(err error, mode string) ConduitError {
	return WrapError(err, CodeParseFailure, "envelope decode failed", CategoryProtocol, SeverityWarning).
		WithContext(&Context{Mode: mode, Component: "transport", Operation: "decode"})
}

// InvalidConfig reports a configuration rejected at construction time.
func InvalidConfig(detail string) ConduitError {
	return NewError(CodeInvalidConfig, "invalid configuration", CategoryConfig, SeverityCritical).
		WithDetail(detail)
}

// InvalidMode reports a mode outside the configured fallback order.
func InvalidMode(mode string) ConduitError {
	return NewErrorf(CodeInvalidMode, CategoryConfig, SeverityError, "mode %q is not in the fallback order", mode)
}

// ClassifyNetError maps a raw network error to the closest transport code,
// preserving the original via Unwrap.
func ClassifyNetError(err error, mode string) ConduitError {
	if cerr, ok := AsConduitError(err); ok {
		return cerr
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return WrapError(err, CodeConnectionClosed, "connection closed", CategoryCancelled, SeverityInfo).
			WithContext(&Context{Mode: mode, Component: "transport"})
	case errors.Is(err, context.DeadlineExceeded):
		return ConnectionTimeout(err, mode)
	case errors.As(err, &netErr) && netErr.Timeout():
		return ConnectionTimeout(err, mode)
	case strings.Contains(err.Error(), "use of closed network connection"):
		return WrapError(err, CodeConnectionClosed, "connection closed", CategoryTransport, SeverityWarning).
			WithContext(&Context{Mode: mode, Component: "transport"})
	default:
		return ConnectionLost(err, mode)
	}
}
