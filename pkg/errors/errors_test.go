package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"
)

func TestConduitErrorInterface(t *testing.T) {
	tests := []struct {
		name     string
		err      ConduitError
		wantCode int
		wantCat  Category
		wantSev  Severity
	}{
		{
			name:     "connection failed",
			err:      ConnectionFailed(errors.New("dial refused"), "websocket", "wss://example.com/stream"),
			wantCode: CodeConnectionFailed,
			wantCat:  CategoryTransport,
			wantSev:  SeverityError,
		},
		{
			name:     "heartbeat timeout",
			err:      HeartbeatTimeout("sse"),
			wantCode: CodeHeartbeatTimeout,
			wantCat:  CategoryTimeout,
			wantSev:  SeverityError,
		},
		{
			name:     "poll failed",
			err:      PollFailed(errors.New("502"), "https://example.com/poll"),
			wantCode: CodePollFailed,
			wantCat:  CategoryTransport,
			wantSev:  SeverityWarning,
		},
		{
			name:     "invalid config",
			err:      InvalidConfig("missing stream URL"),
			wantCode: CodeInvalidConfig,
			wantCat:  CategoryConfig,
			wantSev:  SeverityCritical,
		},
		{
			name:     "invalid mode",
			err:      InvalidMode("carrier-pigeon"),
			wantCode: CodeInvalidMode,
			wantCat:  CategoryConfig,
			wantSev:  SeverityError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Code(); got != tt.wantCode {
				t.Errorf("Code() = %v, want %v", got, tt.wantCode)
			}
			if got := tt.err.Category(); got != tt.wantCat {
				t.Errorf("Category() = %v, want %v", got, tt.wantCat)
			}
			if got := tt.err.Severity(); got != tt.wantSev {
				t.Errorf("Severity() = %v, want %v", got, tt.wantSev)
			}
			if msg := tt.err.Error(); msg == "" {
				t.Error("Error() returned empty string")
			}
		})
	}
}

func TestWithDetailAndContext(t *testing.T) {
	base := InvalidConfig("poll URL required")

	detailed := base.WithDetail("mode polling selected")
	if detailed.Details() == base.Details() {
		t.Error("WithDetail() did not extend details")
	}
	// The original is untouched.
	if base.Details() != "poll URL required" {
		t.Errorf("original details mutated: %q", base.Details())
	}

	withCtx := base.WithContext(&Context{Mode: "polling", Component: "transport"})
	if withCtx.Context().Mode != "polling" {
		t.Errorf("Context().Mode = %q, want polling", withCtx.Context().Mode)
	}
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := ConnectionLost(cause, "websocket")

	if !errors.Is(err, cause) {
		t.Error("errors.Is() failed to find the wrapped cause")
	}
}

func TestErrorJSONRoundTrip(t *testing.T) {
	err := ConnectionFailed(errors.New("dial tcp: refused"), "websocket", "wss://example.com/stream")

	data, marshalErr := json.Marshal(err)
	if marshalErr != nil {
		t.Fatalf("Marshal() error: %v", marshalErr)
	}

	var decoded map[string]interface{}
	if unmarshalErr := json.Unmarshal(data, &decoded); unmarshalErr != nil {
		t.Fatalf("Unmarshal() error: %v", unmarshalErr)
	}
	if decoded["code"].(float64) != float64(CodeConnectionFailed) {
		t.Errorf("code = %v, want %d", decoded["code"], CodeConnectionFailed)
	}
	if decoded["category"] != string(CategoryTransport) {
		t.Errorf("category = %v, want %s", decoded["category"], CategoryTransport)
	}
	if decoded["cause"] != "dial tcp: refused" {
		t.Errorf("cause = %v", decoded["cause"])
	}
}

func TestAsConduitError(t *testing.T) {
	ce, ok := AsConduitError(HeartbeatTimeout("sse"))
	if !ok || ce.Code() != CodeHeartbeatTimeout {
		t.Error("AsConduitError() failed on a direct ConduitError")
	}

	wrapped := fmt.Errorf("outer: %w", ConnectionLost(errors.New("eof"), "sse"))
	ce, ok = AsConduitError(wrapped)
	if !ok || ce.Code() != CodeConnectionLost {
		t.Error("AsConduitError() failed through a wrapping layer")
	}

	if _, ok := AsConduitError(errors.New("plain")); ok {
		t.Error("AsConduitError() matched a plain error")
	}
}

func TestCodeRanges(t *testing.T) {
	if !IsTransportCode(CodeConnectionLost) {
		t.Error("CodeConnectionLost should be a transport code")
	}
	if IsTransportCode(CodeParseFailure) {
		t.Error("CodeParseFailure should not be a transport code")
	}
	if !IsRecoverable(CodeConnectionTimeout) {
		t.Error("connection timeout should be recoverable")
	}
	if !IsRecoverable(CodeParseFailure) {
		t.Error("parse failure should be recoverable")
	}
	if IsRecoverable(CodeInvalidConfig) {
		t.Error("config errors should not be recoverable")
	}
}

type timeoutNetError struct{}

func (timeoutNetError) Error() string   { return "i/o timeout" }
func (timeoutNetError) Timeout() bool   { return true }
func (timeoutNetError) Temporary() bool { return true }

var _ net.Error = timeoutNetError{}

func TestClassifyNetError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"context cancelled", context.Canceled, CodeConnectionClosed},
		{"deadline exceeded", context.DeadlineExceeded, CodeConnectionTimeout},
		{"net timeout", timeoutNetError{}, CodeConnectionTimeout},
		{"closed connection", errors.New("use of closed network connection"), CodeConnectionClosed},
		{"anything else", errors.New("connection reset"), CodeConnectionLost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyNetError(tt.err, "websocket")
			if got.Code() != tt.wantCode {
				t.Errorf("ClassifyNetError(%v).Code() = %d, want %d", tt.err, got.Code(), tt.wantCode)
			}
		})
	}
}

func TestErrorCodeRegistry(t *testing.T) {
	info, ok := GetErrorCodeInfo(CodeHeartbeatTimeout)
	if !ok {
		t.Fatal("GetErrorCodeInfo() missing CodeHeartbeatTimeout")
	}
	if info.Name != "HeartbeatTimeout" {
		t.Errorf("Name = %q, want HeartbeatTimeout", info.Name)
	}
	if GetErrorCodeName(999999) != "UnknownError" {
		t.Error("unknown code should report UnknownError")
	}
}
