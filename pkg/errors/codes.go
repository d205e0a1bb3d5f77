package errors

// Error codes used across the SDK. Codes are grouped by concern so that the
// reconnection engine can classify failures by range.
const (
	// Transport errors (1000-1099)
	CodeTransportError    int = 1000 // Generic transport error
	CodeConnectionFailed  int = 1001 // Failed to establish connection
	CodeConnectionLost    int = 1002 // Connection lost after establishment
	CodeConnectionTimeout int = 1003 // Dial or read deadline exceeded
	CodeConnectionClosed  int = 1004 // Connection closed by peer or locally
	CodeHeartbeatTimeout  int = 1005 // No inbound traffic within heartbeat window
	CodePollFailed        int = 1006 // A poll request failed

	// Protocol errors (1100-1199)
	CodeParseFailure    int = 1100 // Envelope could not be decoded
	CodeInvalidEnvelope int = 1101 // Envelope decoded but structurally invalid

	// Configuration errors (1200-1299)
	CodeInvalidConfig int = 1200 // Configuration rejected at construction
	CodeInvalidMode   int = 1201 // Mode not present in the fallback order

	// Lifecycle errors (1300-1399)
	CodeClientClosed     int = 1300 // Operation on a disconnected client
	CodeAlreadyConnected int = 1301 // Connect called on an active client
)

// ErrorCodeInfo provides human-readable information about error codes
type ErrorCodeInfo struct {
	Code        int
	Name        string
	Description string
	Category    Category
	Severity    Severity
}

var errorCodeRegistry = map[int]ErrorCodeInfo{
	CodeTransportError:    {CodeTransportError, "TransportError", "Transport error", CategoryTransport, SeverityError},
	CodeConnectionFailed:  {CodeConnectionFailed, "ConnectionFailed", "Failed to establish connection", CategoryTransport, SeverityError},
	CodeConnectionLost:    {CodeConnectionLost, "ConnectionLost", "Connection lost", CategoryTransport, SeverityError},
	CodeConnectionTimeout: {CodeConnectionTimeout, "ConnectionTimeout", "Connection timed out", CategoryTimeout, SeverityError},
	CodeConnectionClosed:  {CodeConnectionClosed, "ConnectionClosed", "Connection closed", CategoryTransport, SeverityWarning},
	CodeHeartbeatTimeout:  {CodeHeartbeatTimeout, "HeartbeatTimeout", "Heartbeat window exceeded", CategoryTimeout, SeverityError},
	CodePollFailed:        {CodePollFailed, "PollFailed", "Poll request failed", CategoryTransport, SeverityWarning},
	CodeParseFailure:      {CodeParseFailure, "ParseFailure", "Envelope decode failed", CategoryProtocol, SeverityWarning},
	CodeInvalidEnvelope:   {CodeInvalidEnvelope, "InvalidEnvelope", "Envelope structurally invalid", CategoryProtocol, SeverityWarning},
	CodeInvalidConfig:     {CodeInvalidConfig, "InvalidConfig", "Invalid configuration", CategoryConfig, SeverityCritical},
	CodeInvalidMode:       {CodeInvalidMode, "InvalidMode", "Mode not in fallback order", CategoryConfig, SeverityError},
	CodeClientClosed:      {CodeClientClosed, "ClientClosed", "Client is disconnected", CategoryCancelled, SeverityInfo},
	CodeAlreadyConnected:  {CodeAlreadyConnected, "AlreadyConnected", "Client already connected", CategoryConfig, SeverityError},
}

// GetErrorCodeInfo returns information about an error code
func GetErrorCodeInfo(code int) (ErrorCodeInfo, bool) {
	info, exists := errorCodeRegistry[code]
	return info, exists
}

// GetErrorCodeName returns the name of an error code
func GetErrorCodeName(code int) string {
	if info, exists := errorCodeRegistry[code]; exists {
		return info.Name
	}
	return "UnknownError"
}

// IsTransportCode reports whether the code belongs to the transport range.
func IsTransportCode(code int) bool {
	return code >= 1000 && code <= 1099
}

// IsRecoverable reports whether a failure with this code should be routed
// into the reconnection engine rather than surfaced as fatal. Everything in
// the transport and timeout ranges recovers; configuration errors do not.
func IsRecoverable(code int) bool {
	switch {
	case IsTransportCode(code):
		return true
	case code >= 1100 && code <= 1199:
		return true
	default:
		return false
	}
}
