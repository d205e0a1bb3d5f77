// Package pkg provides the core components of the conduit SDK.
//
// Conduit maintains a resilient real-time data channel that degrades
// gracefully through transport modes as network conditions worsen: a
// persistent websocket first, a server-sent event stream next, plain HTTP
// polling last. The sub-packages implement the layers of that controller.
//
// # Client Usage
//
// To consume a feed through the adaptive client:
//
//	import (
//	    "context"
//	    conduit "github.com/openfleet/conduit-go"
//	    "github.com/openfleet/conduit-go/pkg/events"
//	)
//
//	func main() {
//	    client, err := conduit.New(conduit.DefaultConfig())
//	    if err != nil {
//	        // Handle error
//	    }
//
//	    client.On(func(e events.Event) {
//	        // React to connected, message, mode_changed, ...
//	    })
//
//	    ctx := context.Background()
//	    if err := client.Connect(ctx, "wss://feed.example.com/stream", "https://feed.example.com/poll"); err != nil {
//	        // Handle error
//	    }
//	    defer client.Disconnect()
//	}
//
// # Sub-packages
//
// The SDK consists of several sub-packages:
//
//   - client: Connection controller, heartbeat monitor, reconnection and mode-switch engine
//   - transport: The websocket, SSE, and polling adapters behind one callback contract
//   - envelope: The wire envelope shared by every transport mode
//   - quality: Rolling-window connection quality scoring
//   - events: The event variants and the synchronous fan-out bus
//   - errors: Typed errors with codes, categories, and severities
//   - logging: Structured leveled logging
//   - observability: Prometheus metrics and OpenTelemetry tracing
//   - utils: Test helpers shared by the suites
package pkg
