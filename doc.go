// Package conduit provides an adaptive data channel client that keeps a
// live feed flowing by degrading across transport modes when the network
// turns hostile, and surfacing quality telemetry while it does so.
//
// The client opens a websocket first, falls back to server-sent events when
// the socket keeps failing, and falls back again to sequential HTTP polling
// as a last resort. Fallback decisions are driven by a continuously updated
// quality score, a heartbeat-based liveness check, and an exponential-backoff
// reconnection engine. Subscribers receive one normalized event stream
// regardless of the mode currently carrying the data.
//
// # Overview
//
// The library consists of several sub-packages:
//
//   - pkg/client: the connection controller, reconnection engine and
//     heartbeat monitor
//   - pkg/transport: the websocket, sse and polling adapters behind one
//     Adapter interface
//   - pkg/quality: sliding-window quality scoring
//   - pkg/events: the normalized event stream and subscription bus
//   - pkg/envelope: the wire envelope carried by every mode
//   - pkg/errors: typed errors with codes and categories
//   - pkg/logging: structured leveled logging
//   - pkg/observability: Prometheus metrics and OpenTelemetry tracing
//
// # Connecting
//
// A minimal consumer subscribes, connects, and reads events:
//
//	import (
//	    "context"
//
//	    conduit "github.com/openfleet/conduit-go"
//	    "github.com/openfleet/conduit-go/pkg/events"
//	)
//
//	func main() {
//	    c, err := conduit.New(conduit.DefaultConfig())
//	    if err != nil {
//	        // handle error
//	    }
//
//	    unsubscribe := c.On(func(e events.Event) {
//	        switch e.Type {
//	        case events.TypeMessage:
//	            // e.Envelope.Payload
//	        case events.TypeModeChanged:
//	            // e.From, e.To, e.Reason
//	        }
//	    })
//	    defer unsubscribe()
//
//	    if err := c.Connect(context.Background(),
//	        "wss://feed.example.com/stream",
//	        "https://feed.example.com/poll"); err != nil {
//	        // handle error
//	    }
//	    defer c.Disconnect()
//	}
//
// Connect returns once the first attempt is underway; later failures are
// reported through the event stream and handled by the reconnection engine
// rather than returned.
package conduit
