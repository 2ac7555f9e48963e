package transport

import "context"

// Message is a single opaque JSON-RPC frame. The bridge never parses it.
type Message string

// Source identifies which side of a bridge a transport, event or error
// originated from.
type Source string

const (
	Server Source = "server"
	Client Source = "client"
)

func (s Source) String() string { return string(s) }

// Transport is the capability set both server-side and client-side MCP
// transports must provide. Implementations live in transport/stdio and
// transport/sse; the bridge package consumes only this interface.
type Transport interface {
	// Inbound returns the channel frames are delivered on, one value per
	// received JSON-RPC frame, in receive order. The channel is closed
	// when the transport enters the closed state, whether via Close or
	// remote disconnection.
	Inbound() <-chan Message

	// Errors returns the channel transport-level I/O errors are reported
	// on. Errors are distinct events, not termination signals - Inbound
	// keeps delivering frames (or eventually closes on its own) after an
	// error is reported here.
	Errors() <-chan error

	// Send enqueues an outbound frame. It fails with a TRANSPORT_CLOSED
	// error if the transport has already closed.
	Send(ctx context.Context, message Message) error

	// Close is idempotent. It releases the transport's underlying
	// resources and causes Inbound to close and Closed to fire, if it
	// has not already.
	Close() error

	// Closed returns a channel that is closed exactly once, when the
	// transport enters the closed state. It stands in for the one-shot
	// "closed future" of the abstract contract.
	Closed() <-chan struct{}
}
