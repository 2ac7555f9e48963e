// Package bridge implements the MCP transport bridge engine: the
// full-duplex message pump between a server-side and a client-side
// transport, the state machine governing disconnection and reconnection,
// and the shutdown discipline that keeps the two sides from leaking
// subscriptions or racing each other.
//
// The bridge is payload-opaque. It never parses or validates the frames
// it forwards; frame construction, JSON-RPC semantics and message
// transformation are explicitly out of scope.
package bridge
