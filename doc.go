// Package mcpbridge is the module root for the MCP transport bridge.
//
// github.com/mcpbridge/mcp-bridge glues one server-side MCP transport to
// one client-side MCP transport, forwarding JSON-RPC frames between them
// full-duplex while owning reconnection and shutdown. The bridge itself is
// payload-opaque: it never parses or inspects the frames it forwards.
//
// Packages:
//
//	transport       - the abstract transport contract and error taxonomy
//	transport/stdio - stdio server and client transport implementations
//	transport/sse   - HTTP/SSE server and client transport implementations
//	factory         - (kind, config) -> transport.Transport
//	bridge          - the message pump, lifecycle controller and public surface
//	cmd/mcpbridge   - the standalone CLI binary
//
// See SPEC_FULL.md and DESIGN.md for the full design and grounding ledger.
package mcpbridge
