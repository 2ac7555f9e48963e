// Package transport defines the abstract contract shared by every
// server-side and client-side MCP transport the bridge can drive, plus the
// error taxonomy transports report through it.
//
// A Transport is deliberately minimal: an inbound stream of opaque frames,
// a send operation, an idempotent close, and a one-shot closed signal. The
// bridge never inspects frame content, so Message is a plain string.
package transport
