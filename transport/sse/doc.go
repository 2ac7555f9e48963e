// Package sse implements the MCP transport contract over HTTP
// Server-Sent Events: a server-side transport that serves an event stream
// plus a message-post endpoint, and a client-side transport that consumes
// one.
package sse
