package bridge

import "github.com/mcpbridge/mcp-bridge/factory"

// StdioServerSSEClientParams configures the common "expose a local
// stdio MCP server over SSE to a remote client" pairing.
type StdioServerSSEClientParams struct {
	// ServerURL is the SSE endpoint the client side connects to.
	ServerURL string
	Headers   map[string]string
	Logger    Logger
}

// NewStdioServerToSSEClient builds a Bridge pairing a stdio server
// transport with an SSE client transport. A stdio server always forces
// ShutdownBridge, which matches this pairing's intended use: bridging a
// single child-process MCP server out to one remote SSE endpoint for
// the lifetime of that process.
func NewStdioServerToSSEClient(params StdioServerSSEClientParams) (*Bridge, error) {
	cfg := Config{
		ServerTransportKind:   factory.KindStdio,
		ClientTransportKind:   factory.KindSSE,
		ServerTransportConfig: map[string]interface{}{},
		ClientTransportConfig: map[string]interface{}{
			"serverUrl": params.ServerURL,
			"headers":   stringMapToInterface(params.Headers),
		},
		ServerShutdownPolicy: ShutdownBridge,
	}
	return New(cfg, params.Logger)
}

// SSEServerStdioClientParams configures the common "expose a stdio MCP
// client as an SSE server" pairing.
type SSEServerStdioClientParams struct {
	Port             int
	Endpoint         string
	MessagesEndpoint string
	FallbackPorts    []int
	AuthToken        string

	Command          string
	Arguments        []string
	WorkingDirectory string
	Environment      map[string]string

	// ShutdownPolicy controls what happens when the SSE server closes.
	// Defaults to WaitForReconnection, since an SSE server can always
	// rebind a fresh listener and pick up where it left off.
	ShutdownPolicy ShutdownPolicy
	Logger         Logger
}

// NewSSEServerToStdioClient builds a Bridge pairing an SSE server
// transport with a stdio client transport spawned as a child process.
func NewSSEServerToStdioClient(params SSEServerStdioClientParams) (*Bridge, error) {
	policy := params.ShutdownPolicy
	if policy == "" {
		policy = WaitForReconnection
	}
	cfg := Config{
		ServerTransportKind: factory.KindSSE,
		ClientTransportKind: factory.KindStdio,
		ServerTransportConfig: map[string]interface{}{
			"port":             params.Port,
			"endpoint":         params.Endpoint,
			"messagesEndpoint": params.MessagesEndpoint,
			"fallbackPorts":    intSliceToInterface(params.FallbackPorts),
			"authToken":        params.AuthToken,
		},
		ClientTransportConfig: map[string]interface{}{
			"command":          params.Command,
			"arguments":        stringSliceToInterface(params.Arguments),
			"workingDirectory": params.WorkingDirectory,
			"environment":      stringMapToInterface(params.Environment),
		},
		ServerShutdownPolicy: policy,
	}
	return New(cfg, params.Logger)
}

func stringMapToInterface(m map[string]string) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func stringSliceToInterface(s []string) []interface{} {
	if s == nil {
		return nil
	}
	out := make([]interface{}, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

func intSliceToInterface(s []int) []interface{} {
	if s == nil {
		return nil
	}
	out := make([]interface{}, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
