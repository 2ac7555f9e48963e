package factory

import (
	"fmt"
	"os"
	"strings"

	"github.com/mcpbridge/mcp-bridge/transport"
	"github.com/mcpbridge/mcp-bridge/transport/sse"
	"github.com/mcpbridge/mcp-bridge/transport/stdio"
)

// Recognized transport kind tags. Matching against them is
// case-insensitive.
const (
	KindStdio = "stdio"
	KindSSE   = "sse"
)

// NewServerTransport builds the server-side transport named by kind, using
// raw as its configuration mapping.
func NewServerTransport(kind string, raw map[string]interface{}) (transport.Transport, error) {
	switch strings.ToLower(kind) {
	case KindStdio:
		if _, err := LoadStdioServerConfig(raw); err != nil {
			return nil, transport.NewInvalidConfigError(err.Error(), err)
		}
		return stdio.New(os.Stdin, os.Stdout), nil
	case KindSSE:
		cfg, err := LoadSSEServerConfig(raw)
		if err != nil {
			return nil, transport.NewInvalidConfigError(err.Error(), err)
		}
		t, err := sse.New(sse.ServerConfig{
			Port:             cfg.Port,
			Endpoint:         cfg.Endpoint,
			MessagesEndpoint: cfg.MessagesEndpoint,
			FallbackPorts:    cfg.FallbackPorts,
			AuthToken:        cfg.AuthToken,
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, transport.NewUnsupportedTransportError(fmt.Sprintf("unsupported server transport kind %q", kind), nil)
	}
}

// NewClientTransport builds the client-side transport named by kind, using
// raw as its configuration mapping.
func NewClientTransport(kind string, raw map[string]interface{}) (transport.Transport, error) {
	switch strings.ToLower(kind) {
	case KindStdio:
		cfg, err := LoadStdioClientConfig(raw)
		if err != nil {
			return nil, transport.NewInvalidConfigError(err.Error(), err)
		}
		t, err := stdio.NewClient(stdio.ClientConfig{
			Command:          cfg.Command,
			Arguments:        cfg.Arguments,
			WorkingDirectory: cfg.WorkingDirectory,
			Environment:      cfg.Environment,
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	case KindSSE:
		cfg, err := LoadSSEClientConfig(raw)
		if err != nil {
			return nil, transport.NewInvalidConfigError(err.Error(), err)
		}
		t, err := sse.NewClient(sse.ClientConfig{
			ServerURL: cfg.ServerURL,
			Headers:   cfg.Headers,
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, transport.NewUnsupportedTransportError(fmt.Sprintf("unsupported client transport kind %q", kind), nil)
	}
}

// IsRecognizedKind reports whether kind (case-insensitively) names a
// transport kind this factory can build.
func IsRecognizedKind(kind string) bool {
	switch strings.ToLower(kind) {
	case KindStdio, KindSSE:
		return true
	default:
		return false
	}
}
