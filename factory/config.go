package factory

import "fmt"

// StdioServerConfig configures a stdio server transport. It has no fields:
// a stdio server is always bound to the current process's own
// stdin/stdout.
type StdioServerConfig struct{}

// SSEServerConfig configures an HTTP/SSE server transport.
type SSEServerConfig struct {
	Port             int
	Endpoint         string
	MessagesEndpoint string
	FallbackPorts    []int
	AuthToken        string
}

// StdioClientConfig configures a spawned child-process client transport.
type StdioClientConfig struct {
	Command          string
	Arguments        []string
	WorkingDirectory string
	Environment      map[string]string
}

// SSEClientConfig configures an outbound HTTP/SSE client transport.
type SSEClientConfig struct {
	ServerURL string
	Headers   map[string]string
}

// LoadStdioServerConfig projects raw into a StdioServerConfig. It never
// fails - stdio server transports take no configuration.
func LoadStdioServerConfig(_ map[string]interface{}) (*StdioServerConfig, error) {
	return &StdioServerConfig{}, nil
}

// LoadSSEServerConfig projects raw into a SSEServerConfig, applying the
// defaults documented in the transport contract.
func LoadSSEServerConfig(raw map[string]interface{}) (*SSEServerConfig, error) {
	cfg := &SSEServerConfig{
		Port:             getInt(raw, "port", 8080),
		Endpoint:         getString(raw, "endpoint", "/sse"),
		MessagesEndpoint: getString(raw, "messagesEndpoint", "/messages"),
		FallbackPorts:    getIntSlice(raw, "fallbackPorts"),
		AuthToken:        getString(raw, "authToken", ""),
	}
	return cfg, nil
}

// LoadStdioClientConfig projects raw into a StdioClientConfig, failing with
// an error if the required "command" key is missing.
func LoadStdioClientConfig(raw map[string]interface{}) (*StdioClientConfig, error) {
	command := getString(raw, "command", "")
	if command == "" {
		return nil, fmt.Errorf("command is required")
	}
	return &StdioClientConfig{
		Command:          command,
		Arguments:        getStringSlice(raw, "arguments"),
		WorkingDirectory: getString(raw, "workingDirectory", ""),
		Environment:      getStringMap(raw, "environment"),
	}, nil
}

// LoadSSEClientConfig projects raw into a SSEClientConfig, failing with an
// error if the required "serverUrl" key is missing.
func LoadSSEClientConfig(raw map[string]interface{}) (*SSEClientConfig, error) {
	serverURL := getString(raw, "serverUrl", "")
	if serverURL == "" {
		return nil, fmt.Errorf("serverUrl is required")
	}
	return &SSEClientConfig{
		ServerURL: serverURL,
		Headers:   getStringMap(raw, "headers"),
	}, nil
}

func getString(raw map[string]interface{}, key, def string) string {
	v, ok := raw[key]
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

func getInt(raw map[string]interface{}, key string, def int) int {
	v, ok := raw[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

func getIntSlice(raw map[string]interface{}, key string) []int {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]int, 0, len(list))
	for _, item := range list {
		switch n := item.(type) {
		case int:
			out = append(out, n)
		case int64:
			out = append(out, int(n))
		case float64:
			out = append(out, int(n))
		}
	}
	return out
}

func getStringSlice(raw map[string]interface{}, key string) []string {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func getStringMap(raw map[string]interface{}, key string) map[string]string {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		if s, ok := val.(string); ok {
			out[k] = s
		}
	}
	return out
}
