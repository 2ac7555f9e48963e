package bridge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mcpbridge/mcp-bridge/factory"
)

// ShutdownPolicy names what happens when the server-side transport
// closes: end the bridge, or wait for a replacement server transport to
// take its place.
type ShutdownPolicy string

const (
	// ShutdownBridge tears the bridge down when the server closes.
	ShutdownBridge ShutdownPolicy = "SHUTDOWN_BRIDGE"
	// WaitForReconnection keeps the bridge initialized and waits for a
	// new server transport when the server closes.
	WaitForReconnection ShutdownPolicy = "WAIT_FOR_RECONNECTION"
)

// wireName returns the JSON textual form of p, per the wire shape of
// spec.md §6.2.
func (p ShutdownPolicy) wireName() string {
	switch p {
	case WaitForReconnection:
		return "waitForReconnection"
	default:
		return "shutdownBridge"
	}
}

func parseShutdownPolicy(s string) (ShutdownPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "shutdownbridge":
		return ShutdownBridge, nil
	case "waitforreconnection":
		return WaitForReconnection, nil
	default:
		return "", fmt.Errorf("unrecognized serverShutdownBehavior %q", s)
	}
}

// Config is the immutable configuration a Bridge is constructed with.
// Transports are not created until Initialize is called.
type Config struct {
	ServerTransportKind   string
	ClientTransportKind   string
	ServerTransportConfig map[string]interface{}
	ClientTransportConfig map[string]interface{}

	// ServerShutdownPolicy is the policy as requested by the caller. A
	// stdio server transport always forces the *effective* policy to
	// ShutdownBridge (see Bridge.EffectiveServerShutdownPolicy) without
	// mutating this field - the JSON round trip preserves exactly what
	// was asked for.
	ServerShutdownPolicy ShutdownPolicy
}

// effectivePolicy computes the policy actually enforced by the lifecycle
// controller, forcing ShutdownBridge whenever the server transport is
// stdio - a stdio server is a child process whose exit cannot be waited
// through.
func (c Config) effectivePolicy() ShutdownPolicy {
	if strings.EqualFold(c.ServerTransportKind, factory.KindStdio) {
		return ShutdownBridge
	}
	if c.ServerShutdownPolicy == "" {
		return ShutdownBridge
	}
	return c.ServerShutdownPolicy
}

// wireConfig mirrors the JSON shape of spec.md §6.2.
type wireConfig struct {
	ServerTransportType    string                 `json:"serverTransportType"`
	ClientTransportType    string                 `json:"clientTransportType"`
	ServerShutdownBehavior string                 `json:"serverShutdownBehavior,omitempty"`
	ServerConfig           map[string]interface{} `json:"serverConfig,omitempty"`
	ClientConfig           map[string]interface{} `json:"clientConfig,omitempty"`
}

// MarshalJSON serializes Config into the wire shape of spec.md §6.2.
func (c Config) MarshalJSON() ([]byte, error) {
	w := wireConfig{
		ServerTransportType:    c.ServerTransportKind,
		ClientTransportType:    c.ClientTransportKind,
		ServerShutdownBehavior: c.ServerShutdownPolicy.wireName(),
		ServerConfig:           c.ServerTransportConfig,
		ClientConfig:           c.ClientTransportConfig,
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses the wire shape of spec.md §6.2. Unknown top-level
// fields are ignored (the default behavior of encoding/json). A missing
// serverConfig/clientConfig defaults to an empty map; a missing or empty
// serverShutdownBehavior defaults to ShutdownBridge; the enum match is
// case-insensitive.
func (c *Config) UnmarshalJSON(data []byte) error {
	var w wireConfig
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	policy, err := parseShutdownPolicy(w.ServerShutdownBehavior)
	if err != nil {
		return err
	}
	c.ServerTransportKind = w.ServerTransportType
	c.ClientTransportKind = w.ClientTransportType
	c.ServerShutdownPolicy = policy
	c.ServerTransportConfig = w.ServerConfig
	if c.ServerTransportConfig == nil {
		c.ServerTransportConfig = map[string]interface{}{}
	}
	c.ClientTransportConfig = w.ClientConfig
	if c.ClientTransportConfig == nil {
		c.ClientTransportConfig = map[string]interface{}{}
	}
	return nil
}

// Validate rejects an obviously malformed Config before it ever reaches
// the transport factory.
func (c Config) Validate() error {
	if c.ServerTransportKind == "" {
		return fmt.Errorf("serverTransportKind is required")
	}
	if c.ClientTransportKind == "" {
		return fmt.Errorf("clientTransportKind is required")
	}
	if !factory.IsRecognizedKind(c.ServerTransportKind) {
		return fmt.Errorf("unsupported server transport kind %q", c.ServerTransportKind)
	}
	if !factory.IsRecognizedKind(c.ClientTransportKind) {
		return fmt.Errorf("unsupported client transport kind %q", c.ClientTransportKind)
	}
	return nil
}
