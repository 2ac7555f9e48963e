package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mcpbridge/mcp-bridge/transport"
)

// ClientConfig configures an outbound HTTP/SSE client transport.
type ClientConfig struct {
	// ServerURL is the event-stream URL to GET and watch.
	ServerURL string
	// Headers are attached verbatim to every outbound HTTP request,
	// typically carrying "Authorization: Bearer <token>".
	Headers map[string]string

	// HTTPClient is used for requests. Defaults to http.DefaultClient's
	// transport with no overall timeout (the stream is long-lived).
	HTTPClient *http.Client
}

// ClientTransport opens an outbound GET to ServerURL and reads
// Server-Sent Events from the response body. Outbound frames are
// POSTed to the messages URL the server announces in its first
// "endpoint" event, which may differ from ServerURL.
type ClientTransport struct {
	cfg ClientConfig

	inbound chan transport.Message
	errs    chan error
	closed  chan struct{}

	cancel context.CancelFunc

	messagesMu    sync.Mutex
	messagesURL   string
	messagesReady chan struct{}

	writeMu sync.Mutex
	closeMu sync.Mutex
	isClose bool
}

// NewClient validates cfg, opens the event stream and returns a ready
// client transport. It fails with INVALID_CONFIG if ServerURL is empty,
// or TRANSPORT_CREATE_FAILED if the initial connection cannot be
// established.
func NewClient(cfg ClientConfig) (*ClientTransport, error) {
	if cfg.ServerURL == "" {
		return nil, transport.NewInvalidConfigError("serverUrl is required", nil)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.ServerURL, nil)
	if err != nil {
		cancel()
		return nil, transport.NewTransportCreateFailedError("failed to build request", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := cfg.HTTPClient.Do(req)
	if err != nil {
		cancel()
		return nil, transport.NewTransportCreateFailedError("failed to connect to sse server", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		cancel()
		return nil, transport.NewTransportCreateFailedError("sse server returned non-200 status", nil)
	}

	t := &ClientTransport{
		cfg:           cfg,
		inbound:       make(chan transport.Message, 16),
		errs:          make(chan error, 16),
		closed:        make(chan struct{}),
		cancel:        cancel,
		messagesReady: make(chan struct{}),
	}
	go t.readLoop(resp)
	return t, nil
}

func (t *ClientTransport) readLoop(resp *http.Response) {
	defer close(t.inbound)
	defer resp.Body.Close()
	defer t.markClosed()

	var eventType string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			eventType = ""
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}
			if eventType == "endpoint" {
				t.setMessagesURL(data)
				continue
			}
			select {
			case t.inbound <- transport.Message(data):
			case <-t.closed:
				return
			}
		}
	}
	if err := scanner.Err(); err != nil {
		select {
		case t.errs <- transport.NewTransportIOError("sse stream read failed", err):
		default:
		}
	}
}

// setMessagesURL records the messages URL announced by the server's
// "endpoint" event, resolved against ServerURL if it was sent as a
// relative path. Only the first announcement takes effect.
func (t *ClientTransport) setMessagesURL(raw string) {
	resolved := raw
	if base, err := url.Parse(t.cfg.ServerURL); err == nil {
		if ref, err := url.Parse(raw); err == nil {
			resolved = base.ResolveReference(ref).String()
		}
	}
	t.messagesMu.Lock()
	defer t.messagesMu.Unlock()
	if t.messagesURL == "" {
		t.messagesURL = resolved
		close(t.messagesReady)
	}
}

func (t *ClientTransport) markClosed() {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if !t.isClose {
		t.isClose = true
		close(t.closed)
	}
}

func (t *ClientTransport) Inbound() <-chan transport.Message { return t.inbound }

func (t *ClientTransport) Errors() <-chan error { return t.errs }

// Send POSTs message to the messages URL the server announced in its
// "endpoint" event, blocking until that announcement arrives (or ctx
// is done, or the transport closes).
func (t *ClientTransport) Send(ctx context.Context, message transport.Message) error {
	select {
	case <-t.closed:
		return transport.NewTransportClosedError("send after close")
	default:
	}

	select {
	case <-t.messagesReady:
	case <-t.closed:
		return transport.NewTransportClosedError("send after close")
	case <-ctx.Done():
		return transport.NewTransportIOError("timed out waiting for sse endpoint announcement", ctx.Err())
	}

	t.messagesMu.Lock()
	messagesURL := t.messagesURL
	t.messagesMu.Unlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, messagesURL, strings.NewReader(string(message)))
	if err != nil {
		return transport.NewTransportIOError("failed to build post request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.cfg.HTTPClient.Do(req)
	if err != nil {
		return transport.NewTransportIOError("sse post failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return transport.NewTransportIOError("sse post returned error status", nil)
	}
	return nil
}

func (t *ClientTransport) Close() error {
	t.cancel()
	select {
	case <-t.closed:
	case <-time.After(5 * time.Second):
		t.markClosed()
	}
	return nil
}

func (t *ClientTransport) Closed() <-chan struct{} { return t.closed }

var _ transport.Transport = (*ClientTransport)(nil)
