package sse

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcpbridge/mcp-bridge/internal/collection"
	"github.com/mcpbridge/mcp-bridge/transport"
)

const defaultHeartbeatInterval = 30 * time.Second

// ServerConfig configures an HTTP/SSE server transport.
type ServerConfig struct {
	// Port is the primary listen port. Defaults to 8080.
	Port int
	// Endpoint is the path clients GET to open the event stream.
	// Defaults to "/sse".
	Endpoint string
	// MessagesEndpoint is the path clients POST outbound frames to.
	// Defaults to "/messages".
	MessagesEndpoint string
	// FallbackPorts are tried in order if Port is already in use.
	FallbackPorts []int
	// AuthToken, when non-empty, is required as a bearer token on both
	// endpoints.
	AuthToken string
}

type sseClient struct {
	id      string
	flusher http.Flusher
	writer  http.ResponseWriter
	done    chan struct{}
}

// ServerTransport serves an SSE event stream and a message-post endpoint
// over HTTP. Frames POSTed to MessagesEndpoint become Inbound(); Send
// broadcasts to every connected SSE stream.
type ServerTransport struct {
	cfg ServerConfig

	httpServer *http.Server
	listener   net.Listener

	inbound chan transport.Message
	errs    chan error
	closed  chan struct{}

	clients *collection.SyncMap[string, *sseClient]

	closeMu sync.RWMutex
	isClose bool
}

// New starts listening per cfg (trying FallbackPorts if Port is busy) and
// returns a ready server transport. It fails with TRANSPORT_CREATE_FAILED
// if no port could be bound.
func New(cfg ServerConfig) (*ServerTransport, error) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "/sse"
	}
	if cfg.MessagesEndpoint == "" {
		cfg.MessagesEndpoint = "/messages"
	}

	listener, err := listenWithFallback(cfg.Port, cfg.FallbackPorts)
	if err != nil {
		return nil, transport.NewTransportCreateFailedError("failed to bind sse server", err)
	}

	t := &ServerTransport{
		cfg:      cfg,
		listener: listener,
		inbound:  make(chan transport.Message, 16),
		errs:     make(chan error, 16),
		closed:   make(chan struct{}),
		clients:  collection.NewSyncMap[string, *sseClient](),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Endpoint, t.authorize(t.handleStream))
	mux.HandleFunc(cfg.MessagesEndpoint, t.authorize(t.handleMessage))
	t.httpServer = &http.Server{Handler: mux}

	go func() {
		if err := t.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case t.errs <- transport.NewTransportIOError("sse server stopped", err):
			default:
			}
		}
		t.markClosed()
	}()

	return t, nil
}

func listenWithFallback(primary int, fallback []int) (net.Listener, error) {
	ports := append([]int{primary}, fallback...)
	var lastErr error
	for _, port := range ports {
		l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			return l, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (t *ServerTransport) authorize(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if t.cfg.AuthToken != "" {
			header := r.Header.Get("Authorization")
			if header != "Bearer "+t.cfg.AuthToken {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (t *ServerTransport) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := &sseClient{id: uuid.NewString(), flusher: flusher, writer: w, done: make(chan struct{})}
	t.clients.Put(client.id, client)
	defer t.removeClient(client.id)

	// Announce where this client should POST outbound frames, per the
	// MCP SSE convention - the event stream and the message-post path
	// need not coincide, and a client must not assume they do.
	fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", t.cfg.MessagesEndpoint)
	flusher.Flush()

	heartbeat := time.NewTicker(defaultHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-t.closed:
			return
		case <-client.done:
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ":heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (t *ServerTransport) removeClient(id string) {
	if c, ok := t.clients.Get(id); ok {
		close(c.done)
		t.clients.Delete(id)
	}
}

func (t *ServerTransport) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	line := strings.TrimSpace(string(data))
	if line == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := t.pushInbound(transport.Message(line)); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// pushInbound delivers a frame received over HTTP to Inbound without
// racing the channel close performed by markClosed.
func (t *ServerTransport) pushInbound(msg transport.Message) error {
	t.closeMu.RLock()
	defer t.closeMu.RUnlock()
	if t.isClose {
		return transport.NewTransportClosedError("transport closed")
	}
	select {
	case t.inbound <- msg:
		return nil
	default:
		return transport.NewTransportIOError("inbound buffer full", nil)
	}
}

func (t *ServerTransport) Inbound() <-chan transport.Message { return t.inbound }

func (t *ServerTransport) Errors() <-chan error { return t.errs }

// Send broadcasts message to every currently connected SSE stream. It
// is not an error for there to be zero connected streams.
func (t *ServerTransport) Send(_ context.Context, message transport.Message) error {
	select {
	case <-t.closed:
		return transport.NewTransportClosedError("send after close")
	default:
	}

	var clients []*sseClient
	t.clients.Range(func(_ string, c *sseClient) bool {
		clients = append(clients, c)
		return true
	})

	for _, c := range clients {
		if _, err := fmt.Fprintf(c.writer, "data: %s\n\n", string(message)); err != nil {
			return transport.NewTransportIOError("sse write failed", err)
		}
		c.flusher.Flush()
	}
	return nil
}

func (t *ServerTransport) markClosed() {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if !t.isClose {
		t.isClose = true
		close(t.inbound)
		close(t.closed)
	}
}

func (t *ServerTransport) isClosed() bool {
	t.closeMu.RLock()
	defer t.closeMu.RUnlock()
	return t.isClose
}

func (t *ServerTransport) Close() error {
	if t.isClosed() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := t.httpServer.Shutdown(ctx)
	t.markClosed()
	if err != nil {
		return transport.NewTransportIOError("sse server shutdown failed", err)
	}
	return nil
}

func (t *ServerTransport) Closed() <-chan struct{} { return t.closed }

var _ transport.Transport = (*ServerTransport)(nil)
