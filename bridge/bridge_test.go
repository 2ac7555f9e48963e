package bridge

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpbridge/mcp-bridge/transport"
)

// mockTransport is a hand-rolled transport.Transport double used to
// drive the bridge's lifecycle deterministically, without routing
// through the transport factory.
type mockTransport struct {
	mu      sync.Mutex
	inbound chan transport.Message
	errs    chan error
	closed  chan struct{}
	once    sync.Once
	sent    []transport.Message
	sendErr error
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		inbound: make(chan transport.Message, 8),
		errs:    make(chan error, 8),
		closed:  make(chan struct{}),
	}
}

func (m *mockTransport) Inbound() <-chan transport.Message { return m.inbound }
func (m *mockTransport) Errors() <-chan error              { return m.errs }

func (m *mockTransport) Send(_ context.Context, msg transport.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockTransport) setSendErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

func (m *mockTransport) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

func (m *mockTransport) Closed() <-chan struct{} { return m.closed }

func (m *mockTransport) sentMessages() []transport.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]transport.Message, len(m.sent))
	copy(out, m.sent)
	return out
}

var _ transport.Transport = (*mockTransport)(nil)

// newTestBridge builds a Bridge with its internals wired directly to
// the given mocks, bypassing Initialize/the transport factory, and
// starts its lifecycle goroutine. Reconnect delays default to a few
// milliseconds so timing-dependent tests stay fast; individual tests
// override cfg/attempt-bound fields under b.mu as needed.
func newTestBridge(t *testing.T, effective ShutdownPolicy, server, client *mockTransport) *Bridge {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		cfg:                          Config{ServerTransportKind: "sse", ClientTransportKind: "stdio"},
		effective:                    effective,
		logger:                       noopLogger{},
		state:                        Running,
		autoReconnectClient:          true,
		maxClientReconnectAttempts:   defaultMaxClientReconnectAttempts,
		clientReconnectDelay:         5 * time.Millisecond,
		serverMaxReconnectAttempts:   defaultServerMaxReconnectAttempts,
		serverReconnectCheckInterval: 5 * time.Millisecond,
		serverTransport:              server,
		clientTransport:              client,
		ctx:                          ctx,
		cancel:                       cancel,
		lifecycleDone:                make(chan struct{}),
	}
	b.pump = startPump(ctx, server, client)
	go func() {
		b.runLifecycle()
		close(b.lifecycleDone)
	}()
	t.Cleanup(func() { b.teardown() })
	return b
}

func TestPump_ForwardsBothDirectionsInOrder(t *testing.T) {
	server, client := newMockTransport(), newMockTransport()
	p := startPump(context.Background(), server, client)
	defer p.stop()

	server.inbound <- transport.Message("one")
	server.inbound <- transport.Message("two")
	client.inbound <- transport.Message("ack")

	require.Eventually(t, func() bool {
		return len(client.sentMessages()) == 2 && len(server.sentMessages()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []transport.Message{"one", "two"}, client.sentMessages())
	assert.Equal(t, []transport.Message{"ack"}, server.sentMessages())
}

// TestPump_SendFailureIsAttributedToTheDestination checks that a
// failing Send is reported against the side whose Send rejected the
// frame, not the side the frame originated from.
func TestPump_SendFailureIsAttributedToTheDestination(t *testing.T) {
	server, client := newMockTransport(), newMockTransport()
	p := startPump(context.Background(), server, client)
	defer p.stop()

	sendErr := errors.New("boom")
	client.setSendErr(sendErr)
	server.inbound <- transport.Message("one")

	select {
	case ev := <-p.events:
		require.Equal(t, pumpError, ev.kind)
		assert.Equal(t, transport.Client, ev.source)
	case <-time.After(time.Second):
		t.Fatal("expected a pump error event for the failed server-to-client send")
	}

	server.setSendErr(nil)
	client.setSendErr(nil)
	server.setSendErr(sendErr)
	client.inbound <- transport.Message("ack")

	select {
	case ev := <-p.events:
		require.Equal(t, pumpError, ev.kind)
		assert.Equal(t, transport.Server, ev.source)
	case <-time.After(time.Second):
		t.Fatal("expected a pump error event for the failed client-to-server send")
	}
}

func TestBridge_ServerClosedUnderShutdownBridgeTearsDownBoth(t *testing.T) {
	server, client := newMockTransport(), newMockTransport()
	b := newTestBridge(t, ShutdownBridge, server, client)

	var mu sync.Mutex
	var closedSources []transport.Source
	b.OnTransportClosed(func(s transport.Source) {
		mu.Lock()
		closedSources = append(closedSources, s)
		mu.Unlock()
	})

	server.Close()

	require.Eventually(t, func() bool { return b.State() == Idle }, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Contains(t, closedSources, transport.Server)
	mu.Unlock()

	select {
	case <-client.Closed():
	default:
		t.Fatal("expected client transport to be closed as part of bridge teardown")
	}
}

// TestBridge_ServerClosedUnderWaitForReconnectionRebuildsThePair drives
// the real wait-for-reconnection loop: the hook is consulted, the
// client transport is dropped the instant the server closes (it cannot
// function with no server), and - once the hook allows it - a brand
// new server/client pair is built through the transport factory and
// swapped in atomically.
func TestBridge_ServerClosedUnderWaitForReconnectionRebuildsThePair(t *testing.T) {
	server, client := newMockTransport(), newMockTransport()
	b := newTestBridge(t, WaitForReconnection, server, client)

	port := freePort(t)
	b.mu.Lock()
	b.cfg.ServerTransportKind = "sse"
	b.cfg.ServerTransportConfig = map[string]interface{}{"port": port}
	b.cfg.ClientTransportKind = "stdio"
	b.cfg.ClientTransportConfig = map[string]interface{}{"command": "cat"}
	b.mu.Unlock()

	hookCalls := make(chan struct{}, 8)
	b.OnServerReconnectRequested(func() bool {
		hookCalls <- struct{}{}
		return true
	})
	reconnected := make(chan struct{}, 1)
	b.OnTransportReconnected(func(s transport.Source) {
		if s == transport.Server {
			reconnected <- struct{}{}
		}
	})

	server.Close()

	select {
	case <-hookCalls:
	case <-time.After(time.Second):
		t.Fatal("expected OnServerReconnectRequested to fire")
	}

	// The client cannot function with no server: it must be dropped
	// immediately, before any reconnection attempt resolves.
	select {
	case <-client.Closed():
	case <-time.After(time.Second):
		t.Fatal("expected the original client transport to be closed and dropped")
	}

	select {
	case <-reconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the server transport to be reconnected")
	}

	assert.Equal(t, Running, b.State())
}

func TestBridge_ServerReconnectHookVetoShutsDownBridge(t *testing.T) {
	server, client := newMockTransport(), newMockTransport()
	b := newTestBridge(t, WaitForReconnection, server, client)

	b.OnServerReconnectRequested(func() bool { return false })

	server.Close()

	require.Eventually(t, func() bool { return b.State() == Idle }, time.Second, 5*time.Millisecond)
}

func TestBridge_ServerReconnectExhaustedShutsDownBridge(t *testing.T) {
	server, client := newMockTransport(), newMockTransport()
	b := newTestBridge(t, WaitForReconnection, server, client)
	b.mu.Lock()
	b.cfg.ServerTransportKind = "carrier-pigeon" // never recognized by the factory
	b.serverMaxReconnectAttempts = 2
	b.mu.Unlock()

	server.Close()

	require.Eventually(t, func() bool { return b.State() == Idle }, 2*time.Second, 5*time.Millisecond)

	err := b.LastError()
	require.Error(t, err)
	kind, ok := transport.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, transport.KindReconnectExhausted, kind)
}

func TestBridge_ClientClosedReconnectsAutomatically(t *testing.T) {
	server, client := newMockTransport(), newMockTransport()
	b := newTestBridge(t, ShutdownBridge, server, client)
	b.mu.Lock()
	b.cfg.ClientTransportKind = "stdio"
	b.cfg.ClientTransportConfig = map[string]interface{}{"command": "cat"}
	b.mu.Unlock()

	reconnected := make(chan struct{}, 1)
	b.OnTransportReconnected(func(s transport.Source) {
		if s == transport.Client {
			reconnected <- struct{}{}
		}
	})

	client.Close()

	select {
	case <-reconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("expected client transport to be auto-reconnected")
	}

	assert.Equal(t, Running, b.State())
}

func TestBridge_ClientReconnectExhaustedShutsDownBridge(t *testing.T) {
	server, client := newMockTransport(), newMockTransport()
	b := newTestBridge(t, ShutdownBridge, server, client)
	b.mu.Lock()
	b.cfg.ClientTransportKind = "stdio"
	b.cfg.ClientTransportConfig = map[string]interface{}{} // missing command: always fails
	b.maxClientReconnectAttempts = 2
	b.mu.Unlock()

	client.Close()

	require.Eventually(t, func() bool { return b.State() == Idle }, 2*time.Second, 5*time.Millisecond)

	err := b.LastError()
	require.Error(t, err)
	kind, ok := transport.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, transport.KindReconnectExhausted, kind)
}

// TestBridge_ClientReconnectWaitsOutTheDelay checks that reconnectClient
// actually waits clientReconnectDelay between a failed attempt and the
// next one, rather than retrying back-to-back.
func TestBridge_ClientReconnectWaitsOutTheDelay(t *testing.T) {
	server, client := newMockTransport(), newMockTransport()
	b := newTestBridge(t, ShutdownBridge, server, client)
	const delay = 100 * time.Millisecond
	b.mu.Lock()
	b.cfg.ClientTransportKind = "stdio"
	b.cfg.ClientTransportConfig = map[string]interface{}{} // missing command: always fails
	b.maxClientReconnectAttempts = 2
	b.clientReconnectDelay = delay
	b.mu.Unlock()

	start := time.Now()
	client.Close()

	require.Eventually(t, func() bool { return b.State() == Idle }, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), delay)
}

func TestBridge_SetAutoReconnect(t *testing.T) {
	server, client := newMockTransport(), newMockTransport()
	b := newTestBridge(t, ShutdownBridge, server, client)

	b.SetAutoReconnect(false, 3, 10*time.Millisecond)

	b.mu.Lock()
	assert.False(t, b.autoReconnectClient)
	assert.Equal(t, 3, b.maxClientReconnectAttempts)
	assert.Equal(t, 10*time.Millisecond, b.clientReconnectDelay)
	b.mu.Unlock()
}

func TestBridge_SetServerReconnectionOptions(t *testing.T) {
	server, client := newMockTransport(), newMockTransport()
	b := newTestBridge(t, WaitForReconnection, server, client)

	b.SetServerReconnectionOptions(7, 250*time.Millisecond)

	b.mu.Lock()
	assert.Equal(t, 7, b.serverMaxReconnectAttempts)
	assert.Equal(t, 250*time.Millisecond, b.serverReconnectCheckInterval)
	b.mu.Unlock()
}

func TestBridge_InitializeThenShutdownIsIdempotent(t *testing.T) {
	port := freePort(t)
	cfg := Config{
		ServerTransportKind:   "sse",
		ClientTransportKind:   "stdio",
		ServerTransportConfig: map[string]interface{}{"port": port},
		ClientTransportConfig: map[string]interface{}{"command": "cat"},
		ServerShutdownPolicy:  ShutdownBridge,
	}
	b, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, b.Initialize(context.Background()))

	require.Eventually(t, func() bool { return b.State() == Running }, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Shutdown(context.Background()))
	assert.Equal(t, Idle, b.State())

	// Shutdown on an already-idle bridge is a no-op, not an error.
	require.NoError(t, b.Shutdown(context.Background()))
}

// TestBridge_ReinitializeAfterShutdownTearsDownTheSecondRunToo guards
// against a stale per-run teardown guard: a Bridge that has already
// completed one Initialize/Shutdown cycle must tear down just as
// completely on a second cycle, not silently no-op because the first
// cycle's guard was never reset.
func TestBridge_ReinitializeAfterShutdownTearsDownTheSecondRunToo(t *testing.T) {
	port := freePort(t)
	cfg := Config{
		ServerTransportKind:   "sse",
		ClientTransportKind:   "stdio",
		ServerTransportConfig: map[string]interface{}{"port": port},
		ClientTransportConfig: map[string]interface{}{"command": "cat"},
		ServerShutdownPolicy:  ShutdownBridge,
	}
	b, err := New(cfg, nil)
	require.NoError(t, err)

	require.NoError(t, b.Initialize(context.Background()))
	require.Eventually(t, func() bool { return b.State() == Running }, time.Second, 5*time.Millisecond)
	require.NoError(t, b.Shutdown(context.Background()))
	assert.Equal(t, Idle, b.State())

	port2 := freePort(t)
	b.mu.Lock()
	b.cfg.ServerTransportConfig = map[string]interface{}{"port": port2}
	b.mu.Unlock()

	require.NoError(t, b.Initialize(context.Background()))
	require.Eventually(t, func() bool { return b.State() == Running }, time.Second, 5*time.Millisecond)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, b.Shutdown(shutdownCtx))
	assert.Equal(t, Idle, b.State())
}

func TestBridge_StdioServerForcesShutdownBridgePolicy(t *testing.T) {
	cfg := Config{
		ServerTransportKind:   "stdio",
		ClientTransportKind:   "sse",
		ServerTransportConfig: map[string]interface{}{},
		ClientTransportConfig: map[string]interface{}{"serverUrl": "http://127.0.0.1:1/sse"},
		ServerShutdownPolicy:  WaitForReconnection,
	}
	b, err := New(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, ShutdownBridge, b.EffectiveServerShutdownPolicy())
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
