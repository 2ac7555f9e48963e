package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mcpbridge/mcp-bridge/factory"
	"github.com/mcpbridge/mcp-bridge/transport"
)

const (
	defaultMaxClientReconnectAttempts   = 5
	defaultClientReconnectDelay         = 2 * time.Second
	defaultServerMaxReconnectAttempts   = 0 // unbounded
	defaultServerReconnectCheckInterval = 5 * time.Second
)

// Bridge forwards JSON-RPC frames full-duplex between one server-side and
// one client-side MCP transport. It never parses what it forwards. A
// Bridge is constructed with New, wired up with Initialize, and torn
// down with Shutdown; after Shutdown it may be initialized again.
type Bridge struct {
	mu        sync.Mutex
	cfg       Config
	effective ShutdownPolicy
	logger    Logger

	state           State
	serverTransport transport.Transport
	clientTransport transport.Transport
	pump            *pump

	ctx           context.Context
	cancel        context.CancelFunc
	lifecycleDone chan struct{}
	shutdownOnce  sync.Once

	autoReconnectClient        bool
	maxClientReconnectAttempts int
	clientReconnectDelay       time.Duration

	serverMaxReconnectAttempts   int // 0 = unbounded
	serverReconnectCheckInterval time.Duration

	lastErr error

	onTransportError           func(source transport.Source, err error)
	onTransportClosed          func(source transport.Source)
	onTransportReconnected     func(source transport.Source)
	onServerReconnectRequested func() bool
}

// New validates cfg and returns an un-initialized Bridge. logger may be
// nil, in which case log lines are discarded.
func New(cfg Config, logger Logger) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, transport.NewInvalidConfigError(err.Error(), err)
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Bridge{
		cfg:                          cfg,
		effective:                    cfg.effectivePolicy(),
		logger:                       logger,
		state:                        Idle,
		autoReconnectClient:          true,
		maxClientReconnectAttempts:   defaultMaxClientReconnectAttempts,
		clientReconnectDelay:         defaultClientReconnectDelay,
		serverMaxReconnectAttempts:   defaultServerMaxReconnectAttempts,
		serverReconnectCheckInterval: defaultServerReconnectCheckInterval,
	}, nil
}

// Initialize builds both transports via the transport factory and
// starts the message pump. Cancelling ctx stops the message pump and
// the lifecycle goroutine; it does not close the transports or return
// the bridge to Idle, which only Shutdown does. Initialize fails unless
// the bridge is Idle; after Shutdown the same Bridge may be initialized
// again.
func (b *Bridge) Initialize(ctx context.Context) error {
	b.mu.Lock()
	if b.state != Idle {
		state := b.state
		b.mu.Unlock()
		return fmt.Errorf("bridge: cannot initialize from state %s", state)
	}
	b.state = Initializing
	b.mu.Unlock()

	server, err := factory.NewServerTransport(b.cfg.ServerTransportKind, b.cfg.ServerTransportConfig)
	if err != nil {
		b.mu.Lock()
		b.state = Idle
		b.mu.Unlock()
		return transport.NewTransportCreateFailedError("failed to create server transport", err)
	}
	client, err := factory.NewClientTransport(b.cfg.ClientTransportKind, b.cfg.ClientTransportConfig)
	if err != nil {
		_ = server.Close()
		b.mu.Lock()
		b.state = Idle
		b.mu.Unlock()
		return transport.NewTransportCreateFailedError("failed to create client transport", err)
	}

	runCtx, cancel := context.WithCancel(ctx)

	b.mu.Lock()
	b.serverTransport = server
	b.clientTransport = client
	b.ctx = runCtx
	b.cancel = cancel
	b.pump = startPump(runCtx, server, client)
	b.state = Running
	b.lifecycleDone = make(chan struct{})
	done := b.lifecycleDone
	b.shutdownOnce = sync.Once{}
	b.mu.Unlock()

	b.logger.Infof("bridge initialized: server=%s client=%s policy=%s", b.cfg.ServerTransportKind, b.cfg.ClientTransportKind, b.effective)

	go func() {
		b.runLifecycle()
		close(done)
	}()

	return nil
}

// Shutdown tears down both transports and the message pump and returns
// the bridge to Idle. It is idempotent: calling it on an already-idle
// bridge is a no-op.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if b.state == Idle {
		b.mu.Unlock()
		return nil
	}
	done := b.lifecycleDone
	b.mu.Unlock()

	b.teardown()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// State reports the bridge's current lifecycle state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// LastError reports the most recent error passed to the transport-error
// callback (a pump error or a RECONNECT_EXHAUSTED error), or nil if none
// has occurred.
func (b *Bridge) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// EffectiveServerShutdownPolicy reports the policy actually enforced,
// which may differ from Config.ServerShutdownPolicy when the server
// transport kind forces ShutdownBridge.
func (b *Bridge) EffectiveServerShutdownPolicy() ShutdownPolicy {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.effective
}

// SetAutoReconnect configures the client-side auto-reconnect loop:
// whether it runs at all, how many attempts it is allowed before giving
// up with RECONNECT_EXHAUSTED, and how long it waits between attempts.
// The delay is flat: it does not grow from one attempt to the next and
// has no jitter.
func (b *Bridge) SetAutoReconnect(enabled bool, maxAttempts int, delay time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.autoReconnectClient = enabled
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	b.maxClientReconnectAttempts = maxAttempts
	if delay < 0 {
		delay = 0
	}
	b.clientReconnectDelay = delay
}

// SetServerReconnectionOptions configures the server-side
// wait-for-reconnection loop: how many attempts it makes before giving
// up with RECONNECT_EXHAUSTED (0 means unbounded) and how long it waits
// between attempts.
func (b *Bridge) SetServerReconnectionOptions(maxAttempts int, checkInterval time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	b.serverMaxReconnectAttempts = maxAttempts
	if checkInterval < 0 {
		checkInterval = 0
	}
	b.serverReconnectCheckInterval = checkInterval
}

// OnTransportError registers the callback invoked whenever either
// transport reports a non-fatal I/O error.
func (b *Bridge) OnTransportError(fn func(source transport.Source, err error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTransportError = fn
}

// OnTransportClosed registers the callback invoked when either
// transport closes, before any reconnection attempt is made.
func (b *Bridge) OnTransportClosed(fn func(source transport.Source)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTransportClosed = fn
}

// OnTransportReconnected registers the callback invoked after a closed
// transport has been successfully replaced.
func (b *Bridge) OnTransportReconnected(fn func(source transport.Source)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTransportReconnected = fn
}

// OnServerReconnectRequested registers the hook consulted before every
// attempt of the server wait-for-reconnection loop. Returning false
// stops the loop and transitions the bridge to shutdown; a nil hook
// never vetoes.
func (b *Bridge) OnServerReconnectRequested(fn func() bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onServerReconnectRequested = fn
}
