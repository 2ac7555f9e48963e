package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/mcpbridge/mcp-bridge/factory"
	"github.com/mcpbridge/mcp-bridge/transport"
)

// runLifecycle owns the bridge's state transitions for as long as the
// bridge is initialized. It reads events off whichever pump is
// currently live. Reconnection (both server and client side) runs
// synchronously on this same goroutine as a retry loop, so
// b.pump is nil for the loop's duration; once the loop resolves - by
// success, exhaustion, or a shutdown request - the pump is either a
// freshly installed replacement or gone for good.
func (b *Bridge) runLifecycle() {
	for {
		b.mu.Lock()
		p := b.pump
		ctx := b.ctx
		b.mu.Unlock()

		if p == nil {
			<-ctx.Done()
			return
		}

		select {
		case <-ctx.Done():
			return
		case ev, ok := <-p.events:
			if !ok {
				continue
			}
			b.handleEvent(ev)
		}
	}
}

func (b *Bridge) handleEvent(ev pumpEvent) {
	switch ev.kind {
	case pumpError:
		b.mu.Lock()
		b.lastErr = ev.err
		cb := b.onTransportError
		b.mu.Unlock()
		if cb != nil {
			cb(ev.source, ev.err)
		}
	case pumpClosed:
		switch ev.source {
		case transport.Server:
			b.handleServerClosed()
		case transport.Client:
			b.handleClientClosed()
		}
	}
}

// handleServerClosed reacts to the server transport closing. Under
// ShutdownBridge the bridge tears itself down. Under
// WaitForReconnection it drops the client transport too - the client
// cannot function with no server to forward to - and runs the
// wait-for-reconnection loop in place before returning control to
// runLifecycle.
func (b *Bridge) handleServerClosed() {
	b.mu.Lock()
	p := b.pump
	b.pump = nil
	client := b.clientTransport
	b.clientTransport = nil
	effective := b.effective
	closedCb := b.onTransportClosed
	b.mu.Unlock()

	if p != nil {
		p.stop()
	}
	if client != nil {
		_ = client.Close()
	}
	if closedCb != nil {
		closedCb(transport.Server)
	}

	if effective != WaitForReconnection {
		b.logger.Infof("server transport closed, shutting down bridge")
		b.teardown()
		return
	}

	b.mu.Lock()
	b.state = WaitingForServer
	b.mu.Unlock()
	b.logger.Infof("server transport closed, entering wait-for-reconnection loop")

	b.serverReconnectLoop()
}

// serverReconnectLoop is spec.md §4.4's server wait-for-reconnection
// loop: on each iteration it increments the attempt counter and checks
// it against the configured bound, consults the reconnect-requested
// hook, and - if the hook allows it - rebuilds both the server and
// client transports as a fresh pair via the transport factory before
// resuming the pump. A failed attempt sleeps
// serverReconnectCheckInterval before retrying. The loop ends the
// bridge (via teardown) on exhaustion or a hook veto, and it aborts
// early if the bridge's context is cancelled out from under it (an
// explicit Shutdown call).
func (b *Bridge) serverReconnectLoop() {
	b.mu.Lock()
	ctx := b.ctx
	maxAttempts := b.serverMaxReconnectAttempts
	checkInterval := b.serverReconnectCheckInterval
	serverKind := b.cfg.ServerTransportKind
	serverCfg := b.cfg.ServerTransportConfig
	clientKind := b.cfg.ClientTransportKind
	clientCfg := b.cfg.ClientTransportConfig
	b.mu.Unlock()

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		attempts++
		if maxAttempts > 0 && attempts > maxAttempts {
			err := transport.NewReconnectExhaustedError(
				fmt.Sprintf("server reconnect exhausted after %d attempts", maxAttempts), nil)
			b.mu.Lock()
			b.lastErr = err
			errCb := b.onTransportError
			b.mu.Unlock()
			if errCb != nil {
				errCb(transport.Server, err)
			}
			b.logger.Errorf("server reconnect exhausted, shutting down bridge: %v", err)
			b.teardown()
			return
		}

		b.mu.Lock()
		hook := b.onServerReconnectRequested
		b.mu.Unlock()
		if hook != nil && !b.callReconnectHook(hook) {
			b.logger.Infof("server reconnect vetoed by hook, shutting down bridge")
			b.teardown()
			return
		}

		newServer, err := factory.NewServerTransport(serverKind, serverCfg)
		if err != nil {
			b.logger.Warnf("server reconnect attempt %d failed to create server transport: %v", attempts, err)
			if !b.sleepOrDone(ctx, checkInterval) {
				return
			}
			continue
		}

		newClient, err := factory.NewClientTransport(clientKind, clientCfg)
		if err != nil {
			_ = newServer.Close()
			b.logger.Warnf("server reconnect attempt %d failed to create client transport: %v", attempts, err)
			if !b.sleepOrDone(ctx, checkInterval) {
				return
			}
			continue
		}

		b.mu.Lock()
		b.serverTransport = newServer
		b.clientTransport = newClient
		b.pump = startPump(ctx, newServer, newClient)
		b.state = Running
		reconnCb := b.onTransportReconnected
		b.mu.Unlock()

		b.logger.Infof("server transport reconnected after %d attempt(s)", attempts)
		if reconnCb != nil {
			reconnCb(transport.Server)
		}
		return
	}
}

// handleClientClosed reacts to the client transport closing by running
// the bounded, iterative reconnect loop (never recursive, so an
// exhausted budget returns cleanly instead of growing the call stack).
// A successful reconnect atomically installs the new client transport
// alongside the unchanged server transport under a single fresh pump.
func (b *Bridge) handleClientClosed() {
	b.mu.Lock()
	p := b.pump
	b.pump = nil
	server := b.serverTransport
	autoReconnect := b.autoReconnectClient
	closedCb := b.onTransportClosed
	b.mu.Unlock()

	if p != nil {
		p.stop()
	}
	if closedCb != nil {
		closedCb(transport.Client)
	}

	if !autoReconnect {
		b.logger.Infof("client transport closed, auto-reconnect disabled, shutting down bridge")
		b.teardown()
		return
	}

	newClient, err := b.reconnectClient()
	if err != nil {
		b.mu.Lock()
		b.lastErr = err
		errCb := b.onTransportError
		b.mu.Unlock()
		if errCb != nil {
			errCb(transport.Client, err)
		}
		b.logger.Errorf("client reconnect exhausted, shutting down bridge: %v", err)
		b.teardown()
		return
	}

	b.mu.Lock()
	b.clientTransport = newClient
	b.pump = startPump(b.ctx, server, newClient)
	reconnCb := b.onTransportReconnected
	b.mu.Unlock()

	b.logger.Infof("client transport reconnected")
	if reconnCb != nil {
		reconnCb(transport.Client)
	}
}

// reconnectClient rebuilds the client transport from the bridge's
// stored configuration, retrying up to maxClientReconnectAttempts times
// with clientReconnectDelay between attempts.
func (b *Bridge) reconnectClient() (transport.Transport, error) {
	b.mu.Lock()
	ctx := b.ctx
	kind := b.cfg.ClientTransportKind
	raw := b.cfg.ClientTransportConfig
	maxAttempts := b.maxClientReconnectAttempts
	delay := b.clientReconnectDelay
	b.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		t, err := factory.NewClientTransport(kind, raw)
		if err == nil {
			return t, nil
		}
		lastErr = err
		b.logger.Warnf("client reconnect attempt %d/%d failed: %v", attempt, maxAttempts, err)
		if attempt < maxAttempts {
			if !b.sleepOrDone(ctx, delay) {
				return nil, transport.NewReconnectExhaustedError("client reconnect aborted by shutdown", lastErr)
			}
		}
	}
	return nil, transport.NewReconnectExhaustedError(
		fmt.Sprintf("client reconnect exhausted after %d attempts", maxAttempts), lastErr)
}

// callReconnectHook invokes the reconnect-requested hook, treating a
// panic the same as a returned false: logged at error level, loop
// abandoned. Go has no exceptions, so a recovered panic is the
// idiomatic stand-in for spec.md's "exceptions from this hook are
// treated as false".
func (b *Bridge) callReconnectHook(hook func() bool) (allowed bool) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorf("server reconnect hook panicked, treating as false: %v", r)
			allowed = false
		}
	}()
	return hook()
}

// sleepOrDone waits for d, returning false early (without waiting out
// the full delay) if ctx is cancelled first - the retry loops check
// this to abort promptly on an explicit Shutdown.
func (b *Bridge) sleepOrDone(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// teardown runs the transport-closing sequence exactly once no matter
// which path triggers it: an explicit Shutdown call, a fatal transport
// closure, a fatal client reconnect exhaustion, or a fatal server
// reconnect exhaustion/veto.
func (b *Bridge) teardown() {
	b.shutdownOnce.Do(func() {
		b.mu.Lock()
		b.state = ShuttingDown
		p := b.pump
		server := b.serverTransport
		client := b.clientTransport
		b.pump = nil
		cancel := b.cancel
		b.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if p != nil {
			p.stop()
		}
		if server != nil {
			_ = server.Close()
		}
		if client != nil {
			_ = client.Close()
		}

		b.mu.Lock()
		b.serverTransport = nil
		b.clientTransport = nil
		b.state = Idle
		b.mu.Unlock()
	})
}
