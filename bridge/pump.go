package bridge

import (
	"context"
	"sync"

	"github.com/mcpbridge/mcp-bridge/transport"
)

// pumpEventKind names what happened to one side of a running pump.
type pumpEventKind int

const (
	pumpClosed pumpEventKind = iota
	pumpError
)

// pumpEvent reports something the pump observed about one transport
// without taking any lifecycle action itself - the lifecycle controller
// decides what a closed or errored transport means for the bridge as a
// whole.
type pumpEvent struct {
	source transport.Source
	kind   pumpEventKind
	err    error
}

// pump is the running subscription set for one (server, client)
// transport pairing: two forwarding goroutines and, per side, a
// close-watcher and an error-watcher. The whole set is cancelled and
// torn down atomically whenever either side is replaced, so a stale
// forwarder from a previous pairing can never deliver into a new one.
type pump struct {
	cancel context.CancelFunc
	events chan pumpEvent
	done   chan struct{}
}

// startPump wires server and client full-duplex and begins forwarding.
// Ordering within each direction is preserved because each direction is
// serviced by exactly one goroutine reading its source's Inbound()
// channel in order and writing to the destination's Send() in that same
// order.
func startPump(parent context.Context, server, client transport.Transport) *pump {
	ctx, cancel := context.WithCancel(parent)
	p := &pump{
		cancel: cancel,
		events: make(chan pumpEvent, 8),
		done:   make(chan struct{}),
	}

	var wg sync.WaitGroup
	wg.Add(6)
	go p.forward(ctx, &wg, transport.Server, transport.Client, server, client)
	go p.forward(ctx, &wg, transport.Client, transport.Server, client, server)
	go p.watchClosed(ctx, &wg, transport.Server, server)
	go p.watchClosed(ctx, &wg, transport.Client, client)
	go p.watchErrors(ctx, &wg, transport.Server, server)
	go p.watchErrors(ctx, &wg, transport.Client, client)

	go func() {
		wg.Wait()
		close(p.done)
	}()

	return p
}

// forward copies one direction: from.Inbound() messages are written to
// to.Send() in the order they were received. A send failure is
// attributed to toSource, the side whose Send rejected the frame, not
// the side the frame originated from.
func (p *pump) forward(ctx context.Context, wg *sync.WaitGroup, fromSource, toSource transport.Source, from, to transport.Transport) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-from.Inbound():
			if !ok {
				return
			}
			if err := to.Send(ctx, msg); err != nil {
				p.emit(pumpEvent{source: toSource, kind: pumpError, err: err})
			}
		}
	}
}

func (p *pump) watchClosed(ctx context.Context, wg *sync.WaitGroup, source transport.Source, t transport.Transport) {
	defer wg.Done()
	select {
	case <-ctx.Done():
		return
	case <-t.Closed():
		p.emit(pumpEvent{source: source, kind: pumpClosed})
	}
}

func (p *pump) watchErrors(ctx context.Context, wg *sync.WaitGroup, source transport.Source, t transport.Transport) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-t.Errors():
			if !ok {
				return
			}
			p.emit(pumpEvent{source: source, kind: pumpError, err: err})
		}
	}
}

// emit is best-effort: once stop() has drained and closed the events
// channel nobody is listening any more, so a full or closed buffer is
// dropped rather than blocking a forwarder goroutine mid-shutdown.
func (p *pump) emit(ev pumpEvent) {
	defer func() { recover() }()
	select {
	case p.events <- ev:
	default:
	}
}

// stop cancels every goroutine in the set and blocks until all six have
// returned, then closes events. Safe to call exactly once.
func (p *pump) stop() {
	p.cancel()
	<-p.done
	close(p.events)
}
