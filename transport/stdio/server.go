package stdio

import (
	"bufio"
	"context"
	"io"
	"sync"

	"github.com/mcpbridge/mcp-bridge/transport"
)

const maxLineSize = 10 * 1024 * 1024

// ServerTransport binds the MCP server side of a bridge to the current
// process's standard input and output. It takes no configuration - there
// is exactly one stdin/stdout pair per process.
type ServerTransport struct {
	in  io.Reader
	out io.Writer

	inbound chan transport.Message
	errs    chan error
	closed  chan struct{}

	writeMu sync.Mutex
	closeMu sync.Mutex
	isClose bool
}

// New returns a stdio server transport bound to the given reader/writer.
// Production callers pass os.Stdin/os.Stdout; tests pass pipes.
func New(in io.Reader, out io.Writer) *ServerTransport {
	t := &ServerTransport{
		in:      in,
		out:     out,
		inbound: make(chan transport.Message, 16),
		errs:    make(chan error, 16),
		closed:  make(chan struct{}),
	}
	go t.readLoop()
	return t
}

func (t *ServerTransport) readLoop() {
	defer close(t.inbound)

	scanner := bufio.NewScanner(t.in)
	buf := make([]byte, maxLineSize)
	scanner.Buffer(buf, maxLineSize)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		select {
		case t.inbound <- transport.Message(line):
		case <-t.closed:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		select {
		case t.errs <- transport.NewTransportIOError("stdin read failed", err):
		default:
		}
	}
	t.markClosed()
}

func (t *ServerTransport) markClosed() {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if !t.isClose {
		t.isClose = true
		close(t.closed)
	}
}

func (t *ServerTransport) Inbound() <-chan transport.Message { return t.inbound }

func (t *ServerTransport) Errors() <-chan error { return t.errs }

func (t *ServerTransport) Send(_ context.Context, message transport.Message) error {
	select {
	case <-t.closed:
		return transport.NewTransportClosedError("send after close")
	default:
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := io.WriteString(t.out, string(message)+"\n"); err != nil {
		return transport.NewTransportIOError("stdout write failed", err)
	}
	return nil
}

// Close marks the transport closed, so Closed fires and Send fails. It
// does not interrupt a read in progress: Inbound closes only once the
// read loop next returns from the reader (a further line, end of input,
// or a read error).
func (t *ServerTransport) Close() error {
	t.markClosed()
	return nil
}

func (t *ServerTransport) Closed() <-chan struct{} { return t.closed }

var _ transport.Transport = (*ServerTransport)(nil)
