package stdio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/mcpbridge/mcp-bridge/transport"
)

// ClientConfig configures a spawned child-process client transport.
type ClientConfig struct {
	Command          string
	Arguments        []string
	WorkingDirectory string
	Environment      map[string]string
}

// ClientTransport spawns and owns a child process, speaking line-delimited
// JSON-RPC over its stdin/stdout.
type ClientTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	inbound chan transport.Message
	errs    chan error
	closed  chan struct{}

	writeMu sync.Mutex
	closeMu sync.Mutex
	isClose bool
}

// NewClient validates cfg, spawns the child process and returns a ready
// client transport. It fails with an INVALID_CONFIG error if Command is
// empty, and a TRANSPORT_CREATE_FAILED error if the process cannot be
// started.
func NewClient(cfg ClientConfig) (*ClientTransport, error) {
	if cfg.Command == "" {
		return nil, transport.NewInvalidConfigError("command is required", nil)
	}

	cmd := exec.Command(cfg.Command, cfg.Arguments...)
	if cfg.WorkingDirectory != "" {
		cmd.Dir = cfg.WorkingDirectory
	}
	cmd.Env = os.Environ()
	for k, v := range cfg.Environment {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, transport.NewTransportCreateFailedError("failed to create stdin pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, transport.NewTransportCreateFailedError("failed to create stdout pipe", err)
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, transport.NewTransportCreateFailedError("failed to start process", err)
	}

	t := &ClientTransport{
		cmd:     cmd,
		stdin:   stdin,
		stdout:  stdout,
		inbound: make(chan transport.Message, 16),
		errs:    make(chan error, 16),
		closed:  make(chan struct{}),
	}
	go t.readLoop()
	go t.waitLoop()
	return t, nil
}

func (t *ClientTransport) readLoop() {
	defer close(t.inbound)

	scanner := bufio.NewScanner(t.stdout)
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
		case t.errs <- transport.NewTransportIOError("child stdout read failed", err):
		default:
		}
	}
}

// waitLoop reaps the child process and marks the transport closed once it
// exits, whether that exit was requested via Close or happened on its own.
func (t *ClientTransport) waitLoop() {
	_ = t.cmd.Wait()
	t.markClosed()
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

func (t *ClientTransport) Send(_ context.Context, message transport.Message) error {
	select {
	case <-t.closed:
		return transport.NewTransportClosedError("send after close")
	default:
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := io.WriteString(t.stdin, string(message)+"\n"); err != nil {
		return transport.NewTransportIOError("child stdin write failed", err)
	}
	return nil
}

// Close requests graceful termination of the child process, escalating to
// a kill if it does not exit within a short grace period. It is
// idempotent.
func (t *ClientTransport) Close() error {
	select {
	case <-t.closed:
		return nil
	default:
	}

	_ = t.stdin.Close()
	if t.cmd.Process != nil {
		_ = t.cmd.Process.Signal(os.Interrupt)
	}

	select {
	case <-t.closed:
	case <-time.After(5 * time.Second):
		if t.cmd.Process != nil {
			_ = t.cmd.Process.Kill()
		}
		<-t.closed
	}
	return nil
}

func (t *ClientTransport) Closed() <-chan struct{} { return t.closed }

var _ transport.Transport = (*ClientTransport)(nil)
