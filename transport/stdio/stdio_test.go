package stdio

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpbridge/mcp-bridge/transport"
)

func TestServerTransport_InboundAndSend(t *testing.T) {
	inReader, inWriter := io.Pipe()
	var out bytes.Buffer

	srv := New(inReader, &out)
	defer srv.Close()

	go func() {
		_, _ = inWriter.Write([]byte("hello\n"))
	}()

	select {
	case msg := <-srv.Inbound():
		assert.Equal(t, transport.Message("hello"), msg)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for inbound message")
	}

	require.NoError(t, srv.Send(context.Background(), "world"))
	assert.Equal(t, "world\n", out.String())
}

func TestServerTransport_ClosesOnEOF(t *testing.T) {
	inReader, inWriter := io.Pipe()
	var out bytes.Buffer

	srv := New(inReader, &out)
	_ = inWriter.Close()

	select {
	case <-srv.Closed():
	case <-time.After(time.Second):
		t.Fatal("transport did not report closed after EOF")
	}

	_, open := <-srv.Inbound()
	assert.False(t, open)
}

func TestServerTransport_SendAfterCloseFails(t *testing.T) {
	inReader, _ := io.Pipe()
	var out bytes.Buffer

	srv := New(inReader, &out)
	require.NoError(t, srv.Close())

	err := srv.Send(context.Background(), "too late")
	require.Error(t, err)
	kind, ok := transport.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, transport.KindTransportClosed, kind)
}

func TestClientTransport_InvalidConfig(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	require.Error(t, err)
	kind, ok := transport.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, transport.KindInvalidConfig, kind)
}

func TestClientTransport_EchoRoundTrip(t *testing.T) {
	ct, err := NewClient(ClientConfig{Command: "cat"})
	require.NoError(t, err)
	defer ct.Close()

	require.NoError(t, ct.Send(context.Background(), "ping"))

	select {
	case msg := <-ct.Inbound():
		assert.Equal(t, transport.Message("ping"), msg)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echoed message")
	}
}

func TestClientTransport_CloseIsIdempotent(t *testing.T) {
	ct, err := NewClient(ClientConfig{Command: "cat"})
	require.NoError(t, err)

	require.NoError(t, ct.Close())
	require.NoError(t, ct.Close())

	select {
	case <-ct.Closed():
	case <-time.After(time.Second):
		t.Fatal("transport did not report closed")
	}
}
