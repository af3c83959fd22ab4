package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmq-protocol/dmq-go/pkg/frame"
)

const testTimeout = 2 * time.Second

// exchange sends a frame each way and checks both arrive intact.
func exchange(t *testing.T, a, b Channel) {
	t.Helper()

	ab := mustFrame(t, 3, 1, []byte{0x92, 0x00, 0xcd, 0x01, 0xf4})
	require.NoError(t, a.Send(ab))
	got, err := b.Receive(testTimeout)
	require.NoError(t, err)
	assert.Equal(t, ab, got)

	ba := frame.EncodeAck(1)
	require.NoError(t, b.Send(ba))
	got, err = a.Receive(testTimeout)
	require.NoError(t, err)
	assert.Equal(t, ba, got)
}

func TestPipeExchange(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	defer b.Close()
	exchange(t, a, b)
}

func TestPipeReceiveTimeout(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	defer b.Close()

	start := time.Now()
	_, err := a.Receive(20 * time.Millisecond)
	assert.ErrorIs(t, err, ErrReceiveTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	_, err = a.Receive(0)
	assert.ErrorIs(t, err, ErrReceiveTimeout)
}

func TestPipeSendCopiesBuffer(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	defer b.Close()

	buf := mustFrame(t, 1, 1, []byte{1})
	require.NoError(t, a.Send(buf))
	buf[8] = 0xff

	got, err := b.Receive(testTimeout)
	require.NoError(t, err)
	assert.Equal(t, byte(1), got[8])
}

func TestPipePreservesOrder(t *testing.T) {
	a, b := PipeWithOptions(DialOptions{QueueSize: 4})
	defer a.Close()
	defer b.Close()

	go func() {
		for seq := uint16(1); seq <= 100; seq++ {
			data, _ := frame.Encode(2, seq, nil)
			if a.Send(data) != nil {
				return
			}
		}
	}()

	for seq := uint16(1); seq <= 100; seq++ {
		data, err := b.Receive(testTimeout)
		require.NoError(t, err)
		f, err := frame.Decode(data)
		require.NoError(t, err)
		require.Equal(t, seq, f.Seq)
	}
}

func TestCloseSemantics(t *testing.T) {
	a, b := Pipe()

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	_, err := a.Receive(testTimeout)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, a.Send(frame.EncodeAck(1)), ErrClosed)

	// The peer sees the hangup.
	_, err = b.Receive(testTimeout)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Error(t, b.Send(frame.EncodeAck(1)))
	b.Close()
}

func TestCloseUnblocksReceive(t *testing.T) {
	a, b := Pipe()
	defer b.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := a.Receive(time.Minute)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, a.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(testTimeout):
		t.Fatal("Receive did not return after Close")
	}
}

func TestPeerHangupDeliversQueuedFrames(t *testing.T) {
	a, b := Pipe()
	defer b.Close()

	for seq := uint16(1); seq <= 3; seq++ {
		require.NoError(t, a.Send(frame.EncodeAck(seq)))
	}
	require.NoError(t, a.Close())

	for seq := uint16(1); seq <= 3; seq++ {
		data, err := b.Receive(testTimeout)
		require.NoError(t, err, "frame %d", seq)
		f, _ := frame.Decode(data)
		assert.Equal(t, seq, f.Seq)
	}
	_, err := b.Receive(testTimeout)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStreamResyncIsLogged(t *testing.T) {
	var (
		mu  sync.Mutex
		buf bytes.Buffer
	)
	logger := slog.New(slog.NewTextHandler(&lockedWriter{mu: &mu, w: &buf}, nil))

	local, remote := net.Pipe()
	ch := NewStreamChannel(local, "tcp://peer:1", DialOptions{Logger: logger})
	defer ch.Close()
	defer remote.Close()

	want, err := frame.Encode(4, 9, []byte{0x92, 0x01, 0xc3})
	require.NoError(t, err)
	go remote.Write(append([]byte{0x00, 0x01, 0xAA}, want...))

	got, err := ch.Receive(testTimeout)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	mu.Lock()
	defer mu.Unlock()
	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "skipped=3")
	assert.Contains(t, out, "endpoint=tcp://peer:1")
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func TestStreamChannel(t *testing.T) {
	ln, err := ListenStream("tcp://127.0.0.1:0", DialOptions{})
	require.NoError(t, err)
	defer ln.Close()
	assert.True(t, strings.HasPrefix(ln.Endpoint(), "tcp://127.0.0.1:"))

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	accepted := make(chan Channel, 1)
	go func() {
		ch, err := ln.Accept(ctx)
		if err == nil {
			accepted <- ch
		}
		close(accepted)
	}()

	d, err := NewDialer(KindStream, DialOptions{})
	require.NoError(t, err)
	client, err := d.Dial(ctx, ln.Endpoint())
	require.NoError(t, err)
	defer client.Close()

	server, ok := <-accepted
	require.True(t, ok, "accept failed")
	defer server.Close()

	exchange(t, client, server)

	// Malformed frames are refused before touching the socket.
	assert.ErrorIs(t, client.Send([]byte{1, 2, 3}), ErrMalformedFrame)

	require.NoError(t, server.Close())
	_, err = client.Receive(testTimeout)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStreamUnixSocket(t *testing.T) {
	endpoint := "unix://" + filepath.Join(t.TempDir(), "dmq.sock")
	ln, err := ListenStream(endpoint, DialOptions{})
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	accepted := make(chan Channel, 1)
	go func() {
		ch, _ := ln.Accept(ctx)
		accepted <- ch
	}()

	client, err := NewStreamDialer(DialOptions{}).Dial(ctx, endpoint)
	require.NoError(t, err)
	defer client.Close()

	server := <-accepted
	require.NotNil(t, server)
	defer server.Close()

	exchange(t, client, server)
}

func TestStreamDialErrors(t *testing.T) {
	d := NewStreamDialer(DialOptions{ConnectTimeout: 200 * time.Millisecond})

	for _, ep := range []string{"localhost:5555", "udp://localhost:5555", "tcp://", "unix://"} {
		_, err := d.Dial(context.Background(), ep)
		assert.Error(t, err, ep)
	}

	// Nothing listens on a just-closed port.
	ln, err := ListenStream("tcp://127.0.0.1:0", DialOptions{})
	require.NoError(t, err)
	ep := ln.Endpoint()
	ln.Close()
	_, err = d.Dial(context.Background(), ep)
	assert.Error(t, err)
}

func TestStreamAcceptCanceled(t *testing.T) {
	ln, err := ListenStream("tcp://127.0.0.1:0", DialOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ln.Accept(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWebSocketChannel(t *testing.T) {
	accepted := make(chan Channel, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ch, err := UpgradeWebSocket(w, r, DialOptions{})
		if err != nil {
			return
		}
		accepted <- ch
	}))
	defer srv.Close()

	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http") + "/dmq"
	d, err := NewDialer("ws", DialOptions{})
	require.NoError(t, err)

	client, err := d.Dial(context.Background(), endpoint)
	require.NoError(t, err)
	defer client.Close()

	var server Channel
	select {
	case server = <-accepted:
	case <-time.After(testTimeout):
		t.Fatal("no server connection")
	}
	defer server.Close()

	exchange(t, client, server)

	require.NoError(t, client.Close())
	_, err = server.Receive(testTimeout)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWebSocketDialRejected(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewWebSocketDialer(DialOptions{}).Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	assert.Error(t, err)
}

func TestZMQPairChannel(t *testing.T) {
	server, endpoint, err := ListenZMQ("tcp://127.0.0.1:0", DialOptions{})
	require.NoError(t, err)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	d, err := NewDialer(KindZMQ, DialOptions{})
	require.NoError(t, err)
	client, err := d.Dial(ctx, endpoint)
	require.NoError(t, err)
	defer client.Close()

	// The channel outlives the dial context.
	cancel()
	exchange(t, client, server)
}

// refusedEndpoint returns a tcp endpoint nothing listens on.
func refusedEndpoint(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return "tcp://" + addr
}

func TestZMQDialCanceledWhileRetrying(t *testing.T) {
	endpoint := refusedEndpoint(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := NewZMQDialer(DialOptions{ConnectTimeout: time.Minute}).Dial(ctx, endpoint)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestZMQDialTimeout(t *testing.T) {
	endpoint := refusedEndpoint(t)

	start := time.Now()
	_, err := NewZMQDialer(DialOptions{ConnectTimeout: 100 * time.Millisecond}).Dial(context.Background(), endpoint)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNewDialer(t *testing.T) {
	tests := []struct {
		kind string
		want any
	}{
		{"", &ZMQDialer{}},
		{"zmq", &ZMQDialer{}},
		{"stream", &StreamDialer{}},
		{"WebSocket", &WebSocketDialer{}},
	}
	for _, tt := range tests {
		d, err := NewDialer(tt.kind, DialOptions{})
		require.NoError(t, err, tt.kind)
		assert.IsType(t, tt.want, d, tt.kind)
	}

	_, err := NewDialer("carrier-pigeon", DialOptions{})
	assert.True(t, errors.Is(err, ErrUnknownKind))
	assert.Equal(t, []string{"zmq", "stream", "websocket"}, Kinds())
}

func TestDialCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewZMQDialer(DialOptions{}).Dial(ctx, "tcp://127.0.0.1:1")
	assert.ErrorIs(t, err, context.Canceled)
}
