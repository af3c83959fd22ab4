package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/go-zeromq/zmq4"
)

// zmqDialRetry is the interval between ZeroMQ connection attempts.
const zmqDialRetry = 250 * time.Millisecond

// ZMQDialer opens ZeroMQ PAIR sockets. Each frame is one single-part
// ZeroMQ message.
type ZMQDialer struct {
	opts DialOptions
}

// NewZMQDialer creates a ZMQDialer.
func NewZMQDialer(opts DialOptions) *ZMQDialer {
	return &ZMQDialer{opts: opts.withDefaults()}
}

// Dial connects a PAIR socket to a ZeroMQ endpoint such as
// tcp://localhost:5556. Refused connections are retried every 250ms
// until ctx is done or ConnectTimeout elapses.
func (d *ZMQDialer) Dial(ctx context.Context, endpoint string) (Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dctx, dcancel := dialContext(ctx, d.opts.ConnectTimeout)
	defer dcancel()

	// The socket outlives ctx. Only the dial is bound to it.
	sctx, cancel := context.WithCancel(context.Background())
	sock := zmq4.NewPair(sctx,
		zmq4.WithDialerTimeout(d.opts.ConnectTimeout),
		zmq4.WithDialerRetry(zmqDialRetry),
		zmq4.WithDialerMaxRetries(-1),
	)
	stop := context.AfterFunc(dctx, cancel)
	err := sock.Dial(endpoint)
	if detached := stop(); err != nil || !detached {
		sock.Close()
		cancel()
		if cerr := dctx.Err(); cerr != nil {
			return nil, fmt.Errorf("dial %s: %w", endpoint, cerr)
		}
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return newPumpChannel(&zmqConn{sock: sock, cancel: cancel}, endpoint, d.opts), nil
}

// ListenZMQ binds a PAIR socket to endpoint and returns it as a
// channel once bound. The peer may connect later; frames sent before
// it does are queued by ZeroMQ.
func ListenZMQ(endpoint string, opts DialOptions) (Channel, string, error) {
	opts = opts.withDefaults()

	sctx, cancel := context.WithCancel(context.Background())
	sock := zmq4.NewPair(sctx)
	if err := sock.Listen(endpoint); err != nil {
		sock.Close()
		cancel()
		return nil, "", fmt.Errorf("failed to listen on %s: %w", endpoint, err)
	}

	bound := endpoint
	if tcp, ok := sock.Addr().(*net.TCPAddr); ok {
		bound = "tcp://" + tcp.String()
	}
	return newPumpChannel(&zmqConn{sock: sock, cancel: cancel}, bound, opts), bound, nil
}

type zmqConn struct {
	sock   zmq4.Socket
	cancel context.CancelFunc
}

func (z *zmqConn) read() ([]byte, error) {
	msg, err := z.sock.Recv()
	if err != nil {
		return nil, err
	}
	return msg.Bytes(), nil
}

func (z *zmqConn) write(data []byte) error {
	return z.sock.Send(zmq4.NewMsg(data))
}

func (z *zmqConn) close() error {
	err := z.sock.Close()
	z.cancel()
	return err
}
