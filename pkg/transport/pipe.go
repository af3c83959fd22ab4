package transport

import (
	"io"
	"sync"
)

// Pipe returns two connected in-memory channels. Frames sent on one are
// received on the other. Closing either end makes the peer's Receive
// report ErrClosed once its queue drains.
func Pipe() (Channel, Channel) {
	return PipeWithOptions(DialOptions{})
}

// PipeWithOptions is Pipe with a custom queue size.
func PipeWithOptions(opts DialOptions) (Channel, Channel) {
	opts = opts.withDefaults()

	ab := make(chan []byte, opts.QueueSize)
	ba := make(chan []byte, opts.QueueSize)
	a := &pipeConn{in: ba, out: ab, done: make(chan struct{})}
	b := &pipeConn{in: ab, out: ba, done: make(chan struct{})}
	a.peer, b.peer = b, a

	return newPumpChannel(a, "pipe:a", opts), newPumpChannel(b, "pipe:b", opts)
}

type pipeConn struct {
	in   <-chan []byte
	out  chan<- []byte
	peer *pipeConn

	done      chan struct{}
	closeOnce sync.Once
}

func (c *pipeConn) read() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.done:
		return nil, io.EOF
	case <-c.peer.done:
		// Deliver what the peer sent before hanging up.
		select {
		case data := <-c.in:
			return data, nil
		default:
			return nil, io.EOF
		}
	}
}

func (c *pipeConn) write(data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)

	select {
	case <-c.done:
		return io.ErrClosedPipe
	case <-c.peer.done:
		return io.ErrClosedPipe
	default:
	}

	select {
	case c.out <- cp:
		return nil
	case <-c.done:
		return io.ErrClosedPipe
	case <-c.peer.done:
		return io.ErrClosedPipe
	}
}

func (c *pipeConn) close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}
