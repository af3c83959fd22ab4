package transport

import (
	"fmt"
	"sync"
	"time"
)

// conn is the backend-specific part of a pumpChannel.
type conn interface {
	// read blocks until the next frame arrives or the connection fails.
	read() ([]byte, error)

	// write sends one frame.
	write(data []byte) error

	// close releases the connection and unblocks read.
	close() error
}

// pumpChannel adapts a blocking conn to Channel. A reader goroutine
// moves frames into a buffered queue; Receive waits on the queue with
// a timer.
type pumpChannel struct {
	c        conn
	endpoint string

	queue chan []byte
	done  chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error

	errMu   sync.Mutex
	readErr error
}

func newPumpChannel(c conn, endpoint string, opts DialOptions) *pumpChannel {
	p := &pumpChannel{
		c:        c,
		endpoint: endpoint,
		queue:    make(chan []byte, opts.QueueSize),
		done:     make(chan struct{}),
	}
	go p.readLoop()
	return p
}

func (p *pumpChannel) readLoop() {
	defer close(p.queue)
	for {
		data, err := p.c.read()
		if err != nil {
			p.errMu.Lock()
			p.readErr = err
			p.errMu.Unlock()
			return
		}
		select {
		case p.queue <- data:
		case <-p.done:
			return
		}
	}
}

// Send writes one frame.
func (p *pumpChannel) Send(data []byte) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}

	p.writeMu.Lock()
	err := p.c.write(data)
	p.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("send to %s: %w", p.endpoint, err)
	}
	return nil
}

// Receive returns the next queued frame. Frames queued before the
// connection failed are still delivered before ErrClosed.
func (p *pumpChannel) Receive(timeout time.Duration) ([]byte, error) {
	select {
	case <-p.done:
		return nil, ErrClosed
	default:
	}

	if timeout <= 0 {
		select {
		case data, ok := <-p.queue:
			if !ok {
				return nil, p.closedError()
			}
			return data, nil
		default:
			return nil, ErrReceiveTimeout
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data, ok := <-p.queue:
		if !ok {
			return nil, p.closedError()
		}
		return data, nil
	case <-p.done:
		return nil, ErrClosed
	case <-timer.C:
		return nil, ErrReceiveTimeout
	}
}

func (p *pumpChannel) closedError() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	if p.readErr == nil {
		return ErrClosed
	}
	return fmt.Errorf("%w: %v", ErrClosed, p.readErr)
}

// Close stops the reader and closes the connection.
func (p *pumpChannel) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		p.closeErr = p.c.close()
	})
	return p.closeErr
}

var _ Channel = (*pumpChannel)(nil)
