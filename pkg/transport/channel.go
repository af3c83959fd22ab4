package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Channel errors.
var (
	// ErrClosed indicates the channel was closed locally or its
	// underlying connection failed.
	ErrClosed = errors.New("channel closed")

	// ErrReceiveTimeout indicates no frame arrived within the timeout.
	ErrReceiveTimeout = errors.New("receive timeout")

	// ErrUnknownKind indicates an unsupported transport kind.
	ErrUnknownKind = errors.New("unknown transport kind")
)

// Channel is a message-oriented connection carrying encoded frames.
// Send may be called concurrently with Receive.
type Channel interface {
	// Send writes one frame.
	Send(data []byte) error

	// Receive waits up to timeout for the next frame. It returns
	// ErrReceiveTimeout when nothing arrived and ErrClosed once the
	// channel is closed.
	Receive(timeout time.Duration) ([]byte, error)

	// Close releases the channel. It is safe to call more than once.
	Close() error
}

// Dialer opens channels to endpoints.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Channel, error)
}

// Transport kinds accepted by NewDialer.
const (
	KindZMQ       = "zmq"
	KindStream    = "stream"
	KindWebSocket = "websocket"
)

// Default dial settings.
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultQueueSize      = 64
)

// DialOptions configures a Dialer.
type DialOptions struct {
	// ConnectTimeout bounds each Dial when ctx has no deadline.
	ConnectTimeout time.Duration

	// QueueSize is the number of received frames buffered per channel.
	QueueSize int

	// Logger receives transport warnings such as stream resyncs.
	// If nil, they are discarded.
	Logger *slog.Logger
}

func (o DialOptions) withDefaults() DialOptions {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// NewDialer returns a Dialer for the given transport kind.
func NewDialer(kind string, opts DialOptions) (Dialer, error) {
	opts = opts.withDefaults()
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindZMQ:
		return &ZMQDialer{opts: opts}, nil
	case KindStream:
		return &StreamDialer{opts: opts}, nil
	case KindWebSocket, "ws":
		return &WebSocketDialer{opts: opts}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Kinds lists the transport kinds NewDialer accepts.
func Kinds() []string {
	return []string{KindZMQ, KindStream, KindWebSocket}
}

// dialContext applies the connect timeout when ctx has no deadline.
func dialContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
