package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
)

// StreamDialer opens stream channels over TCP or Unix sockets. Frames
// are delimited by their own header.
type StreamDialer struct {
	opts DialOptions
}

// NewStreamDialer creates a StreamDialer.
func NewStreamDialer(opts DialOptions) *StreamDialer {
	return &StreamDialer{opts: opts.withDefaults()}
}

// Dial connects to a tcp://host:port or unix:///path endpoint.
func (d *StreamDialer) Dial(ctx context.Context, endpoint string) (Channel, error) {
	network, addr, err := parseStreamEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	ctx, cancel := dialContext(ctx, d.opts.ConnectTimeout)
	defer cancel()

	var nd net.Dialer
	c, err := nd.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return NewStreamChannel(c, endpoint, d.opts), nil
}

// NewStreamChannel wraps an established connection.
func NewStreamChannel(c net.Conn, endpoint string, opts DialOptions) Channel {
	opts = opts.withDefaults()
	sc := &streamConn{
		c:      c,
		framer: NewFramer(c),
		logger: opts.Logger.With("endpoint", endpoint),
	}
	return newPumpChannel(sc, endpoint, opts)
}

type streamConn struct {
	c      net.Conn
	framer *Framer
	logger *slog.Logger

	// skipped is the framer's Skipped count already reported.
	skipped uint64
}

func (s *streamConn) read() ([]byte, error) {
	data, err := s.framer.ReadFrame()
	if n := s.framer.Skipped(); n > s.skipped {
		s.logger.Warn("stream resynchronized, discarded bytes before frame marker",
			"skipped", n-s.skipped, "total_skipped", n)
		s.skipped = n
	}
	return data, err
}

func (s *streamConn) write(data []byte) error { return s.framer.WriteFrame(data) }
func (s *streamConn) close() error            { return s.c.Close() }

func parseStreamEndpoint(endpoint string) (network, addr string, err error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	switch u.Scheme {
	case "tcp", "tcp4", "tcp6":
		if u.Host == "" {
			return "", "", fmt.Errorf("invalid endpoint %q: missing host", endpoint)
		}
		return u.Scheme, u.Host, nil
	case "unix":
		if u.Path == "" {
			return "", "", fmt.Errorf("invalid endpoint %q: missing path", endpoint)
		}
		return "unix", u.Path, nil
	default:
		return "", "", fmt.Errorf("invalid endpoint %q: unsupported scheme %q", endpoint, u.Scheme)
	}
}

// StreamListener accepts stream channels. It is used by test peers and
// by tools that play the server role.
type StreamListener struct {
	ln       net.Listener
	opts     DialOptions
	endpoint string

	closeOnce sync.Once
}

// ListenStream listens on a tcp:// or unix:// endpoint. Port 0 picks a
// free port; Endpoint reports the bound address.
func ListenStream(endpoint string, opts DialOptions) (*StreamListener, error) {
	network, addr, err := parseStreamEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen(network, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	bound := endpoint
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		bound = fmt.Sprintf("%s://%s", network, tcp.String())
	}
	return &StreamListener{ln: ln, opts: opts.withDefaults(), endpoint: bound}, nil
}

// Endpoint returns the endpoint clients dial.
func (l *StreamListener) Endpoint() string {
	return l.endpoint
}

// Accept waits for the next connection or until ctx is done.
func (l *StreamListener) Accept(ctx context.Context) (Channel, error) {
	type result struct {
		c   net.Conn
		err error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := l.ln.Accept()
		ch <- result{c, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("accept: %w", r.err)
		}
		return NewStreamChannel(r.c, r.c.RemoteAddr().String(), l.opts), nil
	case <-ctx.Done():
		l.Close()
		return nil, ctx.Err()
	}
}

// Close stops listening.
func (l *StreamListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.ln.Close()
	})
	return err
}
