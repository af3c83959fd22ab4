package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmq-protocol/dmq-go/pkg/dispatch"
	"github.com/dmq-protocol/dmq-go/pkg/frame"
	"github.com/dmq-protocol/dmq-go/pkg/log"
	"github.com/dmq-protocol/dmq-go/pkg/sequence"
	"github.com/dmq-protocol/dmq-go/pkg/transport"
	"github.com/dmq-protocol/dmq-go/pkg/wire"
)

// Session errors.
var (
	// ErrNotStarted indicates a send on a session that is not running.
	ErrNotStarted = errors.New("client not started")

	// ErrAlreadyStarted indicates Start on a starting or running session.
	ErrAlreadyStarted = errors.New("client already started")

	// ErrSendFailed wraps encoding and channel write failures.
	ErrSendFailed = errors.New("send failed")

	// ErrRecvFailed indicates the inbound channel failed and the receive
	// loop exited.
	ErrRecvFailed = errors.New("receive failed")
)

// Default endpoints of the reference server.
const (
	DefaultSendEndpoint = "tcp://localhost:5556"
	DefaultRecvEndpoint = "tcp://localhost:5555"
	DefaultPollInterval = 100 * time.Millisecond
)

// Config configures a Client.
type Config struct {
	// SendEndpoint is the outbound endpoint (default tcp://localhost:5556).
	SendEndpoint string

	// RecvEndpoint is the inbound endpoint (default tcp://localhost:5555).
	RecvEndpoint string

	// PollInterval bounds each receive wait and therefore how long Stop
	// waits for the loop (default 100ms).
	PollInterval time.Duration

	// Serializer encodes payloads (default msgpack).
	Serializer wire.Serializer

	// Logger is the optional operational logger.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives frame, message and state events.
	// If nil, no capture is made.
	ProtocolLogger log.Logger

	// Metrics is optional.
	Metrics *Metrics
}

func (c Config) withDefaults() Config {
	if c.SendEndpoint == "" {
		c.SendEndpoint = DefaultSendEndpoint
	}
	if c.RecvEndpoint == "" {
		c.RecvEndpoint = DefaultRecvEndpoint
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Serializer == nil {
		c.Serializer = wire.MsgPack()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// State is the session lifecycle state.
type State uint8

const (
	StateStopped State = iota
	StateStarting
	StateRunning
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	default:
		return "UNKNOWN"
	}
}

// Stats is a snapshot of session counters.
type Stats struct {
	Sent         uint64
	Received     uint64
	AcksSent     uint64
	AcksReceived uint64
	Dropped      uint64
	Errors       uint64
	LastSeq      uint16
}

type counters struct {
	sent         atomic.Uint64
	received     atomic.Uint64
	acksSent     atomic.Uint64
	acksReceived atomic.Uint64
	dropped      atomic.Uint64
	errors       atomic.Uint64
}

// Client is a DMQ transport session: an outbound channel for sends and
// ACKs, an inbound channel drained by one receive loop, and a registry
// of handlers the loop dispatches to.
type Client struct {
	cfg       Config
	dialer    transport.Dialer
	reg       *dispatch.Registry
	seq       *sequence.Generator
	logger    *slog.Logger
	sessionID string

	mu       sync.Mutex
	state    State
	// abortStart cancels the dials of an in-progress Start.
	abortStart context.CancelFunc
	out      transport.Channel
	in       transport.Channel
	stopCh   chan struct{}
	loopDone chan struct{}

	// writeMu serializes frames on the outbound channel.
	writeMu sync.Mutex

	stats counters
}

// New creates a Client. Handlers must be registered on reg before Start.
func New(cfg Config, dialer transport.Dialer, reg *dispatch.Registry) (*Client, error) {
	if dialer == nil {
		return nil, errors.New("dialer is required")
	}
	if reg == nil {
		return nil, errors.New("registry is required")
	}
	cfg = cfg.withDefaults()

	sessionID := log.NewSessionID()
	return &Client{
		cfg:       cfg,
		dialer:    dialer,
		reg:       reg,
		seq:       sequence.New(),
		logger:    cfg.Logger.With("component", "client", "session", sessionID),
		sessionID: sessionID,
	}, nil
}

// SessionID returns the identifier used in protocol capture events.
func (c *Client) SessionID() string {
	return c.sessionID
}

// State returns the lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start dials both endpoints, freezes the registry and starts the
// receive loop. The sequence counter restarts from zero. The state lock
// is not held while dialing, so State and Stop stay responsive; Stop
// during the dial aborts Start.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateStopped {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.state = StateStarting
	c.abortStart = cancel
	c.mu.Unlock()

	out, in, err := c.dial(dialCtx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.abortStart = nil

	if err == nil && dialCtx.Err() != nil {
		out.Close()
		in.Close()
		err = fmt.Errorf("start aborted: %w", dialCtx.Err())
	}
	if err != nil {
		c.state = StateStopped
		return err
	}

	c.reg.Freeze()
	c.seq.Reset()

	c.out, c.in = out, in
	c.stopCh = make(chan struct{})
	c.loopDone = make(chan struct{})
	c.state = StateRunning

	go c.receiveLoop(in, out, c.stopCh, c.loopDone)

	c.logger.Info("session started",
		"send", c.cfg.SendEndpoint,
		"recv", c.cfg.RecvEndpoint,
		"serializer", c.cfg.Serializer.Name())
	c.logState(StateStopped, StateRunning, "")
	return nil
}

// dial opens the outbound channel, then the inbound one. The outbound
// channel is closed if the inbound dial fails.
func (c *Client) dial(ctx context.Context) (out, in transport.Channel, err error) {
	out, err = c.dialer.Dial(ctx, c.cfg.SendEndpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("connect send endpoint: %w", err)
	}
	in, err = c.dialer.Dial(ctx, c.cfg.RecvEndpoint)
	if err != nil {
		out.Close()
		return nil, nil, fmt.Errorf("connect receive endpoint: %w", err)
	}
	return out, in, nil
}

// Stop signals the receive loop, waits for it to exit and closes both
// channels. No handler runs after Stop returns. Stop is idempotent and
// a no-op before Start. Called while Start is dialing, it cancels the
// dial and Start returns an error. Handlers must not call Stop.
func (c *Client) Stop() error {
	c.mu.Lock()
	switch c.state {
	case StateStarting:
		c.abortStart()
		c.mu.Unlock()
		return nil
	case StateRunning:
	default:
		c.mu.Unlock()
		return nil
	}
	c.state = StateStopped
	close(c.stopCh)
	done, in, out := c.loopDone, c.in, c.out
	c.mu.Unlock()

	<-done

	err := errors.Join(in.Close(), out.Close())
	c.logger.Info("session stopped")
	c.logState(StateRunning, StateStopped, "")
	return err
}

// Done is closed when the receive loop exits, either after Stop or
// because the inbound channel failed. It is nil before Start.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loopDone
}

// Send encodes m, stamps it with the next sequence number and writes
// the frame. It does not wait for an acknowledgment. The returned
// sequence number identifies the frame in logs only.
func (c *Client) Send(id wire.RemoteID, m wire.Message) (uint16, error) {
	if id == wire.RemoteAck {
		return 0, wire.ErrReservedID
	}
	if m == nil {
		return 0, fmt.Errorf("%w: nil message", ErrSendFailed)
	}

	if bound, ok := c.reg.Schema().TypeOf(id); ok && bound != reflect.TypeOf(m) {
		return 0, fmt.Errorf("%w: %s is bound to %v, got %T", ErrSendFailed, id, bound, m)
	}

	c.mu.Lock()
	out, running := c.out, c.state == StateRunning
	c.mu.Unlock()
	if !running {
		return 0, ErrNotStarted
	}

	payload, err := wire.Encode(c.cfg.Serializer, m)
	if err != nil {
		return 0, c.sendFailed(err)
	}

	seq := c.seq.Next()
	data, err := frame.Encode(uint16(id), seq, payload)
	if err != nil {
		return seq, c.sendFailed(err)
	}

	if err := c.write(out, data); err != nil {
		return seq, c.sendFailed(err)
	}

	c.stats.sent.Add(1)
	c.cfg.Metrics.sent(id)
	c.logMessage(log.DirectionOut, id, seq, m)
	c.logger.Debug("sent", "type", id, "seq", seq, "size", len(data))
	return seq, nil
}

func (c *Client) sendFailed(err error) error {
	c.cfg.Metrics.sendError()
	c.stats.errors.Add(1)
	return fmt.Errorf("%w: %v", ErrSendFailed, err)
}

// sendAck acknowledges seq. Failures are logged and otherwise ignored.
func (c *Client) sendAck(out transport.Channel, seq uint16) {
	if err := c.write(out, frame.EncodeAck(seq)); err != nil {
		c.logger.Debug("ack failed", "seq", seq, "error", err)
		return
	}
	c.stats.acksSent.Add(1)
	c.cfg.Metrics.ackSent()
}

func (c *Client) write(out transport.Channel, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := out.Send(data); err != nil {
		return err
	}
	c.logFrame(log.DirectionOut, data)
	return nil
}

// Stats returns a snapshot of the session counters.
func (c *Client) Stats() Stats {
	return Stats{
		Sent:         c.stats.sent.Load(),
		Received:     c.stats.received.Load(),
		AcksSent:     c.stats.acksSent.Load(),
		AcksReceived: c.stats.acksReceived.Load(),
		Dropped:      c.stats.dropped.Load(),
		Errors:       c.stats.errors.Load(),
		LastSeq:      c.seq.Current(),
	}
}

func (c *Client) logFrame(dir log.Direction, data []byte) {
	if c.cfg.ProtocolLogger == nil {
		return
	}
	endpoint := c.cfg.SendEndpoint
	if dir == log.DirectionIn {
		endpoint = c.cfg.RecvEndpoint
	}
	c.cfg.ProtocolLogger.Log(log.NewFrameEvent(c.sessionID, endpoint, dir, data))
}

func (c *Client) logMessage(dir log.Direction, id wire.RemoteID, seq uint16, m wire.Message) {
	if c.cfg.ProtocolLogger == nil {
		return
	}
	c.cfg.ProtocolLogger.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: c.sessionID,
		Direction: dir,
		Layer:     log.LayerWire,
		Category:  log.CategoryMessage,
		Message: &log.MessageEvent{
			RemoteID: uint16(id),
			Seq:      seq,
			Type:     reflect.TypeOf(m).Name(),
			Payload:  m,
		},
	})
}

func (c *Client) logState(from, to State, reason string) {
	if c.cfg.ProtocolLogger == nil {
		return
	}
	c.cfg.ProtocolLogger.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: c.sessionID,
		Layer:     log.LayerSession,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			OldState: from.String(),
			NewState: to.String(),
			Reason:   reason,
		},
	})
}

func (c *Client) logError(layer log.Layer, err error, op string) {
	if c.cfg.ProtocolLogger == nil {
		return
	}
	c.cfg.ProtocolLogger.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: c.sessionID,
		Direction: log.DirectionIn,
		Layer:     layer,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Context: op,
		},
	})
}
