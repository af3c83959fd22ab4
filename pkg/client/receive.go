package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmq-protocol/dmq-go/pkg/dispatch"
	"github.com/dmq-protocol/dmq-go/pkg/frame"
	"github.com/dmq-protocol/dmq-go/pkg/log"
	"github.com/dmq-protocol/dmq-go/pkg/transport"
	"github.com/dmq-protocol/dmq-go/pkg/wire"
)

// receiveLoop drains in until stop is closed or in fails. Handlers run
// here, one at a time, in arrival order.
func (c *Client) receiveLoop(in, out transport.Channel, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		default:
		}

		data, err := in.Receive(c.cfg.PollInterval)
		if err != nil {
			if errors.Is(err, transport.ErrReceiveTimeout) {
				continue
			}
			select {
			case <-stop:
				// Closed by Stop.
				return
			default:
			}
			err = fmt.Errorf("%w: %v", ErrRecvFailed, err)
			c.logger.Error("receive loop exiting", "error", err)
			c.logError(log.LayerTransport, err, "receive")
			return
		}

		c.handleFrame(out, data)
	}
}

// handleFrame processes one inbound frame. Every application frame is
// acknowledged, whether or not a handler accepted it.
func (c *Client) handleFrame(out transport.Channel, data []byte) {
	c.logFrame(log.DirectionIn, data)

	if len(data) < frame.HeaderSize {
		c.stats.dropped.Add(1)
		c.cfg.Metrics.drop(reasonShort)
		c.logger.Debug("dropping short frame", "size", len(data))
		return
	}

	f, err := frame.Decode(data)
	if err != nil {
		c.stats.dropped.Add(1)
		c.cfg.Metrics.drop(reasonFrame)
		c.logger.Warn("dropping malformed frame", "error", err)
		c.logError(log.LayerTransport, err, "frame decode")
		return
	}

	if f.IsAck() {
		c.stats.acksReceived.Add(1)
		c.cfg.Metrics.ackReceived()
		c.logger.Debug("ack received", "seq", f.Seq)
		return
	}

	id := wire.RemoteID(f.ID)
	c.stats.received.Add(1)
	c.cfg.Metrics.received(id)

	start := time.Now()
	if err := c.reg.Dispatch(c.cfg.Serializer, id, f.Payload, c.observeInbound(f.Seq)); err != nil {
		c.stats.errors.Add(1)
		c.cfg.Metrics.dispatchError(id, dispatchReason(err))
		c.reportDispatchError(id, f.Seq, err)
	}
	c.cfg.Metrics.observeDispatch(time.Since(start))

	c.sendAck(out, f.Seq)
}

// observeInbound logs decoded inbound messages to the protocol capture.
func (c *Client) observeInbound(seq uint16) dispatch.Observer {
	if c.cfg.ProtocolLogger == nil {
		return nil
	}
	return func(id wire.RemoteID, m wire.Message) {
		c.logMessage(log.DirectionIn, id, seq, m)
	}
}

func (c *Client) reportDispatchError(id wire.RemoteID, seq uint16, err error) {
	var pe *dispatch.HandlerPanicError
	switch {
	case errors.As(err, &pe):
		c.logger.Error("handler panicked", "type", id, "seq", seq, "panic", pe.Value, "stack", string(pe.Stack))
		c.logError(log.LayerSession, err, "handler")
	case errors.Is(err, dispatch.ErrNoHandler):
		c.logger.Warn("no handler for message type", "type", id, "seq", seq)
		c.logError(log.LayerSession, err, "dispatch")
	default:
		c.logger.Warn("failed to decode message", "type", id, "seq", seq, "error", err)
		c.logError(log.LayerWire, err, "decode")
	}
}

func dispatchReason(err error) string {
	switch {
	case errors.Is(err, dispatch.ErrHandlerPanic):
		return reasonPanic
	case errors.Is(err, dispatch.ErrNoHandler):
		return reasonNoHandler
	case errors.Is(err, dispatch.ErrHandlerType):
		return reasonTypeChange
	default:
		return reasonDecode
	}
}
