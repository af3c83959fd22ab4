package log

import (
	"time"

	"github.com/dmq-protocol/dmq-go/pkg/frame"
)

// MaxLogFrameDataSize is the maximum frame data size to include in logs (4 KB).
// Larger frames are truncated in log events.
const MaxLogFrameDataSize = 4096

// NewFrameEvent builds a transport-layer event for the encoded frame b.
// The header fields are filled in when b holds a valid header.
func NewFrameEvent(sessionID, endpoint string, dir Direction, b []byte) Event {
	data := b
	truncated := false
	if len(data) > MaxLogFrameDataSize {
		data = data[:MaxLogFrameDataSize]
		truncated = true
	}

	fe := &FrameEvent{
		Size:      len(b),
		Data:      data,
		Truncated: truncated,
	}
	category := CategoryMessage
	if h, err := frame.DecodeHeader(b); err == nil {
		fe.RemoteID = h.ID
		fe.Seq = h.Seq
		if h.IsAck() {
			category = CategoryAck
		}
	}

	return Event{
		Timestamp: time.Now(),
		SessionID: sessionID,
		Direction: dir,
		Layer:     LayerTransport,
		Category:  category,
		Endpoint:  endpoint,
		Frame:     fe,
	}
}
