package log

import (
	"time"
)

// Event is one protocol capture record.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the client session (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Endpoint is the channel endpoint the event relates to.
	Endpoint string `cbor:"6,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"` // Wire layer (decoded)
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Session/channel state
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionNone marks events that are not tied to a frame flow,
	// such as session state changes.
	DirectionNone Direction = 0
	// DirectionIn indicates an incoming frame.
	DirectionIn Direction = 1
	// DirectionOut indicates an outgoing frame.
	DirectionOut Direction = 2
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionNone:
		return "NONE"
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// ParseDirection parses a direction name as printed by String.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "IN", "in":
		return DirectionIn, true
	case "OUT", "out":
		return DirectionOut, true
	case "NONE", "none":
		return DirectionNone, true
	default:
		return 0, false
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the frame layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the message layer (decoded arguments).
	LayerWire Layer = 1
	// LayerSession is the client session.
	LayerSession Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerSession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// ParseLayer parses a layer name as printed by String.
func ParseLayer(s string) (Layer, bool) {
	switch s {
	case "TRANSPORT", "transport":
		return LayerTransport, true
	case "WIRE", "wire":
		return LayerWire, true
	case "SESSION", "session":
		return LayerSession, true
	default:
		return 0, false
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates an application frame.
	CategoryMessage Category = 0
	// CategoryAck indicates an acknowledgment frame.
	CategoryAck Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryAck:
		return "ACK"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures a raw frame at the transport layer.
type FrameEvent struct {
	// RemoteID is the frame's message type ID (0 for ACK).
	RemoteID uint16 `cbor:"1,keyasint"`

	// Seq is the frame's sequence number.
	Seq uint16 `cbor:"2,keyasint"`

	// Size is the frame size in bytes (including the header).
	Size int `cbor:"3,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"4,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"5,keyasint,omitempty"`
}

// MessageEvent captures a decoded message at the wire layer.
type MessageEvent struct {
	// RemoteID is the message type ID.
	RemoteID uint16 `cbor:"1,keyasint"`

	// Seq is the sequence number of the carrying frame.
	Seq uint16 `cbor:"2,keyasint"`

	// Type is the message variant name (e.g. "CommandMsg").
	Type string `cbor:"3,keyasint"`

	// Payload is the decoded message.
	Payload any `cbor:"4,keyasint,omitempty"`
}

// StateChangeEvent captures session and channel lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntitySession indicates a client session state change.
	StateEntitySession StateEntity = 0
	// StateEntityChannel indicates a channel state change.
	StateEntityChannel StateEntity = 1
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntitySession:
		return "SESSION"
	case StateEntityChannel:
		return "CHANNEL"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
