package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Wire constants.
const (
	// Marker is the fixed alignment marker at the start of every frame.
	Marker uint16 = 0x55AA

	// HeaderSize is the size of the fixed header in bytes.
	HeaderSize = 8

	// MaxPayloadSize is the largest payload the 16-bit length field can describe.
	MaxPayloadSize = math.MaxUint16

	// AckID is the frame ID reserved for acknowledgments.
	AckID uint16 = 0
)

// Frame errors. All of them wrap ErrFrame.
var (
	ErrFrame = errors.New("frame error")

	// ErrInvalidLength indicates fewer bytes than the header requires, or
	// a declared length that runs past the end of the input.
	ErrInvalidLength = fmt.Errorf("%w: invalid length", ErrFrame)

	// ErrInvalidMarker indicates the header does not start with Marker.
	ErrInvalidMarker = fmt.Errorf("%w: invalid marker", ErrFrame)

	// ErrPayloadTooLarge indicates a payload that does not fit the length field.
	ErrPayloadTooLarge = fmt.Errorf("%w: payload too large", ErrFrame)
)

// Header is the fixed wire header.
type Header struct {
	Marker uint16
	ID     uint16
	Seq    uint16
	Length uint16
}

// IsAck reports whether the header belongs to an ACK frame.
func (h Header) IsAck() bool {
	return h.ID == AckID
}

// Frame is one complete wire unit.
type Frame struct {
	Header
	Payload []byte
}

// Encode builds the wire form of a frame with the given ID, sequence
// number and payload. The length field always equals len(payload).
func Encode(id, seq uint16, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	buf := make([]byte, HeaderSize+len(payload))
	PutHeader(buf, Header{
		Marker: Marker,
		ID:     id,
		Seq:    seq,
		Length: uint16(len(payload)),
	})
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// EncodeAck builds a zero-payload ACK frame echoing seq.
func EncodeAck(seq uint16) []byte {
	buf := make([]byte, HeaderSize)
	PutHeader(buf, Header{Marker: Marker, ID: AckID, Seq: seq})
	return buf
}

// PutHeader writes h into the first HeaderSize bytes of b.
func PutHeader(b []byte, h Header) {
	binary.LittleEndian.PutUint16(b[0:2], h.Marker)
	binary.LittleEndian.PutUint16(b[2:4], h.ID)
	binary.LittleEndian.PutUint16(b[4:6], h.Seq)
	binary.LittleEndian.PutUint16(b[6:8], h.Length)
}

// DecodeHeader parses and validates the fixed header at the start of b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes, need %d", ErrInvalidLength, len(b), HeaderSize)
	}
	h := Header{
		Marker: binary.LittleEndian.Uint16(b[0:2]),
		ID:     binary.LittleEndian.Uint16(b[2:4]),
		Seq:    binary.LittleEndian.Uint16(b[4:6]),
		Length: binary.LittleEndian.Uint16(b[6:8]),
	}
	if h.Marker != Marker {
		return h, fmt.Errorf("%w: 0x%04X", ErrInvalidMarker, h.Marker)
	}
	return h, nil
}

// Decode parses one frame. The payload aliases b and covers exactly the
// declared length; bytes after it are ignored. A declared length longer
// than the remaining input is rejected with ErrInvalidLength.
func Decode(b []byte) (Frame, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return Frame{Header: h}, err
	}
	end := HeaderSize + int(h.Length)
	if end > len(b) {
		return Frame{Header: h}, fmt.Errorf("%w: declared %d, have %d", ErrInvalidLength, h.Length, len(b)-HeaderSize)
	}
	return Frame{Header: h, Payload: b[HeaderSize:end]}, nil
}

// Size returns the encoded size of a frame with the given payload size.
func Size(payloadSize int) int {
	return HeaderSize + payloadSize
}
