package wire

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Serializer converts argument values to and from their binary form.
type Serializer interface {
	// Name returns the serializer name used in configuration.
	Name() string

	// Marshal encodes one top-level value.
	Marshal(v any) ([]byte, error)

	// UnmarshalAll decodes every top-level value in data, in order.
	UnmarshalAll(data []byte) ([]any, error)
}

// Serializer names.
const (
	SerializerMsgPack = "msgpack"
	SerializerCBOR    = "cbor"
)

// MsgPack returns the MessagePack serializer. Integers are written in
// their most compact form.
func MsgPack() Serializer {
	return msgpackSerializer{}
}

// CBOR returns the CBOR serializer.
func CBOR() Serializer {
	return cborSerializer{}
}

// SerializerByName returns the serializer with the given name.
func SerializerByName(name string) (Serializer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", SerializerMsgPack:
		return MsgPack(), nil
	case SerializerCBOR:
		return CBOR(), nil
	default:
		return nil, fmt.Errorf("unknown serializer: %s (use msgpack or cbor)", name)
	}
}

// Encode serializes every argument of m and concatenates them.
func Encode(s Serializer, m Message) ([]byte, error) {
	var buf bytes.Buffer
	for _, arg := range m.wireArgs() {
		b, err := s.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("encode %T: %w", m, err)
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

type msgpackSerializer struct{}

func (msgpackSerializer) Name() string { return SerializerMsgPack }

func (msgpackSerializer) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msgpackSerializer) UnmarshalAll(data []byte) ([]any, error) {
	r := bytes.NewReader(data)
	dec := msgpack.NewDecoder(r)

	var out []any
	for r.Len() > 0 {
		v, err := dec.DecodeInterface()
		if err != nil {
			return nil, fmt.Errorf("%w: msgpack: %v", ErrDecode, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// cborEncMode is the CBOR encoder mode for payload arguments.
var cborEncMode cbor.EncMode

// cborDecMode is the CBOR decoder mode for payload arguments.
var cborDecMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}
	cborEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Lenient decoding for peers that use indefinite-length arrays.
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	cborDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

type cborSerializer struct{}

func (cborSerializer) Name() string { return SerializerCBOR }

func (cborSerializer) Marshal(v any) ([]byte, error) {
	return cborEncMode.Marshal(v)
}

func (cborSerializer) UnmarshalAll(data []byte) ([]any, error) {
	var out []any
	for len(data) > 0 {
		var v any
		rest, err := cborDecMode.UnmarshalFirst(data, &v)
		if err != nil {
			return nil, fmt.Errorf("%w: cbor: %v", ErrDecode, err)
		}
		out = append(out, v)
		data = rest
	}
	return out, nil
}
