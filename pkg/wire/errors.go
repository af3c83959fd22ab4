package wire

import (
	"errors"
	"fmt"
)

// Schema and decode errors.
var (
	// ErrDecode is wrapped by every payload decoding failure.
	ErrDecode = errors.New("decode error")

	// ErrArityMismatch indicates fewer arguments or array elements than required.
	ErrArityMismatch = fmt.Errorf("%w: arity mismatch", ErrDecode)

	// ErrFieldType indicates an element whose kind or range does not fit the field.
	ErrFieldType = fmt.Errorf("%w: field type mismatch", ErrDecode)

	// ErrUnknownRemoteID indicates an ID with no type bound in the schema.
	ErrUnknownRemoteID = errors.New("unknown remote id")

	// ErrReservedID indicates an attempt to use the ACK ID for a message.
	ErrReservedID = errors.New("remote id 0 is reserved for ack")
)

// ArityError reports a value with too few elements.
type ArityError struct {
	// Type is the struct or argument list being decoded.
	Type string

	// Want is the minimum number of elements.
	Want int

	// Got is the number of elements present.
	Got int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("%s: %s: want at least %d elements, got %d", ErrArityMismatch, e.Type, e.Want, e.Got)
}

// Unwrap returns ErrArityMismatch.
func (e *ArityError) Unwrap() error {
	return ErrArityMismatch
}

func fieldError(typ, field string, v any) error {
	return fmt.Errorf("%w: %s.%s: unexpected %T", ErrFieldType, typ, field, v)
}

func rangeError(typ, field string, v uint64) error {
	return fmt.Errorf("%w: %s.%s: value %d out of range", ErrFieldType, typ, field, v)
}
