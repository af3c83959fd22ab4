package wire

import (
	"fmt"
	"reflect"
	"sync"
)

// decodable constrains a pointer to a message variant that can fill
// itself from decoded arguments.
type decodable[T any] interface {
	*T
	decodeArgs(args []any) error
}

type binding struct {
	typ    reflect.Type
	decode func(args []any) (Message, error)
}

// Schema maps remote IDs to message variants.
type Schema struct {
	mu       sync.RWMutex
	bindings map[RemoteID]binding
}

// NewSchema creates an empty schema.
func NewSchema() *Schema {
	return &Schema{bindings: make(map[RemoteID]binding)}
}

// DefaultSchema returns the schema of the reference deployment.
func DefaultSchema() *Schema {
	s := NewSchema()
	mustBind[Alarm](s, RemoteAlarm)
	mustBind[DataMsg](s, RemoteData)
	mustBind[CommandMsg](s, RemoteCommand)
	mustBind[ActuatorMsg](s, RemoteActuator)
	return s
}

func mustBind[T Message, PT decodable[T]](s *Schema, id RemoteID) {
	if err := Bind[T, PT](s, id); err != nil {
		panic(err)
	}
}

// Bind binds id to the variant T. Binding an ID again replaces the
// previous variant. ID 0 is reserved for acknowledgments.
func Bind[T Message, PT decodable[T]](s *Schema, id RemoteID) error {
	if id == RemoteAck {
		return ErrReservedID
	}
	b := binding{
		typ: reflect.TypeFor[T](),
		decode: func(args []any) (Message, error) {
			var v T
			if err := PT(&v).decodeArgs(args); err != nil {
				return nil, err
			}
			return v, nil
		},
	}

	s.mu.Lock()
	s.bindings[id] = b
	s.mu.Unlock()
	return nil
}

// TypeOf returns the variant type bound to id.
func (s *Schema) TypeOf(id RemoteID) (reflect.Type, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bindings[id]
	return b.typ, ok
}

// Len returns the number of bound IDs.
func (s *Schema) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bindings)
}

// Decode decodes payload into the variant bound to id.
func (s *Schema) Decode(ser Serializer, id RemoteID, payload []byte) (Message, error) {
	s.mu.RLock()
	b, ok := s.bindings[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRemoteID, id)
	}

	args, err := ser.UnmarshalAll(payload)
	if err != nil {
		return nil, err
	}
	m, err := b.decode(args)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	return m, nil
}
