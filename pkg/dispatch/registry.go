// Package dispatch routes decoded messages to one handler per remote ID.
//
// Handlers are registered before the session starts. Registration checks
// that the handler's message type matches the variant bound to the ID in
// the schema, so a mismatch is reported at setup instead of at receive
// time. Once frozen, the registry is read-only and safe for concurrent
// Dispatch calls.
package dispatch

import (
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"sync"

	"github.com/dmq-protocol/dmq-go/pkg/wire"
)

// Registry errors.
var (
	// ErrNoHandler indicates a frame whose ID has no registered handler.
	ErrNoHandler = errors.New("no handler registered")

	// ErrHandlerType indicates a handler whose message type differs from
	// the variant bound to the ID.
	ErrHandlerType = errors.New("handler type does not match schema")

	// ErrRegistryFrozen indicates registration after the session started.
	ErrRegistryFrozen = errors.New("registry is frozen")

	// ErrHandlerPanic is wrapped by HandlerPanicError.
	ErrHandlerPanic = errors.New("handler panicked")
)

// HandlerPanicError carries a recovered handler panic.
type HandlerPanicError struct {
	ID    wire.RemoteID
	Value any
	Stack []byte
}

func (e *HandlerPanicError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrHandlerPanic, e.ID, e.Value)
}

// Unwrap returns ErrHandlerPanic.
func (e *HandlerPanicError) Unwrap() error {
	return ErrHandlerPanic
}

type handlerFunc func(wire.Message)

// Registry maps remote IDs to handlers.
type Registry struct {
	schema *wire.Schema

	mu       sync.RWMutex
	handlers map[wire.RemoteID]handlerFunc
	frozen   bool
}

// NewRegistry creates a registry for the given schema. A nil schema
// selects wire.DefaultSchema.
func NewRegistry(schema *wire.Schema) *Registry {
	if schema == nil {
		schema = wire.DefaultSchema()
	}
	return &Registry{
		schema:   schema,
		handlers: make(map[wire.RemoteID]handlerFunc),
	}
}

// Schema returns the schema used to decode payloads.
func (r *Registry) Schema() *wire.Schema {
	return r.schema
}

// Handle registers fn for id. M must be the variant bound to id.
// Registering again for the same ID replaces the previous handler.
func Handle[M wire.Message](r *Registry, id wire.RemoteID, fn func(M)) error {
	if fn == nil {
		return fmt.Errorf("handler for %s is nil", id)
	}
	bound, ok := r.schema.TypeOf(id)
	if !ok {
		return fmt.Errorf("%w: %s", wire.ErrUnknownRemoteID, id)
	}
	if want := reflect.TypeFor[M](); bound != want {
		return fmt.Errorf("%w: %s is bound to %v, handler takes %v", ErrHandlerType, id, bound, want)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrRegistryFrozen
	}
	r.handlers[id] = func(m wire.Message) {
		fn(m.(M))
	}
	return nil
}

// OnAlarm registers the ALARM handler. The alarm and its note arrive as
// separate arguments.
func OnAlarm(r *Registry, fn func(wire.AlarmMsg, wire.AlarmNote)) error {
	if fn == nil {
		return Handle[wire.Alarm](r, wire.RemoteAlarm, nil)
	}
	return Handle(r, wire.RemoteAlarm, func(a wire.Alarm) {
		fn(a.Msg, a.Note)
	})
}

// OnData registers the DATA handler.
func OnData(r *Registry, fn func(wire.DataMsg)) error {
	return Handle(r, wire.RemoteData, fn)
}

// OnCommand registers the COMMAND handler.
func OnCommand(r *Registry, fn func(wire.CommandMsg)) error {
	return Handle(r, wire.RemoteCommand, fn)
}

// OnActuator registers the ACTUATOR handler.
func OnActuator(r *Registry, fn func(wire.ActuatorMsg)) error {
	return Handle(r, wire.RemoteActuator, fn)
}

// Freeze makes the registry read-only. It is called when the session
// starts and is idempotent.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Registered reports whether a handler exists for id.
func (r *Registry) Registered(id wire.RemoteID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[id]
	return ok
}

// Observer sees each message after it is decoded and before its
// handler runs.
type Observer func(id wire.RemoteID, m wire.Message)

// Dispatch decodes payload with ser and invokes the handler for id on
// the calling goroutine. The payload is not decoded when no handler is
// registered. observe, if non-nil, is called with the decoded message.
// A handler panic is recovered and returned as a *HandlerPanicError.
func (r *Registry) Dispatch(ser wire.Serializer, id wire.RemoteID, payload []byte, observe Observer) error {
	r.mu.RLock()
	h, ok := r.handlers[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %w: %s", ErrNoHandler, wire.ErrUnknownRemoteID, id)
	}

	m, err := r.schema.Decode(ser, id, payload)
	if err != nil {
		return err
	}
	if observe != nil {
		observe(id, m)
	}
	return invoke(id, h, m)
}

// Deliver invokes the handler for id with an already decoded message.
func (r *Registry) Deliver(id wire.RemoteID, m wire.Message) error {
	r.mu.RLock()
	h, ok := r.handlers[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, id)
	}
	if bound, _ := r.schema.TypeOf(id); bound != reflect.TypeOf(m) {
		return fmt.Errorf("%w: %s is bound to %v, got %T", ErrHandlerType, id, bound, m)
	}
	return invoke(id, h, m)
}

func invoke(id wire.RemoteID, h handlerFunc, m wire.Message) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &HandlerPanicError{ID: id, Value: v, Stack: debug.Stack()}
		}
	}()
	h(m)
	return nil
}
