package dispatch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmq-protocol/dmq-go/pkg/wire"
)

func encode(t *testing.T, m wire.Message) []byte {
	t.Helper()
	data, err := wire.Encode(wire.MsgPack(), m)
	require.NoError(t, err)
	return data
}

func TestDispatchToTypedHandler(t *testing.T) {
	r := NewRegistry(nil)

	var got []wire.CommandMsg
	require.NoError(t, OnCommand(r, func(m wire.CommandMsg) {
		got = append(got, m)
	}))

	want := wire.CommandMsg{Action: wire.ActionStart, PollTime: 500}
	require.NoError(t, r.Dispatch(wire.MsgPack(), wire.RemoteCommand, encode(t, want), nil))

	require.Len(t, got, 1)
	assert.Equal(t, want, got[0])
}

func TestOnAlarmSplitsArguments(t *testing.T) {
	r := NewRegistry(nil)

	var (
		gotMsg  wire.AlarmMsg
		gotNote wire.AlarmNote
	)
	require.NoError(t, OnAlarm(r, func(m wire.AlarmMsg, n wire.AlarmNote) {
		gotMsg, gotNote = m, n
	}))

	alarm := wire.Alarm{
		Msg:  wire.AlarmMsg{Source: wire.SourceServer, Alarm: wire.AlarmActuatorError},
		Note: wire.AlarmNote{Note: "Actuator 1 fault"},
	}
	require.NoError(t, r.Dispatch(wire.MsgPack(), wire.RemoteAlarm, encode(t, alarm), nil))

	assert.Equal(t, alarm.Msg, gotMsg)
	assert.Equal(t, alarm.Note, gotNote)
}

func TestHandleValidation(t *testing.T) {
	r := NewRegistry(nil)

	t.Run("unknown id", func(t *testing.T) {
		err := Handle(r, 42, func(wire.CommandMsg) {})
		assert.ErrorIs(t, err, wire.ErrUnknownRemoteID)
	})

	t.Run("type mismatch", func(t *testing.T) {
		err := Handle(r, wire.RemoteData, func(wire.CommandMsg) {})
		assert.ErrorIs(t, err, ErrHandlerType)
		assert.False(t, r.Registered(wire.RemoteData))
	})

	t.Run("ack id", func(t *testing.T) {
		err := Handle(r, wire.RemoteAck, func(wire.CommandMsg) {})
		assert.ErrorIs(t, err, wire.ErrUnknownRemoteID)
	})

	t.Run("nil handler", func(t *testing.T) {
		assert.Error(t, OnData(r, nil))
		assert.Error(t, OnAlarm(r, nil))
	})
}

func TestLastRegistrationWins(t *testing.T) {
	r := NewRegistry(nil)

	var first, second int
	require.NoError(t, OnActuator(r, func(wire.ActuatorMsg) { first++ }))
	require.NoError(t, OnActuator(r, func(wire.ActuatorMsg) { second++ }))

	require.NoError(t, r.Dispatch(wire.MsgPack(), wire.RemoteActuator, encode(t, wire.ActuatorMsg{ID: 1}), nil))
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
}

func TestFrozenRegistry(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, OnData(r, func(wire.DataMsg) {}))

	r.Freeze()
	r.Freeze()
	assert.True(t, r.Frozen())

	err := OnCommand(r, func(wire.CommandMsg) {})
	assert.ErrorIs(t, err, ErrRegistryFrozen)
	assert.False(t, r.Registered(wire.RemoteCommand))
	assert.True(t, r.Registered(wire.RemoteData))
}

func TestDispatchNoHandler(t *testing.T) {
	r := NewRegistry(nil)

	// The payload is never decoded, so garbage is fine.
	err := r.Dispatch(wire.MsgPack(), wire.RemoteData, []byte{0xc1}, nil)
	assert.ErrorIs(t, err, ErrNoHandler)

	err = r.Dispatch(wire.MsgPack(), 99, nil, nil)
	assert.ErrorIs(t, err, ErrNoHandler)
	assert.ErrorIs(t, err, wire.ErrUnknownRemoteID)
}

func TestDispatchDecodeError(t *testing.T) {
	r := NewRegistry(nil)
	called := false
	require.NoError(t, OnActuator(r, func(wire.ActuatorMsg) { called = true }))

	payload, err := wire.MsgPack().Marshal([]any{1})
	require.NoError(t, err)

	err = r.Dispatch(wire.MsgPack(), wire.RemoteActuator, payload, nil)
	assert.ErrorIs(t, err, wire.ErrArityMismatch)
	assert.False(t, called)
}

func TestDispatchRecoversPanic(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, OnCommand(r, func(wire.CommandMsg) {
		panic("boom")
	}))

	err := r.Dispatch(wire.MsgPack(), wire.RemoteCommand, encode(t, wire.CommandMsg{}), nil)
	require.ErrorIs(t, err, ErrHandlerPanic)

	var pe *HandlerPanicError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, wire.RemoteCommand, pe.ID)
	assert.Equal(t, "boom", pe.Value)
	assert.NotEmpty(t, pe.Stack)
}

func TestCustomSchema(t *testing.T) {
	s := wire.NewSchema()
	require.NoError(t, wire.Bind[wire.CommandMsg](s, 7))

	r := NewRegistry(s)
	assert.Same(t, s, r.Schema())

	var got wire.CommandMsg
	require.NoError(t, Handle(r, 7, func(m wire.CommandMsg) { got = m }))

	// Reference IDs are not bound in a custom schema.
	assert.ErrorIs(t, OnCommand(r, func(wire.CommandMsg) {}), wire.ErrUnknownRemoteID)

	require.NoError(t, r.Dispatch(wire.CBOR(), 7, func() []byte {
		b, err := wire.Encode(wire.CBOR(), wire.CommandMsg{Action: wire.ActionStop, PollTime: 10})
		require.NoError(t, err)
		return b
	}(), nil))
	assert.Equal(t, wire.CommandMsg{Action: wire.ActionStop, PollTime: 10}, got)
}

func TestDeliver(t *testing.T) {
	r := NewRegistry(nil)

	var got wire.ActuatorMsg
	require.NoError(t, OnActuator(r, func(m wire.ActuatorMsg) { got = m }))

	require.NoError(t, r.Deliver(wire.RemoteActuator, wire.ActuatorMsg{ID: 2, Position: true}))
	assert.Equal(t, wire.ActuatorMsg{ID: 2, Position: true}, got)

	assert.ErrorIs(t, r.Deliver(wire.RemoteActuator, wire.CommandMsg{}), ErrHandlerType)
	assert.ErrorIs(t, r.Deliver(wire.RemoteData, wire.DataMsg{}), ErrNoHandler)
}

func TestDispatchObserver(t *testing.T) {
	r := NewRegistry(nil)

	var order []string
	require.NoError(t, OnCommand(r, func(wire.CommandMsg) { order = append(order, "handler") }))

	var seen wire.Message
	observe := func(id wire.RemoteID, m wire.Message) {
		assert.Equal(t, wire.RemoteCommand, id)
		seen = m
		order = append(order, "observer")
	}

	want := wire.CommandMsg{Action: wire.ActionStart, PollTime: 500}
	require.NoError(t, r.Dispatch(wire.MsgPack(), wire.RemoteCommand, encode(t, want), observe))
	assert.Equal(t, want, seen)
	assert.Equal(t, []string{"observer", "handler"}, order)

	// Not called when nothing was decoded.
	seen = nil
	assert.Error(t, r.Dispatch(wire.MsgPack(), wire.RemoteCommand, []byte{0xc1}, observe))
	assert.ErrorIs(t, r.Dispatch(wire.MsgPack(), wire.RemoteData, nil, observe), ErrNoHandler)
	assert.Nil(t, seen)
}
