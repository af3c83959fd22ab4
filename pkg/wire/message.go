package wire

import (
	"fmt"
	"math"
)

// Message is one of the DMQ message variants: CommandMsg, Alarm,
// DataMsg or ActuatorMsg. The set is closed.
type Message interface {
	// wireArgs returns the remote delegate arguments in wire order.
	wireArgs() []any
}

// Action is the command action.
type Action uint8

const (
	ActionStart Action = 0
	ActionStop  Action = 1
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionStart:
		return "START"
	case ActionStop:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}

// Source identifies which side raised an alarm.
type Source uint8

const (
	SourceClient Source = 0
	SourceServer Source = 1
)

// String returns the source name.
func (s Source) String() string {
	switch s {
	case SourceClient:
		return "CLIENT"
	case SourceServer:
		return "SERVER"
	default:
		return "UNKNOWN"
	}
}

// AlarmType classifies an alarm.
type AlarmType uint8

const (
	AlarmSensorError   AlarmType = 0
	AlarmActuatorError AlarmType = 1
)

// String returns the alarm type name.
func (a AlarmType) String() string {
	switch a {
	case AlarmSensorError:
		return "SENSOR_ERROR"
	case AlarmActuatorError:
		return "ACTUATOR_ERROR"
	default:
		return "UNKNOWN"
	}
}

// CommandMsg starts or stops the peer's polling.
//
// Wire encoding: [action, pollTime]
type CommandMsg struct {
	Action   Action
	PollTime uint32 // milliseconds
}

func (m CommandMsg) wireArgs() []any {
	return []any{[]any{uint8(m.Action), m.PollTime}}
}

func (m *CommandMsg) decodeArgs(args []any) error {
	l, err := argList(args, 0, 1, 2, "CommandMsg")
	if err != nil {
		return err
	}
	action, err := enumField(l[0], "CommandMsg", "action", uint64(ActionStop))
	if err != nil {
		return err
	}
	poll, err := uintField(l[1], "CommandMsg", "pollTime", math.MaxUint32)
	if err != nil {
		return err
	}
	m.Action = Action(action)
	m.PollTime = uint32(poll)
	return nil
}

// AlarmMsg describes an alarm condition.
//
// Wire encoding: [source, alarm]
type AlarmMsg struct {
	Source Source
	Alarm  AlarmType
}

// AlarmNote carries the free-text description of an alarm.
//
// Wire encoding: [note]
type AlarmNote struct {
	Note string
}

// Alarm is the ALARM message: an AlarmMsg and its AlarmNote sent as two
// separate arguments.
type Alarm struct {
	Msg  AlarmMsg
	Note AlarmNote
}

func (m Alarm) wireArgs() []any {
	return []any{
		[]any{uint8(m.Msg.Source), uint8(m.Msg.Alarm)},
		[]any{m.Note.Note},
	}
}

func (m *Alarm) decodeArgs(args []any) error {
	if len(args) < 2 {
		return &ArityError{Type: "Alarm", Want: 2, Got: len(args)}
	}
	l, err := argList(args, 0, 2, 2, "AlarmMsg")
	if err != nil {
		return err
	}
	source, err := enumField(l[0], "AlarmMsg", "source", uint64(SourceServer))
	if err != nil {
		return err
	}
	alarm, err := enumField(l[1], "AlarmMsg", "alarm", uint64(AlarmActuatorError))
	if err != nil {
		return err
	}
	n, err := argList(args, 1, 2, 1, "AlarmNote")
	if err != nil {
		return err
	}
	note, ok := ToString(n[0])
	if !ok {
		return fieldError("AlarmNote", "note", n[0])
	}
	m.Msg = AlarmMsg{Source: Source(source), Alarm: AlarmType(alarm)}
	m.Note = AlarmNote{Note: note}
	return nil
}

// ActuatorState is one actuator entry in a DataMsg.
//
// Wire encoding: [id, position, voltage]
type ActuatorState struct {
	ID       uint32
	Position bool
	Voltage  float64
}

// SensorData is one sensor entry in a DataMsg.
//
// Wire encoding: [id, supplyV, readingV]
type SensorData struct {
	ID       uint32
	SupplyV  float64
	ReadingV float64
}

// DataMsg is the periodic actuator and sensor snapshot.
//
// Wire encoding: [[actuator...], [sensor...]]
type DataMsg struct {
	Actuators []ActuatorState
	Sensors   []SensorData
}

func (m DataMsg) wireArgs() []any {
	actuators := make([]any, 0, len(m.Actuators))
	for _, a := range m.Actuators {
		actuators = append(actuators, []any{a.ID, a.Position, a.Voltage})
	}
	sensors := make([]any, 0, len(m.Sensors))
	for _, s := range m.Sensors {
		sensors = append(sensors, []any{s.ID, s.SupplyV, s.ReadingV})
	}
	return []any{[]any{actuators, sensors}}
}

func (m *DataMsg) decodeArgs(args []any) error {
	l, err := argList(args, 0, 1, 2, "DataMsg")
	if err != nil {
		return err
	}
	rawActuators, ok := ToList(l[0])
	if !ok {
		return fieldError("DataMsg", "actuators", l[0])
	}
	rawSensors, ok := ToList(l[1])
	if !ok {
		return fieldError("DataMsg", "sensors", l[1])
	}

	var actuators []ActuatorState
	for i, raw := range rawActuators {
		a, err := decodeActuatorState(raw)
		if err != nil {
			return fmt.Errorf("actuators[%d]: %w", i, err)
		}
		actuators = append(actuators, a)
	}
	var sensors []SensorData
	for i, raw := range rawSensors {
		s, err := decodeSensorData(raw)
		if err != nil {
			return fmt.Errorf("sensors[%d]: %w", i, err)
		}
		sensors = append(sensors, s)
	}
	m.Actuators = actuators
	m.Sensors = sensors
	return nil
}

func decodeActuatorState(raw any) (ActuatorState, error) {
	l, err := record(raw, 3, "ActuatorState")
	if err != nil {
		return ActuatorState{}, err
	}
	id, err := uintField(l[0], "ActuatorState", "id", math.MaxUint32)
	if err != nil {
		return ActuatorState{}, err
	}
	pos, ok := l[1].(bool)
	if !ok {
		return ActuatorState{}, fieldError("ActuatorState", "position", l[1])
	}
	volt, ok := ToFloat64(l[2])
	if !ok {
		return ActuatorState{}, fieldError("ActuatorState", "voltage", l[2])
	}
	return ActuatorState{ID: uint32(id), Position: pos, Voltage: volt}, nil
}

func decodeSensorData(raw any) (SensorData, error) {
	l, err := record(raw, 3, "SensorData")
	if err != nil {
		return SensorData{}, err
	}
	id, err := uintField(l[0], "SensorData", "id", math.MaxUint32)
	if err != nil {
		return SensorData{}, err
	}
	supply, ok := ToFloat64(l[1])
	if !ok {
		return SensorData{}, fieldError("SensorData", "supplyV", l[1])
	}
	reading, ok := ToFloat64(l[2])
	if !ok {
		return SensorData{}, fieldError("SensorData", "readingV", l[2])
	}
	return SensorData{ID: uint32(id), SupplyV: supply, ReadingV: reading}, nil
}

// ActuatorMsg sets one actuator's position.
//
// Wire encoding: [id, position]
type ActuatorMsg struct {
	ID       uint32
	Position bool
}

func (m ActuatorMsg) wireArgs() []any {
	return []any{[]any{m.ID, m.Position}}
}

func (m *ActuatorMsg) decodeArgs(args []any) error {
	l, err := argList(args, 0, 1, 2, "ActuatorMsg")
	if err != nil {
		return err
	}
	id, err := uintField(l[0], "ActuatorMsg", "id", math.MaxUint32)
	if err != nil {
		return err
	}
	pos, ok := l[1].(bool)
	if !ok {
		return fieldError("ActuatorMsg", "position", l[1])
	}
	m.ID = uint32(id)
	m.Position = pos
	return nil
}

// argList returns argument idx as a list with at least fields elements.
// argc is the number of arguments the message carries.
func argList(args []any, idx, argc, fields int, typ string) ([]any, error) {
	if len(args) <= idx {
		return nil, &ArityError{Type: typ + " arguments", Want: argc, Got: len(args)}
	}
	return record(args[idx], fields, typ)
}

// record checks that raw is an array with at least fields elements.
func record(raw any, fields int, typ string) ([]any, error) {
	l, ok := ToList(raw)
	if !ok {
		return nil, fmt.Errorf("%w: %s: expected array, got %T", ErrFieldType, typ, raw)
	}
	if len(l) < fields {
		return nil, &ArityError{Type: typ, Want: fields, Got: len(l)}
	}
	return l, nil
}

func uintField(v any, typ, field string, max uint64) (uint64, error) {
	n, ok := ToUint64(v)
	if !ok {
		return 0, fieldError(typ, field, v)
	}
	if n > max {
		return 0, rangeError(typ, field, n)
	}
	return n, nil
}

func enumField(v any, typ, field string, max uint64) (uint8, error) {
	n, err := uintField(v, typ, field, max)
	if err != nil {
		return 0, err
	}
	return uint8(n), nil
}
