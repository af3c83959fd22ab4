package wire

import (
	"fmt"
	"strconv"
)

// RemoteID selects the message type of a frame and the handler it is
// dispatched to.
type RemoteID uint16

// Remote IDs of the reference deployment. They must match the peer's
// RemoteIds table exactly.
const (
	// RemoteAck is reserved for acknowledgments.
	RemoteAck RemoteID = 0

	RemoteAlarm    RemoteID = 1
	RemoteData     RemoteID = 2
	RemoteCommand  RemoteID = 3
	RemoteActuator RemoteID = 4
)

// String returns the ID name.
func (id RemoteID) String() string {
	switch id {
	case RemoteAck:
		return "ACK"
	case RemoteAlarm:
		return "ALARM"
	case RemoteData:
		return "DATA"
	case RemoteCommand:
		return "COMMAND"
	case RemoteActuator:
		return "ACTUATOR"
	default:
		return fmt.Sprintf("ID(%d)", uint16(id))
	}
}

// ParseRemoteID parses an ID name (case-sensitive upper case) or a decimal number.
func ParseRemoteID(s string) (RemoteID, error) {
	switch s {
	case "ACK":
		return RemoteAck, nil
	case "ALARM":
		return RemoteAlarm, nil
	case "DATA":
		return RemoteData, nil
	case "COMMAND":
		return RemoteCommand, nil
	case "ACTUATOR":
		return RemoteActuator, nil
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid remote id: %q", s)
	}
	return RemoteID(n), nil
}
