package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dmq-protocol/dmq-go/pkg/dispatch"
	"github.com/dmq-protocol/dmq-go/pkg/wire"
)

// sender is the part of client.Client the background tasks use.
type sender interface {
	Send(id wire.RemoteID, m wire.Message) (uint16, error)
}

// registerPrinters installs handlers that print ALARM, COMMAND and DATA
// messages to out.
func registerPrinters(reg *dispatch.Registry, out io.Writer) error {
	if err := dispatch.OnAlarm(reg, func(m wire.AlarmMsg, n wire.AlarmNote) {
		fmt.Fprintf(out, "[RECV] Alarm: source=%s alarm=%s | Note: %q\n", m.Source, m.Alarm, n.Note)
	}); err != nil {
		return err
	}
	if err := dispatch.OnCommand(reg, func(m wire.CommandMsg) {
		fmt.Fprintf(out, "[RECV] Command: action=%s pollTime=%d\n", m.Action, m.PollTime)
	}); err != nil {
		return err
	}
	return dispatch.OnData(reg, func(m wire.DataMsg) {
		fmt.Fprintf(out, "[RECV] Data: %d Sensors, %d Actuators\n", len(m.Sensors), len(m.Actuators))
		for _, s := range m.Sensors {
			fmt.Fprintf(out, "  -> Sensor ID %d: Supply=%.2fV, Reading=%.2fV\n", s.ID, s.SupplyV, s.ReadingV)
		}
	})
}

// actuatorIDs are toggled together by runActuators.
var actuatorIDs = []uint32{1, 2}

// runActuators flips the position of every actuator in actuatorIDs each
// interval until ctx is done. Send failures are logged and the loop
// carries on.
func runActuators(ctx context.Context, s sender, interval time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	position := false
	for {
		position = !position
		logger.Info("actuator update", "position", position)
		for _, id := range actuatorIDs {
			if _, err := s.Send(wire.RemoteActuator, wire.ActuatorMsg{ID: id, Position: position}); err != nil {
				logger.Warn("actuator send failed", "actuator", id, "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// sendStart waits settle, then asks the peer to start polling every
// pollTime milliseconds.
func sendStart(ctx context.Context, s sender, settle time.Duration, pollTime uint32, logger *slog.Logger) error {
	select {
	case <-ctx.Done():
		return nil
	case <-time.After(settle):
	}

	seq, err := s.Send(wire.RemoteCommand, wire.CommandMsg{Action: wire.ActionStart, PollTime: pollTime})
	if err != nil {
		return fmt.Errorf("send start command: %w", err)
	}
	logger.Info("start command sent", "seq", seq, "pollTime", pollTime)
	return nil
}
