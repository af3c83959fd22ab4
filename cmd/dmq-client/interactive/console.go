// Package interactive provides the readline console for dmq-client.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/dmq-protocol/dmq-go/pkg/client"
	"github.com/dmq-protocol/dmq-go/pkg/wire"
)

// DefaultPollTime is used by "start" without an argument.
const DefaultPollTime = 500

// Session is the part of client.Client the console drives.
type Session interface {
	Send(id wire.RemoteID, m wire.Message) (uint16, error)
	State() client.State
	Stats() client.Stats
	SessionID() string
}

// Console reads commands from a terminal and turns them into messages.
type Console struct {
	sess Session
	rl   *readline.Instance
	out  io.Writer
}

// New creates a console bound to the terminal. It has no session until
// Run.
func New() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "dmq> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("start"),
			readline.PcItem("stop"),
			readline.PcItem("actuator"),
			readline.PcItem("alarm",
				readline.PcItem("client", readline.PcItem("sensor"), readline.PcItem("actuator")),
				readline.PcItem("server", readline.PcItem("sensor"), readline.PcItem("actuator")),
			),
			readline.PcItem("status"),
			readline.PcItem("help"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{rl: rl, out: rl.Stdout()}, nil
}

// Stdout returns a writer that does not clobber the prompt. Route log
// and handler output through it.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Stderr is the prompt-safe counterpart of os.Stderr.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Close releases the terminal.
func (c *Console) Close() error {
	return c.rl.Close()
}

// Run reads commands for sess until quit, EOF or ctx is done. It calls
// cancel when the user leaves.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc, sess Session) {
	defer c.rl.Close()
	c.sess = sess

	go func() {
		<-ctx.Done()
		c.rl.Close()
	}()

	c.printHelp()

	for {
		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) && ctx.Err() == nil {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
		if c.Exec(line) {
			cancel()
			return
		}
	}
}

// Exec runs one command line and reports whether the user asked to quit.
func (c *Console) Exec(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()
	case "start":
		c.cmdStart(args)
	case "stop":
		c.send(wire.RemoteCommand, wire.CommandMsg{Action: wire.ActionStop})
	case "actuator", "act":
		c.cmdActuator(args)
	case "alarm":
		c.cmdAlarm(args)
	case "status":
		c.cmdStatus()
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
DMQ Client Commands:
  start [ms]                          - Ask the server to start polling (default 500 ms)
  stop                                - Ask the server to stop polling
  actuator <id> <on|off>              - Set an actuator position
  alarm <client|server> <sensor|actuator> <note...>
                                      - Raise an alarm
  status                              - Show session state and counters
  help                                - Show this help
  quit                                - Exit`)
}

func (c *Console) send(id wire.RemoteID, m wire.Message) {
	seq, err := c.sess.Send(id, m)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "[SEND] %s seq=%d\n", id, seq)
}

func (c *Console) cmdStart(args []string) {
	pollTime := uint64(DefaultPollTime)
	if len(args) > 0 {
		v, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			fmt.Fprintf(c.out, "Invalid poll time: %s\n", args[0])
			return
		}
		pollTime = v
	}
	c.send(wire.RemoteCommand, wire.CommandMsg{Action: wire.ActionStart, PollTime: uint32(pollTime)})
}

func (c *Console) cmdActuator(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(c.out, "Usage: actuator <id> <on|off>")
		return
	}
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Fprintf(c.out, "Invalid actuator id: %s\n", args[0])
		return
	}
	var pos bool
	switch strings.ToLower(args[1]) {
	case "on", "1", "true":
		pos = true
	case "off", "0", "false":
	default:
		fmt.Fprintf(c.out, "Invalid position: %s (use on or off)\n", args[1])
		return
	}
	c.send(wire.RemoteActuator, wire.ActuatorMsg{ID: uint32(id), Position: pos})
}

func (c *Console) cmdAlarm(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: alarm <client|server> <sensor|actuator> <note...>")
		return
	}

	var src wire.Source
	switch strings.ToLower(args[0]) {
	case "client":
		src = wire.SourceClient
	case "server":
		src = wire.SourceServer
	default:
		fmt.Fprintf(c.out, "Invalid source: %s\n", args[0])
		return
	}

	var typ wire.AlarmType
	switch strings.ToLower(args[1]) {
	case "sensor":
		typ = wire.AlarmSensorError
	case "actuator":
		typ = wire.AlarmActuatorError
	default:
		fmt.Fprintf(c.out, "Invalid alarm type: %s\n", args[1])
		return
	}

	c.send(wire.RemoteAlarm, wire.Alarm{
		Msg:  wire.AlarmMsg{Source: src, Alarm: typ},
		Note: wire.AlarmNote{Note: strings.Join(args[2:], " ")},
	})
}

func (c *Console) cmdStatus() {
	s := c.sess.Stats()
	fmt.Fprintf(c.out, "Session:       %s\n", c.sess.SessionID())
	fmt.Fprintf(c.out, "State:         %s\n", c.sess.State())
	fmt.Fprintf(c.out, "Sent:          %d (last seq %d)\n", s.Sent, s.LastSeq)
	fmt.Fprintf(c.out, "Received:      %d\n", s.Received)
	fmt.Fprintf(c.out, "ACKs sent:     %d\n", s.AcksSent)
	fmt.Fprintf(c.out, "ACKs received: %d\n", s.AcksReceived)
	fmt.Fprintf(c.out, "Dropped:       %d\n", s.Dropped)
	fmt.Fprintf(c.out, "Errors:        %d\n", s.Errors)
}
