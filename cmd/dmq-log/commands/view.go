// Package commands implements the dmq-log CLI commands.
package commands

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dmq-protocol/dmq-go/pkg/log"
	"github.com/dmq-protocol/dmq-go/pkg/wire"
)

const timeFormat = "2006-01-02T15:04:05.000000Z"

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// timestamp [session] DIRECTION LAYER Label
	ts := event.Timestamp.UTC().Format(timeFormat)
	fmt.Fprintf(w, "%s [%s] %-3s %s %s\n",
		ts, shortenID(event.SessionID), event.Direction, event.Layer, eventLabel(event))

	switch {
	case event.Frame != nil:
		formatFrameDetails(w, event.Endpoint, event.Frame)
	case event.Message != nil:
		formatMessageDetails(w, event.Message)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

func eventLabel(event log.Event) string {
	switch {
	case event.Frame != nil && event.Category == log.CategoryAck:
		return "ACK"
	case event.Frame != nil:
		return "Frame " + wire.RemoteID(event.Frame.RemoteID).String()
	case event.Message != nil:
		return event.Message.Type
	case event.StateChange != nil:
		return "State"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// shortenID returns the first 8 characters of a session ID.
func shortenID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatFrameDetails(w io.Writer, endpoint string, f *log.FrameEvent) {
	if endpoint != "" {
		fmt.Fprintf(w, "  Endpoint: %s\n", endpoint)
	}
	fmt.Fprintf(w, "  Seq: %d  Size: %d bytes\n", f.Seq, f.Size)
	if len(f.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(f.Data))
		if f.Truncated {
			fmt.Fprint(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatMessageDetails(w io.Writer, msg *log.MessageEvent) {
	fmt.Fprintf(w, "  Type: %s  Seq: %d\n", wire.RemoteID(msg.RemoteID), msg.Seq)
	if msg.Payload != nil {
		if b, err := json.Marshal(msg.Payload); err == nil {
			fmt.Fprintf(w, "  Payload: %s\n", b)
		}
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity)
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, e *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", e.Layer)
	fmt.Fprintf(w, "  Message: %s\n", e.Message)
	if e.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", e.Context)
	}
}

// RunView prints the events of path that match opts.
func RunView(path string, opts FilterOptions, output io.Writer) error {
	reader, err := openFiltered(path, opts)
	if err != nil {
		return err
	}
	defer reader.Close()

	return each(reader, func(e log.Event) error {
		formatEvent(output, e)
		return nil
	})
}
