package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmq-protocol/dmq-go/pkg/log"
	"github.com/dmq-protocol/dmq-go/pkg/wire"
)

// FilterOptions holds the raw filter flags shared by every command.
type FilterOptions struct {
	SessionID string
	Direction string
	Layer     string
	Category  string
	Type      string
	TimeStart string
	TimeEnd   string
}

// Build parses the options into a log.Filter. Empty options match
// everything.
func (o FilterOptions) Build() (log.Filter, error) {
	f := log.Filter{SessionID: o.SessionID}

	if o.Direction != "" {
		d, ok := log.ParseDirection(strings.ToLower(o.Direction))
		if !ok {
			return log.Filter{}, fmt.Errorf("invalid direction: %s (must be in, out, or none)", o.Direction)
		}
		f.Direction = &d
	}
	if o.Layer != "" {
		l, ok := log.ParseLayer(strings.ToLower(o.Layer))
		if !ok {
			return log.Filter{}, fmt.Errorf("invalid layer: %s (must be transport, wire, or session)", o.Layer)
		}
		f.Layer = &l
	}
	if o.Category != "" {
		c, err := parseCategory(o.Category)
		if err != nil {
			return log.Filter{}, err
		}
		f.Category = &c
	}
	if o.Type != "" {
		id, err := wire.ParseRemoteID(strings.ToUpper(o.Type))
		if err != nil {
			return log.Filter{}, err
		}
		raw := uint16(id)
		f.RemoteID = &raw
	}
	if o.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, o.TimeStart)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-start format: %w", err)
		}
		f.TimeStart = &t
	}
	if o.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, o.TimeEnd)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-end format: %w", err)
		}
		f.TimeEnd = &t
	}
	return f, nil
}

func parseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "ack":
		return log.CategoryAck, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, ack, state, or error)", s)
	}
}

// openFiltered opens path with the filter described by opts.
func openFiltered(path string, opts FilterOptions) (*log.Reader, error) {
	filter, err := opts.Build()
	if err != nil {
		return nil, err
	}
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return reader, nil
}

// each calls fn for every event reader yields.
func each(reader *log.Reader, fn func(log.Event) error) error {
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}

// RunFilter copies the events of path that match opts into output and
// reports how many were written.
func RunFilter(path, output string, opts FilterOptions, w io.Writer) error {
	reader, err := openFiltered(path, opts)
	if err != nil {
		return err
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(output)
	if err != nil {
		return fmt.Errorf("failed to create output logger: %w", err)
	}
	defer logger.Close()

	count := 0
	if err := each(reader, func(e log.Event) error {
		logger.Log(e)
		count++
		return nil
	}); err != nil {
		return err
	}
	if n := logger.Dropped(); n > 0 {
		return fmt.Errorf("failed to write %d events to %s", n, output)
	}

	fmt.Fprintf(w, "Filtered %d events to %s\n", count, output)
	return nil
}
