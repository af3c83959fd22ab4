package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dmq-protocol/dmq-go/pkg/log"
	"github.com/dmq-protocol/dmq-go/pkg/wire"
)

// RunExport writes the events of path that match opts as JSON lines or
// CSV. An empty output writes to stdout.
func RunExport(path, format, output string, opts FilterOptions) error {
	if format != "jsonl" && format != "csv" {
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	reader, err := openFiltered(path, opts)
	if err != nil {
		return err
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if format == "csv" {
		return exportCSV(reader, w)
	}
	return exportJSONL(reader, w)
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	return each(reader, func(e log.Event) error {
		if err := encoder.Encode(e); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		return nil
	})
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)

	header := []string{"timestamp", "session_id", "direction", "layer", "category", "type", "seq", "size"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	err := each(reader, func(e log.Event) error {
		var typ, seq, size string
		switch {
		case e.Frame != nil:
			typ = wire.RemoteID(e.Frame.RemoteID).String()
			seq = strconv.Itoa(int(e.Frame.Seq))
			size = strconv.Itoa(e.Frame.Size)
		case e.Message != nil:
			typ = e.Message.Type
			seq = strconv.Itoa(int(e.Message.Seq))
		case e.StateChange != nil:
			typ = "state"
		case e.Error != nil:
			typ = "error"
		}

		row := []string{
			e.Timestamp.UTC().Format(timeFormat),
			e.SessionID,
			e.Direction.String(),
			e.Layer.String(),
			e.Category.String(),
			typ,
			seq,
			size,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}
