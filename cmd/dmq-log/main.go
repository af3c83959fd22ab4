// Command dmq-log views and analyzes DMQ protocol capture files.
//
// Capture files are written by dmq-client with -protocol-log.
//
// Usage:
//
//	dmq-log <command> [flags] <file.dlog>
//
// Commands:
//
//	view     View events in human-readable format
//	stats    Show statistics about the capture
//	export   Export events as JSON lines or CSV
//	filter   Write matching events to a new capture file
//
// Every command accepts the same filter flags: -direction, -layer,
// -category, -type, -session, -time-start and -time-end.
//
// Examples:
//
//	# View incoming frames only
//	dmq-log view -direction in -layer transport session.dlog
//
//	# Statistics for DATA traffic
//	dmq-log stats -type DATA session.dlog
//
//	# Export to CSV
//	dmq-log export -format csv -o session.csv session.dlog
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dmq-protocol/dmq-go/cmd/dmq-log/commands"
)

const usage = `dmq-log - DMQ Protocol Log Analyzer

Usage:
  dmq-log <command> [flags] <file.dlog>

Commands:
  view     View events in human-readable format
  stats    Show statistics about the capture
  export   Export events as JSON lines or CSV
  filter   Write matching events to a new capture file

Use "dmq-log <command> -help" for more information about a command.
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprint(stderr, usage)
		return 1
	}

	cmd, args := args[0], args[1:]

	var err error
	switch cmd {
	case "view":
		err = runView(args, stdout, stderr)
	case "stats":
		err = runStats(args, stdout, stderr)
	case "export":
		err = runExport(args, stderr)
	case "filter":
		err = runFilter(args, stdout, stderr)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(stderr, usage)
		return 1
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

var errNoPath = errors.New("log file path required")

// newFlagSet creates a flag set with the shared filter flags bound to opts.
func newFlagSet(name, summary string, opts *commands.FilterOptions, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "dmq-log %s - %s\n\nUsage:\n  dmq-log %s [flags] <file.dlog>\n\nFlags:\n", name, summary, name)
		fs.PrintDefaults()
	}

	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, wire, session)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (message, ack, state, error)")
	fs.StringVar(&opts.Type, "type", "", "Filter by message type (name or number)")
	fs.StringVar(&opts.SessionID, "session", "", "Filter by session ID")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	return fs
}

func parsePath(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return "", errNoPath
	}
	return fs.Arg(0), nil
}

func runView(args []string, stdout, stderr io.Writer) error {
	var opts commands.FilterOptions
	fs := newFlagSet("view", "View events in human-readable format", &opts, stderr)
	path, err := parsePath(fs, args)
	if err != nil {
		return err
	}
	return commands.RunView(path, opts, stdout)
}

func runStats(args []string, stdout, stderr io.Writer) error {
	var opts commands.FilterOptions
	fs := newFlagSet("stats", "Show statistics about the capture", &opts, stderr)
	path, err := parsePath(fs, args)
	if err != nil {
		return err
	}
	return commands.RunStats(path, opts, stdout)
}

func runExport(args []string, stderr io.Writer) error {
	var opts commands.FilterOptions
	fs := newFlagSet("export", "Export events as JSON lines or CSV", &opts, stderr)
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path, err := parsePath(fs, args)
	if err != nil {
		return err
	}
	return commands.RunExport(path, *format, *output, opts)
}

func runFilter(args []string, stdout, stderr io.Writer) error {
	var opts commands.FilterOptions
	fs := newFlagSet("filter", "Write matching events to a new capture file", &opts, stderr)
	output := fs.String("o", "", "Output file (required)")
	path, err := parsePath(fs, args)
	if err != nil {
		return err
	}
	if *output == "" {
		fs.Usage()
		return errors.New("output file (-o) required")
	}
	return commands.RunFilter(path, *output, opts, stdout)
}
