// Command dm-log is a tool for viewing and analyzing protocol capture files.
//
// Capture files are written by dm-client with the -protocol-log flag.
//
// Usage:
//
//	dm-log <command> [flags] <file.dmlog>
//
// Commands:
//
//	view     View capture file in human-readable format
//	export   Export capture file to JSONL or CSV format
//	filter   Filter capture file and write to new file
//	stats    Show statistics about the capture file
//
// Examples:
//
//	# View only wire-layer events
//	dm-log view -layer wire device.dmlog
//
//	# View traffic for the Device object
//	dm-log view -path /3 device.dmlog
//
//	# Filter by connection and save to new file
//	dm-log filter -conn-id abc12345-... -o filtered.dmlog device.dmlog
//
//	# Follow one observation from a capture piped on stdin
//	cat device.dmlog | dm-log view -token 3f2a -
//
//	# Show statistics
//	dm-log stats device.dmlog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/iotdm/iotdm-go/cmd/dm-log/commands"
)

const usage = `dm-log - Device Management Protocol Log Analyzer

Usage:
  dm-log <command> [flags] <file.dmlog>

Commands:
  view     View capture file in human-readable format
  export   Export capture file to JSONL or CSV format
  filter   Filter capture file and write to new file
  stats    Show statistics about the capture file

Use "dm-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// filterFlags registers the shared filter flags on fs.
func filterFlags(fs *flag.FlagSet) *commands.FilterFlags {
	f := &commands.FilterFlags{}
	fs.StringVar(&f.ConnID, "conn-id", "", "Filter by connection ID")
	fs.StringVar(&f.Endpoint, "endpoint", "", "Filter by client endpoint name")
	fs.StringVar(&f.Path, "path", "", "Filter messages by request path prefix")
	fs.StringVar(&f.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&f.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&f.Layer, "layer", "", "Filter by layer (transport, wire, session)")
	fs.StringVar(&f.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&f.Category, "category", "", "Filter by category (message, state, error)")
	fs.StringVar(&f.Operation, "op", "", "Filter requests by operation (read, observe, register, ...)")
	fs.StringVar(&f.Token, "token", "", "Follow one exchange by its hex token")
	return f
}

func usageFor(fs *flag.FlagSet, text string) {
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, text)
		fs.PrintDefaults()
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func requirePath(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	usageFor(fs, `dm-log view - View capture file in human-readable format

Usage:
  dm-log view [flags] <file.dmlog>

Flags:
`)
	flags := filterFlags(fs)
	path := requirePath(fs, args)

	filter, err := flags.Build()
	if err != nil {
		fail(err)
	}
	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	usageFor(fs, `dm-log export - Export capture file to JSONL or CSV format

Usage:
  dm-log export [flags] <file.dmlog>

Flags:
`)
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path := requirePath(fs, args)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	usageFor(fs, `dm-log filter - Filter capture file and write to new file

Usage:
  dm-log filter [flags] <file.dmlog>

Flags:
`)
	output := fs.String("o", "", "Output file (required)")
	flags := filterFlags(fs)
	path := requirePath(fs, args)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	n, err := commands.RunFilter(path, *output, *flags)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Filtered %d events to %s\n", n, *output)
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	usageFor(fs, `dm-log stats - Show statistics about the capture file

Usage:
  dm-log stats <file.dmlog>

`)
	path := requirePath(fs, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}
