package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/iotdm/iotdm-go/pkg/client"
	"github.com/iotdm/iotdm-go/pkg/content"
	"github.com/iotdm/iotdm-go/pkg/inspect"
	"github.com/iotdm/iotdm-go/pkg/model"
)

// shell is the interactive command line. Every command that touches the
// Channel runs through do on the runner goroutine.
type shell struct {
	out    io.Writer
	format *inspect.Formatter
	do     func(fn func(*client.Channel)) bool
	save   func(*client.Channel) error
}

// runShell reads commands until quit, EOF or ctx is done, then calls
// cancel.
func runShell(ctx context.Context, cancel context.CancelFunc, rl *readline.Instance, sh *shell) {
	defer rl.Close()

	sh.printHelp()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(sh.out, "Exiting...")
			cancel()
			return
		}
		if sh.execute(line) {
			fmt.Fprintln(sh.out, "Exiting...")
			cancel()
			return
		}
	}
}

// execute runs one command line. It returns true when the user asked to
// quit.
func (s *shell) execute(line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
	case "status", "s":
		s.cmdStatus()
	case "tree", "t":
		s.cmdTree(args)
	case "read", "r":
		s.cmdRead(args)
	case "set":
		s.cmdSet(args)
	case "exec", "x":
		s.cmdExec(args)
	case "save":
		s.cmdSave()
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (s *shell) printHelp() {
	fmt.Fprintln(s.out, `
Device Client Commands:
  Inspection:
    status              - Show connection and registration state
    tree [path]         - List objects, instances and resources
    read <path>         - Read values as the server would

  Local updates:
    set <path> <value>  - Update a resource value
    exec <path> [args]  - Run an executable resource
    save                - Write the state file now

  General:
    help                - Show this help
    quit                - Exit

  Path Format:
    /object/instance/resource - e.g., /3/0/9
    Names work too            - e.g., device/0/battery-level`)
}

func (s *shell) cmdStatus() {
	s.do(func(ch *client.Channel) {
		fmt.Fprintf(s.out, "Connection:   %s\n", ch.ConnectionID())
		fmt.Fprintf(s.out, "Endpoint:     %s\n", ch.Endpoint())
		fmt.Fprintf(s.out, "State:        %s\n", ch.State())
		if loc := ch.Location(); loc != "" {
			fmt.Fprintf(s.out, "Location:     %s\n", loc)
		}
		fmt.Fprintf(s.out, "Observations: %d\n", ch.Observations())
	})
}

// resolve turns a command argument into a path. Names are looked up in
// the registry, so it must run inside do.
func (s *shell) resolve(ch *client.Channel, arg string) (model.Path, bool) {
	p, err := inspect.ResolvePath(ch.Registry(), arg)
	if err != nil {
		fmt.Fprintf(s.out, "Invalid path: %v\n", err)
		return model.Path{}, false
	}
	return p, true
}

func (s *shell) cmdTree(args []string) {
	s.do(func(ch *client.Channel) {
		root := model.RootPath()
		if len(args) > 0 {
			var ok bool
			if root, ok = s.resolve(ch, args[0]); !ok {
				return
			}
		}
		if err := s.format.WriteTree(s.out, ch.Registry(), root); err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	})
}

func (s *shell) cmdRead(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(s.out, "Usage: read <path>")
		return
	}
	s.do(func(ch *client.Channel) {
		p, ok := s.resolve(ch, args[0])
		if !ok {
			return
		}
		values, err := ch.Registry().Read(p)
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			return
		}
		s.format.WriteValues(s.out, ch.Registry(), values)
	})
}

func (s *shell) cmdSet(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.out, "Usage: set <path> <value>")
		return
	}
	raw := strings.Join(args[1:], " ")
	s.do(func(ch *client.Channel) {
		p, ok := s.resolve(ch, args[0])
		if !ok {
			return
		}
		def, err := ch.Registry().Definition(p)
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			return
		}
		v, err := content.ParseText(def.Type, raw)
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			return
		}
		if err := ch.SetValue(p, v); err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			return
		}
		fmt.Fprintf(s.out, "%s = %s\n", p, s.format.FormatValue(v, def.Units))
	})
}

func (s *shell) cmdExec(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(s.out, "Usage: exec <path> [args]")
		return
	}
	execArgs := strings.Join(args[1:], " ")
	s.do(func(ch *client.Channel) {
		p, ok := s.resolve(ch, args[0])
		if !ok {
			return
		}
		if err := ch.Registry().Execute(context.Background(), p, execArgs); err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			return
		}
		fmt.Fprintf(s.out, "Executed %s\n", p)
	})
}

func (s *shell) cmdSave() {
	if s.save == nil {
		fmt.Fprintln(s.out, "No state file configured")
		return
	}
	s.do(func(ch *client.Channel) {
		if err := s.save(ch); err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			return
		}
		fmt.Fprintln(s.out, "State saved")
	})
}
