package launch

import (
	"fmt"
	"strings"

	"github.com/go-delve/gdblaunch/pkg/config"
)

// ShellString renders args the way they are shown to users and written to
// the monitor command file: every argument in single quotes, followed by a
// space. Arguments containing a single quote are not escaped.
func ShellString(args []string) string {
	return config.QuoteFields(args, '\'')
}

// LaunchTarget is what a client needs to reproduce an advisory launch
// command: the debugger, the remote address and the image to debug.
type LaunchTarget struct {
	Debugger string
	Address  string
	ExeImage string
	Args     []string
}

// ErrMalformedLaunchCommand is returned by ParseLaunchCommand when line is
// not a launch command.
type ErrMalformedLaunchCommand struct {
	line, reason string
}

func (err *ErrMalformedLaunchCommand) Error() string {
	return fmt.Sprintf("malformed launch command %q: %s", err.line, err.reason)
}

// ParseLaunchCommand parses a command rendered by ShellString from
// LaunchCommand back into its parts.
func ParseLaunchCommand(line string) (*LaunchTarget, error) {
	fields := config.SplitQuotedFields(strings.TrimSpace(line), '\'')
	if len(fields) < 2 {
		return nil, &ErrMalformedLaunchCommand{line, "too few arguments"}
	}
	addr := ""
	for i := 1; i < len(fields)-1; i++ {
		switch fields[i] {
		case "-ex":
			if i+1 >= len(fields)-1 {
				return nil, &ErrMalformedLaunchCommand{line, "-ex not followed by an argument"}
			}
			arg := fields[i+1]
			i++
			if strings.HasPrefix(arg, targetCmd) {
				addr = arg[len(targetCmd):]
			}

		case "-l", "-x":
			// skip argument
			i++
		}
	}

	if addr == "" {
		return nil, &ErrMalformedLaunchCommand{line, "could not find target command"}
	}

	return &LaunchTarget{
		Debugger: fields[0],
		Address:  addr,
		ExeImage: fields[len(fields)-1],
		Args:     fields,
	}, nil
}
