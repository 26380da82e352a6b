// Package gdbmacros builds the command script loaded into gdb when it is
// launched against a replay session.
//
// The script implements functionality outside of the gdb remote protocol:
// the replay specific commands (checkpoints, restart, seek-ticks, history
// navigation) and the hooks that keep gdb's notion of "run" consistent with
// a replay that can be restarted at any point.
package gdbmacros

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrFrozen is returned by Register once the script has been computed.
var ErrFrozen = errors.New("gdb macros already computed, cannot register more commands")

// Library computes the gdb command script once and caches it.
// The zero value is ready to use and has no extension commands registered.
type Library struct {
	mu       sync.Mutex
	commands []Command
	frozen   bool

	once   sync.Once
	script string
}

// NewLibrary returns a Library with cmds registered.
func NewLibrary(cmds ...Command) *Library {
	lib := &Library{}
	lib.commands = append(lib.commands, cmds...)
	return lib
}

// Register adds an extension command binding to the script. It must be
// called before the first call to Compute.
func (lib *Library) Register(cmd Command) error {
	lib.mu.Lock()
	defer lib.mu.Unlock()
	if lib.frozen {
		return ErrFrozen
	}
	if cmd.Name == "" {
		return errors.New("extension command without a name")
	}
	for _, c := range lib.commands {
		if c.Name == cmd.Name {
			return fmt.Errorf("extension command %q registered twice", cmd.Name)
		}
	}
	lib.commands = append(lib.commands, cmd)
	return nil
}

// Compute returns the gdb command script. The first call builds it, every
// later call returns the same string.
func (lib *Library) Compute() string {
	lib.once.Do(func() {
		lib.mu.Lock()
		lib.frozen = true
		cmds := lib.commands
		lib.mu.Unlock()

		var sb strings.Builder
		sb.WriteString(baseMacros(cmds))
		sb.WriteString(replayMacros)
		sb.WriteString(versionCheck)
		lib.script = sb.String()
	})
	return lib.script
}

func baseMacros(cmds []Command) string {
	var sb strings.Builder
	sb.WriteString(helpersPrologue)
	for _, cmd := range cmds {
		sb.WriteString(cmd.binding())
	}
	sb.WriteString(historyHooks)
	return sb.String()
}

// replayMacros are defined on top of the extension commands.
//
// In gdb version "Fedora 7.8.1-30.fc21" a raw "run" issued before any
// resume command hangs gdb right after the inferior hits an internal
// breakpoint. hook-run issues a stepi first, unless the inferior already
// exited ($_thread == 0) or a resume command already ran since the last
// restart; the hookpost definitions maintain that second condition.
const replayMacros = `define restart
  run c$arg0
end
document restart
restart at checkpoint N
checkpoints are created with the 'checkpoint' command
end
define seek-ticks
  run t$arg0
end
document seek-ticks
restart at given ticks value
end
define jump
  rr-denied jump
end
define hook-run
  rr-hook-run
end
define hookpost-continue
  rr-set-suppress-run-hook 1
end
define hookpost-step
  rr-set-suppress-run-hook 1
end
define hookpost-stepi
  rr-set-suppress-run-hook 1
end
define hookpost-next
  rr-set-suppress-run-hook 1
end
define hookpost-nexti
  rr-set-suppress-run-hook 1
end
define hookpost-finish
  rr-set-suppress-run-hook 1
end
define hookpost-reverse-continue
  rr-set-suppress-run-hook 1
end
define hookpost-reverse-step
  rr-set-suppress-run-hook 1
end
define hookpost-reverse-stepi
  rr-set-suppress-run-hook 1
end
define hookpost-reverse-finish
  rr-set-suppress-run-hook 1
end
define hookpost-run
  rr-set-suppress-run-hook 0
end
set unwindonsignal on
handle SIGURG stop
set prompt (rr) 
`

// versionCheck works around gdb versions that hang on the remote protocol
// with target-async enabled. Both "set target-async" and "maint set
// target-async" are issued since the command was renamed.
const versionCheck = `python
import re
m = re.compile(r'[^0-9]*([0-9]+)\.([0-9]+)(\.([0-9]+))?').match(gdb.VERSION)
ver = int(m.group(1))*10000 + int(m.group(2))*100
if m.group(4):
    ver = ver + int(m.group(4))

if ver == 71100:
    gdb.write('This version of gdb (7.11.0) has known bugs that break rr. Install 7.11.1 or later.\n', gdb.STDERR)

if ver < 71101:
    gdb.execute('set target-async 0')
    gdb.execute('maint set target-async 0')
end
`
