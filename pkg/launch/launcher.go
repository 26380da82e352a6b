// Package launch hands a replay session over to gdb.
//
// The normal path writes the gdb command script to a descriptor that
// survives exec, waits for the replay server to publish its address on a
// pipe and then replaces the current process with gdb. The emergency path
// is used when replay hits an internal error: it opens a listening socket,
// tells the user (or a cooperating monitor process) how to attach, and
// serves exactly one connection.
package launch

import (
	"io"
	"net"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/go-delve/gdblaunch/pkg/gdbmacros"
	"github.com/go-delve/gdblaunch/pkg/launch/probe"
	"github.com/go-delve/gdblaunch/pkg/logflags"
	"golang.org/x/sys/unix"
)

// UnderRREnv is added to the environment of the exec'd debugger.
const UnderRREnv = "GDB_UNDER_RR=1"

// Launcher carries the state shared by the launch paths of one process: the
// macro cache and the last advisory launch command.
type Launcher struct {
	Macros *gdbmacros.Library

	// Opener opens the emergency listening socket. Defaults to probing
	// upward for a free port.
	Opener SocketOpener
	// Server serves the emergency connection.
	Server EmergencyServer
	// Stderr receives the advisory launch command. Defaults to os.Stderr.
	Stderr io.Writer

	log       logflags.Logger
	emergency logflags.Logger

	// Fatalf reports an unrecoverable error and terminates the process.
	// Tests replace it with a function that panics.
	Fatalf func(format string, args ...interface{})

	lookPath   func(file string) (string, error)
	execve     func(argv0 string, argv []string, envv []string) error
	environ    func() []string
	lookupEnv  func(key string) (string, bool)
	kill       func(pid int, sig syscall.Signal) error
	monitorCmd string

	savedMu sync.Mutex
	saved   string
}

// New returns a Launcher that computes its macros with lib.
func New(lib *gdbmacros.Library) *Launcher {
	if lib == nil {
		lib = gdbmacros.NewLibrary(gdbmacros.DefaultCommands()...)
	}
	l := &Launcher{
		Macros:     lib,
		Opener:     probe.Opener{},
		Stderr:     os.Stderr,
		log:        logflags.LauncherLogger(),
		emergency:  logflags.EmergencyLogger(),
		lookPath:   exec.LookPath,
		execve:     unix.Exec,
		environ:    os.Environ,
		lookupEnv:  os.LookupEnv,
		kill:       unix.Kill,
		monitorCmd: MonitorCmdFile,
	}
	l.Fatalf = l.log.Fatalf
	return l
}

// LaunchDebugger execs the debugger at debuggerPath connected to the
// server whose parameters are written to paramsFd. It only returns if the
// pipe is closed before any parameters are written.
func (l *Launcher) LaunchDebugger(paramsFd int, debuggerPath string, options []string, serveFiles bool) {
	cmdFile := l.MaterializeCommandFile(l.Macros.Compute())

	params, ok := l.ReceiveParams(paramsFd)
	if !ok {
		l.log.Debug("parameter pipe closed, not launching the debugger")
		return
	}

	args := BootstrapArgs(debuggerPath, cmdFile.Path, options, params, serveFiles)
	l.Exec(debuggerPath, args, l.environ())
}

// MaterializeCommandFile writes script to an unlinked file that stays open
// across exec. Failing to write it is fatal.
func (l *Launcher) MaterializeCommandFile(script string) *CommandFile {
	f, err := WriteCommandFile(script)
	if err != nil {
		l.Fatalf("Failed to write gdb command file: %v", err)
		return nil
	}
	l.log.WithField("fd", f.Fd).Debugf("gdb command file at %s", f.Path)
	return f
}

// ReceiveParams reads the connection parameters from fd. ok is false when
// the peer closed the pipe without writing them. Any other incomplete read
// is fatal.
func (l *Launcher) ReceiveParams(fd int) (params ConnectionParams, ok bool) {
	params, ok, err := ReadParams(fd)
	if err != nil {
		l.Fatalf("Bad connection parameters: %v", err)
		return ConnectionParams{}, false
	}
	if ok && logflags.ParamsWire() {
		logflags.ParamsWireLogger().Debugf("<- %s", params)
	}
	return params, ok
}

// Exec replaces the current process with path, searched in PATH, running
// with args and env plus UnderRREnv. It does not return.
func (l *Launcher) Exec(path string, args []string, env []string) {
	env = append(env[:len(env):len(env)], UnderRREnv)

	l.log.Debugf("launching %s", ShellString(args))

	resolved, err := l.lookPath(path)
	if err == nil {
		err = l.execve(resolved, args, env)
	}
	l.Fatalf("Failed to exec %s: %v.", path, err)
}

// SocketOpener opens a listening socket on host, starting at portHint and
// trying higher ports until one is free.
type SocketOpener interface {
	Listen(host string, portHint uint16) (net.Listener, uint16, error)
}
