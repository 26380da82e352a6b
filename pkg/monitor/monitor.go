// Package monitor runs a replay under supervision and attaches a debugger
// when the replay opens an emergency debugging session.
//
// The supervised process learns the monitor's pid from the
// RUNNING_UNDER_TEST_MONITOR environment variable. When it hits a fatal
// error it writes the attach command to gdb_cmd in its working directory and
// sends SIGURG to the monitor.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"

	"github.com/cosiner/argv"
	"github.com/go-delve/gdblaunch/pkg/launch"
	"github.com/go-delve/gdblaunch/pkg/logflags"
	"github.com/mattn/go-isatty"
	"golang.org/x/sys/unix"
)

// Monitor supervises one child process.
type Monitor struct {
	// Dir is the working directory of the child. The attach command file is
	// looked up in it.
	Dir string
	// Attach is called with the debugger command line each time the child
	// asks for a debugger. The child keeps running while Attach runs.
	Attach func(args []string) error

	Stdin          io.Reader
	Stdout, Stderr io.Writer

	log logflags.Logger
}

// New returns a Monitor that runs the debugger in the foreground.
func New(dir string) *Monitor {
	m := &Monitor{
		Dir:    dir,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		log:    logflags.MonitorLogger(),
	}
	m.Attach = m.runDebugger
	return m
}

// CmdFile returns the path of the attach command file.
func (m *Monitor) CmdFile() string {
	return filepath.Join(m.Dir, launch.MonitorCmdFile)
}

// Run starts cmd and waits for it to exit, attaching a debugger whenever
// the child requests one.
func (m *Monitor) Run(ctx context.Context, cmd []string) error {
	if len(cmd) == 0 {
		return errors.New("no command to monitor")
	}

	// The Go runtime uses SIGURG for goroutine preemption, signals that
	// do not come with a command file are ignored.
	sigch := make(chan os.Signal, 8)
	signal.Notify(sigch, unix.SIGURG)
	defer signal.Stop(sigch)

	child := exec.CommandContext(ctx, cmd[0], cmd[1:]...)
	child.Dir = m.Dir
	child.Env = append(os.Environ(), fmt.Sprintf("%s=%d", launch.MonitorPidEnv, os.Getpid()))
	child.Stdin, child.Stdout, child.Stderr = m.Stdin, m.Stdout, m.Stderr
	if err := child.Start(); err != nil {
		return err
	}
	m.log.Debugf("monitoring pid %d", child.Process.Pid)

	done := make(chan error, 1)
	go func() {
		done <- child.Wait()
	}()

	for {
		select {
		case err := <-done:
			return err
		case <-sigch:
			args, err := ReadAttachCommand(m.CmdFile())
			if err != nil {
				if !errors.Is(err, os.ErrNotExist) {
					m.log.WithError(err).Error("could not read attach command")
				}
				continue
			}
			os.Remove(m.CmdFile())
			m.log.Debugf("attaching %s", launch.ShellString(args))
			if err := m.Attach(args); err != nil {
				m.log.WithError(err).Error("debugger failed")
			}
		}
	}
}

// ReadAttachCommand reads and tokenizes the command written by an
// emergency session.
func ReadAttachCommand(path string) ([]string, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	v, err := argv.Argv(string(buf),
		func(s string) (string, error) {
			return "", fmt.Errorf("backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(v) != 1 || len(v[0]) == 0 {
		return nil, fmt.Errorf("illegal command line in %s: %q", path, buf)
	}
	if _, err := launch.ParseLaunchCommand(string(buf)); err != nil {
		return nil, err
	}
	return v[0], nil
}

func (m *Monitor) runDebugger(args []string) error {
	if f, ok := m.Stdin.(*os.File); !ok || !isatty.IsTerminal(f.Fd()) {
		m.log.Warn("standard input is not a terminal, the debugger will not be interactive")
	}
	dbg := exec.Command(args[0], args[1:]...)
	dbg.Stdin, dbg.Stdout, dbg.Stderr = m.Stdin, m.Stdout, m.Stderr
	return dbg.Run()
}
