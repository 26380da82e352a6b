package launch

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

const (
	// MonitorPidEnv names the process to wake up with SIGURG when an
	// emergency session starts.
	MonitorPidEnv = "RUNNING_UNDER_TEST_MONITOR"
	// MonitorCmdFile is where the launch command is written for the monitor,
	// relative to the working directory.
	MonitorCmdFile = "gdb_cmd"

	localhost = "127.0.0.1"
)

// Task is the replayed task the emergency session is opened for.
type Task interface {
	Tid() int
	ExeImage() string
	// HasAddressSpace is false for tasks whose address space was already
	// torn down.
	HasAddressSpace() bool
	RemoveAllBreakpoints()
}

// Features are the capabilities advertised on an emergency connection.
type Features struct {
	ReverseExecution bool
}

// EmergencyServer serves the remote protocol on an accepted connection.
type EmergencyServer interface {
	ServeEmergency(conn net.Conn, t Task, features Features) error
}

// StateDumper writes internal diagnostic state, typically a stack dump.
type StateDumper interface {
	DumpState(w io.Writer)
}

// EmergencyDebug lets a user attach gdb to t after an unrecoverable error.
//
// No debugger is launched: the user is most likely already in one and
// could not control a second session from it. Instead a listening socket is
// opened and the command to attach from another terminal is printed, or
// handed to the monitor process named by MonitorPidEnv. Exactly one
// connection is accepted, there is no timeout.
func (l *Launcher) EmergencyDebug(t Task, sink StateDumper) error {
	if l.Server == nil {
		return errors.New("no emergency server configured")
	}

	// t may have overshot an internal breakpoint, make sure none of them
	// is hit while the user is in control.
	if t.HasAddressSpace() {
		t.RemoveAllBreakpoints()
	}

	// Reverse execution does not work here and some gdb versions fail when
	// it is advertised without async mode.
	features := Features{ReverseExecution: false}

	ln, port, err := l.Opener.Listen(localhost, uint16(t.Tid()))
	if err != nil {
		return fmt.Errorf("opening emergency debugger socket: %w", err)
	}
	log := l.emergency.WithField("port", port)
	log.Debugf("listening on %s", ln.Addr())

	if sink != nil {
		sink.DumpState(l.stderr())
	}

	l.announce(t, port)

	conn, err := ln.Accept()
	ln.Close()
	if err != nil {
		return fmt.Errorf("waiting for emergency debugger: %w", err)
	}
	log.Debugf("debugger connected from %s", conn.RemoteAddr())

	return l.Server.ServeEmergency(conn, t, features)
}

// announce tells the monitor, or the user, how to attach.
func (l *Launcher) announce(t Task, port uint16) {
	cmd := l.LaunchCommand(t.ExeImage(), localhost, port, false, "gdb")

	if s, ok := l.lookupEnv(MonitorPidEnv); ok {
		pid, err := strconv.Atoi(s)
		if err == nil && pid > 0 {
			// Wake the monitor up. It takes a snapshot and connects the
			// emergency debugger itself.
			if err := os.WriteFile(l.monitorCmd, []byte(ShellString(cmd)), 0644); err != nil {
				l.emergency.WithError(err).Warnf("could not write %s", l.monitorCmd)
			}
			if err := l.kill(pid, unix.SIGURG); err != nil {
				l.emergency.WithError(err).Warnf("could not signal monitor %d", pid)
			}
			return
		}
		l.emergency.Warnf("ignoring %s=%q, not a process id", MonitorPidEnv, s)
	}

	fmt.Fprintf(l.stderr(), "Launch debugger with\n  %s\n", ShellString(cmd))
}

func (l *Launcher) stderr() io.Writer {
	if l.Stderr == nil {
		return os.Stderr
	}
	return l.Stderr
}
