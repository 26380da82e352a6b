package launch

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"

	"github.com/go-delve/gdblaunch/pkg/launch/probe"
	"golang.org/x/sys/unix"
)

type fakeTask struct {
	tid                int
	exe                string
	addressSpace       bool
	breakpointsRemoved int
}

func (t *fakeTask) Tid() int              { return t.tid }
func (t *fakeTask) ExeImage() string      { return t.exe }
func (t *fakeTask) HasAddressSpace() bool { return t.addressSpace }
func (t *fakeTask) RemoveAllBreakpoints() { t.breakpointsRemoved++ }

type fakeServer struct {
	conn     net.Conn
	task     Task
	features Features
}

func (s *fakeServer) ServeEmergency(conn net.Conn, t Task, features Features) error {
	s.conn, s.task, s.features = conn, t, features
	return conn.Close()
}

type dumper string

func (d dumper) DumpState(w io.Writer) { io.WriteString(w, string(d)) }

// notifyingOpener reports the port it listens on.
type notifyingOpener struct {
	portch chan uint16
}

func (o notifyingOpener) Listen(host string, hint uint16) (net.Listener, uint16, error) {
	ln, port, err := probe.Opener{}.Listen(host, hint)
	if err == nil {
		o.portch <- port
	}
	return ln, port, err
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func runEmergency(t *testing.T, l *Launcher, task *fakeTask) (port uint16) {
	t.Helper()
	portch := make(chan uint16, 1)
	l.Opener = notifyingOpener{portch}
	errch := make(chan error, 1)
	go func() {
		errch <- l.EmergencyDebug(task, dumper("stack dump\n"))
	}()

	select {
	case port = <-portch:
	case err := <-errch:
		t.Fatalf("EmergencyDebug returned before listening: %v", err)
	}
	conn, err := net.Dial("tcp4", net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port))))
	if err != nil {
		t.Fatal(err)
	}
	conn.Close()
	if err := <-errch; err != nil {
		t.Fatalf("EmergencyDebug: %v", err)
	}
	return port
}

func TestEmergencyDebug(t *testing.T) {
	l := newTestLauncher(t)
	stderr := &syncBuffer{}
	l.Stderr = stderr
	l.lookupEnv = func(string) (string, bool) { return "", false }
	srv := &fakeServer{}
	l.Server = srv
	task := &fakeTask{tid: 40000, exe: "/tmp/exe", addressSpace: true}

	port := runEmergency(t, l, task)

	if task.breakpointsRemoved != 1 {
		t.Errorf("breakpoints removed %d times", task.breakpointsRemoved)
	}
	if port < 40000 {
		t.Errorf("port %d below the tid hint", port)
	}
	if srv.conn == nil || srv.task != task {
		t.Fatalf("connection not handed to the server")
	}
	if srv.features.ReverseExecution {
		t.Errorf("reverse execution advertised")
	}

	cmd := fmt.Sprintf("'gdb' '-l' '10000' '-ex' 'set sysroot /' '-ex' 'target extended-remote 127.0.0.1:%d' '/tmp/exe' ", port)
	want := "stack dump\nLaunch debugger with\n  " + cmd + "\n"
	if got := stderr.String(); got != want {
		t.Errorf("expected stderr %q, got %q", want, got)
	}
	if l.SavedLaunchCommand() != cmd {
		t.Errorf("saved command %q", l.SavedLaunchCommand())
	}
}

func TestEmergencyDebugMonitor(t *testing.T) {
	l := newTestLauncher(t)
	stderr := &syncBuffer{}
	l.Stderr = stderr
	l.monitorCmd = filepath.Join(t.TempDir(), MonitorCmdFile)
	l.lookupEnv = func(key string) (string, bool) {
		if key == MonitorPidEnv {
			return "4321", true
		}
		return "", false
	}
	var signaled []int
	l.kill = func(pid int, sig syscall.Signal) error {
		if sig != unix.SIGURG {
			t.Errorf("sent %v to the monitor", sig)
		}
		signaled = append(signaled, pid)
		return nil
	}
	l.Server = &fakeServer{}
	task := &fakeTask{tid: 41000, exe: "/tmp/exe"}

	port := runEmergency(t, l, task)

	if task.breakpointsRemoved != 0 {
		t.Errorf("breakpoints removed from a task without address space")
	}
	if len(signaled) != 1 || signaled[0] != 4321 {
		t.Errorf("monitor signaled %v", signaled)
	}
	buf, err := os.ReadFile(l.monitorCmd)
	if err != nil {
		t.Fatal(err)
	}
	tgt, err := ParseLaunchCommand(string(buf))
	if err != nil {
		t.Fatal(err)
	}
	if tgt.Address != fmt.Sprintf("127.0.0.1:%d", port) || tgt.ExeImage != "/tmp/exe" {
		t.Errorf("unexpected monitor command %q", buf)
	}
	if strings.Contains(stderr.String(), "Launch debugger with") {
		t.Errorf("launch command printed although a monitor is present")
	}
}

func TestEmergencyDebugBadMonitorPid(t *testing.T) {
	l := newTestLauncher(t)
	stderr := &syncBuffer{}
	l.Stderr = stderr
	l.lookupEnv = func(string) (string, bool) { return "not-a-pid", true }
	l.kill = func(pid int, sig syscall.Signal) error {
		t.Errorf("signaled %d", pid)
		return nil
	}
	l.Server = &fakeServer{}

	runEmergency(t, l, &fakeTask{tid: 42000, exe: "/tmp/exe", addressSpace: true})

	if !strings.Contains(stderr.String(), "Launch debugger with\n  'gdb' ") {
		t.Errorf("launch command not printed: %q", stderr.String())
	}
}

func TestEmergencyDebugNoServer(t *testing.T) {
	l := newTestLauncher(t)
	if err := l.EmergencyDebug(&fakeTask{tid: 1}, nil); err == nil {
		t.Fatal("expected an error without a server")
	}
}
