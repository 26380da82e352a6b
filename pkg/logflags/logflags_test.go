package logflags

import (
	"bytes"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestMakeLogger_usingLoggerFactory(t *testing.T) {
	if loggerFactory != nil {
		t.Fatalf("expected loggerFactory to be nil; but was <%v>", loggerFactory)
	}
	defer func() {
		loggerFactory = nil
	}()
	if logOut != nil {
		t.Fatalf("expected logOut to be nil; but was <%v>", logOut)
	}
	logOut = &bufferWriter{}
	defer func() {
		logOut = nil
	}()

	expectedLogger := &logrusLogger{}
	SetLoggerFactory(func(level logrus.Level, fields Fields, out io.Writer) Logger {
		if level != logrus.TraceLevel {
			t.Fatalf("expected level to be <%v>; but was <%v>", logrus.TraceLevel, level)
		}
		if len(fields) != 1 || fields["foo"] != "bar" {
			t.Fatalf("expected fields to be {'foo':'bar'}; but was <%v>", fields)
		}
		if out != logOut {
			t.Fatalf("expected out to be <%v>; but was <%v>", logOut, out)
		}
		return expectedLogger
	})

	actual := makeLogger(logrus.TraceLevel, Fields{"foo": "bar"})
	if actual != expectedLogger {
		t.Fatalf("expected actual to <%v>; but was <%v>", expectedLogger, actual)
	}
}

func TestMakeFlaggableLogger(t *testing.T) {
	for _, tc := range []struct {
		flag  bool
		level logrus.Level
	}{
		{false, logrus.ErrorLevel},
		{true, logrus.DebugLevel},
	} {
		actual := makeFlaggableLogger(tc.flag, Fields{"foo": "bar"})
		actualEntry, expectedType := actual.(*logrusLogger)
		if !expectedType {
			t.Fatalf("expected actual to be of type <%v>; but was <%v>", reflect.TypeOf((*logrusLogger)(nil)), reflect.TypeOf(actual))
		}
		if actualEntry.Entry.Logger.Level != tc.level {
			t.Errorf("flag %v: expected level <%v>; but was <%v>", tc.flag, tc.level, actualEntry.Logger.Level)
		}
		if len(actualEntry.Entry.Data) != 1 || actualEntry.Data["foo"] != "bar" {
			t.Errorf("expected data to be {'foo':'bar'}; but was <%v>", actualEntry.Data)
		}
		if actualEntry.Entry.Logger.Formatter != textFormatterInstance {
			t.Errorf("expected formatter to be the package text formatter")
		}
	}
}

func TestSetupRejectsOutputWithoutLog(t *testing.T) {
	if err := Setup(false, "launcher", ""); err != errLogstrWithoutLog {
		t.Fatalf("expected %v, got %v", errLogstrWithoutLog, err)
	}
}

func TestSetupSelectsLayers(t *testing.T) {
	defer func() {
		launcher, emergency, monitor, paramsWire = false, false, false, false
	}()
	if err := Setup(true, "emergency,params", ""); err != nil {
		t.Fatal(err)
	}
	if Launcher() || Monitor() {
		t.Errorf("unexpected layers enabled: launcher=%v monitor=%v", Launcher(), Monitor())
	}
	if !Emergency() || !ParamsWire() {
		t.Errorf("expected emergency and params enabled: emergency=%v params=%v", Emergency(), ParamsWire())
	}
}

func TestTextFormatter(t *testing.T) {
	f := &textFormatter{}
	entry := &logrus.Entry{
		Time:    time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:   logrus.DebugLevel,
		Message: "launching 'gdb' ",
		Data:    logrus.Fields{"layer": "launcher", "fd": 3, "path": "/proc/1/fd/3"},
	}
	out, err := f.Format(entry)
	if err != nil {
		t.Fatal(err)
	}
	const want = "2020-01-02T03:04:05Z debug launcher,fd=3,path=/proc/1/fd/3 launching 'gdb' \n"
	if string(out) != want {
		t.Errorf("got %q, want %q", out, want)
	}

	entry.Data = logrus.Fields{"layer": "monitor", "cmd": "gdb -x file"}
	out, _ = f.Format(entry)
	if !strings.Contains(string(out), `cmd="gdb -x file"`) {
		t.Errorf("value with spaces not quoted: %q", out)
	}
}

type bufferWriter struct {
	bytes.Buffer
}

func (bw bufferWriter) Close() error {
	return nil
}
