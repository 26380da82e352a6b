package launch

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// CommandFile is a gdb command file that only exists as an open descriptor
// of this process. Path names the descriptor through /proc, so it can be
// opened by whatever image this process execs next.
type CommandFile struct {
	Fd   int
	Path string
}

// ErrShortWrite is returned by WriteCommandFile when the script could not
// be written in one call.
type ErrShortWrite struct {
	Written, Len int
}

func (err *ErrShortWrite) Error() string {
	return fmt.Sprintf("short write to gdb command file: %d of %d bytes", err.Written, err.Len)
}

// WriteCommandFile writes script to an unlinked temporary file.
//
// The descriptor backing the file is never closed. It is duplicated out of
// the *os.File, so neither Close nor the finalizer release it, and the
// duplicate does not have close-on-exec set, so it survives exec. Since the
// file has no name left nothing else can remove it before gdb reads it.
func WriteCommandFile(script string) (*CommandFile, error) {
	f, err := os.CreateTemp("", "rr-gdb-commands-")
	if err != nil {
		return nil, err
	}
	name := f.Name()
	fd, err := unix.Dup(int(f.Fd()))
	f.Close()
	if err != nil {
		os.Remove(name)
		return nil, fmt.Errorf("duplicating gdb command file descriptor: %w", err)
	}
	if err := unix.Unlink(name); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("unlinking gdb command file: %w", err)
	}

	n, err := writeFn(fd, []byte(script))
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("writing gdb command file: %w", err)
	}
	if n != len(script) {
		unix.Close(fd)
		return nil, &ErrShortWrite{Written: n, Len: len(script)}
	}

	return &CommandFile{
		Fd:   fd,
		Path: fmt.Sprintf("/proc/%d/fd/%d", unix.Getpid(), fd),
	}, nil
}
