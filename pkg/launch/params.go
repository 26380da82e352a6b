package launch

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	// pathMax is PATH_MAX on Linux.
	pathMax = 4096
	// hostMax is INET_ADDRSTRLEN.
	hostMax = 16
)

// ConnectionParams are sent by the replay server once it is listening.
type ConnectionParams struct {
	ExeImage string
	Host     string
	Port     uint16
}

func (p ConnectionParams) String() string {
	return fmt.Sprintf("%s:%d %s", p.Host, p.Port, p.ExeImage)
}

// paramsRecord is the layout written to the parameter pipe. It matches the
// C struct {char exe_image[PATH_MAX]; char host[16]; short port;} on the
// little endian architectures replay runs on.
type paramsRecord struct {
	ExeImage [pathMax]byte
	Host     [hostMax]byte
	Port     uint16
}

// ParamsRecordSize is the size in bytes of one record on the parameter pipe.
const ParamsRecordSize = pathMax + hostMax + 2

// Raw descriptor I/O, replaced in tests.
var (
	readFn  = unix.Read
	writeFn = unix.Write
)

// ErrFieldTooLong is returned by SendParams when a field does not fit the
// fixed size record.
type ErrFieldTooLong struct {
	Field string
	Len   int
	Max   int
}

func (err *ErrFieldTooLong) Error() string {
	return fmt.Sprintf("%s too long for parameter record: %d bytes, at most %d", err.Field, err.Len, err.Max)
}

// ErrRecordSize is returned by ReadParams when the peer wrote something
// other than exactly one record.
type ErrRecordSize struct {
	Read int
}

func (err *ErrRecordSize) Error() string {
	return fmt.Sprintf("read %d bytes from parameter pipe, expected %d", err.Read, ParamsRecordSize)
}

// ReadParams blocks until the peer writes its connection parameters to fd.
// Reads interrupted by a signal are retried. ok is false, with a nil error,
// if the peer closed the pipe without writing anything: there is no session
// to attach to.
func ReadParams(fd int) (params ConnectionParams, ok bool, err error) {
	buf := make([]byte, ParamsRecordSize)
	var n int
	for {
		n, err = readFn(fd, buf)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		return ConnectionParams{}, false, fmt.Errorf("reading parameter pipe: %w", err)
	}
	if n == 0 {
		return ConnectionParams{}, false, nil
	}
	if n != ParamsRecordSize {
		return ConnectionParams{}, false, &ErrRecordSize{Read: n}
	}

	var rec paramsRecord
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &rec); err != nil {
		return ConnectionParams{}, false, err
	}
	return ConnectionParams{
		ExeImage: cstring(rec.ExeImage[:]),
		Host:     cstring(rec.Host[:]),
		Port:     rec.Port,
	}, true, nil
}

// SendParams writes params to fd as a single record.
func SendParams(fd int, params ConnectionParams) error {
	var rec paramsRecord
	if len(params.ExeImage) >= pathMax {
		return &ErrFieldTooLong{"executable image path", len(params.ExeImage), pathMax - 1}
	}
	if len(params.Host) >= hostMax {
		return &ErrFieldTooLong{"host", len(params.Host), hostMax - 1}
	}
	copy(rec.ExeImage[:], params.ExeImage)
	copy(rec.Host[:], params.Host)
	rec.Port = params.Port

	var buf bytes.Buffer
	buf.Grow(ParamsRecordSize)
	if err := binary.Write(&buf, binary.LittleEndian, &rec); err != nil {
		return err
	}

	var n int
	var err error
	for {
		n, err = writeFn(fd, buf.Bytes())
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("writing parameter pipe: %w", err)
	}
	if n != buf.Len() {
		return fmt.Errorf("short write to parameter pipe: %d of %d bytes", n, buf.Len())
	}
	return nil
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
