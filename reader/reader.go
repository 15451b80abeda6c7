package reader

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// IOTimeout bounds one exchange's response: every read made for it
// finishes within IOTimeout of the first.
const IOTimeout = time.Second

// ReadSlice is the read timeout ports are opened with. A response read
// polls in slices until IOTimeout is spent.
const ReadSlice = IOTimeout / 10

// DefaultBaud is used when the configuration leaves the baud rate unset.
const DefaultBaud = 115200

var (
	ErrEnumeration = errors.New("port enumeration failed")
	ErrConnection  = errors.New("connection failed")
	ErrIO          = errors.New("reader i/o failed")
	ErrNoCard      = errors.New("no card detected")
)

// Port is an open serial channel to a reader.
// Reads return fewer bytes than requested (possibly zero) once the
// driver's read timeout elapses.
type Port interface {
	io.ReadWriteCloser
}

// Flusher is implemented by ports that can discard input nobody has read.
type Flusher interface {
	Flush() error
}

// ReadTimeoutSetter is implemented by ports whose read timeout can change
// after open.
type ReadTimeoutSetter interface {
	SetReadTimeout(t time.Duration) error
}

// Driver opens serial ports. It is the pluggable transport underneath a
// Session, so tests and other reader hardware can substitute their own.
type Driver interface {
	Open(name string, baud int, timeout time.Duration) (Port, error)
}

// Config holds reader configuration.
type Config struct {
	Driver      string         `yaml:"driver"` // "tarm" (default), "bugst"
	Port        string         `yaml:"port"`   // e.g. "/dev/ttyUSB0", "COM3"
	Baud        int            `yaml:"baud"`
	AutoConnect bool           `yaml:"auto_connect"`
	Protocol    ProtocolConfig `yaml:"protocol"`
}

// NewDriver returns the Driver registered under name.
func NewDriver(name string) (Driver, error) {
	switch name {
	case "", "tarm":
		return Tarm{}, nil
	case "bugst":
		return Bugst{}, nil
	default:
		return nil, fmt.Errorf("unknown reader driver %q", name)
	}
}
