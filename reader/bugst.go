package reader

import (
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// Bugst opens ports with go.bug.st/serial (8N1).
type Bugst struct{}

// Open implements Driver.Open.
func (Bugst) Open(name string, baud int, timeout time.Duration) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, describePortError(err)
	}

	if err := p.SetReadTimeout(timeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}

	// Drop anything the reader emitted before we owned the port.
	_ = p.ResetInputBuffer()
	return bugstPort{p}, nil
}

// bugstPort adds Flush to a go.bug.st port.
type bugstPort struct {
	serial.Port
}

func (p bugstPort) Flush() error {
	return p.ResetInputBuffer()
}

func describePortError(err error) error {
	var perr *serial.PortError
	if !errors.As(err, &perr) {
		return err
	}
	switch perr.Code() {
	case serial.PortBusy:
		return fmt.Errorf("port in use: %w", err)
	case serial.PortNotFound:
		return fmt.Errorf("port not found: %w", err)
	case serial.PermissionDenied:
		return fmt.Errorf("permission denied: %w", err)
	case serial.InvalidSpeed:
		return fmt.Errorf("unsupported baud rate: %w", err)
	default:
		return err
	}
}
