package cmdpipe

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"badgedesk/registry"
	"badgedesk/scan"
)

// Command operations.
const (
	OpPorts      = "ports"
	OpStatus     = "status"
	OpConnect    = "connect"
	OpDisconnect = "disconnect"
	OpScan       = "scan"
)

// Command is one parsed reader command.
type Command struct {
	Op   string
	Port string
	Baud int
}

// ParseLine parses a command line.
// Command format:
//
//	ports                  - List candidate reader ports
//	status                 - Report reader connection state
//	connect <port> [baud]  - Open the reader
//	disconnect             - Close the reader
//	scan                   - Read the card on the antenna
func ParseLine(line string) (Command, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return Command{}, fmt.Errorf("empty command")
	}

	cmd := strings.ToLower(parts[0])
	switch cmd {
	case OpPorts, OpStatus, OpDisconnect, OpScan:
		if len(parts) > 1 {
			return Command{}, fmt.Errorf("%s takes no arguments", cmd)
		}
		return Command{Op: cmd}, nil

	case OpConnect:
		if len(parts) < 2 || len(parts) > 3 {
			return Command{}, fmt.Errorf("connect requires <port> [baud]")
		}
		c := Command{Op: OpConnect, Port: parts[1]}
		if len(parts) == 3 {
			baud, err := strconv.Atoi(parts[2])
			if err != nil || baud <= 0 {
				return Command{}, fmt.Errorf("invalid baud rate: %s", parts[2])
			}
			c.Baud = baud
		}
		return c, nil

	default:
		return Command{}, fmt.Errorf("unknown command: %s", cmd)
	}
}

// Service is the reader API commands run against.
type Service interface {
	Ports() ([]string, error)
	Status() registry.State
	Connect(port string, baud int) (string, error)
	Disconnect() string
	Scan(ctx context.Context) (scan.Outcome, error)
}

// Reply is the result of one command.
type Reply struct {
	Command string          `json:"command"`
	OK      bool            `json:"ok"`
	Message string          `json:"message,omitempty"`
	Ports   []string        `json:"ports,omitempty"`
	State   *registry.State `json:"state,omitempty"`
	Outcome *scan.Outcome   `json:"outcome,omitempty"`
}

// Execute runs c against svc.
func Execute(ctx context.Context, svc Service, c Command) Reply {
	r := Reply{Command: c.Op}
	switch c.Op {
	case OpPorts:
		ports, err := svc.Ports()
		if err != nil {
			return r.fail(err)
		}
		r.OK, r.Ports = true, ports
		r.Message = fmt.Sprintf("%d candidate ports", len(ports))

	case OpStatus:
		st := svc.Status()
		r.OK, r.State = true, &st
		if st.Connected {
			r.Message = fmt.Sprintf("connected to %s at %d baud", st.Port, st.Baud)
		} else {
			r.Message = "disconnected"
		}

	case OpConnect:
		msg, err := svc.Connect(c.Port, c.Baud)
		if err != nil {
			return r.fail(err)
		}
		r.OK, r.Message = true, msg

	case OpDisconnect:
		r.OK, r.Message = true, svc.Disconnect()

	case OpScan:
		out, err := svc.Scan(ctx)
		if err != nil {
			return r.fail(err)
		}
		r.OK, r.Message, r.Outcome = true, out.Message, &out

	default:
		return r.fail(errors.New("unknown command"))
	}
	return r
}

func (r Reply) fail(err error) Reply {
	r.OK = false
	r.Message = err.Error()
	return r
}
