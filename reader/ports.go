package reader

import (
	"fmt"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes one serial port visible to the operating system.
type PortInfo struct {
	Name string
	USB  bool
	PCI  bool
}

// Enumerator lists the serial ports visible to the operating system.
type Enumerator interface {
	Ports() ([]PortInfo, error)
}

// EnumeratorFunc adapts a function to Enumerator.
type EnumeratorFunc func() ([]PortInfo, error)

// Ports implements Enumerator.
func (f EnumeratorFunc) Ports() ([]PortInfo, error) { return f() }

// SystemEnumerator lists ports through go.bug.st/serial/enumerator.
var SystemEnumerator Enumerator = EnumeratorFunc(systemPorts)

func systemPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name: d.Name,
			USB:  d.IsUSB,
			PCI:  !d.IsUSB && pciAttached(d.Name),
		})
	}
	return ports, nil
}

// ListCandidatePorts returns the USB- or PCI-attached ports in enumeration
// order. Platform and virtual ports are left out.
func ListCandidatePorts() ([]string, error) {
	return CandidatePorts(SystemEnumerator)
}

// CandidatePorts filters the ports reported by e the same way
// ListCandidatePorts does.
func CandidatePorts(e Enumerator) ([]string, error) {
	ports, err := e.Ports()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnumeration, err)
	}

	names := []string{}
	for _, p := range ports {
		if p.USB || p.PCI {
			names = append(names, p.Name)
		}
	}
	return names, nil
}
