package indicator

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

// Neopixel command strings for the external neopixel tool.
const (
	neoReaderLost   = "@2 !150000 001010"
	neoIdle         = "@3 !150000 400000"
	neoFound        = "@1 !50000 8000"
	neoUnregistered = "@1 !50000 808000"
	neoFailed       = "@2 !10000 ff"
	neoTerminated   = "@0 010101"
)

// Neopixel implements Indicator using an external neopixel tool via named pipe.
type Neopixel struct {
	pipe *os.File
}

// NewNeopixel creates a new Neopixel indicator.
func NewNeopixel(pipePath string) (*Neopixel, error) {
	f, err := os.OpenFile(pipePath, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open neopixel pipe %s: %w", pipePath, err)
	}
	return &Neopixel{pipe: f}, nil
}

// Idle implements Indicator.Idle.
func (n *Neopixel) Idle() {
	n.write(neoIdle)
}

// Found implements Indicator.Found.
func (n *Neopixel) Found(*CardInfo) {
	n.write(neoFound)
}

// Unregistered implements Indicator.Unregistered.
func (n *Neopixel) Unregistered(string) {
	n.write(neoUnregistered)
}

// Failed implements Indicator.Failed.
func (n *Neopixel) Failed() {
	n.write(neoFailed)
}

// ReaderLost implements Indicator.ReaderLost.
func (n *Neopixel) ReaderLost() {
	n.write(neoReaderLost)
}

// Shutdown implements Indicator.Shutdown.
func (n *Neopixel) Shutdown() {
	n.write(neoTerminated)
}

// Release implements Indicator.Release.
func (n *Neopixel) Release() error {
	if n.pipe == nil {
		return nil
	}
	return n.pipe.Close()
}

func (n *Neopixel) write(s string) {
	if n.pipe == nil {
		return
	}
	if _, err := n.pipe.Write([]byte(s + "\n")); err != nil {
		log.Debugf("Neopixel write: %v", err)
	}
}
