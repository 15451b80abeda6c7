package reader

import (
	"time"

	"github.com/tarm/serial"
)

// Tarm opens ports with github.com/tarm/serial. An elapsed read timeout
// surfaces from its Read as io.EOF with zero bytes. Its ports implement
// Flusher.
type Tarm struct{}

// Open implements Driver.Open.
func (Tarm) Open(name string, baud int, timeout time.Duration) (Port, error) {
	c := &serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: timeout,
	}
	port, err := serial.OpenPort(c)
	if err != nil {
		return nil, err
	}
	return port, nil
}
