package reader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"
)

// Session is the single open connection to a reader. It is not safe for
// concurrent use; registry.Registry is what serializes access to it.
type Session struct {
	port    Port
	name    string
	baud    int
	timeout time.Duration
	closed  bool
}

// Open opens the named port through driver with a ReadSlice read timeout.
// Responses are bounded by IOTimeout.
func Open(driver Driver, name string, baud int) (*Session, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: no port given", ErrConnection)
	}
	if baud <= 0 {
		return nil, fmt.Errorf("%w: invalid baud rate %d", ErrConnection, baud)
	}

	port, err := driver.Open(name, baud, ReadSlice)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrConnection, name, err)
	}

	log.WithFields(log.Fields{"port": name, "baud": baud}).Info("Reader port opened")
	return &Session{port: port, name: name, baud: baud, timeout: IOTimeout}, nil
}

// Name returns the port name the session was opened on.
func (s *Session) Name() string { return s.name }

// Baud returns the configured baud rate.
func (s *Session) Baud() int { return s.baud }

// Close releases the port. It is safe to call more than once.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if err := s.port.Close(); err != nil {
		log.WithField("port", s.name).Debugf("Close reader port: %v", err)
	}
}

// WriteCommand writes the whole frame to the reader.
func (s *Session) WriteCommand(frame []byte) error {
	if s.closed {
		return fmt.Errorf("%w: write %s: session closed", ErrIO, s.name)
	}
	for len(frame) > 0 {
		n, err := s.port.Write(frame)
		if err != nil {
			return fmt.Errorf("%w: write %s: %w", ErrIO, s.name, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: write %s: %w", ErrIO, s.name, io.ErrShortWrite)
		}
		frame = frame[n:]
	}
	return nil
}

// Flush discards unread input, such as a reply that arrived after the
// previous exchange gave up on it. Ports that are not Flushers are left
// alone.
func (s *Session) Flush() error {
	if s.closed {
		return fmt.Errorf("%w: flush %s: session closed", ErrIO, s.name)
	}
	f, ok := s.port.(Flusher)
	if !ok {
		return nil
	}
	if err := f.Flush(); err != nil {
		return fmt.Errorf("%w: flush %s: %w", ErrIO, s.name, err)
	}
	return nil
}

// ReadResponse reads at most limit bytes and stops early once any of terms
// arrives. With no terms it reads until limit. Reading also stops when a
// read slice passes with no data after some has arrived, and when the
// session timeout is spent, so a partial frame is a valid result. Callers
// must validate the content.
func (s *Session) ReadResponse(limit int, terms ...byte) ([]byte, error) {
	if s.closed {
		return nil, fmt.Errorf("%w: read %s: session closed", ErrIO, s.name)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("read %s: limit must be positive, got %d", s.name, limit)
	}

	setter, _ := s.port.(ReadTimeoutSetter)
	clamped := false
	defer func() {
		if clamped {
			_ = setter.SetReadTimeout(ReadSlice)
		}
	}()

	buf := make([]byte, limit)
	deadline := time.Now().Add(s.timeout)
	n := 0
	for n < limit {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if setter != nil && remaining < ReadSlice {
			if err := setter.SetReadTimeout(remaining); err != nil {
				return buf[:n], fmt.Errorf("%w: read %s: %w", ErrIO, s.name, err)
			}
			clamped = true
		}

		m, err := s.port.Read(buf[n:])
		n += m
		// tarm reports an elapsed read timeout as EOF.
		if err != nil && !errors.Is(err, io.EOF) {
			return buf[:n], fmt.Errorf("%w: read %s: %w", ErrIO, s.name, err)
		}
		if m == 0 {
			if n > 0 {
				break
			}
			continue
		}
		if hasAny(buf[n-m:n], terms) {
			break
		}
	}
	return buf[:n], nil
}

func hasAny(b, set []byte) bool {
	for _, c := range set {
		if bytes.IndexByte(b, c) >= 0 {
			return true
		}
	}
	return false
}
