// Package readertest provides an in-memory reader for tests.
//
// A Port behaves like a request/response reader: every Write is answered by
// the Driver's Respond function and the answer is queued for the following
// Reads. A Read with nothing queued waits out the port's read timeout and
// returns (0, io.EOF), which is how the tarm driver reports an elapsed read
// timeout.
//
// Ports also check framing: a Write or Flush that arrives while the
// previous answer is still outstanding counts as a violation.
package readertest

import (
	"errors"
	"io"
	"sync"
	"time"

	"badgedesk/reader"
)

// ErrUnplugged is a ready-made I/O failure for fault injection.
var ErrUnplugged = errors.New("device unplugged")

// Reply answers every request with the same text.
func Reply(text string) func([]byte) []byte {
	return func([]byte) []byte { return []byte(text) }
}

// Driver is a reader.Driver that hands out Ports.
type Driver struct {
	// Respond computes the answer to one request frame.
	Respond func(req []byte) []byte
	// OpenErr, when set, fails every Open.
	OpenErr error
	// Delay is slept inside each Write to widen race windows.
	Delay time.Duration
	// Drip, when set, makes every Read wait Drip and return one byte, as
	// a slow reader would. A Drip longer than the read timeout yields
	// nothing.
	Drip time.Duration

	mu    sync.Mutex
	ports []*Port
}

// Open implements reader.Driver.
func (d *Driver) Open(name string, baud int, timeout time.Duration) (reader.Port, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	p := &Port{Name: name, Baud: baud, Timeout: timeout, driver: d}
	d.ports = append(d.ports, p)
	return p, nil
}

// Opens returns how many ports have been opened.
func (d *Driver) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ports)
}

// Last returns the most recently opened port, or nil.
func (d *Driver) Last() *Port {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.ports) == 0 {
		return nil
	}
	return d.ports[len(d.ports)-1]
}

func (d *Driver) respond(req []byte) []byte {
	if d.Respond == nil {
		return nil
	}
	return d.Respond(req)
}

// Port is one open fake reader channel.
type Port struct {
	Name    string
	Baud    int
	Timeout time.Duration

	driver *Driver

	mu          sync.Mutex
	pending     []byte
	outstanding bool
	writes      int
	reads       int
	flushes     int
	violations  int
	closed      bool
	writeErr    error
	readErr     error
}

// Write implements io.Writer.
func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, errors.New("port closed")
	}
	if p.writeErr != nil {
		err := p.writeErr
		p.mu.Unlock()
		return 0, err
	}
	if p.outstanding {
		p.violations++
	}
	p.outstanding = true
	p.writes++
	p.mu.Unlock()

	if p.driver.Delay > 0 {
		time.Sleep(p.driver.Delay)
	}
	resp := p.driver.respond(append([]byte(nil), b...))

	p.mu.Lock()
	p.pending = append(p.pending, resp...)
	p.mu.Unlock()
	return len(b), nil
}

// Read implements io.Reader.
func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, errors.New("port closed")
	}
	if p.readErr != nil {
		err := p.readErr
		p.mu.Unlock()
		return 0, err
	}
	p.reads++
	wait := p.Timeout
	drip := p.driver.Drip

	if len(p.pending) == 0 || drip > wait {
		if len(p.pending) == 0 {
			p.outstanding = false
		}
		p.mu.Unlock()
		time.Sleep(wait)
		return 0, io.EOF
	}
	if drip > 0 {
		p.mu.Unlock()
		time.Sleep(drip)
		p.mu.Lock()
		if len(b) > 1 {
			b = b[:1]
		}
	}
	defer p.mu.Unlock()

	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	if len(p.pending) == 0 {
		p.outstanding = false
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Flush implements reader.Flusher by dropping queued input.
func (p *Port) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("port closed")
	}
	if p.outstanding {
		p.violations++
	}
	p.flushes++
	p.pending = nil
	p.outstanding = false
	return nil
}

// SetReadTimeout implements reader.ReadTimeoutSetter.
func (p *Port) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Timeout = t
	return nil
}

// Inject queues bytes nobody asked for, such as a reply that arrives after
// its exchange gave up.
func (p *Port) Inject(b []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, b...)
}

// Close implements io.Closer.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// FailWrites makes every following Write fail with err.
func (p *Port) FailWrites(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

// FailReads makes every following Read fail with err.
func (p *Port) FailReads(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
}

// Closed reports whether Close was called.
func (p *Port) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Writes returns the number of request frames written.
func (p *Port) Writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}

// Flushes returns the number of Flush calls.
func (p *Port) Flushes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushes
}

// ReadTimeout returns the current read timeout.
func (p *Port) ReadTimeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Timeout
}

// Reads returns the number of Read calls.
func (p *Port) Reads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reads
}

// Violations returns the number of request/response pairing violations.
func (p *Port) Violations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.violations
}
