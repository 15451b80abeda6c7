// Package registry owns the process-wide reader session.
//
// A Registry holds at most one open reader.Session. Connect, Disconnect and
// every exchange made through WithSession are serialized by a single mutex,
// so two callers can never interleave writes and reads on the same channel.
package registry

import (
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"badgedesk/reader"
)

var (
	ErrAlreadyConnected = errors.New("reader already connected")
	ErrNotConnected     = errors.New("reader not connected")
)

// State is a snapshot of the registry. The zero value is Disconnected.
type State struct {
	Connected bool   `json:"connected"`
	Port      string `json:"port,omitempty"`
	Baud      int    `json:"baud,omitempty"`
}

// Registry is the single owner of the live reader session.
type Registry struct {
	driver   reader.Driver
	onChange func(State)

	// notifyMu is taken before mu and held until the change callback
	// returns, so callbacks see transitions in the order they happened.
	notifyMu sync.Mutex

	mu      sync.Mutex
	session *reader.Session
}

// New creates a disconnected registry that opens ports through driver.
func New(driver reader.Driver) *Registry {
	return &Registry{driver: driver}
}

// SetChangeCallback sets a callback run after every state transition.
// It runs outside the state lock, one transition at a time and in order.
// It must not call Connect, Disconnect or WithSession. Set it before the
// registry is shared.
func (r *Registry) SetChangeCallback(fn func(State)) {
	r.onChange = fn
}

// State returns the current state.
func (r *Registry) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return stateOf(r.session)
}

// Connect opens port and moves to Connected. It fails with
// ErrAlreadyConnected, leaving the open session as it is, when a session
// already exists.
func (r *Registry) Connect(port string, baud int) error {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	st, err := r.connect(port, baud)
	if err != nil {
		return err
	}
	r.notify(st)
	return nil
}

func (r *Registry) connect(port string, baud int) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		return State{}, fmt.Errorf("%w to %s", ErrAlreadyConnected, r.session.Name())
	}
	s, err := reader.Open(r.driver, port, baud)
	if err != nil {
		return State{}, err
	}
	r.session = s
	return stateOf(s), nil
}

// Disconnect closes the session if there is one. It never fails.
func (r *Registry) Disconnect() {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	if r.disconnect() {
		r.notify(State{})
	}
}

func (r *Registry) disconnect() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		return false
	}
	log.WithField("port", r.session.Name()).Info("Reader disconnected")
	r.session.Close()
	r.session = nil
	return true
}

// WithSession runs fn with exclusive use of the live session. It returns
// ErrNotConnected without calling fn when disconnected. If fn fails with
// reader.ErrIO the session is closed and the registry moves to
// Disconnected; it is not retried.
func (r *Registry) WithSession(fn func(*reader.Session) error) error {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	faulted, err := r.exchange(fn)
	if faulted {
		r.notify(State{})
	}
	return err
}

func (r *Registry) exchange(fn func(*reader.Session) error) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		return false, ErrNotConnected
	}

	err := fn(r.session)
	if !errors.Is(err, reader.ErrIO) {
		return false, err
	}

	log.WithField("port", r.session.Name()).Warnf("Reader faulted, disconnecting: %v", err)
	r.session.Close()
	r.session = nil
	return true, err
}

func (r *Registry) notify(st State) {
	if r.onChange != nil {
		r.onChange(st)
	}
}

func stateOf(s *reader.Session) State {
	if s == nil {
		return State{}
	}
	return State{Connected: true, Port: s.Name(), Baud: s.Baud()}
}
