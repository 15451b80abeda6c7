// Package scan answers "which student is at the reader right now".
//
// A Service drives one exchange on the shared reader through the registry,
// then resolves the returned card against the student directory. The
// directory call happens after the registry lock has been released.
package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"badgedesk/directory"
	"badgedesk/reader"
	"badgedesk/registry"
)

// Resolver maps a card identifier to a student, or nil when unbound.
type Resolver interface {
	Resolve(ctx context.Context, card string) (*directory.Student, error)
}

// Recorder receives scan metrics.
type Recorder interface {
	ScanResult(result string)
	ExchangeDuration(d time.Duration)
}

// Service is the operator-facing reader API: port listing, connect,
// disconnect, status and scan. It is safe for concurrent use.
type Service struct {
	reg      *registry.Registry
	protocol reader.Protocol
	resolver Resolver
	ports    reader.Enumerator

	observers []Observer
	metrics   Recorder
	now       func() time.Time
}

// New creates a Service. Observers, metrics and the port lister must be
// set before the service is shared.
func New(reg *registry.Registry, protocol reader.Protocol, resolver Resolver) *Service {
	return &Service{
		reg:      reg,
		protocol: protocol,
		resolver: resolver,
		ports:    reader.SystemEnumerator,
		now:      time.Now,
	}
}

// AddObserver registers o to receive every outcome.
func (s *Service) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

// SetMetrics sets the metrics recorder.
func (s *Service) SetMetrics(m Recorder) {
	s.metrics = m
}

// SetPortLister replaces the system port enumerator.
func (s *Service) SetPortLister(e reader.Enumerator) {
	s.ports = e
}

// Ports lists candidate reader ports.
func (s *Service) Ports() ([]string, error) {
	return reader.CandidatePorts(s.ports)
}

// Status returns the reader connection state.
func (s *Service) Status() registry.State {
	return s.reg.State()
}

// Connect opens the reader on port. A zero baud uses reader.DefaultBaud.
func (s *Service) Connect(port string, baud int) (string, error) {
	if baud == 0 {
		baud = reader.DefaultBaud
	}
	if err := s.reg.Connect(port, baud); err != nil {
		return "", err
	}
	return fmt.Sprintf("Connected to RFID reader on %s", port), nil
}

// Disconnect closes the reader. It always succeeds.
func (s *Service) Disconnect() string {
	s.reg.Disconnect()
	return "RFID reader disconnected"
}

// Scan performs one exchange with the reader and resolves the card.
//
// A missing card or a reader I/O failure is reported as an unsuccessful
// Outcome with a nil error; the I/O failure also disconnects the reader.
// registry.ErrNotConnected and directory.ErrUnavailable are returned as
// errors.
func (s *Service) Scan(ctx context.Context) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	var card string
	var took time.Duration
	err := s.reg.WithSession(func(sess *reader.Session) error {
		start := time.Now()
		defer func() { took = time.Since(start) }()

		var err error
		card, err = s.protocol.PerformScan(sess)
		return err
	})
	if !errors.Is(err, registry.ErrNotConnected) && s.metrics != nil {
		s.metrics.ExchangeDuration(took)
	}

	at := s.now()
	switch {
	case errors.Is(err, registry.ErrNotConnected):
		s.count(ResultNotConnected)
		return Outcome{}, err
	case errors.Is(err, reader.ErrNoCard):
		return s.finish(failed(at, ResultNoCard, err)), nil
	case errors.Is(err, reader.ErrIO):
		return s.finish(failed(at, ResultIOError, err)), nil
	case err != nil:
		return Outcome{}, err
	}

	student, err := s.resolver.Resolve(ctx, card)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			log.WithField("card", card).Debugf("Resolve card abandoned: %v", err)
		} else {
			s.count(ResultDirectoryError)
			log.WithField("card", card).Warnf("Resolve card: %v", err)
		}
		return Outcome{}, fmt.Errorf("resolve card %s: %w", card, err)
	}

	o := Outcome{CardID: card, Student: student, ScanTime: at, Success: true}
	if student != nil {
		o.Message, o.Result = MessageFound, ResultFound
	} else {
		o.Message, o.Result = MessageUnregistered, ResultUnregistered
	}
	return s.finish(o), nil
}

func failed(at time.Time, r Result, err error) Outcome {
	return Outcome{
		ScanTime: at,
		Message:  fmt.Sprintf("Scan failed: %v", err),
		Result:   r,
	}
}

func (s *Service) finish(o Outcome) Outcome {
	s.count(o.Result)
	fields := log.Fields{"result": o.Result}
	if o.CardID != "" {
		fields["card"] = o.CardID
	}
	if o.Student != nil {
		fields["student"] = o.Student.ID
	}
	log.WithFields(fields).Info(o.Message)

	for _, obs := range s.observers {
		obs.ObserveScan(o)
	}
	return o
}

func (s *Service) count(r Result) {
	if s.metrics != nil {
		s.metrics.ScanResult(string(r))
	}
}
