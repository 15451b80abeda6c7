package directory

import (
	"context"

	"github.com/pkg/errors"
)

// Lister is the lookup side of the directory.
type Lister interface {
	ListStudents(ctx context.Context) ([]Student, error)
}

// Resolver maps card identifiers to students. It keeps no state of its own;
// every call sees whatever the directory holds at that moment.
type Resolver struct {
	students Lister
}

// NewResolver creates a Resolver backed by l.
func NewResolver(l Lister) *Resolver {
	return &Resolver{students: l}
}

// Resolve returns the student bound to card, or nil if there is none. A
// failed lookup is ErrUnavailable, which is distinct from "not found". A
// cancelled or expired ctx is returned as the context error.
func (r *Resolver) Resolve(ctx context.Context, card string) (*Student, error) {
	students, err := r.students.ListStudents(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, errors.Wrapf(ErrUnavailable, "list students: %v", err)
	}

	// Card uniqueness is the store's invariant; the first match wins.
	for i := range students {
		if students[i].RFIDCard != "" && students[i].RFIDCard == card {
			st := students[i]
			return &st, nil
		}
	}
	return nil, nil
}
