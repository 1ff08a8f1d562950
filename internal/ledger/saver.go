package ledger

import (
	"context"
	"errors"
	"sync"
)

// ErrSaveInFlight rejects a save started while another is running.
var ErrSaveInFlight = errors.New("a save is already in progress")

// Submitter delivers a change set to the store. It either applies all of it
// or returns an error.
type Submitter interface {
	Submit(ctx context.Context, p Payload) error
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, p Payload) error

func (f SubmitterFunc) Submit(ctx context.Context, p Payload) error { return f(ctx, p) }

// Saver runs the save round-trip for a ledger guarded by mu. The lock is
// released while the submitter runs so the table stays editable.
type Saver struct {
	mu       sync.Locker
	ledger   *Ledger
	inFlight bool
}

// NewSaver returns a saver for l. mu must guard every other use of l.
func NewSaver(l *Ledger, mu sync.Locker) *Saver {
	return &Saver{mu: mu, ledger: l}
}

// Save submits the current change set. A second save while one is running
// fails with ErrSaveInFlight. On failure the ledger is left untouched and the
// submitter error is returned. A clean ledger saves nothing.
func (s *Saver) Save(ctx context.Context, sub Submitter) (Payload, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return Payload{}, ErrSaveInFlight
	}
	snap := s.ledger.snapshot()
	payload := s.ledger.Serialize()
	if payload.Empty() {
		s.mu.Unlock()
		return payload, nil
	}
	s.inFlight = true
	s.mu.Unlock()

	err := sub.Submit(ctx, payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if err != nil {
		return payload, err
	}
	s.ledger.commit(snap)
	return payload, nil
}

// InFlight reports whether a save is running.
func (s *Saver) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}
