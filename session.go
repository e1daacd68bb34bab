package audiomoth

import (
	"sync"

	"github.com/google/uuid"
)

// session is the dispatcher-scoped value described in §3: a single
// "is-communicating" flag plus the identity of whichever job currently owns
// it. Exactly one is live at a time.
type session struct {
	mu   sync.Mutex
	busy bool
	id   uuid.UUID
}

// begin marks the session busy and returns a correlation ID for logging, or
// ErrBusy if a job is already in flight.
func (s *session) begin() (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return uuid.UUID{}, ErrBusy
	}
	s.busy = true
	s.id = uuid.New()
	return s.id, nil
}

// end releases the session. It is safe to call even if begin was never
// called successfully.
func (s *session) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	s.id = uuid.UUID{}
}

// isBusy reports whether a job is currently in flight. Dispatcher.IsBusy
// exposes it so an embedder's probe loop can skip a tick rather than race a
// live transport.
func (s *session) isBusy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}
