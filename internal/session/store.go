package session

import (
	"errors"
	"fmt"
	"sync"
)

// ErrDuplicateID reports an Insert with an identifier that is already live.
// The uuid generator makes this unreachable in practice; it guards the
// store's one-live-session-per-id invariant.
var ErrDuplicateID = errors.New("session id already registered")

// Store is the process-wide registry of live replay sessions. All access is
// lock-protected; no operation performs I/O.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
	}
}

func (s *Store) Insert(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, sess.ID)
	}
	s.sessions[sess.ID] = sess
	return nil
}

func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Remove evicts a session. Idempotent; called once by the owning runner at
// termination.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ActiveCount reports sessions that have not reached a terminal state.
func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, sess := range s.sessions {
		if !sess.State().IsTerminal() {
			count++
		}
	}
	return count
}
