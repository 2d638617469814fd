package session

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore is a process-local Memory used by tests and by the CLI
// when no Redis is configured. Idle sessions are evicted lazily on access.
type InMemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]*memSession
}

type memSession struct {
	turns   []Turn
	touched time.Time
}

// NewInMemoryStore creates an in-process store with the given idle
// timeout. A zero ttl disables eviction.
func NewInMemoryStore(ttl time.Duration) *InMemoryStore {
	return &InMemoryStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*memSession),
	}
}

func (s *InMemoryStore) expired(sess *memSession) bool {
	return s.ttl > 0 && s.now().Sub(sess.touched) > s.ttl
}

// Append records the turn and refreshes the idle timeout.
func (s *InMemoryStore) Append(_ context.Context, sessionID string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || s.expired(sess) {
		sess = &memSession{}
		s.sessions[sessionID] = sess
	}
	sess.turns = append(sess.turns, turn)
	sess.touched = s.now()
	return nil
}

// Recent returns up to n trailing turns, oldest first.
func (s *InMemoryStore) Recent(_ context.Context, sessionID string, n int) ([]Turn, error) {
	if n <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	if s.expired(sess) {
		delete(s.sessions, sessionID)
		return nil, nil
	}

	turns := sess.turns
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}
