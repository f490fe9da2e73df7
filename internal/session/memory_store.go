package session

import (
	"context"
	"sync"
	"time"

	"github.com/wolfman30/remitchat/pkg/logging"
)

// MemoryStore keeps sessions in process behind a mutex.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	policy   policy
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory store with the given idle timeout.
func NewMemoryStore(idleTimeout time.Duration, opts ...Option) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
		policy:   newPolicy(idleTimeout, opts...),
	}
}

func (s *MemoryStore) LoadOrCreate(_ context.Context, senderID string) (Session, error) {
	s.mu.Lock()
	stored, ok := s.sessions[senderID]
	s.mu.Unlock()
	if ok {
		stored = stored.Clone()
	}
	return s.policy.resolve(senderID, stored, ok), nil
}

func (s *MemoryStore) CompareAndSwap(_ context.Context, senderID string, expectedVersion int64, next Session) (bool, error) {
	if err := validateWrite(senderID, expectedVersion, next); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if stored, ok := s.sessions[senderID]; ok {
		current = stored.Version
	}
	if current != expectedVersion {
		return false, nil
	}
	s.sessions[senderID] = next.Clone()
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, senderID string) error {
	s.mu.Lock()
	delete(s.sessions, senderID)
	s.mu.Unlock()
	return nil
}

// Len returns the number of physically stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// EvictIdle removes sessions idle past the timeout and returns how many were dropped.
func (s *MemoryStore) EvictIdle() int {
	now := s.policy.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, sess := range s.sessions {
		if sess.Expired(now, s.policy.idle) {
			delete(s.sessions, id)
			evicted++
		}
	}
	return evicted
}

// RunJanitor evicts idle sessions every interval until ctx is done.
func (s *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration, logger *logging.Logger) {
	if interval <= 0 || s.policy.idle <= 0 {
		return
	}
	if logger == nil {
		logger = logging.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.EvictIdle(); n > 0 {
				logger.Debug("session janitor evicted idle sessions", "count", n)
			}
		}
	}
}
