package wizardsession

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. Suitable for a single-host
// lab deployment; state does not survive a restart.
type MemoryStore struct {
	sessions sync.Map
	stop     chan struct{}
	wg       sync.WaitGroup
}

type memoryEntry struct {
	session   *Session
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory store with a background sweeper for
// expired sessions.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{stop: make(chan struct{})}
	s.wg.Add(1)
	go s.sweep()
	return s
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	value, ok := s.sessions.Load(id)
	if !ok {
		return nil, ErrNotFound
	}
	entry := value.(*memoryEntry)
	if entry.expiresAt.Before(time.Now()) {
		s.sessions.Delete(id)
		return nil, ErrExpired
	}
	return entry.session, nil
}

func (s *MemoryStore) Set(_ context.Context, id string, sess *Session, ttl time.Duration) error {
	s.sessions.Store(id, &memoryEntry{session: sess, expiresAt: time.Now().Add(ttl)})
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.sessions.Delete(id)
	return nil
}

func (s *MemoryStore) Refresh(_ context.Context, id string, ttl time.Duration) error {
	value, ok := s.sessions.Load(id)
	if !ok {
		return ErrNotFound
	}
	value.(*memoryEntry).expiresAt = time.Now().Add(ttl)
	return nil
}

// Close stops the sweeper and drops every session.
func (s *MemoryStore) Close() error {
	close(s.stop)
	s.wg.Wait()
	s.sessions.Range(func(key, _ any) bool {
		s.sessions.Delete(key)
		return true
	})
	return nil
}

// Count returns the number of stored sessions.
func (s *MemoryStore) Count() int {
	n := 0
	s.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (s *MemoryStore) sweep() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			now := time.Now()
			s.sessions.Range(func(key, value any) bool {
				if value.(*memoryEntry).expiresAt.Before(now) {
					s.sessions.Delete(key)
				}
				return true
			})
		}
	}
}
