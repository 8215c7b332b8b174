// ABOUTME: In-memory session store with TTL cleanup and capacity limits
// ABOUTME: Thread-safe registry of active design sessions keyed by uuid

package editor

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Store holds the open design sessions. LastAccess on each session is only
// read or written under mu.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	maxSessions int
	ttl         time.Duration
}

// NewStore creates a store holding at most maxSessions sessions, each
// expiring after ttl without access.
func NewStore(maxSessions int, ttl time.Duration) *Store {
	if maxSessions <= 0 {
		maxSessions = 1
	}
	return &Store{
		sessions:    make(map[string]*Session),
		maxSessions: maxSessions,
		ttl:         ttl,
	}
}

// Create opens an empty design session. name keys the design in the
// persistence backend; an empty name falls back to the session id. At
// capacity the least recently used session is closed first.
func (s *Store) Create(name string, svc *Services) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.sessions) >= s.maxSessions {
		s.evictOldestLocked()
	}

	id := uuid.New().String()
	name = strings.TrimSpace(name)
	if name == "" {
		name = id
	}
	sess := newSession(id, name, svc)
	s.sessions[sess.ID] = sess
	return sess
}

func (s *Store) evictOldestLocked() {
	var victim *Session
	for _, sess := range s.sessions {
		if victim == nil || sess.LastAccess.Before(victim.LastAccess) {
			victim = sess
		}
	}
	if victim != nil {
		delete(s.sessions, victim.ID)
	}
}

// Get returns the session with id and marks it as used.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}

	sess.LastAccess = time.Now()
	return sess, true
}

// Delete closes a session.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// Summary describes one open session without its topology.
type Summary struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Agents     int       `json:"agents"`
	CreatedAt  time.Time `json:"createdAt"`
	LastAccess time.Time `json:"lastAccess"`
}

// List returns every open session, most recently used first. It does not
// count as an access.
func (s *Store) List() []Summary {
	s.mu.RLock()
	out := make([]Summary, 0, len(s.sessions))
	open := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, Summary{
			ID:         sess.ID,
			Name:       sess.Name,
			CreatedAt:  sess.CreatedAt,
			LastAccess: sess.LastAccess,
		})
		open = append(open, sess)
	}
	s.mu.RUnlock()

	for i, sess := range open {
		out[i].Agents = sess.agentCount()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastAccess.Equal(out[j].LastAccess) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastAccess.After(out[j].LastAccess)
	})
	return out
}

// Len returns the number of open sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Cleanup removes sessions idle for longer than the TTL and returns how many
// were dropped.
func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.ttl)
	dropped := 0
	for id, sess := range s.sessions {
		if sess.LastAccess.Before(cutoff) {
			delete(s.sessions, id)
			dropped++
		}
	}
	return dropped
}

// StartCleanup expires idle sessions every interval until the returned stop
// function is called.
func (s *Store) StartCleanup(interval time.Duration, logger *log.Logger) func() {
	return every(interval, func() {
		if n := s.Cleanup(); n > 0 && logger != nil {
			logger.Info("expired idle sessions", "count", n, "open", s.Len())
		}
	})
}

// every runs fn on a ticker in its own goroutine. The returned function stops
// it and is safe to call more than once.
func every(interval time.Duration, fn func()) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()
	return sync.OnceFunc(func() { close(done) })
}
