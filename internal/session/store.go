package session

import (
	"errors"
	"sync"
	"time"

	"github.com/dunamismax/pixelconvert/internal/archive"
	"github.com/dunamismax/pixelconvert/internal/id"
)

var ErrSessionNotFound = errors.New("session not found")

// MemoryStore keeps sessions for the lifetime of the process only.
type MemoryStore struct {
	converter   BatchConverter
	archiveOpts []archive.Option

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewMemoryStore(converter BatchConverter, archiveOpts ...archive.Option) *MemoryStore {
	return &MemoryStore{
		converter:   converter,
		archiveOpts: archiveOpts,
		sessions:    make(map[string]*Session),
	}
}

func (m *MemoryStore) Create() *Session {
	s := New(id.New(), m.converter, m.archiveOpts...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID()] = s
	return s
}

func (m *MemoryStore) Get(sessionID string) (*Session, error) {
	if !id.Valid(sessionID) {
		return nil, ErrSessionNotFound
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (m *MemoryStore) Delete(sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	return nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes and forgets sessions idle for longer than maxIdle and returns
// how many were removed.
func (m *MemoryStore) Sweep(now time.Time, maxIdle time.Duration) int {
	var expired []*Session

	m.mu.Lock()
	for key, s := range m.sessions {
		if now.Sub(s.LastUsed()) > maxIdle {
			expired = append(expired, s)
			delete(m.sessions, key)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	return len(expired)
}
