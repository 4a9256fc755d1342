package session

import (
	"context"
	"sync"
	"time"

	"github.com/narravox/narravox/backend/internal/model/story"
)

type memoryEntry struct {
	session    *story.Session
	lastAccess time.Time
}

// MemoryStore keeps sessions in process memory with an idle TTL.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates an empty store. A zero ttl disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryStore) Create(_ context.Context, s *story.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[s.ID]; ok {
		return ErrSessionExists
	}
	m.entries[s.ID] = &memoryEntry{session: s.Clone(), lastAccess: m.now()}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*story.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	entry.lastAccess = m.now()
	return entry.session.Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, s *story.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[s.ID]; !ok {
		return ErrSessionNotFound
	}
	m.entries[s.ID] = &memoryEntry{session: s.Clone(), lastAccess: m.now()}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.entries, id)
	return nil
}

func (m *MemoryStore) Sweep(_ context.Context, now time.Time) ([]string, error) {
	if m.ttl <= 0 {
		return nil, nil
	}
	cutoff := now.Add(-m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []string
	for id, entry := range m.entries {
		if entry.lastAccess.Before(cutoff) {
			expired = append(expired, id)
			delete(m.entries, id)
		}
	}
	return expired, nil
}

// Len returns the number of live sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
