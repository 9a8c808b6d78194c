package memoryregistry

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/voxcap/pkg/io/registry"
)

type mmrRegistry struct {
	mu    sync.RWMutex
	limit int
	ssMap map[uuid.UUID]*registry.Session
}

// Acquire implements registry.Registry.
func (m *mmrRegistry) Acquire(s registry.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ssMap[s.ID]; ok {
		return registry.ErrExists
	}
	if m.limit > 0 && len(m.ssMap) >= m.limit {
		return registry.ErrFull
	}
	now := time.Now()
	if s.OpenedAt.IsZero() {
		s.OpenedAt = now
	}
	if s.LastSeen.IsZero() {
		s.LastSeen = now
	}
	m.ssMap[s.ID] = &s
	return nil
}

// Release implements registry.Registry.
func (m *mmrRegistry) Release(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ssMap[id]; !ok {
		return false
	}
	delete(m.ssMap, id)
	return true
}

// Touch implements registry.Registry.
func (m *mmrRegistry) Touch(id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.ssMap[id]
	if s == nil {
		return registry.ErrNotFound
	}
	if at.After(s.LastSeen) {
		s.LastSeen = at
	}
	return nil
}

// Get implements registry.Registry.
func (m *mmrRegistry) Get(id uuid.UUID) (registry.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s := m.ssMap[id]; s != nil {
		return *s, true
	}
	return registry.Session{}, false
}

// List implements registry.Registry. Oldest first.
func (m *mmrRegistry) List() []registry.Session {
	return m.filter(func(registry.Session) bool { return true })
}

// Stale implements registry.Registry.
func (m *mmrRegistry) Stale(before time.Time) []registry.Session {
	return m.filter(func(s registry.Session) bool { return s.LastSeen.Before(before) })
}

func (m *mmrRegistry) filter(keep func(registry.Session) bool) []registry.Session {
	m.mu.RLock()
	out := make([]registry.Session, 0, len(m.ssMap))
	for _, s := range m.ssMap {
		if keep(*s) {
			out = append(out, *s)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// Len implements registry.Registry.
func (m *mmrRegistry) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ssMap)
}

// New returns a registry holding at most limit sessions; 0 means unbounded.
func New(limit int) registry.Registry {
	return &mmrRegistry{
		limit: limit,
		ssMap: make(map[uuid.UUID]*registry.Session),
	}
}
