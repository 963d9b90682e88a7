package session

import (
	"context"
	"sync"

	"github.com/BaSui01/flowroute/types"
)

// MemoryStore is the in-process Store used for tests and single-node
// deployments. Sessions are deep-copied on every boundary crossing.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*types.Session
	closed   bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*types.Session),
	}
}

// Save stores a deep copy of the session.
func (m *MemoryStore) Save(_ context.Context, session *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return types.NewError(types.ErrStoreClosed, "memory store is closed")
	}
	m.sessions[session.ID] = session.Clone()
	return nil
}

// Get returns a deep copy of the stored session.
func (m *MemoryStore) Get(_ context.Context, id string) (*types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, types.NewError(types.ErrStoreClosed, "memory store is closed")
	}
	session, ok := m.sessions[id]
	if !ok {
		return nil, types.NewError(types.ErrSessionNotFound, "session not found").WithSession(id)
	}
	return session.Clone(), nil
}

// ListActive returns copies of all non-terminal sessions.
func (m *MemoryStore) ListActive(_ context.Context) ([]*types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, types.NewError(types.ErrStoreClosed, "memory store is closed")
	}
	active := []*types.Session{}
	for _, session := range m.sessions {
		if !session.Phase.Terminal() {
			active = append(active, session.Clone())
		}
	}
	return active, nil
}

// Delete removes the session if present.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return types.NewError(types.ErrStoreClosed, "memory store is closed")
	}
	delete(m.sessions, id)
	return nil
}

// Ping always succeeds while the store is open.
func (m *MemoryStore) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return types.NewError(types.ErrStoreClosed, "memory store is closed")
	}
	return nil
}

// Close marks the store closed and drops all sessions.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.sessions = nil
	return nil
}
