package state

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]Session
}

// NewMemoryStore constructs an in-memory Store for tests and development.
// Sessions are lost on restart.
func NewMemoryStore() Store {
	return &memoryStore{
		sessions: make(map[int64]Session),
	}
}

// Get returns a copy of the stored session, or an empty one if none exists.
func (m *memoryStore) Get(_ context.Context, userID int64) (Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if sess, ok := m.sessions[userID]; ok {
		return sess.Clone(), true, nil
	}
	return emptySession(), false, nil
}

// Set replaces the session for a user.
func (m *memoryStore) Set(_ context.Context, userID int64, sess Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[userID] = sess.Clone()
	return nil
}

// Update applies fn under the write lock.
func (m *memoryStore) Update(_ context.Context, userID int64, fn func(*Session) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[userID]
	if ok {
		sess = sess.Clone()
	} else {
		sess = emptySession()
	}
	if err := fn(&sess); err != nil {
		return err
	}
	m.sessions[userID] = sess
	return nil
}

// Delete removes the entire session for a user.
func (m *memoryStore) Delete(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, userID)
	return nil
}

func (m *memoryStore) Ping(context.Context) error { return nil }

func (m *memoryStore) Close() error { return nil }
