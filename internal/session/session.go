// Package session holds the identity of the user operating this client.
//
// The current user is explicit state owned by a Manager and injected into
// whatever needs it, never a process-wide global. Switching users is an
// explicit action; anything composed for the previous user must be detached
// and rebuilt by the caller.
package session

import (
	"sync"

	"github.com/vovakirdan/wirechat-client/internal/chat"
)

// Manager owns the current user of the running client.
type Manager struct {
	mu      sync.RWMutex
	current chat.User
}

// NewManager creates a manager with the given initial user.
func NewManager(initial chat.User) *Manager {
	return &Manager{current: initial}
}

// Current returns the active user.
func (m *Manager) Current() chat.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// SetCurrent switches the active user.
func (m *Manager) SetCurrent(u chat.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = u
}
