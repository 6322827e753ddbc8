package store

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Memory is a map-backed UserStore and KeyStore. Used by single-tenant
// deployments and tests; contents do not survive a restart.
type Memory struct {
	mu    sync.RWMutex
	users map[string]*User
	keys  map[string]*Key
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		users: make(map[string]*User),
		keys:  make(map[string]*Key),
	}
}

// CreateUser implements UserStore.
func (m *Memory) CreateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if existing.TenantID == u.TenantID && strings.EqualFold(existing.Email, u.Email) {
			return ErrDuplicateEmail
		}
	}

	now := time.Now()
	clone := *u
	clone.CreatedAt = now
	clone.UpdatedAt = now
	clone.Permissions = append([]string(nil), u.Permissions...)
	m.users[u.ID] = &clone
	*u = clone
	return nil
}

// UserByEmail implements UserStore.
func (m *Memory) UserByEmail(_ context.Context, tenantID, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.TenantID == tenantID && strings.EqualFold(u.Email, email) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

// UserByID implements UserStore.
func (m *Memory) UserByID(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *u
	return &clone, nil
}

// UpdatePasswordHash implements UserStore.
func (m *Memory) UpdatePasswordHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = time.Now()
	return nil
}

// SetActive implements UserStore.
func (m *Memory) SetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Active = active
	u.UpdatedAt = time.Now()
	return nil
}

// DeleteUser implements UserStore.
func (m *Memory) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	return nil
}

// CountUsers implements UserStore.
func (m *Memory) CountUsers(_ context.Context, tenantID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, u := range m.users {
		if u.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

// SaveKey implements KeyStore. Saving an existing locator replaces it.
func (m *Memory) SaveKey(_ context.Context, k *Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *k
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	clone.EncryptedKey = append([]byte(nil), k.EncryptedKey...)
	m.keys[k.LocatorHash] = &clone
	return nil
}

// KeyByLocator implements KeyStore.
func (m *Memory) KeyByLocator(_ context.Context, locatorHash string) (*Key, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k, ok := m.keys[locatorHash]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *k
	clone.EncryptedKey = append([]byte(nil), k.EncryptedKey...)
	return &clone, nil
}

// DeleteKey implements KeyStore.
func (m *Memory) DeleteKey(_ context.Context, locatorHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.keys[locatorHash]; !ok {
		return ErrNotFound
	}
	delete(m.keys, locatorHash)
	return nil
}
