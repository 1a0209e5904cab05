package directory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// InMemory is a mutex-guarded user store for tests and development.
type InMemory struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*User
}

// NewInMemory creates an empty in-memory directory.
func NewInMemory() *InMemory {
	return &InMemory{users: make(map[uuid.UUID]*User)}
}

func (s *InMemory) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, tenantID, id uuid.UUID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok || u.TenantID != tenantID || !u.Active {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *InMemory) UsersByIDs(_ context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*User
	for _, id := range ids {
		u, ok := s.users[id]
		if !ok || u.TenantID != tenantID || !u.Active {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemory) UsersByRole(_ context.Context, tenantID uuid.UUID, role string) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*User
	for _, u := range s.users {
		if u.TenantID != tenantID || !u.Active || !strings.EqualFold(u.Role, role) {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

var _ Store = (*InMemory)(nil)
