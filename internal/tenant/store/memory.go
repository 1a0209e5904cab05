package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"arbiter/internal/tenant/models"
)

// InMemory is a mutex-guarded tenant store for tests and development.
type InMemory struct {
	mu      sync.RWMutex
	tenants map[uuid.UUID]*models.Tenant
}

// NewInMemory creates an empty in-memory tenant store.
func NewInMemory() *InMemory {
	return &InMemory{tenants: make(map[uuid.UUID]*models.Tenant)}
}

func (s *InMemory) Create(_ context.Context, t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tenants {
		if strings.EqualFold(existing.Key, t.Key) {
			return ErrKeyTaken
		}
	}
	cp := *t
	s.tenants[t.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id uuid.UUID) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *InMemory) FindByKey(_ context.Context, key string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tenants {
		if strings.EqualFold(t.Key, key) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemory) ListActive(_ context.Context) ([]*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		if t.Active {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *InMemory) Update(_ context.Context, t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[t.ID]; !ok {
		return ErrNotFound
	}
	cp := *t
	s.tenants[t.ID] = &cp
	return nil
}

var _ Store = (*InMemory)(nil)
