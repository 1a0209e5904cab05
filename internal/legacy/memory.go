package legacy

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// InMemory is a mutex-guarded legacy approval store for tests and
// development.
type InMemory struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]*Approval
}

// NewInMemory creates an empty in-memory legacy store.
func NewInMemory() *InMemory {
	return &InMemory{rows: make(map[uuid.UUID]*Approval)}
}

func (s *InMemory) Create(_ context.Context, a *Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.rows[a.ID] = &cp
	return nil
}

func (s *InMemory) Get(_ context.Context, tenantID, id uuid.UUID) (*Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.rows[id]
	if !ok || a.TenantID != tenantID || a.IsDeleted {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *InMemory) ListChain(_ context.Context, tenantID, chainID uuid.UUID) ([]*Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Approval
	for _, a := range s.rows {
		if a.TenantID != tenantID || a.IsDeleted || a.ChainID == nil || *a.ChainID != chainID {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepOrder < out[j].StepOrder })
	return out, nil
}

func (s *InMemory) List(_ context.Context, tenantID uuid.UUID) ([]*Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Approval
	for _, a := range s.rows {
		if a.TenantID != tenantID || a.IsDeleted {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RequestedOnUTC.After(out[j].RequestedOnUTC)
	})
	return out, nil
}

func (s *InMemory) Save(_ context.Context, tenantID uuid.UUID, rows ...*Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range rows {
		stored, ok := s.rows[a.ID]
		if !ok || stored.TenantID != tenantID {
			return ErrNotFound
		}
		cp := *a
		cp.TenantID = tenantID
		s.rows[a.ID] = &cp
	}
	return nil
}

var _ Store = (*InMemory)(nil)
