package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"arbiter/internal/decision/models"
)

// MemoryStore is a mutex-guarded in-memory Store used by unit tests and
// single-node development. Requests are deep-copied on every read and write
// so callers can never mutate stored state without going through Save.
type MemoryStore struct {
	mu      sync.RWMutex
	tenants map[uuid.UUID]*tenantState
}

type tenantState struct {
	requests map[uuid.UUID]*models.Request
	order    []uuid.UUID // insertion order, for stable listing
}

// NewMemoryStore creates an empty in-memory decision store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tenants: make(map[uuid.UUID]*tenantState)}
}

func (s *MemoryStore) tenant(tenantID uuid.UUID) *tenantState {
	ts, ok := s.tenants[tenantID]
	if !ok {
		ts = &tenantState{requests: make(map[uuid.UUID]*models.Request)}
		s.tenants[tenantID] = ts
	}
	return ts
}

func (s *MemoryStore) CreateDecision(_ context.Context, tenantID uuid.UUID, req *models.Request, logs []models.ActionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneRequest(req)
	stored.TenantID = tenantID
	stored.Logs = append(stored.Logs, logs...)

	ts := s.tenant(tenantID)
	ts.requests[stored.ID] = stored
	ts.order = append(ts.order, stored.ID)
	return nil
}

func (s *MemoryStore) GetDecision(_ context.Context, tenantID, id uuid.UUID) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ts, ok := s.tenants[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	stored, ok := ts.requests[id]
	if !ok || stored.IsDeleted {
		return nil, ErrNotFound
	}
	return cloneRequest(stored), nil
}

func (s *MemoryStore) SaveDecision(_ context.Context, tenantID uuid.UUID, req *models.Request, newLogs []models.ActionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.tenants[tenantID]
	if !ok {
		return ErrNotFound
	}
	stored, ok := ts.requests[req.ID]
	if !ok {
		return ErrNotFound
	}

	updated := cloneRequest(req)
	updated.TenantID = tenantID
	updated.Logs = append(append([]models.ActionLog{}, stored.Logs...), newLogs...)
	ts.requests[req.ID] = updated
	return nil
}

func (s *MemoryStore) ListDecisions(_ context.Context, tenantID uuid.UUID) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ts, ok := s.tenants[tenantID]
	if !ok {
		return nil, nil
	}

	out := make([]*models.Request, 0, len(ts.order))
	for _, id := range ts.order {
		r := ts.requests[id]
		if r.IsDeleted {
			continue
		}
		out = append(out, cloneRequest(r))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RequestedOnUTC.After(out[j].RequestedOnUTC)
	})
	return out, nil
}

func (s *MemoryStore) ListOverdue(_ context.Context, tenantID uuid.UUID, now time.Time) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ts, ok := s.tenants[tenantID]
	if !ok {
		return nil, nil
	}

	var out []*models.Request
	for _, id := range ts.order {
		r := ts.requests[id]
		if r.IsDeleted || r.Status.Terminal() {
			continue
		}
		if r.DueAtUTC == nil || !r.DueAtUTC.Before(now) {
			continue
		}
		out = append(out, cloneRequest(r))
	}
	return out, nil
}

func (s *MemoryStore) EscalatedIDs(_ context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[uuid.UUID]struct{})
	ts, ok := s.tenants[tenantID]
	if !ok {
		return out, nil
	}
	for _, id := range ids {
		r, ok := ts.requests[id]
		if !ok {
			continue
		}
		if r.HasEscalationLog() {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

func (s *MemoryStore) CommitEscalations(_ context.Context, tenantID uuid.UUID, requests []*models.Request, logs []models.ActionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.tenants[tenantID]
	if !ok {
		return ErrNotFound
	}

	logsByRequest := make(map[uuid.UUID][]models.ActionLog)
	for _, l := range logs {
		logsByRequest[l.RequestID] = append(logsByRequest[l.RequestID], l)
	}

	for _, req := range requests {
		stored, ok := ts.requests[req.ID]
		if !ok {
			return ErrNotFound
		}
		updated := cloneRequest(req)
		updated.TenantID = tenantID
		updated.Logs = append(append([]models.ActionLog{}, stored.Logs...), logsByRequest[req.ID]...)
		ts.requests[req.ID] = updated
	}
	return nil
}

func (s *MemoryStore) History(_ context.Context, tenantID uuid.UUID, filter HistoryFilter) ([]models.HistoryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ts, ok := s.tenants[tenantID]
	if !ok {
		return nil, nil
	}

	var rows []models.HistoryRow
	for _, id := range ts.order {
		r := ts.requests[id]
		if r.IsDeleted {
			continue
		}
		for _, l := range r.Logs {
			if l.IsDeleted {
				continue
			}
			if !matchesHistoryFilter(r, l, filter) {
				continue
			}
			rows = append(rows, historyRow(r, l))
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].ActionAtUTC.After(rows[j].ActionAtUTC)
	})
	if filter.Take > 0 && len(rows) > filter.Take {
		rows = rows[:filter.Take]
	}
	return rows, nil
}

func matchesHistoryFilter(r *models.Request, l models.ActionLog, f HistoryFilter) bool {
	if f.Action != "" && !strings.EqualFold(strings.TrimSpace(f.Action), string(l.Action)) {
		return false
	}
	if f.Status != "" && !strings.EqualFold(strings.TrimSpace(f.Status), string(r.Status)) {
		return false
	}
	if f.DecisionType != "" && !containsFold(r.Type, f.DecisionType) {
		return false
	}
	if f.Search != "" {
		term := strings.TrimSpace(f.Search)
		if !containsFold(r.Type, term) &&
			!containsFold(r.EntityType, term) &&
			!containsFold(r.PolicyReason, term) &&
			!containsFold(l.ActorName, term) &&
			!containsFold(l.Notes, term) {
			return false
		}
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(strings.TrimSpace(needle)))
}

func historyRow(r *models.Request, l models.ActionLog) models.HistoryRow {
	workflow := models.WorkflowGeneric
	if r.Owner().Kind == models.OwnedLegacy {
		workflow = models.WorkflowLegacy
	}
	return models.HistoryRow{
		LogID:             l.ID,
		RequestID:         r.ID,
		Action:            string(l.Action),
		ActionAtUTC:       l.ActionAtUTC,
		ActorName:         l.ActorName,
		ActorUserID:       l.ActorUserID,
		DecisionType:      r.Type,
		WorkflowType:      workflow,
		EntityType:        r.EntityType,
		EntityID:          r.EntityID,
		EntityLabel:       r.EntityType + " " + r.EntityID.String(),
		Status:            string(r.Status),
		Priority:          string(r.Priority),
		RiskLevel:         r.RiskLevel,
		Notes:             l.Notes,
		PolicyReason:      r.PolicyReason,
		IsEscalationEvent: l.Action.Is(models.ActionSlaEscalated),
	}
}

func cloneRequest(r *models.Request) *models.Request {
	cp := *r
	cp.Steps = make([]*models.Step, 0, len(r.Steps))
	for _, s := range r.Steps {
		sc := *s
		cp.Steps = append(cp.Steps, &sc)
	}
	cp.Logs = append([]models.ActionLog{}, r.Logs...)
	if r.RequestedByUserID != nil {
		v := *r.RequestedByUserID
		cp.RequestedByUserID = &v
	}
	if r.DueAtUTC != nil {
		v := *r.DueAtUTC
		cp.DueAtUTC = &v
	}
	if r.CompletedAtUTC != nil {
		v := *r.CompletedAtUTC
		cp.CompletedAtUTC = &v
	}
	if r.LegacyApprovalID != nil {
		v := *r.LegacyApprovalID
		cp.LegacyApprovalID = &v
	}
	return &cp
}

var _ Store = (*MemoryStore)(nil)
