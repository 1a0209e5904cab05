package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbiter/internal/decision/models"
	"arbiter/internal/decision/store"
)

var baseTime = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

func seedRequest(t *testing.T, s *store.MemoryStore, tenantID uuid.UUID, mutate func(*models.Request)) *models.Request {
	t.Helper()
	req := &models.Request{
		ID:             uuid.New(),
		TenantID:       tenantID,
		Type:           "DiscountApproval",
		EntityType:     "Deal",
		EntityID:       uuid.New(),
		Status:         models.StatusPending,
		Priority:       models.PriorityNormal,
		RiskLevel:      "medium",
		PolicyReason:   "Discount above threshold.",
		RequestedOnUTC: baseTime.Add(-time.Hour),
	}
	req.Steps = []*models.Step{{
		ID:        uuid.New(),
		RequestID: req.ID,
		StepOrder: 1,
		StepType:  "Approval",
		Status:    models.StepPending,
	}}
	if mutate != nil {
		mutate(req)
	}
	submitted := models.ActionLog{
		ID:          uuid.New(),
		RequestID:   req.ID,
		Action:      models.ActionSubmitted,
		ActorName:   "system",
		ActionAtUTC: req.RequestedOnUTC,
	}
	require.NoError(t, s.CreateDecision(context.Background(), tenantID, req, []models.ActionLog{submitted}))
	return req
}

func TestMemoryStoreIsolation(t *testing.T) {
	s := store.NewMemoryStore()
	tenantA, tenantB := uuid.New(), uuid.New()
	req := seedRequest(t, s, tenantA, nil)

	got, err := s.GetDecision(context.Background(), tenantA, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)

	// Mutating the returned copy must not leak into the store.
	got.Status = models.StatusApproved
	got.Steps[0].Status = models.StepApproved
	fresh, err := s.GetDecision(context.Background(), tenantA, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, fresh.Status)
	assert.Equal(t, models.StepPending, fresh.Steps[0].Status)

	_, err = s.GetDecision(context.Background(), tenantB, req.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryStoreSaveAppendsLogs(t *testing.T) {
	s := store.NewMemoryStore()
	tenantID := uuid.New()
	req := seedRequest(t, s, tenantID, nil)

	loaded, err := s.GetDecision(context.Background(), tenantID, req.ID)
	require.NoError(t, err)
	_, log, err := loaded.ApplyOutcome(true, "fine", models.Actor{Name: "Rita"}, baseTime)
	require.NoError(t, err)
	require.NoError(t, s.SaveDecision(context.Background(), tenantID, loaded, []models.ActionLog{log}))

	got, err := s.GetDecision(context.Background(), tenantID, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	require.Len(t, got.Logs, 2)
	assert.Equal(t, models.ActionSubmitted, got.Logs[0].Action)
	assert.Equal(t, models.ActionApproved, got.Logs[1].Action)
}

func TestMemoryStoreListNewestFirst(t *testing.T) {
	s := store.NewMemoryStore()
	tenantID := uuid.New()
	older := seedRequest(t, s, tenantID, func(r *models.Request) {
		r.RequestedOnUTC = baseTime.Add(-3 * time.Hour)
	})
	newer := seedRequest(t, s, tenantID, func(r *models.Request) {
		r.RequestedOnUTC = baseTime.Add(-time.Minute)
	})

	list, err := s.ListDecisions(context.Background(), tenantID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)
}

func TestMemoryStoreListOverdueStrictness(t *testing.T) {
	s := store.NewMemoryStore()
	tenantID := uuid.New()

	overdue := seedRequest(t, s, tenantID, func(r *models.Request) {
		due := baseTime.Add(-time.Minute)
		r.DueAtUTC = &due
	})
	seedRequest(t, s, tenantID, func(r *models.Request) {
		due := baseTime // due exactly now is not overdue
		r.DueAtUTC = &due
	})
	seedRequest(t, s, tenantID, nil) // no due date
	seedRequest(t, s, tenantID, func(r *models.Request) {
		due := baseTime.Add(-time.Hour)
		r.DueAtUTC = &due
		r.Status = models.StatusApproved // terminal
	})

	got, err := s.ListOverdue(context.Background(), tenantID, baseTime)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, overdue.ID, got[0].ID)
}

func TestMemoryStoreEscalationRoundTrip(t *testing.T) {
	s := store.NewMemoryStore()
	tenantID := uuid.New()
	req := seedRequest(t, s, tenantID, nil)
	other := seedRequest(t, s, tenantID, nil)

	req.Priority = req.Priority.Escalate()
	escLog := models.ActionLog{
		ID:          uuid.New(),
		RequestID:   req.ID,
		Action:      models.ActionSlaEscalated,
		ActorName:   "system",
		Field:       "SlaStatus",
		OldValue:    "overdue",
		NewValue:    "escalated",
		ActionAtUTC: baseTime,
	}
	require.NoError(t, s.CommitEscalations(context.Background(), tenantID,
		[]*models.Request{req}, []models.ActionLog{escLog}))

	escalated, err := s.EscalatedIDs(context.Background(), tenantID, []uuid.UUID{req.ID, other.ID})
	require.NoError(t, err)
	assert.Contains(t, escalated, req.ID)
	assert.NotContains(t, escalated, other.ID)

	got, err := s.GetDecision(context.Background(), tenantID, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityCritical, got.Priority)
	assert.True(t, got.HasEscalationLog())
}

func TestMemoryStoreHistoryFilters(t *testing.T) {
	s := store.NewMemoryStore()
	tenantID := uuid.New()

	discount := seedRequest(t, s, tenantID, nil)
	refund := seedRequest(t, s, tenantID, func(r *models.Request) {
		r.Type = "RefundApproval"
		r.EntityType = "Order"
		r.PolicyReason = "Refund over limit."
	})

	loaded, err := s.GetDecision(context.Background(), tenantID, discount.ID)
	require.NoError(t, err)
	_, log, err := loaded.ApplyOutcome(false, "not justified", models.Actor{Name: "Rita Reviewer"}, baseTime)
	require.NoError(t, err)
	require.NoError(t, s.SaveDecision(context.Background(), tenantID, loaded, []models.ActionLog{log}))

	rows, err := s.History(context.Background(), tenantID, store.HistoryFilter{Action: "rejected"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, discount.ID, rows[0].RequestID)
	assert.Equal(t, "Rejected", rows[0].Action)
	assert.False(t, rows[0].IsEscalationEvent)

	rows, err = s.History(context.Background(), tenantID, store.HistoryFilter{DecisionType: "refund"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, refund.ID, rows[0].RequestID)

	rows, err = s.History(context.Background(), tenantID, store.HistoryFilter{Search: "rita"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Rita Reviewer", rows[0].ActorName)

	rows, err = s.History(context.Background(), tenantID, store.HistoryFilter{Status: "rejected"})
	require.NoError(t, err)
	require.Len(t, rows, 2) // both log rows of the rejected request match

	rows, err = s.History(context.Background(), tenantID, store.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i := 1; i < len(rows); i++ {
		assert.False(t, rows[i-1].ActionAtUTC.Before(rows[i].ActionAtUTC))
	}

	rows, err = s.History(context.Background(), tenantID, store.HistoryFilter{Take: 1})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
