package legacy_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbiter/internal/decision/models"
	"arbiter/internal/legacy"
	dErrors "arbiter/pkg/domain-errors"
	"arbiter/pkg/testutil"
)

func seedChain(t *testing.T, store *legacy.InMemory, tenantID uuid.UUID, steps int) []*legacy.Approval {
	t.Helper()
	chainID := uuid.New()
	dealID := uuid.New()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	var rows []*legacy.Approval
	for i := 1; i <= steps; i++ {
		status := legacy.StatusQueued
		if i == 1 {
			status = legacy.StatusPending
		}
		a := &legacy.Approval{
			ID:             uuid.New(),
			TenantID:       tenantID,
			ChainID:        &chainID,
			DealID:         dealID,
			DealName:       "Globex renewal",
			StepOrder:      i,
			TotalSteps:     steps,
			ApproverRole:   "Sales Manager",
			Status:         status,
			Purpose:        "Close",
			Amount:         50000,
			Currency:       "USD",
			RequestedOnUTC: now,
		}
		require.NoError(t, store.Create(context.Background(), a))
		rows = append(rows, a)
	}
	return rows
}

func TestEngineDecideApprovePromotesNextRow(t *testing.T) {
	ctx, tenant := testutil.TenantContext(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	store := legacy.NewInMemory()
	engine := legacy.NewEngine(store)
	rows := seedChain(t, store, tenant.ID, 3)

	err := engine.Decide(ctx, tenant.ID, rows[0].ID, true, "looks good", models.Actor{Name: "dana"})
	require.NoError(t, err)

	first, err := engine.Get(ctx, tenant.ID, rows[0].ID)
	require.NoError(t, err)
	assert.Equal(t, legacy.StatusApproved, first.Status)
	require.NotNil(t, first.DecidedOnUTC)
	assert.Equal(t, "looks good", first.Notes)

	second, err := engine.Get(ctx, tenant.ID, rows[1].ID)
	require.NoError(t, err)
	assert.Equal(t, legacy.StatusPending, second.Status)

	third, err := engine.Get(ctx, tenant.ID, rows[2].ID)
	require.NoError(t, err)
	assert.Equal(t, legacy.StatusQueued, third.Status)
}

func TestEngineDecideRejectSkipsQueuedRows(t *testing.T) {
	ctx, tenant := testutil.TenantContext(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	store := legacy.NewInMemory()
	engine := legacy.NewEngine(store)
	rows := seedChain(t, store, tenant.ID, 3)

	err := engine.Decide(ctx, tenant.ID, rows[0].ID, false, "missing justification", models.Actor{Name: "dana"})
	require.NoError(t, err)

	first, err := engine.Get(ctx, tenant.ID, rows[0].ID)
	require.NoError(t, err)
	assert.Equal(t, legacy.StatusRejected, first.Status)

	for _, row := range rows[1:] {
		got, err := engine.Get(ctx, tenant.ID, row.ID)
		require.NoError(t, err)
		assert.Equal(t, legacy.StatusSkipped, got.Status)
	}
}

func TestEngineDecideTwiceFailsValidation(t *testing.T) {
	ctx, tenant := testutil.TenantContext(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	store := legacy.NewInMemory()
	engine := legacy.NewEngine(store)
	rows := seedChain(t, store, tenant.ID, 1)

	require.NoError(t, engine.Decide(ctx, tenant.ID, rows[0].ID, true, "", models.Actor{Name: "dana"}))

	err := engine.Decide(ctx, tenant.ID, rows[0].ID, true, "", models.Actor{Name: "dana"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestEngineDecideUnknownIDIsNotFound(t *testing.T) {
	ctx, tenant := testutil.TenantContext(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	engine := legacy.NewEngine(legacy.NewInMemory())

	err := engine.Decide(ctx, tenant.ID, uuid.New(), true, "", models.Actor{Name: "dana"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestMapInboxItemNormalizesStepFields(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	a := &legacy.Approval{
		ID:             uuid.New(),
		DealID:         uuid.New(),
		DealName:       "Initech expansion",
		StepOrder:      0,
		TotalSteps:     -2,
		ApproverRole:   "Finance",
		Status:         legacy.StatusPending,
		Purpose:        "Close",
		Amount:         1200,
		Currency:       "EUR",
		RequestedOnUTC: now.Add(-3 * time.Hour),
	}

	item := legacy.MapInboxItem(a, now)
	assert.Equal(t, 1, item.CurrentStepOrder)
	assert.Equal(t, 1, item.TotalSteps)
	assert.Equal(t, "Finance: Pending", item.ChainStatus)
	assert.Equal(t, models.WorkflowLegacy, item.WorkflowType)
	assert.Equal(t, "Deal", item.EntityType)
	assert.InDelta(t, 3.0, item.RequestedAgeHours, 0.01)
	assert.Equal(t, models.SlaOnTrack, item.SlaStatus)
}

func TestMapInboxItemCompletedSla(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	decided := now.Add(-time.Hour)
	a := &legacy.Approval{
		ID:             uuid.New(),
		DealID:         uuid.New(),
		Status:         legacy.StatusApproved,
		StepOrder:      1,
		TotalSteps:     1,
		RequestedOnUTC: now.Add(-5 * time.Hour),
		DecidedOnUTC:   &decided,
	}

	item := legacy.MapInboxItem(a, now)
	assert.Equal(t, models.SlaCompleted, item.SlaStatus)
	assert.Equal(t, legacy.StatusApproved, item.Status)
}
