package models_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbiter/internal/decision/models"
)

func TestDeriveSlaStatusBoundaries(t *testing.T) {
	base := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, models.SlaOnTrack, models.DeriveSlaStatus(nil, base))

	past := base.Add(-time.Minute)
	assert.Equal(t, models.SlaOverdue, models.DeriveSlaStatus(&past, base))

	soon := base.Add(4 * time.Hour)
	assert.Equal(t, models.SlaAtRisk, models.DeriveSlaStatus(&soon, base))

	later := base.Add(4*time.Hour + time.Minute)
	assert.Equal(t, models.SlaOnTrack, models.DeriveSlaStatus(&later, base))

	exact := base
	assert.Equal(t, models.SlaAtRisk, models.DeriveSlaStatus(&exact, base))
}

func TestParsePayloadAcceptsBothCasings(t *testing.T) {
	p := models.ParsePayload(`{"Purpose":"Discount","Amount":42000,"Currency":"USD","DealName":"Globex"}`)
	assert.Equal(t, "Discount", p.Purpose)
	assert.Equal(t, 42000.0, p.Amount)
	assert.Equal(t, "USD", p.Currency)
	assert.Equal(t, "Globex", p.EntityName)

	p = models.ParsePayload(`{"purpose":"Refund","amount":"120.5","entityName":"Order 7"}`)
	assert.Equal(t, "Refund", p.Purpose)
	assert.Equal(t, 120.5, p.Amount)
	assert.Equal(t, "Order 7", p.EntityName)
}

func TestParsePayloadLenientOnGarbage(t *testing.T) {
	assert.Equal(t, models.Payload{}, models.ParsePayload(""))
	assert.Equal(t, models.Payload{}, models.ParsePayload("   "))
	assert.Equal(t, models.Payload{}, models.ParsePayload("{not json"))
	assert.Equal(t, models.Payload{}, models.ParsePayload(`["array","shape"]`))
}

func TestProjectInboxItemDefaults(t *testing.T) {
	base := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	req := chainRequest(models.StepPending, models.StepQueued)
	req.RequestedOnUTC = base.Add(-3 * time.Hour)

	item := models.ProjectInboxItem(req, base)

	assert.Equal(t, models.WorkflowGeneric, item.WorkflowType)
	assert.Equal(t, "Deal decision", item.EntityName)
	assert.Equal(t, "Decision", item.Purpose)
	assert.Equal(t, "low", item.RiskLevel)
	assert.Equal(t, "USD", item.Currency)
	assert.Equal(t, models.SlaOnTrack, item.SlaStatus)
	assert.Equal(t, "Decision review required.", item.PolicyReason)
	assert.InDelta(t, 3.0, item.RequestedAgeHours, 0.001)
	assert.Equal(t, 1, item.CurrentStepOrder)
	assert.Equal(t, 2, item.TotalSteps)
	assert.Len(t, item.Steps, 2)
	assert.False(t, item.IsEscalated)
}

func TestProjectInboxItemCompletedSla(t *testing.T) {
	base := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	req := chainRequest(models.StepApproved)
	req.Status = models.StatusApproved
	completed := base.Add(-time.Hour)
	req.CompletedAtUTC = &completed
	overdueDue := base.Add(-2 * time.Hour)
	req.DueAtUTC = &overdueDue

	item := models.ProjectInboxItem(req, base)
	assert.Equal(t, models.SlaCompleted, item.SlaStatus)
	require.NotNil(t, item.DecidedOnUTC)
	assert.Equal(t, completed, *item.DecidedOnUTC)
}

func TestProjectInboxItemLegacyBacked(t *testing.T) {
	base := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	req := chainRequest(models.StepPending)
	legacyID := uuid.New()
	req.LegacyApprovalID = &legacyID

	item := models.ProjectInboxItem(req, base)
	assert.Equal(t, models.WorkflowLegacy, item.WorkflowType)
}

func TestProjectInboxItemFutureRequestAgeClamped(t *testing.T) {
	base := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	req := chainRequest(models.StepPending)
	req.RequestedOnUTC = base.Add(time.Hour)

	item := models.ProjectInboxItem(req, base)
	assert.Equal(t, 0.0, item.RequestedAgeHours)
}

func TestOwnerVariant(t *testing.T) {
	req := chainRequest(models.StepPending)
	assert.Equal(t, models.OwnedGeneric, req.Owner().Kind)

	nilID := uuid.Nil
	req.LegacyApprovalID = &nilID
	assert.Equal(t, models.OwnedGeneric, req.Owner().Kind)

	legacyID := uuid.New()
	req.LegacyApprovalID = &legacyID
	owner := req.Owner()
	assert.Equal(t, models.OwnedLegacy, owner.Kind)
	assert.Equal(t, legacyID, owner.LegacyID)
}

func TestActorDisplayNameDefaultsToSystem(t *testing.T) {
	assert.Equal(t, "system", models.Actor{}.DisplayName())
	assert.Equal(t, "system", models.Actor{Name: "   "}.DisplayName())
	assert.Equal(t, "Rita", models.Actor{Name: "Rita"}.DisplayName())
}
