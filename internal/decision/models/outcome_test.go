package models_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbiter/internal/decision/models"
	dErrors "arbiter/pkg/domain-errors"
)

var now = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

func chainRequest(statuses ...models.StepStatus) *models.Request {
	req := &models.Request{
		ID:             uuid.New(),
		TenantID:       uuid.New(),
		Type:           "DiscountApproval",
		EntityType:     "Deal",
		EntityID:       uuid.New(),
		Status:         models.StatusPending,
		Priority:       models.PriorityNormal,
		RequestedOnUTC: now.Add(-time.Hour),
	}
	for i, st := range statuses {
		req.Steps = append(req.Steps, &models.Step{
			ID:        uuid.New(),
			RequestID: req.ID,
			StepOrder: i + 1,
			StepType:  "Approval",
			Status:    st,
		})
	}
	return req
}

func TestApplyOutcomeApprovePromotesNextQueuedStep(t *testing.T) {
	req := chainRequest(models.StepPending, models.StepQueued, models.StepQueued)

	step, log, err := req.ApplyOutcome(true, "looks good", models.Actor{Name: "Rita"}, now)
	require.NoError(t, err)

	assert.Equal(t, 1, step.StepOrder)
	assert.Equal(t, models.StepApproved, step.Status)
	assert.Equal(t, models.StepPending, req.Steps[1].Status)
	assert.Equal(t, models.StepQueued, req.Steps[2].Status)
	assert.Equal(t, models.StatusInReview, req.Status)
	assert.Nil(t, req.CompletedAtUTC)
	assert.Equal(t, models.ActionApproved, log.Action)
	assert.Equal(t, "Rita", log.ActorName)
}

func TestApplyOutcomeFinalApprovalCompletesRequest(t *testing.T) {
	req := chainRequest(models.StepApproved, models.StepPending)

	_, _, err := req.ApplyOutcome(true, "", models.Actor{}, now)
	require.NoError(t, err)

	assert.Equal(t, models.StatusApproved, req.Status)
	require.NotNil(t, req.CompletedAtUTC)
	assert.Equal(t, now, *req.CompletedAtUTC)
}

func TestApplyOutcomeRejectSkipsQueuedSteps(t *testing.T) {
	req := chainRequest(models.StepPending, models.StepQueued, models.StepQueued)

	step, log, err := req.ApplyOutcome(false, "budget exceeded", models.Actor{Name: "Rita"}, now)
	require.NoError(t, err)

	assert.Equal(t, models.StepRejected, step.Status)
	assert.Equal(t, models.StepSkipped, req.Steps[1].Status)
	assert.Equal(t, models.StepSkipped, req.Steps[2].Status)
	assert.Equal(t, models.StatusRejected, req.Status)
	require.NotNil(t, req.CompletedAtUTC)
	assert.Equal(t, models.ActionRejected, log.Action)
	assert.Equal(t, "budget exceeded", log.Notes)
}

func TestApplyOutcomeStampsActorOnUnassignedStep(t *testing.T) {
	req := chainRequest(models.StepPending)
	actorID := uuid.New()

	step, _, err := req.ApplyOutcome(true, "", models.Actor{UserID: &actorID, Name: "Rita"}, now)
	require.NoError(t, err)

	require.NotNil(t, step.AssigneeUserID)
	assert.Equal(t, actorID, *step.AssigneeUserID)
	assert.Equal(t, "Rita", step.AssigneeName)
}

func TestApplyOutcomeNoActiveStep(t *testing.T) {
	req := chainRequest(models.StepApproved, models.StepApproved)

	_, _, err := req.ApplyOutcome(true, "", models.Actor{}, now)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNoActiveStep))
}

func TestCurrentStepPrefersPendingThenUnresolved(t *testing.T) {
	req := chainRequest(models.StepApproved, models.StepQueued, models.StepPending)
	assert.Equal(t, 3, req.CurrentStep().StepOrder)

	req = chainRequest(models.StepApproved, models.StepQueued, models.StepQueued)
	assert.Equal(t, 2, req.CurrentStep().StepOrder)

	req = chainRequest(models.StepApproved, models.StepRejected)
	assert.Nil(t, req.CurrentStep())
}

func TestCurrentStepTieBreaksByOrder(t *testing.T) {
	req := chainRequest(models.StepPending, models.StepPending)
	// Steps appended out of order still resolve by ascending step order.
	req.Steps[0], req.Steps[1] = req.Steps[1], req.Steps[0]
	assert.Equal(t, 1, req.CurrentStep().StepOrder)
}

func TestPendingStepIgnoresUnresolvedNonPending(t *testing.T) {
	req := chainRequest(models.StepApproved, models.StepQueued)
	assert.Nil(t, req.PendingStep())
	assert.NotNil(t, req.CurrentStep())
}

func TestPriorityEscalateIsMonotonic(t *testing.T) {
	assert.Equal(t, models.PriorityCritical, models.PriorityNormal.Escalate())
	assert.Equal(t, models.PriorityCritical, models.PriorityCritical.Escalate())
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, models.StatusApproved.Terminal())
	assert.True(t, models.StatusRejected.Terminal())
	assert.True(t, models.StatusCancelled.Terminal())
	assert.True(t, models.StatusExpired.Terminal())
	assert.False(t, models.StatusPending.Terminal())
	assert.False(t, models.StatusWaitingForInfo.Terminal())
	assert.True(t, models.Status("approved").Terminal())
}
