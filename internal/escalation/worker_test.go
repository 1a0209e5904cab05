package escalation_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbiter/internal/decision/models"
	"arbiter/internal/decision/store"
	"arbiter/internal/directory"
	"arbiter/internal/escalation"
	"arbiter/internal/notify"
	"arbiter/internal/platform/config"
	tenantmodels "arbiter/internal/tenant/models"
	tenantstore "arbiter/internal/tenant/store"
	"arbiter/pkg/requestcontext"
)

var baseTime = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

type fixture struct {
	ctx     context.Context
	tenant  *tenantmodels.Tenant
	tenants *tenantstore.InMemory
	store   *store.MemoryStore
	users   *directory.InMemory
	sender  *notify.Capture
}

func newFixture(t *testing.T, policyJSON string) *fixture {
	t.Helper()

	tenants := tenantstore.NewInMemory()
	tenant, err := tenantmodels.NewTenant("acme", "Acme Corp", baseTime.Add(-30*24*time.Hour))
	require.NoError(t, err)
	tenant.EscalationPolicyJSON = policyJSON
	require.NoError(t, tenants.Create(context.Background(), tenant))

	return &fixture{
		ctx:     requestcontext.WithTime(context.Background(), baseTime),
		tenant:  tenant,
		tenants: tenants,
		store:   store.NewMemoryStore(),
		users:   directory.NewInMemory(),
		sender:  notify.NewCapture(),
	}
}

func (f *fixture) newWorker(t *testing.T, opts ...escalation.WorkerOption) *escalation.Worker {
	t.Helper()
	return escalation.NewWorker(f.tenants, f.store, f.users, f.sender,
		config.WorkerConfig{PollInterval: time.Minute}, opts...)
}

func (f *fixture) addUser(t *testing.T, name, email, role string) *directory.User {
	t.Helper()
	u := &directory.User{
		ID:       uuid.New(),
		TenantID: f.tenant.ID,
		FullName: name,
		Email:    email,
		Role:     role,
		Active:   true,
	}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}

func (f *fixture) addRequest(t *testing.T, dueAt time.Time, mutate func(*models.Request)) *models.Request {
	t.Helper()
	due := dueAt
	req := &models.Request{
		ID:             uuid.New(),
		TenantID:       f.tenant.ID,
		Type:           "DiscountApproval",
		EntityType:     "Deal",
		EntityID:       uuid.New(),
		Status:         models.StatusPending,
		Priority:       models.PriorityNormal,
		RiskLevel:      "medium",
		RequestedOnUTC: baseTime.Add(-48 * time.Hour),
		DueAtUTC:       &due,
		PolicyReason:   "Discount above threshold.",
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
	require.NoError(t, f.store.CreateDecision(context.Background(), f.tenant.ID, req, nil))
	return req
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *models.Request {
	t.Helper()
	req, err := f.store.GetDecision(f.ctx, f.tenant.ID, id)
	require.NoError(t, err)
	return req
}

func TestRunPassEscalatesOverdueRequestOnce(t *testing.T) {
	f := newFixture(t, "")
	assignee := f.addUser(t, "Ada Approver", "ada@acme.test", "Finance")
	req := f.addRequest(t, baseTime.Add(-2*time.Hour), func(r *models.Request) {
		r.Steps[0].AssigneeUserID = &assignee.ID
		r.Steps[0].AssigneeName = assignee.FullName
	})

	w := f.newWorker(t)
	w.RunPass(f.ctx)

	got := f.reload(t, req.ID)
	assert.Equal(t, models.PriorityCritical, got.Priority)
	require.True(t, got.HasEscalationLog())

	var escLog *models.ActionLog
	for i := range got.Logs {
		if got.Logs[i].Action.Is(models.ActionSlaEscalated) {
			escLog = &got.Logs[i]
		}
	}
	require.NotNil(t, escLog)
	assert.Equal(t, "system", escLog.ActorName)
	assert.Equal(t, "SLA overdue. Decision escalated automatically by worker.", escLog.Notes)
	assert.Equal(t, "SlaStatus", escLog.Field)
	assert.Equal(t, "overdue", escLog.OldValue)
	assert.Equal(t, "escalated", escLog.NewValue)

	sent := f.sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "ada@acme.test", sent[0].To)
	assert.Equal(t, "Decision escalated: DiscountApproval for Deal", sent[0].Subject)
	assert.Contains(t, sent[0].HTMLBody, "current assignee")

	// Second pass is a no-op under the once strategy.
	w.RunPass(f.ctx)
	got = f.reload(t, req.ID)
	count := 0
	for _, l := range got.Logs {
		if l.Action.Is(models.ActionSlaEscalated) {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Len(t, f.sender.Sent(), 1)
}

func TestRunPassIgnoresFutureDueRequests(t *testing.T) {
	f := newFixture(t, "")
	f.addUser(t, "Ada Approver", "ada@acme.test", "Finance")
	req := f.addRequest(t, baseTime.Add(3*time.Hour), nil)

	f.newWorker(t).RunPass(f.ctx)

	got := f.reload(t, req.ID)
	assert.False(t, got.HasEscalationLog())
	assert.Equal(t, models.PriorityNormal, got.Priority)
	assert.Empty(t, f.sender.Sent())
}

func TestRunPassSkipsDisabledTenant(t *testing.T) {
	f := newFixture(t, `{"enabled":false}`)
	req := f.addRequest(t, baseTime.Add(-time.Hour), nil)

	f.newWorker(t).RunPass(f.ctx)

	got := f.reload(t, req.ID)
	assert.False(t, got.HasEscalationLog())
	assert.Empty(t, f.sender.Sent())
}

func TestRunPassNotifiesRoleHoldersAndDeduplicatesEmails(t *testing.T) {
	f := newFixture(t, "")
	assignee := f.addUser(t, "Ada Approver", "Ada@Acme.Test", "Finance")
	f.addUser(t, "Frank Finance", "frank@acme.test", "Finance")
	// Same mailbox as the assignee under different casing.
	f.addUser(t, "Ada Alias", "ADA@ACME.TEST", "Finance")

	f.addRequest(t, baseTime.Add(-time.Hour), func(r *models.Request) {
		r.Steps[0].AssigneeUserID = &assignee.ID
		r.Steps[0].ApproverRole = "Finance"
	})

	f.newWorker(t).RunPass(f.ctx)

	sent := f.sender.Sent()
	require.Len(t, sent, 2)
	recipients := map[string]bool{}
	for _, m := range sent {
		recipients[m.To] = true
	}
	assert.True(t, recipients["Ada@Acme.Test"])
	assert.True(t, recipients["frank@acme.test"])
}

func TestRunPassFallsBackToSalesManagerRole(t *testing.T) {
	f := newFixture(t, "")
	f.addUser(t, "Mia Manager", "mia@acme.test", "Sales Manager")
	// No assignee and no approver role on the pending step.
	req := f.addRequest(t, baseTime.Add(-time.Hour), nil)

	f.newWorker(t).RunPass(f.ctx)

	got := f.reload(t, req.ID)
	assert.True(t, got.HasEscalationLog())

	sent := f.sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "mia@acme.test", sent[0].To)
	assert.Contains(t, sent[0].HTMLBody, "fallback role (Sales Manager)")
}

func TestRunPassCooldownReescalatesAfterWindow(t *testing.T) {
	policy := fmt.Sprintf(
		`{"enabled":true,"notifyCurrentAssignee":true,"notifyPendingStepRole":true,"sendEmails":true,"dedupStrategy":"cooldown","cooldownWindow":%d}`,
		time.Hour)
	f := newFixture(t, policy)
	f.addUser(t, "Mia Manager", "mia@acme.test", "Sales Manager")
	req := f.addRequest(t, baseTime.Add(-6*time.Hour), nil)

	w := f.newWorker(t)
	w.RunPass(f.ctx)
	// Inside the window: suppressed.
	w.RunPass(requestcontext.WithTime(context.Background(), baseTime.Add(30*time.Minute)))
	// Past the window: escalated again.
	w.RunPass(requestcontext.WithTime(context.Background(), baseTime.Add(2*time.Hour)))

	got := f.reload(t, req.ID)
	count := 0
	for _, l := range got.Logs {
		if l.Action.Is(models.ActionSlaEscalated) {
			count++
		}
	}
	assert.Equal(t, 2, count)
	assert.Len(t, f.sender.Sent(), 2)
}

func TestRunPassCommitsDespiteSendFailure(t *testing.T) {
	f := newFixture(t, "")
	f.addUser(t, "Mia Manager", "mia@acme.test", "Sales Manager")
	f.addUser(t, "Sam Manager", "sam@acme.test", "Sales Manager")
	f.sender.FailFor("mia@acme.test", errors.New("mailbox unavailable"))

	req := f.addRequest(t, baseTime.Add(-time.Hour), nil)

	f.newWorker(t).RunPass(f.ctx)

	got := f.reload(t, req.ID)
	assert.True(t, got.HasEscalationLog())
	assert.Equal(t, models.PriorityCritical, got.Priority)

	sent := f.sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "sam@acme.test", sent[0].To)
}
