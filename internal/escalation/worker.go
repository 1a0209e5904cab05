package escalation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"arbiter/internal/decision/metrics"
	"arbiter/internal/decision/models"
	"arbiter/internal/decision/store"
	"arbiter/internal/directory"
	"arbiter/internal/notify"
	"arbiter/internal/platform/config"
	tenantmodels "arbiter/internal/tenant/models"
	tenantstore "arbiter/internal/tenant/store"
	"arbiter/pkg/requestcontext"
)

const escalationNotes = "SLA overdue. Decision escalated automatically by worker."

// Worker is the SLA escalation background loop. Each pass walks every active
// tenant, finds overdue non-terminal decisions, bumps their priority, appends
// an escalation log row, and emails the people who can unblock them.
//
// The worker is deliberately forgiving: a failing tenant never aborts the
// pass, and a failing email never aborts the request's escalation.
type Worker struct {
	tenants  tenantstore.Store
	store    store.Store
	users    directory.Store
	sender   notify.Sender
	cooldown CooldownStore
	metrics  *metrics.Metrics
	logger   *slog.Logger

	startupDelay time.Duration
	pollInterval time.Duration
}

// WorkerOption configures optional worker dependencies.
type WorkerOption func(*Worker)

// WithLogger sets the worker logger.
func WithLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithCooldownStore replaces the in-memory cooldown store, typically with the
// Redis-backed one so replicas share de-dup state.
func WithCooldownStore(cs CooldownStore) WorkerOption {
	return func(w *Worker) {
		if cs != nil {
			w.cooldown = cs
		}
	}
}

// NewWorker wires the escalation worker.
func NewWorker(tenants tenantstore.Store, st store.Store, users directory.Store, sender notify.Sender, cfg config.WorkerConfig, opts ...WorkerOption) *Worker {
	w := &Worker{
		tenants:      tenants,
		store:        st,
		users:        users,
		sender:       sender,
		cooldown:     NewMemoryCooldown(),
		logger:       slog.Default(),
		startupDelay: cfg.StartupDelay,
		pollInterval: cfg.PollInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.pollInterval <= 0 {
		w.pollInterval = 2 * time.Minute
	}
	return w
}

// Run blocks until the context is cancelled, executing one pass per poll
// interval after an initial startup delay.
func (w *Worker) Run(ctx context.Context) error {
	if w.startupDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.startupDelay):
		}
	}

	w.logger.Info("escalation worker started", "poll_interval", w.pollInterval)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.RunPass(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("escalation worker stopping")
			return ctx.Err()
		case <-ticker.C:
			w.RunPass(ctx)
		}
	}
}

// RunPass executes one escalation sweep over all active tenants. Tenant
// failures are logged and do not stop the sweep.
func (w *Worker) RunPass(ctx context.Context) {
	tenants, err := w.tenants.ListActive(ctx)
	if err != nil {
		w.logger.Error("escalation pass failed to list tenants", "error", err)
		return
	}

	for _, t := range tenants {
		tctx := requestcontext.WithTenant(ctx, requestcontext.TenantRef{ID: t.ID, Key: t.Key})
		tctx = requestcontext.WithTime(tctx, requestcontext.Now(ctx))
		if err := w.runTenantPass(tctx, t); err != nil {
			w.logger.Error("escalation tenant pass failed",
				"tenant_id", t.ID,
				"tenant_key", t.Key,
				"error", err)
		}
	}
}

func (w *Worker) runTenantPass(ctx context.Context, tenant *tenantmodels.Tenant) error {
	policy := ResolvePolicy(tenant.EscalationPolicyJSON)
	if !policy.Enabled {
		return nil
	}

	now := requestcontext.Now(ctx)
	overdue, err := w.store.ListOverdue(ctx, tenant.ID, now)
	if err != nil {
		return err
	}
	if len(overdue) == 0 {
		return nil
	}

	eligible, err := w.filterEscalated(ctx, tenant.ID, policy, overdue, now)
	if err != nil {
		return err
	}
	if len(eligible) == 0 {
		return nil
	}

	var (
		bumped []*models.Request
		logs   []models.ActionLog
	)
	for _, req := range eligible {
		recipients := w.resolveRecipients(ctx, tenant.ID, policy, req)

		req.Priority = req.Priority.Escalate()
		bumped = append(bumped, req)
		logs = append(logs, models.ActionLog{
			ID:          uuid.New(),
			RequestID:   req.ID,
			Action:      models.ActionSlaEscalated,
			ActorName:   "system",
			Notes:       escalationNotes,
			Field:       "SlaStatus",
			OldValue:    "overdue",
			NewValue:    "escalated",
			ActionAtUTC: now,
		})

		if policy.SendEmails {
			w.notifyRecipients(ctx, req, recipients)
		}
	}

	if err := w.store.CommitEscalations(ctx, tenant.ID, bumped, logs); err != nil {
		return err
	}

	for _, req := range bumped {
		if policy.DedupStrategy == StrategyCooldown {
			if err := w.cooldown.MarkEscalated(ctx, tenant.ID, req.ID, now, policy.CooldownWindow); err != nil {
				w.logger.Warn("failed to record escalation cooldown",
					"tenant_id", tenant.ID,
					"request_id", req.ID,
					"error", err)
			}
		}
		if w.metrics != nil {
			w.metrics.IncrementEscalated()
		}
		w.logger.Info("decision escalated",
			"tenant_id", tenant.ID,
			"request_id", req.ID,
			"decision_type", req.Type)
	}
	return nil
}

// filterEscalated drops requests already escalated under the tenant's de-dup
// strategy: once-only requests with an existing escalation log row, or
// cooldown requests escalated inside the window.
func (w *Worker) filterEscalated(ctx context.Context, tenantID uuid.UUID, policy Policy, overdue []*models.Request, now time.Time) ([]*models.Request, error) {
	if policy.DedupStrategy == StrategyOnce {
		ids := make([]uuid.UUID, 0, len(overdue))
		for _, req := range overdue {
			ids = append(ids, req.ID)
		}
		escalated, err := w.store.EscalatedIDs(ctx, tenantID, ids)
		if err != nil {
			return nil, err
		}
		eligible := make([]*models.Request, 0, len(overdue))
		for _, req := range overdue {
			if _, done := escalated[req.ID]; !done {
				eligible = append(eligible, req)
			}
		}
		return eligible, nil
	}

	eligible := make([]*models.Request, 0, len(overdue))
	for _, req := range overdue {
		last, err := w.cooldown.LastEscalated(ctx, tenantID, req.ID)
		if err != nil {
			return nil, err
		}
		if last.IsZero() || now.Sub(last) >= policy.CooldownWindow {
			eligible = append(eligible, req)
		}
	}
	return eligible, nil
}

type recipient struct {
	user   *directory.User
	reason string
}

// resolveRecipients builds the notification list for one overdue request:
// the pending step's assignee, holders of the pending step's approver role,
// and the tenant fallback role when both yield nobody. Recipients are
// de-duplicated by email, case-insensitively; blank emails are skipped.
// Directory failures degrade to a shorter list rather than failing the pass.
func (w *Worker) resolveRecipients(ctx context.Context, tenantID uuid.UUID, policy Policy, req *models.Request) []recipient {
	var out []recipient
	seen := make(map[string]struct{})

	add := func(u *directory.User, reason string) {
		if u == nil || strings.TrimSpace(u.Email) == "" {
			return
		}
		key := strings.ToLower(u.Email)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, recipient{user: u, reason: reason})
	}

	step := req.PendingStep()

	if policy.NotifyCurrentAssignee && step != nil && step.AssigneeUserID != nil {
		u, err := w.users.FindByID(ctx, tenantID, *step.AssigneeUserID)
		if err != nil {
			w.logger.Warn("failed to resolve step assignee",
				"tenant_id", tenantID,
				"request_id", req.ID,
				"error", err)
		} else {
			add(u, "current assignee")
		}
	}

	if policy.NotifyPendingStepRole && step != nil && strings.TrimSpace(step.ApproverRole) != "" {
		holders, err := w.users.UsersByRole(ctx, tenantID, step.ApproverRole)
		if err != nil {
			w.logger.Warn("failed to resolve approver role holders",
				"tenant_id", tenantID,
				"request_id", req.ID,
				"role", step.ApproverRole,
				"error", err)
		}
		for _, u := range holders {
			add(u, "approver role ("+step.ApproverRole+")")
		}
	}

	if len(out) == 0 {
		holders, err := w.users.UsersByRole(ctx, tenantID, policy.FallbackRoleName)
		if err != nil {
			w.logger.Warn("failed to resolve fallback role holders",
				"tenant_id", tenantID,
				"request_id", req.ID,
				"role", policy.FallbackRoleName,
				"error", err)
		}
		for _, u := range holders {
			add(u, "fallback role ("+policy.FallbackRoleName+")")
		}
	}

	return out
}

// notifyRecipients delivers the escalation email best effort.
func (w *Worker) notifyRecipients(ctx context.Context, req *models.Request, recipients []recipient) {
	subject := EmailSubject(req)
	for _, r := range recipients {
		htmlBody := EmailHTMLBody(req, r.reason)
		textBody := EmailTextBody(req, r.reason)
		if err := w.sender.Send(ctx, r.user.Email, subject, htmlBody, textBody); err != nil {
			w.logger.Warn("failed to send escalation email",
				"request_id", req.ID,
				"to", r.user.Email,
				"error", err)
		}
	}
}
