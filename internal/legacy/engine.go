package legacy

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"arbiter/internal/decision/models"
	dErrors "arbiter/pkg/domain-errors"
	"arbiter/pkg/requestcontext"
)

// Engine drives the legacy chain-stepping logic. The generic service forwards
// mutations here for decisions still owned by a legacy record.
type Engine struct {
	store  Store
	logger *slog.Logger
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates a legacy approval engine.
func NewEngine(store Store, opts ...EngineOption) *Engine {
	e := &Engine{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Get loads one chain row.
func (e *Engine) Get(ctx context.Context, tenantID, id uuid.UUID) (*Approval, error) {
	return e.store.Get(ctx, tenantID, id)
}

// Request opens a new single-row approval chain for a deal.
func (e *Engine) Request(ctx context.Context, tenantID uuid.UUID, dealID uuid.UUID, dealName string, amount float64, currency, purpose string, actor models.Actor) (*Approval, error) {
	now := requestcontext.Now(ctx)
	chainID := uuid.New()
	a := &Approval{
		ID:                uuid.New(),
		TenantID:          tenantID,
		ChainID:           &chainID,
		DealID:            dealID,
		DealName:          dealName,
		StepOrder:         1,
		TotalSteps:        1,
		Status:            StatusPending,
		Purpose:           orDefault(purpose, "Close"),
		Amount:            amount,
		Currency:          orDefault(currency, "USD"),
		RequestedByUserID: actor.UserID,
		RequestedByName:   actor.DisplayName(),
		RequestedOnUTC:    now,
	}
	if err := e.store.Create(ctx, a); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create legacy approval")
	}
	e.logger.InfoContext(ctx, "legacy approval requested",
		"approval_id", a.ID, "deal_id", dealID)
	return a, nil
}

// Decide records an outcome on one chain row. Rejection terminates the chain
// and skips the queued rows behind it; approval promotes the next queued row
// to Pending, or completes the chain when none remains. Rows that already
// carry a decision fail with a validation error.
func (e *Engine) Decide(ctx context.Context, tenantID, id uuid.UUID, approved bool, notes string, actor models.Actor) error {
	a, err := e.store.Get(ctx, tenantID, id)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "decision item not found")
	}
	if a.Decided() {
		return dErrors.New(dErrors.CodeValidation, "approval already decided")
	}

	now := requestcontext.Now(ctx)
	if approved {
		a.Status = StatusApproved
	} else {
		a.Status = StatusRejected
	}
	a.DecidedOnUTC = &now
	if trimmed := strings.TrimSpace(notes); trimmed != "" {
		a.Notes = trimmed
	}
	if actor.UserID != nil && a.ApproverUserID == nil {
		a.ApproverUserID = actor.UserID
		a.ApproverName = actor.DisplayName()
	}

	dirty := []*Approval{a}
	if a.ChainID != nil {
		rest, err := e.stepChain(ctx, tenantID, a, approved)
		if err != nil {
			return err
		}
		dirty = append(dirty, rest...)
	}

	if err := e.store.Save(ctx, tenantID, dirty...); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "save legacy approval")
	}
	e.logger.InfoContext(ctx, "legacy approval decided",
		"approval_id", a.ID, "approved", approved, "actor", actor.DisplayName())
	return nil
}

func (e *Engine) stepChain(ctx context.Context, tenantID uuid.UUID, acted *Approval, approved bool) ([]*Approval, error) {
	chain, err := e.store.ListChain(ctx, tenantID, *acted.ChainID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load approval chain")
	}

	var dirty []*Approval
	for _, row := range chain {
		if row.ID == acted.ID || row.Status != StatusQueued {
			continue
		}
		if !approved {
			row.Status = StatusSkipped
			dirty = append(dirty, row)
			continue
		}
		row.Status = StatusPending
		dirty = append(dirty, row)
		break
	}
	return dirty, nil
}

// SetAssignee mirrors a delegation onto the legacy row.
func (e *Engine) SetAssignee(ctx context.Context, tenantID, id uuid.UUID, userID *uuid.UUID, name string) error {
	a, err := e.store.Get(ctx, tenantID, id)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "decision item not found")
	}
	a.ApproverUserID = userID
	if strings.TrimSpace(name) != "" {
		a.ApproverName = strings.TrimSpace(name)
	}
	if err := e.store.Save(ctx, tenantID, a); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "save legacy approval")
	}
	return nil
}

// ListInbox returns the tenant's chain rows filtered by status and purpose,
// both matched case-insensitively.
func (e *Engine) ListInbox(ctx context.Context, tenantID uuid.UUID, status, purpose string) ([]*Approval, error) {
	rows, err := e.store.List(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list legacy approvals")
	}
	var out []*Approval
	for _, a := range rows {
		if status != "" && !strings.EqualFold(strings.TrimSpace(status), a.Status) {
			continue
		}
		if purpose != "" && !strings.EqualFold(strings.TrimSpace(purpose), a.Purpose) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
