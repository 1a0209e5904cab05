// Package service implements the decision inbox: create, list, decide,
// request-info, delegate, history, and assist drafts. It owns the migration
// branch between the generic engine and legacy-backed records.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"arbiter/internal/decision/assist"
	"arbiter/internal/decision/metrics"
	"arbiter/internal/decision/models"
	"arbiter/internal/decision/store"
	"arbiter/internal/legacy"
	dErrors "arbiter/pkg/domain-errors"
	"arbiter/pkg/requestcontext"
)

// LegacyEngine is the slice of the legacy deal-approval engine the inbox
// service forwards to during the migration window.
type LegacyEngine interface {
	Get(ctx context.Context, tenantID, id uuid.UUID) (*legacy.Approval, error)
	Request(ctx context.Context, tenantID uuid.UUID, dealID uuid.UUID, dealName string, amount float64, currency, purpose string, actor models.Actor) (*legacy.Approval, error)
	Decide(ctx context.Context, tenantID, id uuid.UUID, approved bool, notes string, actor models.Actor) error
	SetAssignee(ctx context.Context, tenantID, id uuid.UUID, userID *uuid.UUID, name string) error
	ListInbox(ctx context.Context, tenantID uuid.UUID, status, purpose string) ([]*legacy.Approval, error)
}

// Service orchestrates decision workflow operations.
type Service struct {
	store   store.Store
	legacy  LegacyEngine
	logger  *slog.Logger
	metrics *metrics.Metrics

	// locks serializes concurrent mutations per request id. Entries are
	// never evicted; the map is bounded by the set of requests mutated over
	// the process lifetime.
	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

// Option configures the service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics attaches decision metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New creates the inbox service.
func New(st store.Store, legacyEngine LegacyEngine, opts ...Option) *Service {
	s := &Service{
		store:  st,
		legacy: legacyEngine,
		logger: slog.Default(),
		locks:  make(map[uuid.UUID]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) lock(id uuid.UUID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	mu, ok := s.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[id] = mu
	}
	return mu
}

// StepInput is one explicit step in a create call.
type StepInput struct {
	StepOrder      int        `json:"stepOrder"`
	StepType       string     `json:"stepType,omitempty"`
	ApproverRole   string     `json:"approverRole,omitempty"`
	AssigneeUserID *uuid.UUID `json:"assigneeUserId,omitempty"`
	AssigneeName   string     `json:"assigneeName,omitempty"`
	DueAtUTC       *time.Time `json:"dueAtUtc,omitempty"`
}

// CreateInput carries everything a caller may supply when opening a decision.
// Steps are optional; without them one default step is fabricated from the
// top-level assignee fields.
type CreateInput struct {
	DecisionType        string      `json:"decisionType,omitempty"`
	WorkflowType        string      `json:"workflowType,omitempty"`
	EntityType          string      `json:"entityType,omitempty"`
	EntityID            uuid.UUID   `json:"entityId"`
	EntityName          string      `json:"entityName,omitempty"`
	Status              string      `json:"status,omitempty"`
	Purpose             string      `json:"purpose,omitempty"`
	Priority            string      `json:"priority,omitempty"`
	RiskLevel           string      `json:"riskLevel,omitempty"`
	SlaDueAtUTC         *time.Time  `json:"slaDueAtUtc,omitempty"`
	PolicyReason        string      `json:"policyReason,omitempty"`
	BusinessImpactLabel string      `json:"businessImpactLabel,omitempty"`
	Amount              float64     `json:"amount,omitempty"`
	Currency            string      `json:"currency,omitempty"`
	PayloadJSON         string      `json:"payloadJson,omitempty"`
	PolicySnapshotJSON  string      `json:"policySnapshotJson,omitempty"`
	RequestedByUserID   *uuid.UUID  `json:"requestedByUserId,omitempty"`
	RequestedByName     string      `json:"requestedByName,omitempty"`
	RequestedOnUTC      *time.Time  `json:"requestedOnUtc,omitempty"`
	AssigneeUserID      *uuid.UUID  `json:"assigneeUserId,omitempty"`
	AssigneeName        string      `json:"assigneeName,omitempty"`
	CurrentStepOrder    int         `json:"currentStepOrder,omitempty"`
	StepRole            string      `json:"stepRole,omitempty"`
	Steps               []StepInput `json:"steps,omitempty"`
}

// ActorInput identifies who performs a mutation.
type ActorInput struct {
	ActorUserID *uuid.UUID `json:"actorUserId,omitempty"`
	ActorName   string     `json:"actorName,omitempty"`
}

func (a ActorInput) actor() models.Actor {
	return models.Actor{UserID: a.ActorUserID, Name: a.ActorName}
}

// DecideInput carries an approve/reject call.
type DecideInput struct {
	ActorInput
	Approved bool   `json:"approved"`
	Notes    string `json:"notes,omitempty"`
}

// RequestInfoInput carries a request-info call.
type RequestInfoInput struct {
	ActorInput
	Notes string `json:"notes,omitempty"`
}

// DelegateInput carries a delegation call.
type DelegateInput struct {
	ActorInput
	DelegateUserID   uuid.UUID `json:"delegateUserId"`
	DelegateUserName string    `json:"delegateUserName,omitempty"`
	Notes            string    `json:"notes,omitempty"`
}

// Create opens a decision request. Legacy-typed deal approvals are routed to
// the legacy engine; everything else lands in the generic store.
func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, in CreateInput) (models.InboxItem, error) {
	now := requestcontext.Now(ctx)

	if strings.EqualFold(in.WorkflowType, models.WorkflowLegacy) && strings.EqualFold(in.EntityType, "Deal") {
		return s.createLegacy(ctx, tenantID, in, now)
	}

	requestedOn := now
	if in.RequestedOnUTC != nil && !in.RequestedOnUTC.IsZero() {
		requestedOn = *in.RequestedOnUTC
	}

	req := &models.Request{
		ID:                 uuid.New(),
		TenantID:           tenantID,
		Type:               defaultString(in.DecisionType, "Decision"),
		EntityType:         defaultString(in.EntityType, "Unknown"),
		EntityID:           in.EntityID,
		Status:             models.Status(defaultString(in.Status, string(models.StatusSubmitted))),
		Priority:           models.Priority(defaultString(in.Priority, string(models.PriorityNormal))),
		RiskLevel:          in.RiskLevel,
		RequestedByUserID:  in.RequestedByUserID,
		RequestedOnUTC:     requestedOn,
		DueAtUTC:           in.SlaDueAtUTC,
		PolicyReason:       in.PolicyReason,
		PayloadJSON:        buildPayloadJSON(in),
		PolicySnapshotJSON: in.PolicySnapshotJSON,
	}
	req.Steps = buildSteps(req.ID, in)

	log := models.ActionLog{
		ID:          uuid.New(),
		RequestID:   req.ID,
		Action:      models.ActionSubmitted,
		ActorUserID: in.RequestedByUserID,
		ActorName:   models.Actor{UserID: in.RequestedByUserID, Name: in.RequestedByName}.DisplayName(),
		Notes:       in.PolicyReason,
		ActionAtUTC: requestedOn,
	}

	if err := s.store.CreateDecision(ctx, tenantID, req, []models.ActionLog{log}); err != nil {
		return models.InboxItem{}, dErrors.Wrap(err, dErrors.CodeInternal, "create decision")
	}
	if s.metrics != nil {
		s.metrics.IncrementCreated()
	}
	s.logger.InfoContext(ctx, "decision created",
		"decision_id", req.ID, "type", req.Type, "steps", len(req.Steps))

	req.Logs = append(req.Logs, log)
	return models.ProjectInboxItem(req, now), nil
}

func (s *Service) createLegacy(ctx context.Context, tenantID uuid.UUID, in CreateInput, now time.Time) (models.InboxItem, error) {
	actor := models.Actor{UserID: in.RequestedByUserID, Name: in.RequestedByName}
	a, err := s.legacy.Request(ctx, tenantID, in.EntityID, in.EntityName, in.Amount, in.Currency, in.Purpose, actor)
	if err != nil {
		return models.InboxItem{}, err
	}
	if s.metrics != nil {
		s.metrics.IncrementCreated()
	}
	return legacy.MapInboxItem(a, now), nil
}

func buildSteps(requestID uuid.UUID, in CreateInput) []*models.Step {
	inputs := append([]StepInput{}, in.Steps...)
	sort.SliceStable(inputs, func(i, j int) bool { return inputs[i].StepOrder < inputs[j].StepOrder })

	steps := make([]*models.Step, 0, len(inputs))
	for i, si := range inputs {
		order := si.StepOrder
		if order <= 0 {
			order = 1
		}
		status := models.StepQueued
		if i == 0 {
			status = models.StepPending
		}
		steps = append(steps, &models.Step{
			ID:             uuid.New(),
			RequestID:      requestID,
			StepOrder:      order,
			StepType:       defaultString(si.StepType, "Approval"),
			Status:         status,
			ApproverRole:   si.ApproverRole,
			AssigneeUserID: si.AssigneeUserID,
			AssigneeName:   si.AssigneeName,
			DueAtUTC:       si.DueAtUTC,
		})
	}
	if len(steps) == 0 {
		order := in.CurrentStepOrder
		if order <= 0 {
			order = 1
		}
		steps = append(steps, &models.Step{
			ID:             uuid.New(),
			RequestID:      requestID,
			StepOrder:      order,
			StepType:       "Approval",
			Status:         models.StepPending,
			ApproverRole:   in.StepRole,
			AssigneeUserID: in.AssigneeUserID,
			AssigneeName:   in.AssigneeName,
			DueAtUTC:       in.SlaDueAtUTC,
		})
	}
	return steps
}

// buildPayloadJSON keeps caller-supplied payload verbatim, otherwise
// synthesizes one from the display fields so the inbox projection can read
// them back.
func buildPayloadJSON(in CreateInput) string {
	if strings.TrimSpace(in.PayloadJSON) != "" {
		return in.PayloadJSON
	}
	if in.Purpose == "" && in.Amount == 0 && in.Currency == "" && in.EntityName == "" && in.BusinessImpactLabel == "" {
		return ""
	}
	payload := map[string]any{}
	if in.Purpose != "" {
		payload["Purpose"] = in.Purpose
	}
	if in.Amount != 0 {
		payload["Amount"] = in.Amount
	}
	if in.Currency != "" {
		payload["Currency"] = in.Currency
	}
	if in.EntityName != "" {
		payload["EntityName"] = in.EntityName
	}
	if in.BusinessImpactLabel != "" {
		payload["BusinessImpactLabel"] = in.BusinessImpactLabel
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return string(raw)
}

// Inbox returns the merged newest-first view of generic decisions and legacy
// rows not yet represented generically. Status and purpose filter
// case-insensitively.
func (s *Service) Inbox(ctx context.Context, tenantID uuid.UUID, status, purpose string) ([]models.InboxItem, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveInbox(start)
		}
	}()

	now := requestcontext.Now(ctx)
	requests, err := s.store.ListDecisions(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list decisions")
	}

	represented := make(map[uuid.UUID]struct{})
	items := make([]models.InboxItem, 0, len(requests))
	for _, r := range requests {
		if owner := r.Owner(); owner.Kind == models.OwnedLegacy {
			represented[owner.LegacyID] = struct{}{}
		}
		item := models.ProjectInboxItem(r, now)
		if status != "" && !strings.EqualFold(item.Status, strings.TrimSpace(status)) {
			continue
		}
		if purpose != "" && !strings.EqualFold(item.Purpose, strings.TrimSpace(purpose)) {
			continue
		}
		items = append(items, item)
	}

	legacyRows, err := s.legacy.ListInbox(ctx, tenantID, status, purpose)
	if err != nil {
		return nil, err
	}
	for _, a := range legacyRows {
		if _, ok := represented[a.ID]; ok {
			continue
		}
		items = append(items, legacy.MapInboxItem(a, now))
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].RequestedOnUTC.After(items[j].RequestedOnUTC)
	})
	return items, nil
}

// Decide records an approve/reject outcome on the current step of a request.
// Unknown ids fall back to the legacy compatibility path; legacy-backed
// requests forward the outcome to the legacy engine first.
func (s *Service) Decide(ctx context.Context, tenantID, id uuid.UUID, in DecideInput) (models.InboxItem, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveDecide(start)
		}
	}()

	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	now := requestcontext.Now(ctx)
	actor := in.actor()

	req, err := s.store.GetDecision(ctx, tenantID, id)
	if errors.Is(err, store.ErrNotFound) {
		// Compatibility path: ids created before the migration resolve
		// directly in the legacy engine.
		return s.decideLegacyOnly(ctx, tenantID, id, in, now)
	}
	if err != nil {
		return models.InboxItem{}, dErrors.Wrap(err, dErrors.CodeInternal, "load decision")
	}

	if req.Status.Terminal() {
		return models.InboxItem{}, dErrors.New(dErrors.CodeAlreadyCompleted, "this decision is already completed")
	}

	if owner := req.Owner(); owner.Kind == models.OwnedLegacy {
		if err := s.legacy.Decide(ctx, tenantID, owner.LegacyID, in.Approved, in.Notes, actor); err != nil {
			return models.InboxItem{}, err
		}
	}

	_, log, err := req.ApplyOutcome(in.Approved, in.Notes, actor, now)
	if err != nil {
		return models.InboxItem{}, err
	}
	if err := s.store.SaveDecision(ctx, tenantID, req, []models.ActionLog{log}); err != nil {
		return models.InboxItem{}, dErrors.Wrap(err, dErrors.CodeInternal, "save decision")
	}

	if s.metrics != nil {
		s.metrics.IncrementDecided(outcomeLabel(in.Approved))
	}
	s.logger.InfoContext(ctx, "decision recorded",
		"decision_id", req.ID, "approved", in.Approved, "status", string(req.Status), "actor", actor.DisplayName())

	return s.reproject(ctx, tenantID, req.ID, now)
}

func (s *Service) decideLegacyOnly(ctx context.Context, tenantID, id uuid.UUID, in DecideInput, now time.Time) (models.InboxItem, error) {
	if err := s.legacy.Decide(ctx, tenantID, id, in.Approved, in.Notes, in.actor()); err != nil {
		return models.InboxItem{}, err
	}
	if s.metrics != nil {
		s.metrics.IncrementDecided(outcomeLabel(in.Approved))
	}
	a, err := s.legacy.Get(ctx, tenantID, id)
	if err != nil {
		return models.InboxItem{}, dErrors.Wrap(err, dErrors.CodeNotFound, "decision item not found after update")
	}
	return legacy.MapInboxItem(a, now), nil
}

// RequestInfo parks a non-terminal request while the reviewer waits for more
// information.
func (s *Service) RequestInfo(ctx context.Context, tenantID, id uuid.UUID, in RequestInfoInput) (models.InboxItem, error) {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	now := requestcontext.Now(ctx)
	actor := in.actor()

	req, err := s.store.GetDecision(ctx, tenantID, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.InboxItem{}, dErrors.New(dErrors.CodeNotFound, "decision item not found")
	}
	if err != nil {
		return models.InboxItem{}, dErrors.Wrap(err, dErrors.CodeInternal, "load decision")
	}
	if req.Status.Terminal() {
		return models.InboxItem{}, dErrors.New(dErrors.CodeAlreadyCompleted, "cannot request info for a completed decision")
	}

	req.Status = models.StatusWaitingForInfo
	notes := strings.TrimSpace(in.Notes)
	if step := req.PendingStep(); step != nil && notes != "" {
		step.Notes = notes
	}

	log := models.ActionLog{
		ID:          uuid.New(),
		RequestID:   req.ID,
		Action:      models.ActionRequestedInfo,
		ActorUserID: in.ActorUserID,
		ActorName:   actor.DisplayName(),
		Notes:       notes,
		Field:       "Status",
		OldValue:    string(models.StatusPending),
		NewValue:    string(models.StatusWaitingForInfo),
		ActionAtUTC: now,
	}
	if err := s.store.SaveDecision(ctx, tenantID, req, []models.ActionLog{log}); err != nil {
		return models.InboxItem{}, dErrors.Wrap(err, dErrors.CodeInternal, "save decision")
	}
	return s.reproject(ctx, tenantID, req.ID, now)
}

// Delegate reassigns the current pending step and restores the request to
// Pending. Legacy-backed records mirror the new assignee onto the legacy row.
func (s *Service) Delegate(ctx context.Context, tenantID, id uuid.UUID, in DelegateInput) (models.InboxItem, error) {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	now := requestcontext.Now(ctx)
	actor := in.actor()

	req, err := s.store.GetDecision(ctx, tenantID, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.InboxItem{}, dErrors.New(dErrors.CodeNotFound, "decision item not found")
	}
	if err != nil {
		return models.InboxItem{}, dErrors.Wrap(err, dErrors.CodeInternal, "load decision")
	}
	if req.Status.Terminal() {
		return models.InboxItem{}, dErrors.New(dErrors.CodeAlreadyCompleted, "cannot delegate a completed decision")
	}

	step := req.PendingStep()
	if step == nil {
		return models.InboxItem{}, dErrors.New(dErrors.CodeNoActiveStep, "no active pending step is available to delegate")
	}

	oldAssigneeID := step.AssigneeUserID
	delegateID := in.DelegateUserID
	step.AssigneeUserID = &delegateID
	if name := strings.TrimSpace(in.DelegateUserName); name != "" {
		step.AssigneeName = name
	}
	if notes := strings.TrimSpace(in.Notes); notes != "" {
		step.Notes = notes
	}
	req.Status = models.StatusPending

	if owner := req.Owner(); owner.Kind == models.OwnedLegacy {
		if err := s.legacy.SetAssignee(ctx, tenantID, owner.LegacyID, &delegateID, in.DelegateUserName); err != nil {
			s.logger.WarnContext(ctx, "failed to mirror delegation to legacy approval",
				"decision_id", req.ID, "legacy_id", owner.LegacyID, "error", err)
		}
	}

	log := models.ActionLog{
		ID:          uuid.New(),
		RequestID:   req.ID,
		Action:      models.ActionDelegated,
		ActorUserID: in.ActorUserID,
		ActorName:   actor.DisplayName(),
		Notes:       strings.TrimSpace(in.Notes),
		Field:       "AssigneeUserId",
		OldValue:    uuidString(oldAssigneeID),
		NewValue:    delegateID.String(),
		ActionAtUTC: now,
	}
	if err := s.store.SaveDecision(ctx, tenantID, req, []models.ActionLog{log}); err != nil {
		return models.InboxItem{}, dErrors.Wrap(err, dErrors.CodeInternal, "save decision")
	}
	return s.reproject(ctx, tenantID, req.ID, now)
}

// GetHistory returns the joined action-log history. Take is clamped to
// [1, 500] with a default of 200.
func (s *Service) GetHistory(ctx context.Context, tenantID uuid.UUID, filter store.HistoryFilter) ([]models.HistoryRow, error) {
	if filter.Take == 0 {
		filter.Take = 200
	}
	filter.Take = min(max(filter.Take, 1), 500)

	rows, err := s.store.History(ctx, tenantID, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "query history")
	}
	return rows, nil
}

// AssistDraft builds a reviewer draft for a decision, resolving the item from
// the generic store first and the merged inbox view second so legacy-only
// rows are covered.
func (s *Service) AssistDraft(ctx context.Context, tenantID, id uuid.UUID) (assist.Draft, error) {
	now := requestcontext.Now(ctx)

	req, err := s.store.GetDecision(ctx, tenantID, id)
	if err == nil {
		return assist.Generate(models.ProjectInboxItem(req, now)), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return assist.Draft{}, dErrors.Wrap(err, dErrors.CodeInternal, "load decision")
	}

	items, err := s.Inbox(ctx, tenantID, "", "")
	if err != nil {
		return assist.Draft{}, err
	}
	for _, item := range items {
		if item.ID == id {
			return assist.Generate(item), nil
		}
	}
	return assist.Draft{}, dErrors.New(dErrors.CodeNotFound, "decision item not found")
}

func (s *Service) reproject(ctx context.Context, tenantID, id uuid.UUID, now time.Time) (models.InboxItem, error) {
	req, err := s.store.GetDecision(ctx, tenantID, id)
	if err != nil {
		return models.InboxItem{}, dErrors.Wrap(err, dErrors.CodeNotFound, "decision item not found after update")
	}
	return models.ProjectInboxItem(req, now), nil
}

func outcomeLabel(approved bool) string {
	if approved {
		return "approved"
	}
	return "rejected"
}

func uuidString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func defaultString(v, fallback string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	return v
}
