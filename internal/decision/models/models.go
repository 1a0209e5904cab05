// Package models holds the decision workflow aggregates and the pure state
// machine that derives request status from step outcomes.
package models

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Request is the aggregate root for one unit of work needing approval.
//
// Invariants:
//   - Step orders are contiguous starting at 1 and strictly increasing
//   - Status is a pure function of the steps' statuses (only the escalation
//     priority bump touches the request without re-deriving status)
//   - Terminal statuses (Approved, Rejected, Cancelled, Expired) are final
//   - Requests are soft-deleted, never hard-deleted
type Request struct {
	ID                 uuid.UUID  `json:"id"`
	TenantID           uuid.UUID  `json:"tenantId"`
	Type               string     `json:"type"`
	EntityType         string     `json:"entityType"`
	EntityID           uuid.UUID  `json:"entityId"`
	Status             Status     `json:"status"`
	Priority           Priority   `json:"priority"`
	RiskLevel          string     `json:"riskLevel"`
	RequestedByUserID  *uuid.UUID `json:"requestedByUserId,omitempty"`
	RequestedOnUTC     time.Time  `json:"requestedOnUtc"`
	DueAtUTC           *time.Time `json:"dueAtUtc,omitempty"`
	PolicyReason       string     `json:"policyReason,omitempty"`
	PayloadJSON        string     `json:"payloadJson,omitempty"`
	PolicySnapshotJSON string     `json:"policySnapshotJson,omitempty"`
	LegacyApprovalID   *uuid.UUID `json:"legacyApprovalId,omitempty"`
	CompletedAtUTC     *time.Time `json:"completedAtUtc,omitempty"`
	IsDeleted          bool       `json:"-"`
	DeletedAtUTC       *time.Time `json:"-"`

	Steps []*Step     `json:"steps,omitempty"`
	Logs  []ActionLog `json:"-"`
}

// Step is one checkpoint in the approval chain.
type Step struct {
	ID             uuid.UUID  `json:"id"`
	RequestID      uuid.UUID  `json:"requestId"`
	StepOrder      int        `json:"stepOrder"`
	StepType       string     `json:"stepType"`
	Status         StepStatus `json:"status"`
	ApproverRole   string     `json:"approverRole,omitempty"`
	AssigneeUserID *uuid.UUID `json:"assigneeUserId,omitempty"`
	AssigneeName   string     `json:"assigneeName,omitempty"`
	DueAtUTC       *time.Time `json:"dueAtUtc,omitempty"`
	CompletedAtUTC *time.Time `json:"completedAtUtc,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	IsDeleted      bool       `json:"-"`
}

// ActionLog is an append-only audit trail entry for a request.
type ActionLog struct {
	ID          uuid.UUID  `json:"id"`
	RequestID   uuid.UUID  `json:"requestId"`
	Action      Action     `json:"action"`
	ActorUserID *uuid.UUID `json:"actorUserId,omitempty"`
	ActorName   string     `json:"actorName,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	Field       string     `json:"field,omitempty"`
	OldValue    string     `json:"oldValue,omitempty"`
	NewValue    string     `json:"newValue,omitempty"`
	ActionAtUTC time.Time  `json:"actionAtUtc"`
	IsDeleted   bool       `json:"-"`
}

// Actor identifies who performed an operation. Blank names normalize to
// "system" so log rows always carry an actor.
type Actor struct {
	UserID *uuid.UUID
	Name   string
}

// DisplayName returns the actor name, defaulting to "system".
func (a Actor) DisplayName() string {
	name := strings.TrimSpace(a.Name)
	if name == "" {
		return "system"
	}
	return name
}

// OwnershipKind distinguishes which engine owns a request's truth during the
// migration window.
type OwnershipKind int

const (
	// OwnedGeneric means the generic decision store is the source of truth.
	OwnedGeneric OwnershipKind = iota
	// OwnedLegacy means a legacy approval record owns the truth and all
	// mutations must be forwarded there.
	OwnedLegacy
)

// Ownership is the tagged variant of {Generic, LegacyBacked(legacyID)}.
// Mutating operations branch on it exactly once at the top, instead of
// scattering nil-checks on the back-reference.
type Ownership struct {
	Kind     OwnershipKind
	LegacyID uuid.UUID
}

// Owner resolves the request's ownership variant.
func (r *Request) Owner() Ownership {
	if r.LegacyApprovalID != nil && *r.LegacyApprovalID != uuid.Nil {
		return Ownership{Kind: OwnedLegacy, LegacyID: *r.LegacyApprovalID}
	}
	return Ownership{Kind: OwnedGeneric}
}

// ActiveSteps returns the non-deleted steps ordered by ascending step order.
func (r *Request) ActiveSteps() []*Step {
	steps := make([]*Step, 0, len(r.Steps))
	for _, s := range r.Steps {
		if !s.IsDeleted {
			steps = append(steps, s)
		}
	}
	sortStepsByOrder(steps)
	return steps
}

// CurrentStep selects the step a decision acts on: the first Pending step in
// ascending order, else the first step that is neither Approved nor Rejected.
// Ascending step order is the only tie-break. Returns nil when no step
// qualifies.
func (r *Request) CurrentStep() *Step {
	steps := r.ActiveSteps()
	for _, s := range steps {
		if s.Status.Is(StepPending) {
			return s
		}
	}
	for _, s := range steps {
		if !s.Status.Resolved() {
			return s
		}
	}
	return nil
}

// CurrentStepOrder resolves the 1-based order of the step currently awaiting
// action for display purposes: the first pending step, else the latest step.
func (r *Request) CurrentStepOrder() int {
	steps := r.ActiveSteps()
	for _, s := range steps {
		if s.Status.Is(StepPending) {
			if s.StepOrder <= 0 {
				return 1
			}
			return s.StepOrder
		}
	}
	if n := len(steps); n > 0 && steps[n-1].StepOrder > 0 {
		return steps[n-1].StepOrder
	}
	return 1
}

// PendingStep returns the first Pending step, or nil. Unlike CurrentStep it
// never falls back to unresolved non-pending steps; the escalation worker and
// delegate operation only ever act on a genuinely pending checkpoint.
func (r *Request) PendingStep() *Step {
	for _, s := range r.ActiveSteps() {
		if s.Status.Is(StepPending) {
			return s
		}
	}
	return nil
}

// HasEscalationLog reports whether an ApprovalSlaEscalated row already exists
// for this request.
func (r *Request) HasEscalationLog() bool {
	for _, l := range r.Logs {
		if !l.IsDeleted && l.Action.Is(ActionSlaEscalated) {
			return true
		}
	}
	return false
}

// LastDecisionNotes returns the notes of the most recent Approved/Rejected
// log row, if any.
func (r *Request) LastDecisionNotes() string {
	var latest *ActionLog
	for i := range r.Logs {
		l := &r.Logs[i]
		if l.IsDeleted || (!l.Action.Is(ActionApproved) && !l.Action.Is(ActionRejected)) {
			continue
		}
		if latest == nil || l.ActionAtUTC.After(latest.ActionAtUTC) {
			latest = l
		}
	}
	if latest == nil {
		return ""
	}
	return latest.Notes
}

func sortStepsByOrder(steps []*Step) {
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].StepOrder < steps[j].StepOrder
	})
}
