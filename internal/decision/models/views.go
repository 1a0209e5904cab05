package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Workflow type labels shown on inbox items and history rows.
const (
	WorkflowGeneric = "GenericDecision"
	WorkflowLegacy  = "DealApproval"
)

// SLA status labels derived for display.
const (
	SlaOnTrack   = "on-track"
	SlaAtRisk    = "at-risk"
	SlaOverdue   = "overdue"
	SlaCompleted = "completed"
)

// InboxItem is the transport-agnostic projection of a decision, whichever
// engine owns it. The assist-draft heuristic also reads it, so it stays a
// plain value with no store references.
type InboxItem struct {
	ID                  uuid.UUID  `json:"id"`
	DecisionType        string     `json:"decisionType"`
	WorkflowType        string     `json:"workflowType"`
	EntityType          string     `json:"entityType"`
	EntityID            uuid.UUID  `json:"entityId"`
	EntityName          string     `json:"entityName,omitempty"`
	ParentEntityName    string     `json:"parentEntityName,omitempty"`
	Status              string     `json:"status"`
	Purpose             string     `json:"purpose,omitempty"`
	Priority            string     `json:"priority"`
	RiskLevel           string     `json:"riskLevel"`
	SlaStatus           string     `json:"slaStatus"`
	SlaDueAtUTC         *time.Time `json:"slaDueAtUtc,omitempty"`
	IsEscalated         bool       `json:"isEscalated"`
	RequestedAgeHours   float64    `json:"requestedAgeHours"`
	PolicyReason        string     `json:"policyReason,omitempty"`
	BusinessImpactLabel string     `json:"businessImpactLabel,omitempty"`
	Amount              float64    `json:"amount"`
	Currency            string     `json:"currency"`
	RequestedByUserID   *uuid.UUID `json:"requestedByUserId,omitempty"`
	RequestedByName     string     `json:"requestedByName,omitempty"`
	AssigneeUserID      *uuid.UUID `json:"assigneeUserId,omitempty"`
	AssigneeName        string     `json:"assigneeName,omitempty"`
	RequestedOnUTC      time.Time  `json:"requestedOnUtc"`
	DecidedOnUTC        *time.Time `json:"decidedOnUtc,omitempty"`
	Notes               string     `json:"notes,omitempty"`
	CurrentStepOrder    int        `json:"currentStepOrder"`
	TotalSteps          int        `json:"totalSteps"`
	StepRole            string     `json:"stepRole,omitempty"`
	ChainStatus         string     `json:"chainStatus,omitempty"`
	Steps               []StepView `json:"steps"`
}

// StepView is the projection of one chain checkpoint.
type StepView struct {
	StepOrder      int        `json:"stepOrder"`
	StepType       string     `json:"stepType"`
	Status         string     `json:"status"`
	ApproverRole   string     `json:"approverRole,omitempty"`
	AssigneeUserID *uuid.UUID `json:"assigneeUserId,omitempty"`
	AssigneeName   string     `json:"assigneeName,omitempty"`
	DueAtUTC       *time.Time `json:"dueAtUtc,omitempty"`
	CompletedAtUTC *time.Time `json:"completedAtUtc,omitempty"`
}

// HistoryRow is one action-log entry joined with its owning request.
type HistoryRow struct {
	LogID             uuid.UUID  `json:"logId"`
	RequestID         uuid.UUID  `json:"requestId"`
	Action            string     `json:"action"`
	ActionAtUTC       time.Time  `json:"actionAtUtc"`
	ActorName         string     `json:"actorName,omitempty"`
	ActorUserID       *uuid.UUID `json:"actorUserId,omitempty"`
	DecisionType      string     `json:"decisionType"`
	WorkflowType      string     `json:"workflowType"`
	EntityType        string     `json:"entityType"`
	EntityID          uuid.UUID  `json:"entityId"`
	EntityLabel       string     `json:"entityLabel"`
	Status            string     `json:"status"`
	Priority          string     `json:"priority"`
	RiskLevel         string     `json:"riskLevel"`
	Notes             string     `json:"notes,omitempty"`
	PolicyReason      string     `json:"policyReason,omitempty"`
	IsEscalationEvent bool       `json:"isEscalationEvent"`
}

// Payload carries the display fields tolerated out of a request's opaque
// payload JSON. Parsing is lenient: malformed payloads never fail a read.
type Payload struct {
	Purpose             string
	Amount              float64
	Currency            string
	EntityName          string
	BusinessImpactLabel string
}

// ParsePayload extracts display fields from payload JSON, accepting both
// PascalCase and camelCase keys. Unknown shapes yield the zero value.
func ParsePayload(payloadJSON string) Payload {
	var p Payload
	if strings.TrimSpace(payloadJSON) == "" {
		return p
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(payloadJSON), &raw); err != nil {
		return p
	}
	p.Purpose = readString(raw, "Purpose", "purpose")
	p.Amount = readNumber(raw, "Amount", "amount")
	p.Currency = readString(raw, "Currency", "currency")
	p.EntityName = readString(raw, "EntityName", "entityName", "DealName", "dealName")
	p.BusinessImpactLabel = readString(raw, "BusinessImpactLabel", "businessImpactLabel")
	return p
}

func readString(raw map[string]any, names ...string) string {
	for _, name := range names {
		if v, ok := raw[name].(string); ok {
			return v
		}
	}
	return ""
}

func readNumber(raw map[string]any, names ...string) float64 {
	for _, name := range names {
		switch v := raw[name].(type) {
		case float64:
			return v
		case string:
			var f float64
			if err := json.Unmarshal([]byte(v), &f); err == nil {
				return f
			}
		}
	}
	return 0
}

// DeriveSlaStatus classifies a due time relative to now.
func DeriveSlaStatus(dueAt *time.Time, now time.Time) string {
	if dueAt == nil {
		return SlaOnTrack
	}
	remaining := dueAt.Sub(now)
	switch {
	case remaining < 0:
		return SlaOverdue
	case remaining <= 4*time.Hour:
		return SlaAtRisk
	default:
		return SlaOnTrack
	}
}

// ProjectInboxItem builds the generic projection of a request.
func ProjectInboxItem(r *Request, now time.Time) InboxItem {
	steps := r.ActiveSteps()
	payload := ParsePayload(r.PayloadJSON)

	currentOrder := r.CurrentStepOrder()
	var current *Step
	for _, s := range steps {
		if s.StepOrder == currentOrder {
			current = s
			break
		}
	}

	ageHours := now.Sub(r.RequestedOnUTC).Hours()
	if ageHours < 0 {
		ageHours = 0
	}

	completed := r.Status.Is(StatusApproved) || r.Status.Is(StatusRejected)
	slaStatus := DeriveSlaStatus(r.DueAtUTC, now)
	if completed {
		slaStatus = SlaCompleted
	}

	workflow := WorkflowGeneric
	if r.Owner().Kind == OwnedLegacy {
		workflow = WorkflowLegacy
	}

	entityName := payload.EntityName
	if entityName == "" {
		entityName = r.EntityType + " decision"
	}

	item := InboxItem{
		ID:                  r.ID,
		DecisionType:        r.Type,
		WorkflowType:        workflow,
		EntityType:          r.EntityType,
		EntityID:            r.EntityID,
		EntityName:          entityName,
		Status:              string(r.Status),
		Purpose:             orDefault(payload.Purpose, "Decision"),
		Priority:            string(orDefault(string(r.Priority), string(PriorityNormal))),
		RiskLevel:           orDefault(r.RiskLevel, "low"),
		SlaStatus:           slaStatus,
		SlaDueAtUTC:         r.DueAtUTC,
		IsEscalated:         r.HasEscalationLog(),
		RequestedAgeHours:   ageHours,
		PolicyReason:        orDefault(r.PolicyReason, "Decision review required."),
		BusinessImpactLabel: orDefault(payload.BusinessImpactLabel, "impact review"),
		Amount:              payload.Amount,
		Currency:            orDefault(payload.Currency, "USD"),
		RequestedByUserID:   r.RequestedByUserID,
		RequestedOnUTC:      r.RequestedOnUTC,
		DecidedOnUTC:        r.CompletedAtUTC,
		Notes:               r.LastDecisionNotes(),
		CurrentStepOrder:    currentOrder,
		TotalSteps:          max(1, len(steps)),
		ChainStatus:         string(r.Status),
		Steps:               make([]StepView, 0, len(steps)),
	}
	if current != nil {
		item.AssigneeUserID = current.AssigneeUserID
		item.AssigneeName = current.AssigneeName
		item.StepRole = current.ApproverRole
	}
	for _, s := range steps {
		item.Steps = append(item.Steps, StepView{
			StepOrder:      s.StepOrder,
			StepType:       s.StepType,
			Status:         string(s.Status),
			ApproverRole:   s.ApproverRole,
			AssigneeUserID: s.AssigneeUserID,
			AssigneeName:   s.AssigneeName,
			DueAtUTC:       s.DueAtUTC,
			CompletedAtUTC: s.CompletedAtUTC,
		})
	}
	return item
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
