package legacy

import (
	"time"

	"arbiter/internal/decision/models"
)

// MapInboxItem projects a legacy chain row into the generic inbox contract.
// Status maps verbatim; non-positive step counts and orders normalize to 1;
// ChainStatus is synthesized from the approver role so clients get a display
// field the legacy rows never carried.
func MapInboxItem(a *Approval, now time.Time) models.InboxItem {
	stepOrder := a.StepOrder
	if stepOrder <= 0 {
		stepOrder = 1
	}
	totalSteps := a.TotalSteps
	if totalSteps <= 0 {
		totalSteps = 1
	}

	ageHours := now.Sub(a.RequestedOnUTC).Hours()
	if ageHours < 0 {
		ageHours = 0
	}

	slaStatus := models.SlaOnTrack
	if a.Decided() {
		slaStatus = models.SlaCompleted
	}

	return models.InboxItem{
		ID:                  a.ID,
		DecisionType:        models.WorkflowLegacy,
		WorkflowType:        models.WorkflowLegacy,
		EntityType:          "Deal",
		EntityID:            a.DealID,
		EntityName:          a.DealName,
		Status:              a.Status,
		Purpose:             a.Purpose,
		Priority:            string(models.PriorityNormal),
		RiskLevel:           "medium",
		SlaStatus:           slaStatus,
		RequestedAgeHours:   ageHours,
		PolicyReason:        "Approval requested.",
		BusinessImpactLabel: "commercial approval",
		Amount:              a.Amount,
		Currency:            a.Currency,
		RequestedByUserID:   a.RequestedByUserID,
		RequestedByName:     a.RequestedByName,
		AssigneeUserID:      a.ApproverUserID,
		AssigneeName:        a.ApproverName,
		RequestedOnUTC:      a.RequestedOnUTC,
		DecidedOnUTC:        a.DecidedOnUTC,
		Notes:               a.Notes,
		CurrentStepOrder:    stepOrder,
		TotalSteps:          totalSteps,
		StepRole:            a.ApproverRole,
		ChainStatus:         chainStatus(a),
		Steps:               []models.StepView{},
	}
}

func chainStatus(a *Approval) string {
	if a.ApproverRole == "" {
		return a.Status
	}
	return a.ApproverRole + ": " + a.Status
}
