// Package assist builds reviewer draft notes from decision metadata. It is
// deliberately pure: everything is derived from the inbox projection, with no
// store access, so drafts are cheap and deterministic.
package assist

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"arbiter/internal/decision/models"
	pstrings "arbiter/pkg/platform/strings"
)

// Draft is the assist output for one decision.
type Draft struct {
	DecisionID        uuid.UUID `json:"decisionId"`
	Summary           string    `json:"summary"`
	RecommendedAction string    `json:"recommendedAction"`
	ApproveDraft      string    `json:"approveDraft"`
	RejectDraft       string    `json:"rejectDraft"`
	RequestInfoDraft  string    `json:"requestInfoDraft"`
	MissingEvidence   []string  `json:"missingEvidence"`
	Disclaimer        string    `json:"disclaimer"`
}

const disclaimer = "Assist-only draft. Reviewer remains responsible for the final decision and note."

// Generate builds the full draft for an inbox item.
func Generate(item models.InboxItem) Draft {
	missing := MissingEvidenceHints(item)
	return Draft{
		DecisionID:        item.ID,
		Summary:           buildSummary(item, missing),
		RecommendedAction: RecommendAction(item, missing),
		ApproveDraft:      buildApproveDraft(item, missing),
		RejectDraft:       buildRejectDraft(item, missing),
		RequestInfoDraft:  buildRequestInfoDraft(item, missing),
		MissingEvidence:   missing,
		Disclaimer:        disclaimer,
	}
}

// MissingEvidenceHints derives evidence gaps from the policy reason, purpose,
// SLA status, and risk level. Always returns at least one hint.
func MissingEvidenceHints(item models.InboxItem) []string {
	reason := strings.ToLower(item.PolicyReason)
	purpose := strings.ToLower(item.Purpose)

	var hints []string
	if strings.Contains(reason, "discount") || strings.Contains(purpose, "discount") {
		hints = append(hints,
			"Business justification tied to value/risk outcome",
			"Margin / pricing guardrail impact")
	}
	if strings.Contains(reason, "exception") {
		hints = append(hints, "Exception rationale and compensating controls")
	}
	if strings.EqualFold(item.SlaStatus, models.SlaOverdue) {
		hints = append(hints, "Reason for SLA miss and mitigation plan")
	}
	if strings.EqualFold(item.RiskLevel, "high") {
		hints = append(hints, "Evidence for risk controls and approval conditions")
	}
	if len(hints) == 0 {
		hints = append(hints, "Decision rationale linked to policy and business impact")
	}
	return pstrings.DedupeAndTrim(hints)
}

// RecommendAction suggests approve, request_info, or review.
func RecommendAction(item models.InboxItem, missing []string) string {
	if item.Status != string(models.StatusPending) {
		return "review"
	}
	if strings.EqualFold(item.SlaStatus, models.SlaOverdue) {
		return "request_info"
	}
	if strings.EqualFold(item.RiskLevel, "high") && len(missing) > 1 {
		return "request_info"
	}
	return "approve"
}

func buildSummary(item models.InboxItem, missing []string) string {
	value := item.BusinessImpactLabel
	if item.Amount > 0 {
		value = fmt.Sprintf("%s %.0f", item.Currency, item.Amount)
	}
	gaps := "No major evidence gaps detected from current decision metadata."
	if len(missing) > 0 {
		gaps = fmt.Sprintf("Key evidence gaps: %s.", strings.Join(missing, "; "))
	}
	return fmt.Sprintf(
		"%s for %s is %s with %s risk and %s SLA status. Policy trigger: %s. Impact: %s. %s",
		item.DecisionType, item.EntityName, strings.ToLower(item.Status),
		strings.ToLower(item.RiskLevel), strings.ToLower(item.SlaStatus),
		item.PolicyReason, value, gaps)
}

func buildApproveDraft(item models.InboxItem, missing []string) string {
	conditions := ""
	if strings.EqualFold(item.RiskLevel, "high") {
		conditions = " Approval is conditional on confirming risk controls and documenting exception rationale."
	}
	followUp := ""
	if len(missing) > 0 {
		followUp = fmt.Sprintf(" Follow-up evidence to capture: %s.", missing[0])
	}
	return fmt.Sprintf(
		"Approved based on %s. Business impact reviewed (%s); SLA status is %s. Current step %d/%d completed.%s%s",
		strings.TrimRight(item.PolicyReason, "."), item.BusinessImpactLabel, item.SlaStatus,
		item.CurrentStepOrder, item.TotalSteps, conditions, followUp)
}

func buildRejectDraft(item models.InboxItem, missing []string) string {
	evidence := ""
	if len(missing) > 0 {
		evidence = fmt.Sprintf("Missing required support: %s. ", strings.Join(missing, "; "))
	}
	return fmt.Sprintf(
		"Rejected at step %d/%d. %sPolicy trigger remains unresolved: %s. Please resubmit after addressing policy requirements and attaching supporting justification.",
		item.CurrentStepOrder, item.TotalSteps, evidence, item.PolicyReason)
}

func buildRequestInfoDraft(item models.InboxItem, missing []string) string {
	return fmt.Sprintf(
		"Requesting additional information before decision. Please provide: %s. This request is currently %s and tied to %s.",
		strings.Join(missing, "; "), item.SlaStatus, item.BusinessImpactLabel)
}
