package models

import "strings"

// Status is the derived state of a decision request. Except for the
// escalation priority bump, it is never set independently of the steps:
// every transition flows through ApplyOutcome, RequestInfo, or Delegate.
type Status string

const (
	StatusSubmitted      Status = "Submitted"
	StatusPending        Status = "Pending"
	StatusInReview       Status = "In Review"
	StatusWaitingForInfo Status = "Waiting for Info"
	StatusApproved       Status = "Approved"
	StatusRejected       Status = "Rejected"
	StatusCancelled      Status = "Cancelled"
	StatusExpired        Status = "Expired"
)

// Terminal reports whether the status is final. Terminal requests accept no
// further step mutation.
func (s Status) Terminal() bool {
	switch {
	case s.Is(StatusApproved), s.Is(StatusRejected), s.Is(StatusCancelled), s.Is(StatusExpired):
		return true
	}
	return false
}

// Is compares statuses case-insensitively; persisted rows may carry legacy
// casing.
func (s Status) Is(other Status) bool {
	return strings.EqualFold(string(s), string(other))
}

// StepStatus is the state of a single checkpoint in the chain.
type StepStatus string

const (
	StepPending       StepStatus = "Pending"
	StepQueued        StepStatus = "Queued"
	StepApproved      StepStatus = "Approved"
	StepRejected      StepStatus = "Rejected"
	StepSkipped       StepStatus = "Skipped"
	StepInfoRequested StepStatus = "Info Requested"
)

// Is compares step statuses case-insensitively.
func (s StepStatus) Is(other StepStatus) bool {
	return strings.EqualFold(string(s), string(other))
}

// Resolved reports whether the step has received a decision.
func (s StepStatus) Resolved() bool {
	return s.Is(StepApproved) || s.Is(StepRejected)
}

// Priority is the urgency tier of a request.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Escalate returns the highest severity tier. The bump is monotonic: an
// already-critical priority stays critical.
func (p Priority) Escalate() Priority {
	return PriorityCritical
}

// Action tags a row in the decision action log. The existence of a given tag
// for a request id doubles as an idempotency guard (see the escalation
// worker).
type Action string

const (
	ActionSubmitted     Action = "Submitted"
	ActionApproved      Action = "Approved"
	ActionRejected      Action = "Rejected"
	ActionRequestedInfo Action = "RequestedInfo"
	ActionDelegated     Action = "Delegated"
	ActionSlaEscalated  Action = "ApprovalSlaEscalated"
)

// Is compares action tags case-insensitively.
func (a Action) Is(other Action) bool {
	return strings.EqualFold(string(a), string(other))
}
