package models

import (
	"strings"
	"time"

	dErrors "arbiter/pkg/domain-errors"
)

// ApplyOutcome records an approve/reject on the current step and re-derives
// the request status. It is the single write path for decision outcomes:
// step mutation, status derivation, and the resulting log row are produced
// together so the caller can persist them as one atomic unit.
//
// Rules:
//   - a rejection makes the whole request Rejected immediately; remaining
//     queued steps are marked Skipped
//   - an approval promotes the next queued step to Pending ("In Review"), or
//     finishes the request as Approved when no pending work remains
//   - CompletedAtUTC is stamped only on the transition into a terminal status
func (r *Request) ApplyOutcome(approved bool, notes string, actor Actor, now time.Time) (*Step, ActionLog, error) {
	step := r.CurrentStep()
	if step == nil {
		return nil, ActionLog{}, dErrors.New(dErrors.CodeNoActiveStep, "no active decision step is available to complete")
	}

	notes = strings.TrimSpace(notes)

	if approved {
		step.Status = StepApproved
	} else {
		step.Status = StepRejected
	}
	completed := now
	step.CompletedAtUTC = &completed
	if notes != "" {
		step.Notes = notes
	}
	if actor.UserID != nil && step.AssigneeUserID == nil {
		step.AssigneeUserID = actor.UserID
		if step.AssigneeName == "" {
			step.AssigneeName = actor.DisplayName()
		}
	}

	if !approved {
		r.Status = StatusRejected
		r.CompletedAtUTC = &completed
		for _, s := range r.ActiveSteps() {
			if s.ID != step.ID && s.Status.Is(StepQueued) {
				s.Status = StepSkipped
			}
		}
	} else {
		r.applyApproval(step, completed)
	}

	action := ActionApproved
	if !approved {
		action = ActionRejected
	}
	log := ActionLog{
		RequestID:   r.ID,
		Action:      action,
		ActorUserID: actor.UserID,
		ActorName:   actor.DisplayName(),
		Notes:       notes,
		ActionAtUTC: now,
	}
	return step, log, nil
}

func (r *Request) applyApproval(acted *Step, now time.Time) {
	var nextQueued *Step
	hasPendingAfter := false
	for _, s := range r.ActiveSteps() {
		if s.ID == acted.ID {
			continue
		}
		if nextQueued == nil && s.Status.Is(StepQueued) {
			nextQueued = s
		}
		if s.Status.Is(StepPending) {
			hasPendingAfter = true
		}
	}

	switch {
	case nextQueued != nil:
		nextQueued.Status = StepPending
		r.Status = StatusInReview
		r.CompletedAtUTC = nil
	case hasPendingAfter:
		r.Status = StatusInReview
		r.CompletedAtUTC = nil
	default:
		r.Status = StatusApproved
		r.CompletedAtUTC = &now
	}
}
