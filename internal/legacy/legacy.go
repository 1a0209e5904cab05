// Package legacy wraps the older deal-approval subsystem that predates the
// generic decision engine. One Approval row is one checkpoint in a chain;
// rows sharing a ChainID form the full approval chain for a deal. During the
// migration window some decisions are backed by these rows, and the generic
// service forwards their mutations here.
package legacy

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no matching approval exists for the tenant.
var ErrNotFound = errors.New("approval not found")

// Chain row statuses. Active rows are Pending; rows behind them are Queued
// until the prior row is approved.
const (
	StatusPending  = "Pending"
	StatusQueued   = "Queued"
	StatusApproved = "Approved"
	StatusRejected = "Rejected"
	StatusSkipped  = "Skipped"
)

// Approval is one chain row of the legacy deal-approval engine.
type Approval struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	ChainID           *uuid.UUID
	DealID            uuid.UUID
	DealName          string
	StepOrder         int
	TotalSteps        int
	ApproverRole      string
	Status            string
	ApproverUserID    *uuid.UUID
	ApproverName      string
	Purpose           string
	Amount            float64
	Currency          string
	RequestedByUserID *uuid.UUID
	RequestedByName   string
	RequestedOnUTC    time.Time
	DecidedOnUTC      *time.Time
	Notes             string
	IsDeleted         bool
}

// Decided reports whether the row has already received a decision.
func (a *Approval) Decided() bool {
	return a.Status == StatusApproved || a.Status == StatusRejected
}

// Store is the legacy approval persistence contract.
type Store interface {
	// Create persists one chain row.
	Create(ctx context.Context, a *Approval) error

	// Get loads one live chain row.
	Get(ctx context.Context, tenantID, id uuid.UUID) (*Approval, error)

	// ListChain returns the live rows of a chain ordered by step order.
	ListChain(ctx context.Context, tenantID, chainID uuid.UUID) ([]*Approval, error)

	// List returns all live rows for the tenant, newest-first.
	List(ctx context.Context, tenantID uuid.UUID) ([]*Approval, error)

	// Save persists mutations to the given rows.
	Save(ctx context.Context, tenantID uuid.UUID, rows ...*Approval) error
}
