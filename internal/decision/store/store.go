// Package store persists decision requests, their steps, and their action
// logs. Every mutation to one request commits atomically: steps, request
// status, and new log rows land together or not at all.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"arbiter/internal/decision/models"
)

// ErrNotFound is returned when no matching request exists for the tenant.
var ErrNotFound = errors.New("decision not found")

// HistoryFilter narrows the action-log history join.
type HistoryFilter struct {
	// Action matches the log action tag exactly, case-insensitively.
	Action string
	// Status matches the owning request status exactly, case-insensitively.
	Status string
	// DecisionType substring-matches the request type, case-insensitively.
	DecisionType string
	// Search free-text matches across type, entity type, policy reason,
	// actor name, and notes.
	Search string
	// Take caps the result length. Callers clamp it to [1, 500].
	Take int
}

// Store is the tenant-scoped persistence contract. The tenant id is an
// explicit parameter on every call; nothing is read from ambient state.
type Store interface {
	// CreateDecision persists a new request with its steps and initial log
	// rows as one atomic write.
	CreateDecision(ctx context.Context, tenantID uuid.UUID, req *models.Request, logs []models.ActionLog) error

	// GetDecision loads a request with steps and logs. Soft-deleted requests
	// are invisible.
	GetDecision(ctx context.Context, tenantID, id uuid.UUID) (*models.Request, error)

	// SaveDecision persists step mutations, the derived request status, and
	// any new log rows atomically.
	SaveDecision(ctx context.Context, tenantID uuid.UUID, req *models.Request, newLogs []models.ActionLog) error

	// ListDecisions returns all live requests newest-first with steps and
	// logs loaded.
	ListDecisions(ctx context.Context, tenantID uuid.UUID) ([]*models.Request, error)

	// ListOverdue returns live, non-terminal requests whose due time is
	// strictly before now.
	ListOverdue(ctx context.Context, tenantID uuid.UUID, now time.Time) ([]*models.Request, error)

	// EscalatedIDs reports which of the given request ids already carry an
	// ApprovalSlaEscalated log row.
	EscalatedIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]struct{}, error)

	// CommitEscalations persists the worker's priority bumps and escalation
	// log rows for one tenant as a single batch.
	CommitEscalations(ctx context.Context, tenantID uuid.UUID, requests []*models.Request, logs []models.ActionLog) error

	// History joins action-log rows to their owning requests, newest-first.
	History(ctx context.Context, tenantID uuid.UUID, filter HistoryFilter) ([]models.HistoryRow, error)
}
