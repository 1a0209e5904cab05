// Package models holds the tenant aggregate.
package models

import (
	"time"

	"github.com/google/uuid"

	dErrors "arbiter/pkg/domain-errors"
)

// Tenant is one isolated organization. Every decision, user, and escalation
// policy hangs off a tenant, and the worker iterates tenants one at a time so
// a failure in one never leaks into another.
//
// Invariants:
//   - Key is non-empty, unique, and immutable after construction
//   - Name is non-empty and at most 128 characters
//   - EscalationPolicyJSON is free-form; unparseable policies fall back to
//     the default policy at read time
type Tenant struct {
	ID                   uuid.UUID `json:"id"`
	Key                  string    `json:"key"`
	Name                 string    `json:"name"`
	Active               bool      `json:"active"`
	EscalationPolicyJSON string    `json:"escalationPolicyJson,omitempty"`
	CreatedAtUTC         time.Time `json:"createdAtUtc"`
}

func (t *Tenant) IsActive() bool {
	return t.Active
}

// NewTenant constructs an active tenant.
func NewTenant(key, name string, now time.Time) (*Tenant, error) {
	if key == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tenant key cannot be empty")
	}
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tenant name cannot be empty")
	}
	if len(name) > 128 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tenant name must be 128 characters or less")
	}
	return &Tenant{
		ID:           uuid.New(),
		Key:          key,
		Name:         name,
		Active:       true,
		CreatedAtUTC: now,
	}, nil
}
