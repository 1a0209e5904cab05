// Package store persists tenants.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"arbiter/internal/tenant/models"
)

// ErrNotFound is returned when no tenant matches.
var ErrNotFound = errors.New("tenant not found")

// ErrKeyTaken is returned when a tenant key is already in use.
var ErrKeyTaken = errors.New("tenant key already in use")

// Store is the tenant persistence contract.
type Store interface {
	// Create persists a new tenant; the key must be unused.
	Create(ctx context.Context, t *models.Tenant) error

	// FindByID loads one tenant.
	FindByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)

	// FindByKey loads one tenant by its key, case-insensitively.
	FindByKey(ctx context.Context, key string) (*models.Tenant, error)

	// ListActive returns all active tenants. The escalation worker drives
	// its per-tenant passes off this list.
	ListActive(ctx context.Context) ([]*models.Tenant, error)

	// Update persists name, active flag, and escalation policy changes.
	Update(ctx context.Context, t *models.Tenant) error
}
