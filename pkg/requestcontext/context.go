// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// This package defines context keys and getter/setter functions for values
// that are typically set by middleware (or by the escalation worker at the
// top of a tenant pass) but consumed by services and stores. By keeping this
// package free of net/http dependencies, services can import only what they
// need without pulling in HTTP-related code.
//
// Usage in services (read values):
//
//	tenant := requestcontext.Tenant(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in middleware and workers (set values):
//
//	ctx = requestcontext.WithTenant(ctx, ref)
//	ctx = requestcontext.WithTime(ctx, batchTime)
//
// Tenant scoping is deliberately a context *value*, never a mutable provider:
// each worker iteration derives a fresh context for its tenant, so state
// cannot leak across tenant boundaries under concurrency.
package requestcontext

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TenantRef identifies the tenant a request or worker pass operates on.
// It is immutable once placed in a context.
type TenantRef struct {
	ID  uuid.UUID
	Key string
}

// IsZero reports whether no tenant has been set.
func (t TenantRef) IsZero() bool { return t.ID == uuid.Nil }

// Context key types (unexported for encapsulation).
type (
	tenantKey      struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for tests that need context.WithValue directly.
var (
	ContextKeyTenant      = tenantKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// Tenant retrieves the tenant reference from the context.
// Returns the zero value if not set.
func Tenant(ctx context.Context) TenantRef {
	if ref, ok := ctx.Value(ContextKeyTenant).(TenantRef); ok {
		return ref
	}
	return TenantRef{}
}

// WithTenant injects a tenant reference into the context.
func WithTenant(ctx context.Context, ref TenantRef) context.Context {
	return context.WithValue(ctx, ContextKeyTenant, ref)
}

// RequestID retrieves the request correlation ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request correlation ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now().UTC() if not set (for non-HTTP contexts).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now().UTC()
}

// WithTime injects a specific time into a context.
// Useful for:
//   - Service unit tests that don't run the full HTTP middleware chain
//   - The escalation worker, which needs one consistent time per tenant batch
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
