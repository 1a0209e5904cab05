package testutil

import (
	"context"
	"time"

	"github.com/google/uuid"

	"arbiter/pkg/requestcontext"
)

// TenantContext returns a context scoped to a fresh tenant with a fixed clock,
// so service tests get deterministic timestamps without the HTTP middleware
// chain.
func TenantContext(at time.Time) (context.Context, requestcontext.TenantRef) {
	ref := requestcontext.TenantRef{ID: uuid.New(), Key: "test-tenant"}
	ctx := requestcontext.WithTenant(context.Background(), ref)
	ctx = requestcontext.WithTime(ctx, at)
	return ctx, ref
}
