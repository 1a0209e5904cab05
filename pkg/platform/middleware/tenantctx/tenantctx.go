// Package tenantctx resolves the tenant a request operates on. Every decision
// route requires an X-Tenant-Key header naming an active tenant; the resolved
// reference travels in the context so services never read ambient state.
package tenantctx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	tenantmodels "arbiter/internal/tenant/models"
	tenantstore "arbiter/internal/tenant/store"
	dErrors "arbiter/pkg/domain-errors"
	"arbiter/pkg/platform/httputil"
	"arbiter/pkg/requestcontext"
)

// HeaderTenantKey carries the tenant key on every scoped request.
const HeaderTenantKey = "X-Tenant-Key"

// HeaderRequestID carries an optional caller-supplied correlation id.
const HeaderRequestID = "X-Request-Id"

// Resolver is the slice of the tenant store the middleware needs.
type Resolver interface {
	FindByKey(ctx context.Context, key string) (*tenantmodels.Tenant, error)
}

// Middleware resolves X-Tenant-Key to an active tenant and injects the tenant
// reference and a correlation id into the request context. Requests without a
// resolvable tenant are rejected before reaching any handler.
func Middleware(tenants Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(HeaderTenantKey))
			if key == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "missing X-Tenant-Key header"))
				return
			}

			t, err := tenants.FindByKey(r.Context(), key)
			if errors.Is(err, tenantstore.ErrNotFound) {
				httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "unknown tenant"))
				return
			}
			if err != nil {
				logger.ErrorContext(r.Context(), "tenant lookup failed", "tenant_key", key, "error", err)
				httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "tenant lookup"))
				return
			}
			if !t.IsActive() {
				httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "unknown tenant"))
				return
			}

			requestID := strings.TrimSpace(r.Header.Get(HeaderRequestID))
			if requestID == "" {
				requestID = uuid.NewString()
			}

			ctx := requestcontext.WithTenant(r.Context(), requestcontext.TenantRef{ID: t.ID, Key: t.Key})
			ctx = requestcontext.WithRequestID(ctx, requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
