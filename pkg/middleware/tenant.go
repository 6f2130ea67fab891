package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/contracts/pkg/composables"
	"github.com/iota-uz/contracts/pkg/httpapi"
)

const (
	TenantIDHeader = "X-Tenant-ID"
	UserIDHeader   = "X-User-ID"
)

// ProvideTenant resolves the tenant and acting user from trusted gateway
// headers. Authentication itself is an upstream collaborator's concern;
// requests without a valid tenant are rejected before any handler runs.
func ProvideTenant() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID, err := uuid.Parse(r.Header.Get(TenantIDHeader))
			if err != nil || tenantID == uuid.Nil {
				_ = httpapi.WriteError(w, http.StatusUnauthorized, "TENANT_REQUIRED", "missing or invalid tenant header", nil)
				return
			}
			ctx := composables.WithTenantID(r.Context(), tenantID)

			if userID, err := uuid.Parse(r.Header.Get(UserIDHeader)); err == nil && userID != uuid.Nil {
				ctx = composables.WithUserID(ctx, userID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
