package httpserver

import (
	"context"
	"net/http"
)

const identityHeader = "X-User-ID"

type identityKey struct{}

// RequireIdentity extracts the caller's user ID from the request and rejects
// the request with 401 if absent. Verifying the credential behind this ID is
// an external collaborator's job (spec.md §1); this middleware only carries
// the already-authenticated principal into the request context, the way the
// rest of the API façade expects to find it.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(identityHeader)
		if userID == "" {
			RespondError(w, http.StatusUnauthorized, "unauthenticated", "missing "+identityHeader+" header")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserIDFromContext returns the authenticated caller's user ID, or "" if
// none is present (e.g. outside the /api/v1 route group).
func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(identityKey{}).(string)
	return v
}
