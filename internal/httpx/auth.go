package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/mbogdanowicz/imaginarium/internal/app"
)

// identityCtxKey is the unexported context key for the authenticated identity.
type identityCtxKey struct{}

var idKey = identityCtxKey{}

// withIdentity resolves an optional Authorization: Bearer <token> header into
// an app.Identity and stores it in the request context. A missing or invalid
// header leaves the anonymous identity in place; endpoints that require
// authentication surface the denial from the application layer, so that the
// templink resolve path stays fully unauthenticated.
func (h *Handler) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := app.Identity{}
		if header := r.Header.Get("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) == 2 && parts[0] == "Bearer" {
				if id, err := h.Accounts.Verify(parts[1]); err == nil {
					identity = id
				}
			}
		}
		ctx := context.WithValue(r.Context(), idKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// identityFrom returns the requester identity for the request, anonymous if
// none was resolved.
func identityFrom(ctx context.Context) app.Identity {
	id, _ := ctx.Value(idKey).(app.Identity)
	return id
}
