package rbac

import (
	"log/slog"
	"net/http"

	"github.com/tourbook/tourbook/internal/platform/httpx"
	"github.com/tourbook/tourbook/internal/users"
)

// Middleware wires role checks for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// RestrictTo admits only users whose role is in allowed. It must be mounted
// behind the session guard.
func (m Middleware) RestrictTo(allowed RoleSet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := users.FromContext(r.Context())
			if err := Authorize(u, allowed); err != nil {
				if m.Logger != nil {
					m.Logger.Info("rbac denied",
						slog.String("user_id", u.ID.String()),
						slog.String("role", string(u.Role)),
						slog.String("allowed", allowed.String()),
					)
				}
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
