package middleware

import (
	"net/http"

	"github.com/angelmondragon/marketplace-backend/api/responses"
	"github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

// RequireRole admits callers holding any of roles. It must run after Auth.
func RequireRole(logg *logger.Logger, roles ...enums.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if principal.IsAnonymous() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
				return
			}
			if !hasRole(principal, roles) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin is RequireRole for the admin role alone.
func RequireAdmin(logg *logger.Logger) func(http.Handler) http.Handler {
	return RequireRole(logg, enums.UserRoleAdmin)
}

// RequireSeller admits sellers and admins.
func RequireSeller(logg *logger.Logger) func(http.Handler) http.Handler {
	return RequireRole(logg, enums.UserRoleSeller, enums.UserRoleAdmin)
}

func hasRole(principal auth.Principal, roles []enums.UserRole) bool {
	for _, role := range roles {
		if principal.Role == role {
			return true
		}
	}
	return false
}
