package controllers

import (
	"net/http"

	"github.com/angelmondragon/marketplace-backend/api/middleware"
	"github.com/angelmondragon/marketplace-backend/api/responses"
	"github.com/angelmondragon/marketplace-backend/api/validators"
	"github.com/angelmondragon/marketplace-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

func principalFrom(r *http.Request) auth.Principal {
	return middleware.PrincipalFromContext(r.Context())
}

// requirePrincipal writes a 401 and returns false for anonymous callers.
func requirePrincipal(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (auth.Principal, bool) {
	principal := principalFrom(r)
	if principal.IsAnonymous() {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
		return principal, false
	}
	return principal, true
}

func pageFromQuery(r *http.Request) (pagination.Page, error) {
	page, err := validators.ParseQueryInt(r, "page", pagination.DefaultPage, 1, 1_000_000)
	if err != nil {
		return pagination.Page{}, err
	}
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Page{}, err
	}
	return pagination.Page{Page: page, Limit: limit}, nil
}
