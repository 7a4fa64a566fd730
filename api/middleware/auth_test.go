package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

type stubSessions struct {
	ok  bool
	err error
}

func (s stubSessions) HasSession(context.Context, string) (bool, error) {
	return s.ok, s.err
}

func testJWT() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "marketplace", ExpirationMinutes: 10}
}

func mintToken(t *testing.T, cfg config.JWTConfig, userID uuid.UUID, role enums.UserRole) string {
	t.Helper()
	token, err := auth.MintAccessToken(cfg, time.Now(), auth.AccessTokenPayload{UserID: userID, Role: role, JTI: "access-1"})
	require.NoError(t, err)
	return token
}

func principalProbe(captured *auth.Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthRejectsMissingAndInvalidTokens(t *testing.T) {
	var got auth.Principal
	handler := Auth(testJWT(), stubSessions{ok: true}, nil)(principalProbe(&got))

	for _, header := range []string{"", "Bearer nope", "Basic abc"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusUnauthorized, resp.Code, header)
	}
}

func TestAuthSetsPrincipal(t *testing.T) {
	cfg := testJWT()
	userID := uuid.New()
	var got auth.Principal
	var accessID string
	handler := Auth(cfg, stubSessions{ok: true}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = PrincipalFromContext(r.Context())
		accessID = AccessIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, cfg, userID, enums.UserRoleSeller))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, auth.Principal{UserID: userID, Role: enums.UserRoleSeller}, got)
	assert.Equal(t, "access-1", accessID)
}

func TestAuthRejectsRevokedSession(t *testing.T) {
	cfg := testJWT()
	var got auth.Principal
	token := mintToken(t, cfg, uuid.New(), enums.UserRoleUser)

	revoked := Auth(cfg, stubSessions{ok: false}, nil)(principalProbe(&got))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	revoked.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	broken := Auth(cfg, stubSessions{err: errors.New("redis down")}, nil)(principalProbe(&got))
	resp = httptest.NewRecorder()
	broken.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestOptionalAuthFallsBackToAnonymous(t *testing.T) {
	cfg := testJWT()
	got := auth.Principal{UserID: uuid.New()}
	handler := OptionalAuth(cfg, stubSessions{ok: true}, nil)(principalProbe(&got))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.True(t, got.IsAnonymous())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	handler := RequireSeller(nil)(ok)

	cases := []struct {
		principal auth.Principal
		want      int
	}{
		{auth.Anonymous(), http.StatusUnauthorized},
		{auth.Principal{UserID: uuid.New(), Role: enums.UserRoleUser}, http.StatusForbidden},
		{auth.Principal{UserID: uuid.New(), Role: enums.UserRoleSeller}, http.StatusOK},
		{auth.Principal{UserID: uuid.New(), Role: enums.UserRoleAdmin}, http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithPrincipal(req.Context(), tc.principal))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		assert.Equal(t, tc.want, resp.Code, tc.principal.Role)
	}
}

func TestRecovererWrites500(t *testing.T) {
	handler := Recoverer(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.NotContains(t, resp.Body.String(), "kaboom")
}

func TestRequestIDEchoesOrMints(t *testing.T) {
	handler := RequestID(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, "abc-123", resp.Header().Get("X-Request-Id"))

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(resp.Header().Get("X-Request-Id"))
	assert.NoError(t, err)
}
