package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type memoryLimiter struct {
	counts map[string]int64
}

func (m *memoryLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if m.counts == nil {
		m.counts = map[string]int64{}
	}
	m.counts[scope]++
	return m.counts[scope] <= limit, m.counts[scope], nil
}

func loginRequest(ip, email string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"`+email+`","password":"x"}`))
	req.RemoteAddr = ip + ":5555"
	return req
}

func TestAuthRateLimitByEmail(t *testing.T) {
	limiter := &memoryLimiter{}
	policy := NewAuthRateLimitPolicy("login", time.Minute, 100, 2)
	var bodies []string
	handler := AuthRateLimit(policy, limiter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(body))
	}))

	codes := []int{}
	for _, email := range []string{"A@x.io", "a@x.io ", "a@x.io", "b@x.io"} {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, loginRequest("10.0.0.1", email))
		codes = append(codes, resp.Code)
	}
	assert.Equal(t, []int{200, 200, 429, 200}, codes)
	// body is still readable downstream
	assert.Contains(t, bodies[0], `"password":"x"`)
}

func TestAuthRateLimitByIP(t *testing.T) {
	limiter := &memoryLimiter{}
	handler := AuthRateLimit(NewAuthRateLimitPolicy("register", time.Minute, 1, 0), limiter, nil)(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, loginRequest("10.0.0.2", "a@x.io"))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, loginRequest("10.0.0.2", "b@x.io"))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "60", second.Header().Get("Retry-After"))
}

func TestAuthRateLimitDisabled(t *testing.T) {
	handler := AuthRateLimit(NewAuthRateLimitPolicy("login", 0, 1, 1), &memoryLimiter{}, nil)(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	for i := 0; i < 3; i++ {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, loginRequest("10.0.0.3", "a@x.io"))
		assert.Equal(t, http.StatusOK, resp.Code)
	}
}
