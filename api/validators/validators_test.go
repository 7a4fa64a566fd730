package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

type sampleBody struct {
	Email    string `json:"email" validate:"required,email"`
	Quantity int    `json:"quantity" validate:"min=1,max=10"`
}

func TestDecodeJSONBody(t *testing.T) {
	var body sampleBody
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.io","quantity":2}`))
	require.NoError(t, DecodeJSONBody(req, &body))
	assert.Equal(t, 2, body.Quantity)
}

func TestDecodeJSONBodyErrors(t *testing.T) {
	cases := map[string]string{
		"empty":   ``,
		"unknown": `{"email":"a@b.io","quantity":1,"extra":true}`,
		"syntax":  `{"email":`,
	}
	for name, raw := range cases {
		var body sampleBody
		err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(raw)), &body)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), name)
	}

	var body sampleBody
	err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"nope","quantity":0}`)), &body)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must be a valid email", details["email"])
	assert.Equal(t, "must be at least 1", details["quantity"])
}

func TestParseQueryHelpers(t *testing.T) {
	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/?page=3&unread=true&min=50&seller="+id.String()+"&bad=x", nil)

	page, err := ParseQueryInt(req, "page", 1, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, page)

	limit, err := ParseQueryInt(req, "limit", 12, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 12, limit)

	_, err = ParseQueryInt(req, "bad", 1, 1, 10)
	assert.Error(t, err)

	unread, err := ParseQueryBool(req, "unread", false)
	require.NoError(t, err)
	assert.True(t, unread)

	_, err = ParseQueryBool(req, "bad", false)
	assert.Error(t, err)

	min, err := ParseQueryInt64Ptr(req, "min", 0)
	require.NoError(t, err)
	require.NotNil(t, min)
	assert.EqualValues(t, 50, *min)

	missing, err := ParseQueryInt64Ptr(req, "max", 0)
	require.NoError(t, err)
	assert.Nil(t, missing)

	seller, err := ParseQueryUUIDPtr(req, "seller")
	require.NoError(t, err)
	assert.Equal(t, id, *seller)

	_, err = ParseQueryUUIDPtr(req, "bad")
	assert.Error(t, err)
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id.String())
	rctx.URLParams.Add("bad", "123")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	got, err := ParseUUIDParam(req, "id")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseUUIDParam(req, "bad")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
