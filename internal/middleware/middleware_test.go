package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/identity"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/observability"
)

type stubProvider map[string]identity.Identity

func (s stubProvider) Authenticate(_ context.Context, credential string) (identity.Identity, error) {
	id, ok := s[credential]
	if !ok {
		return identity.Identity{}, identity.ErrInvalidCredential
	}
	return id, nil
}

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	provider := stubProvider{
		"good":     {UserID: 7, Active: true},
		"disabled": {UserID: 8, Active: false},
	}
	r := gin.New()
	r.Use(RequestID(), AuthMiddleware(provider))
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":    c.GetInt64(UserIDKey),
			"request_id": observability.RequestIDFromContext(c.Request.Context()),
		})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	router := setupRouter()

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", http.StatusUnauthorized},
		{"unknown token", "Bearer nope", http.StatusUnauthorized},
		{"inactive identity", "Bearer disabled", http.StatusUnauthorized},
		{"valid", "Bearer good", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestAuthMiddlewareSetsUserID(t *testing.T) {
	router := setupRouter()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_id":7`)
}

func TestRequestIDPropagates(t *testing.T) {
	router := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
	assert.Contains(t, rec.Body.String(), `"request_id":"req-42"`)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}
