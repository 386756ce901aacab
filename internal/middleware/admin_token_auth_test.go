package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adminHandler(t *testing.T) http.Handler {
	t.Helper()
	mw, err := AdminTokenAuthMiddleware(AdminTokenAuthConfig{Token: "secret-token"})
	require.NoError(t, err)
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx, ok := AuthFromContext(r.Context())
		assert.True(t, ok)
		assert.Equal(t, "admin", authCtx.Subject)
		assert.Equal(t, "admin_token", authCtx.Claims["auth_method"])
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestAdminTokenAuthMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		code    int
	}{
		{"missing header", nil, http.StatusUnauthorized},
		{"wrong token", map[string]string{AdminTokenHeader: "wrong-token"}, http.StatusUnauthorized},
		{"admin header", map[string]string{AdminTokenHeader: "secret-token"}, http.StatusNoContent},
		{"bearer token", map[string]string{"Authorization": "Bearer secret-token"}, http.StatusNoContent},
		{"header wins over bearer", map[string]string{AdminTokenHeader: "wrong", "Authorization": "Bearer secret-token"}, http.StatusUnauthorized},
		{"token prefix", map[string]string{AdminTokenHeader: "secret"}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin/reflect-schema", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			adminHandler(t).ServeHTTP(rec, req)

			assert.Equal(t, tt.code, rec.Code)
			if tt.code == http.StatusUnauthorized {
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
				assert.Contains(t, rec.Body.String(), `"code":401`)
			}
		})
	}
}

func TestAdminTokenAuthMiddleware_RequiresTokenConfig(t *testing.T) {
	_, err := AdminTokenAuthMiddleware(AdminTokenAuthConfig{Token: "  "})
	assert.Error(t, err)
}

func TestAdminTokenAuthMiddleware_CustomHeader(t *testing.T) {
	mw, err := AdminTokenAuthMiddleware(AdminTokenAuthConfig{Token: "secret-token", HeaderName: "X-Databuddy-Admin"})
	require.NoError(t, err)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/admin/reflect-schema", nil)
	req.Header.Set("X-Databuddy-Admin", "secret-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin/reflect-schema", nil)
	req.Header.Set(AdminTokenHeader, "secret-token")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
