package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"databuddy/internal/observability"
	"databuddy/internal/response"
)

// AdminTokenHeader carries the shared admin token. "Authorization: Bearer"
// is accepted too.
const AdminTokenHeader = "X-Admin-Token"

// AdminTokenAuthConfig guards the schema reload endpoint with a shared token.
type AdminTokenAuthConfig struct {
	Token string
	// HeaderName overrides AdminTokenHeader.
	HeaderName string
	Metrics    *observability.SecurityMetrics
}

func AdminTokenAuthMiddleware(cfg AdminTokenAuthConfig) (func(http.Handler) http.Handler, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("admin auth token is required")
	}
	header := strings.TrimSpace(cfg.HeaderName)
	if header == "" {
		header = AdminTokenHeader
	}
	want := sha256.Sum256([]byte(token))

	reject := func(w http.ResponseWriter, r *http.Request, reason string) {
		if cfg.Metrics != nil {
			cfg.Metrics.RecordUnauthorizedAttempt(r.Context(), r.URL.Path, reason)
		}
		response.WriteStatus(w, http.StatusUnauthorized, "A valid admin token is required.")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := strings.TrimSpace(r.Header.Get(header))
			if provided == "" {
				provided = bearerToken(r.Header.Get("Authorization"))
			}
			if provided == "" {
				reject(w, r, "missing_admin_token")
				return
			}
			// Hashing first keeps the comparison length independent.
			got := sha256.Sum256([]byte(provided))
			if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
				reject(w, r, "invalid_admin_token")
				return
			}

			ctx := WithAuthContext(r.Context(), AuthContext{
				Subject: "admin",
				Issuer:  "admin_token",
				Claims:  map[string]any{"auth_method": "admin_token"},
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}, nil
}
