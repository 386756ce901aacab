package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serveCORS(cfg CORSConfig, method, origin string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, "/api/shop/orders?format=csv", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	CORSMiddleware(cfg)(okHandler()).ServeHTTP(rr, req)
	return rr
}

func TestCORSMiddleware(t *testing.T) {
	dashboard := "http://dash.local:3000"

	tests := []struct {
		name    string
		cfg     CORSConfig
		method  string
		origin  string
		code    int
		headers map[string]string
	}{
		{
			name:    "disabled",
			cfg:     CORSConfig{Enabled: false},
			method:  http.MethodGet,
			origin:  dashboard,
			code:    http.StatusOK,
			headers: map[string]string{"Access-Control-Allow-Origin": ""},
		},
		{
			name:   "allowed origin",
			cfg:    CORSConfig{Enabled: true, AllowedOrigins: []string{dashboard}, AllowedMethods: []string{"GET"}},
			method: http.MethodGet,
			origin: dashboard,
			code:   http.StatusOK,
			headers: map[string]string{
				"Access-Control-Allow-Origin":  dashboard,
				"Vary":                         "Origin",
				"Access-Control-Allow-Methods": "",
			},
		},
		{
			name: "preflight",
			cfg: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{dashboard},
				AllowedMethods: []string{"GET", "OPTIONS"},
				AllowedHeaders: []string{"Authorization"},
				MaxAge:         3600,
			},
			method: http.MethodOptions,
			origin: dashboard,
			code:   http.StatusNoContent,
			headers: map[string]string{
				"Access-Control-Allow-Origin":  dashboard,
				"Access-Control-Allow-Methods": "GET, OPTIONS",
				"Access-Control-Allow-Headers": "Authorization",
				"Access-Control-Max-Age":       "3600",
			},
		},
		{
			name:    "disallowed origin",
			cfg:     CORSConfig{Enabled: true, AllowedOrigins: []string{dashboard}},
			method:  http.MethodGet,
			origin:  "http://malicious.com",
			code:    http.StatusOK,
			headers: map[string]string{"Access-Control-Allow-Origin": ""},
		},
		{
			name:    "disallowed preflight",
			cfg:     CORSConfig{Enabled: true, AllowedOrigins: []string{dashboard}},
			method:  http.MethodOptions,
			origin:  "http://malicious.com",
			code:    http.StatusNoContent,
			headers: map[string]string{"Access-Control-Allow-Origin": ""},
		},
		{
			name:    "wildcard",
			cfg:     CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}, AllowCredentials: true},
			method:  http.MethodGet,
			origin:  "http://any-origin.com",
			code:    http.StatusOK,
			headers: map[string]string{"Access-Control-Allow-Origin": "*", "Vary": "", "Access-Control-Allow-Credentials": ""},
		},
		{
			name:    "credentials",
			cfg:     CORSConfig{Enabled: true, AllowedOrigins: []string{dashboard}, AllowCredentials: true},
			method:  http.MethodGet,
			origin:  dashboard,
			code:    http.StatusOK,
			headers: map[string]string{"Access-Control-Allow-Credentials": "true"},
		},
		{
			name:    "expose headers",
			cfg:     CORSConfig{Enabled: true, AllowedOrigins: []string{dashboard}, ExposeHeaders: []string{"X-Request-ID", "Content-Disposition"}},
			method:  http.MethodGet,
			origin:  dashboard,
			code:    http.StatusOK,
			headers: map[string]string{"Access-Control-Expose-Headers": "X-Request-ID, Content-Disposition"},
		},
		{
			name:    "origin absent",
			cfg:     CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}},
			method:  http.MethodGet,
			code:    http.StatusOK,
			headers: map[string]string{"Access-Control-Allow-Origin": ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serveCORS(tt.cfg, tt.method, tt.origin)
			assert.Equal(t, tt.code, rr.Code)
			for header, want := range tt.headers {
				assert.Equal(t, want, rr.Header().Get(header), header)
			}
		})
	}
}
