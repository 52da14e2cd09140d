// Package middleware provides HTTP middleware for the API gateway:
// API key authentication with scope checks, CORS, and rate limiting.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/respond"
)

// contextKey is private so nothing outside this package can collide with
// the KeyInfo entry.
type contextKey struct{}

var apiKeyInfoKey contextKey

// KeyValidator checks a raw API key. Implemented by *apikey.Validator.
type KeyValidator interface {
	Validate(ctx context.Context, rawKey string) (*apikey.KeyInfo, error)
}

// Auth returns middleware that validates API keys and enforces the scope
// required by the requested route class. Keys can be provided via
// Authorization: Bearer <key>, X-API-Key header, or the api_key query
// parameter. Health endpoints are exempt.
func Auth(validator KeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Probes carry no credentials; /health stays open.
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}

			raw := clientKey(r)
			if raw == "" {
				respond.Error(w, http.StatusUnauthorized, "api key required")
				return
			}

			info, err := validator.Validate(r.Context(), raw)
			if err != nil {
				status, msg := authFailure(err)
				respond.Error(w, status, msg)
				return
			}

			if scope := requiredScope(r.URL.Path); scope != "" && !info.HasScope(scope) {
				respond.Error(w, http.StatusForbidden, "key is missing the "+scope+" scope")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithKeyInfo(r.Context(), info)))
		})
	}
}

// WithKeyInfo stores a validated KeyInfo in ctx. Middleware downstream
// of Auth reads it back through GetKeyInfo.
func WithKeyInfo(ctx context.Context, info *apikey.KeyInfo) context.Context {
	return context.WithValue(ctx, apiKeyInfoKey, info)
}

// GetKeyInfo returns the validated KeyInfo, or nil before Auth has run.
func GetKeyInfo(ctx context.Context) *apikey.KeyInfo {
	info, _ := ctx.Value(apiKeyInfoKey).(*apikey.KeyInfo)
	return info
}

// authFailure maps a validation error to the response the client sees.
// Backend failures stay generic so nothing about the key store leaks.
func authFailure(err error) (int, string) {
	switch {
	case errors.Is(err, apikey.ErrInvalidKey):
		return http.StatusUnauthorized, "unknown api key"
	case errors.Is(err, apikey.ErrExpiredKey):
		return http.StatusUnauthorized, "api key expired"
	default:
		return http.StatusInternalServerError, "authentication unavailable"
	}
}

// requiredScope maps a request path to the scope its route class demands.
// Unknown paths need no scope beyond a valid key.
func requiredScope(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/admin"):
		return apikey.ScopeAdmin
	case strings.HasPrefix(path, "/api/v1/patterns"):
		return apikey.ScopeRegister
	case strings.HasPrefix(path, "/api/v1/scan"),
		strings.HasPrefix(path, "/api/v1/cache"),
		strings.HasPrefix(path, "/api/v1/analytics"):
		return apikey.ScopeScan
	default:
		return ""
	}
}

// clientKey pulls the API key off the request, preferring the
// Authorization header, then X-API-Key, then the api_key query
// parameter. Query keys exist for dashboards that cannot set headers.
func clientKey(r *http.Request) string {
	if bearer := r.Header.Get("Authorization"); strings.HasPrefix(bearer, "Bearer ") {
		return strings.TrimPrefix(bearer, "Bearer ")
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("api_key")
}
