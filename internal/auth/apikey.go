// Package auth provides authentication middleware for API key and
// JWT-based access to the HTTP surface.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// APIKeyHeader is the request header carrying a static API key
	APIKeyHeader = "X-API-Key"

	// principalContextKey is the context key for the authenticated caller
	principalContextKey contextKey = "principal"
)

// Principal identifies an authenticated caller.
type Principal struct {
	// Subject is the caller identity: the token subject for JWT
	// authentication, "api-key" for static keys.
	Subject string

	// Method is how the caller authenticated: "api_key" or "jwt".
	Method string
}

// Authenticator validates static API keys and bearer tokens on
// incoming HTTP requests.
type Authenticator struct {
	keys map[string]bool
	jwt  *JWTManager
}

// NewAuthenticator creates an authenticator. An empty key list disables
// API key auth; a nil manager disables bearer auth.
func NewAuthenticator(apiKeys []string, jwtManager *JWTManager) *Authenticator {
	keys := make(map[string]bool, len(apiKeys))
	for _, key := range apiKeys {
		key = strings.TrimSpace(key)
		if key != "" {
			keys[key] = true
		}
	}
	return &Authenticator{keys: keys, jwt: jwtManager}
}

// Enabled reports whether any credential source is configured. The
// server leaves routes open when authentication is not configured.
func (a *Authenticator) Enabled() bool {
	return len(a.keys) > 0 || a.jwt != nil
}

// Middleware rejects requests that carry neither a valid API key nor a
// valid bearer token. The authenticated principal is stored on the
// request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if apiKey := strings.TrimSpace(r.Header.Get(APIKeyHeader)); apiKey != "" {
			if !a.keys[apiKey] {
				unauthorized(w, "invalid API key")
				return
			}
			ctx := withPrincipal(r.Context(), &Principal{Subject: "api-key", Method: "api_key"})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if token := bearerToken(r); token != "" {
			if a.jwt == nil {
				unauthorized(w, "bearer authentication not configured")
				return
			}
			claims, err := a.jwt.ValidateToken(token)
			if err != nil {
				unauthorized(w, "invalid token")
				return
			}
			ctx := withPrincipal(r.Context(), &Principal{Subject: claims.Subject, Method: "jwt"})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		unauthorized(w, "missing credentials")
	})
}

// bearerToken extracts the token from an Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// unauthorized writes a JSON 401 response.
func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func withPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext extracts the authenticated caller from context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*Principal)
	return p, ok
}
