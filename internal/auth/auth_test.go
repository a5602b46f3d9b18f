package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler(principal **Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := PrincipalFromContext(r.Context()); ok {
			*principal = p
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticator_APIKey(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		wantStatus int
	}{
		{"valid key", "secret-key", http.StatusOK},
		{"wrong key", "other-key", http.StatusUnauthorized},
		{"missing key", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var principal *Principal
			a := NewAuthenticator([]string{"secret-key"}, nil)
			handler := a.Middleware(okHandler(&principal))

			req := httptest.NewRequest(http.MethodGet, "/v1/retrieve", nil)
			if tt.key != "" {
				req.Header.Set(APIKeyHeader, tt.key)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantStatus == http.StatusOK {
				if principal == nil || principal.Method != "api_key" {
					t.Errorf("expected api_key principal, got %+v", principal)
				}
			}
		})
	}
}

func TestAuthenticator_BearerToken(t *testing.T) {
	manager := NewJWTManager(DefaultJWTConfig("test-secret"))
	token, err := manager.GenerateToken("svc-reader", "reader")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var principal *Principal
	a := NewAuthenticator(nil, manager)
	handler := a.Middleware(okHandler(&principal))

	req := httptest.NewRequest(http.MethodGet, "/v1/retrieve", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if principal == nil || principal.Subject != "svc-reader" || principal.Method != "jwt" {
		t.Errorf("unexpected principal: %+v", principal)
	}
}

func TestAuthenticator_ExpiredBearerToken(t *testing.T) {
	manager := NewJWTManager(DefaultJWTConfig("test-secret"))
	token, err := manager.GenerateTokenWithExpiry("svc-reader", "reader", -time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a := NewAuthenticator(nil, manager)
	handler := a.Middleware(okHandler(new(*Principal)))

	req := httptest.NewRequest(http.MethodGet, "/v1/retrieve", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
}

func TestAuthenticator_Enabled(t *testing.T) {
	if NewAuthenticator(nil, nil).Enabled() {
		t.Error("expected disabled authenticator with no credentials")
	}
	if !NewAuthenticator([]string{"k"}, nil).Enabled() {
		t.Error("expected enabled authenticator with an API key")
	}
	if !NewAuthenticator(nil, NewJWTManager(DefaultJWTConfig("s"))).Enabled() {
		t.Error("expected enabled authenticator with a JWT manager")
	}
}

func TestJWTManager_RoundTrip(t *testing.T) {
	manager := NewJWTManager(DefaultJWTConfig("test-secret"))

	token, err := manager.GenerateToken("svc-ingest", "ingest worker")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claims, err := manager.ValidateToken(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Subject != "svc-ingest" {
		t.Errorf("expected subject svc-ingest, got %s", claims.Subject)
	}
	if claims.Name != "ingest worker" {
		t.Errorf("expected name, got %s", claims.Name)
	}
	if claims.Issuer != "passage" {
		t.Errorf("expected issuer passage, got %s", claims.Issuer)
	}
}

func TestJWTManager_WrongSecret(t *testing.T) {
	manager := NewJWTManager(DefaultJWTConfig("test-secret"))
	other := NewJWTManager(DefaultJWTConfig("other-secret"))

	token, err := manager.GenerateToken("svc", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := other.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestJWTManager_ExpiredToken(t *testing.T) {
	manager := NewJWTManager(DefaultJWTConfig("test-secret"))

	token, err := manager.GenerateTokenWithExpiry("svc", "", -time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := manager.ValidateToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestJWTManager_RefreshExpiredToken(t *testing.T) {
	manager := NewJWTManager(DefaultJWTConfig("test-secret"))

	token, err := manager.GenerateTokenWithExpiry("svc", "worker", -time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	refreshed, err := manager.RefreshToken(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claims, err := manager.ValidateToken(refreshed)
	if err != nil {
		t.Fatalf("expected refreshed token to validate: %v", err)
	}
	if claims.Subject != "svc" {
		t.Errorf("expected subject preserved, got %s", claims.Subject)
	}
}
