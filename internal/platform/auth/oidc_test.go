package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

func TestJWKSCache_KeyCachesKeys(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	jwk := jose.JSONWebKey{
		Key:       &key.PublicKey,
		KeyID:     "key1",
		Algorithm: jwt.SigningMethodRS256.Alg(),
		Use:       "sig",
	}

	var mu sync.Mutex
	var requests int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}})
	}))
	t.Cleanup(server.Close)

	now := time.Unix(1_000_000, 0)
	cache := NewJWKSCache(server.URL, WithJWKSClock(func() time.Time { return now }))

	ctx := context.Background()
	got, err := cache.Key(ctx, "key1")
	if err != nil {
		t.Fatalf("cache.Key: %v", err)
	}
	if _, ok := got.(*rsa.PublicKey); !ok {
		t.Fatalf("expected *rsa.PublicKey, got %T", got)
	}
	if _, err := cache.Key(ctx, "key1"); err != nil {
		t.Fatalf("cache.Key second call: %v", err)
	}

	mu.Lock()
	if requests != 1 {
		t.Fatalf("expected single JWKS fetch, got %d", requests)
	}
	mu.Unlock()

	now = now.Add(2 * time.Hour)
	if _, err := cache.Key(ctx, "key1"); err != nil {
		t.Fatalf("cache.Key after expiry: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if requests != 2 {
		t.Fatalf("expected refetch after max-age, got %d fetches", requests)
	}
}

func TestParseMaxAge(t *testing.T) {
	if got := parseMaxAge("public, max-age=19815, must-revalidate"); got != 19815*time.Second {
		t.Fatalf("unexpected max-age %s", got)
	}
	if got := parseMaxAge("no-cache"); got != 0 {
		t.Fatalf("expected zero, got %s", got)
	}
}

func TestOIDCRequireOIDC_Success(t *testing.T) {
	validator, token := setupOIDCTest(t, nil)

	middleware := validator.RequireOIDC("https://example.com", []string{"https://accounts.google.com"}, "Scheduler@example.com")

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/backups:run", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := ServiceIdentityFromContext(r.Context())
		if !ok || identity.Email != "scheduler@example.com" {
			t.Fatalf("expected service identity in context, got %+v", identity)
		}
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d (%s)", rr.Code, rr.Body.String())
	}
}

func TestOIDCRequireOIDC_Rejections(t *testing.T) {
	cases := []struct {
		name     string
		audience string
		emails   []string
		mutate   func(jwt.MapClaims)
		status   int
	}{
		{name: "audience mismatch", audience: "https://service.internal", status: http.StatusUnauthorized},
		{name: "issuer mismatch", audience: "https://example.com", mutate: func(c jwt.MapClaims) { c["iss"] = "https://evil.example.com" }, status: http.StatusUnauthorized},
		{name: "caller not allowed", audience: "https://example.com", emails: []string{"other@example.com"}, status: http.StatusForbidden},
		{name: "audience not configured", audience: "", status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			validator, token := setupOIDCTest(t, tc.mutate)
			middleware := validator.RequireOIDC(tc.audience, []string{"https://accounts.google.com"}, tc.emails...)

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/internal/backups:run", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatalf("handler should not be called")
			})).ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
		})
	}
}

func TestOIDCRequireOIDC_JWKSUnavailable(t *testing.T) {
	validator, token := setupOIDCTest(t, nil)
	validator.cache.url = "http://127.0.0.1:1/invalid"

	middleware := validator.RequireOIDC("https://example.com", []string{"https://accounts.google.com"})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/backups:run", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not be called")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func setupOIDCTest(t *testing.T, mutateClaims func(jwt.MapClaims)) (*OIDCValidator, string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	jwk := jose.JSONWebKey{
		Key:       &key.PublicKey,
		KeyID:     "svc-key",
		Algorithm: jwt.SigningMethodRS256.Alg(),
		Use:       "sig",
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "max-age=600")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}})
	}))
	t.Cleanup(server.Close)

	now := time.Unix(1_700_000_000, 0)
	originalTimeFunc := jwt.TimeFunc
	jwt.TimeFunc = func() time.Time { return now }
	t.Cleanup(func() { jwt.TimeFunc = originalTimeFunc })

	validator := NewOIDCValidator(NewJWKSCache(server.URL, WithJWKSClock(func() time.Time { return now })))

	claims := jwt.MapClaims{
		"aud":   "https://example.com",
		"iss":   "https://accounts.google.com",
		"sub":   "1234567890",
		"email": "scheduler@example.com",
		"exp":   float64(now.Add(time.Hour).Unix()),
		"iat":   float64(now.Unix()),
	}
	if mutateClaims != nil {
		mutateClaims(claims)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "svc-key"
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return validator, signed
}
