package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/square/go-jose/v3"
)

const (
	testIssuer   = "https://antrian.example.com/"
	testAudience = "https://api.antrian.example.com"
)

type jwksServer struct {
	server *httptest.Server
	hits   int32
}

func newJWKSServer(t *testing.T, key *rsa.PrivateKey, kid string) *jwksServer {
	t.Helper()
	s := &jwksServer{}
	set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &key.PublicKey,
		KeyID:     kid,
		Algorithm: "RS256",
		Use:       "sig",
	}}}
	body, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.hits, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(s.server.Close)
	return s
}

func generateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func validClaims() Claims {
	return Claims{
		Scope: "read:antrian",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "auth0|user-1",
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{testAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestVerifyAcceptsValidToken(t *testing.T) {
	key := generateKey(t)
	jwks := newJWKSServer(t, key, "k1")
	verifier := NewVerifier(NewKeySet(jwks.server.URL, KeySetOptions{}), testIssuer, testAudience)

	claims, err := verifier.Verify(context.Background(), signToken(t, key, "k1", validClaims()))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "auth0|user-1" || claims.Scope != "read:antrian" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := verifier.Verify(context.Background(), signToken(t, key, "k1", validClaims())); err != nil {
		t.Fatalf("second verify: %v", err)
	}
	if hits := atomic.LoadInt32(&jwks.hits); hits != 1 {
		t.Fatalf("expected key set to be cached, got %d fetches", hits)
	}
}

func TestVerifyRejects(t *testing.T) {
	key := generateKey(t)
	other := generateKey(t)
	jwks := newJWKSServer(t, key, "k1")

	cases := []struct {
		name  string
		token func() string
	}{
		{"empty", func() string { return "" }},
		{"garbage", func() string { return "not-a-token" }},
		{"wrong audience", func() string {
			claims := validClaims()
			claims.Audience = jwt.ClaimStrings{"https://other.example.com"}
			return signToken(t, key, "k1", claims)
		}},
		{"wrong issuer", func() string {
			claims := validClaims()
			claims.Issuer = "https://evil.example.com/"
			return signToken(t, key, "k1", claims)
		}},
		{"expired", func() string {
			claims := validClaims()
			claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
			return signToken(t, key, "k1", claims)
		}},
		{"no expiry", func() string {
			claims := validClaims()
			claims.ExpiresAt = nil
			return signToken(t, key, "k1", claims)
		}},
		{"wrong key", func() string { return signToken(t, other, "k1", validClaims()) }},
		{"unknown kid", func() string { return signToken(t, key, "k2", validClaims()) }},
		{"hmac algorithm", func() string {
			token := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims())
			token.Header["kid"] = "k1"
			signed, err := token.SignedString([]byte("secret"))
			if err != nil {
				t.Fatalf("sign: %v", err)
			}
			return signed
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			verifier := NewVerifier(NewKeySet(jwks.server.URL, KeySetOptions{}), testIssuer, testAudience)
			_, err := verifier.Verify(context.Background(), tc.token())
			if !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("expected unauthorized, got %v", err)
			}
		})
	}
}

func TestKeySetLimitsRefetchOnUnknownKid(t *testing.T) {
	key := generateKey(t)
	jwks := newJWKSServer(t, key, "k1")
	keys := NewKeySet(jwks.server.URL, KeySetOptions{FetchesPerMinute: 2})

	for i := 0; i < 5; i++ {
		if _, err := keys.Key(context.Background(), "missing"); !errors.Is(err, errKeyNotFound) {
			t.Fatalf("expected key not found, got %v", err)
		}
	}
	if hits := atomic.LoadInt32(&jwks.hits); hits != 2 {
		t.Fatalf("expected 2 fetches, got %d", hits)
	}
	if _, err := keys.Key(context.Background(), "k1"); err != nil {
		t.Fatalf("cached key should still resolve: %v", err)
	}
}

func TestKeySetRefreshesAfterTTL(t *testing.T) {
	key := generateKey(t)
	jwks := newJWKSServer(t, key, "k1")
	keys := NewKeySet(jwks.server.URL, KeySetOptions{TTL: time.Minute})
	now := time.Now()
	keys.now = func() time.Time { return now }

	if _, err := keys.Key(context.Background(), "k1"); err != nil {
		t.Fatalf("first lookup: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := keys.Key(context.Background(), "k1"); err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if hits := atomic.LoadInt32(&jwks.hits); hits != 2 {
		t.Fatalf("expected refetch after ttl, got %d fetches", hits)
	}
}

func TestNewDomainVerifierDerivesIssuer(t *testing.T) {
	v := NewDomainVerifier("https://antrian.example.com/", testAudience, KeySetOptions{})
	if v.issuer != testIssuer {
		t.Fatalf("expected issuer %s, got %s", testIssuer, v.issuer)
	}
	keys, ok := v.keys.(*KeySet)
	if !ok || keys.url != "https://antrian.example.com/.well-known/jwks.json" {
		t.Fatalf("unexpected jwks url: %+v", v.keys)
	}
}
