package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

// ErrUnauthorized wraps every reason a token is refused.
var ErrUnauthorized = errors.New("unauthorized")

type Claims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

type KeySource interface {
	Key(ctx context.Context, kid string) (interface{}, error)
}

// Verifier checks RS256 tokens issued by one identity provider for one audience.
type Verifier struct {
	keys     KeySource
	issuer   string
	audience string
	parser   *jwt.Parser
}

func NewVerifier(keys KeySource, issuer, audience string) *Verifier {
	return &Verifier{
		keys:     keys,
		issuer:   issuer,
		audience: audience,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()})),
	}
}

// NewDomainVerifier builds a verifier for a hosted identity provider domain such as
// "tenant.auth0.com": keys come from its well-known JWKS document.
func NewDomainVerifier(domain, audience string, options KeySetOptions) *Verifier {
	domain = strings.TrimSuffix(strings.TrimPrefix(domain, "https://"), "/")
	keys := NewKeySet("https://"+domain+"/.well-known/jwks.json", options)
	return NewVerifier(keys, "https://"+domain+"/", audience)
}

func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: missing token", ErrUnauthorized)
	}
	claims := &Claims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid")
		}
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}
	if !claims.VerifyIssuer(v.issuer, true) {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrUnauthorized, claims.Issuer)
	}
	if !claims.VerifyAudience(v.audience, true) {
		return nil, fmt.Errorf("%w: unexpected audience", ErrUnauthorized)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: token has no expiry", ErrUnauthorized)
	}
	return claims, nil
}
