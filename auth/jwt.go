package auth

import (
	"crypto/rsa"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionCookie is the cookie the identity provider's frontend SDK keeps
// the session token in.
const SessionCookie = "__session"

// DefaultLeeway absorbs clock skew on exp and nbf.
const DefaultLeeway = 5 * time.Second

// SessionClaims are the session token claims the verifier reads.
type SessionClaims struct {
	AuthorizedParty string `json:"azp,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier checks RS256 session tokens against a provider public key.
type JWTVerifier struct {
	key            *rsa.PublicKey
	issuer         string
	allowedParties []string
	leeway         time.Duration
	now            func() time.Time
}

// JWTOption configures a JWTVerifier.
type JWTOption func(*JWTVerifier)

// WithIssuer requires the iss claim to equal issuer.
func WithIssuer(issuer string) JWTOption {
	return func(v *JWTVerifier) { v.issuer = issuer }
}

// WithAuthorizedParties requires azp, when present, to be one of origins.
func WithAuthorizedParties(origins ...string) JWTOption {
	return func(v *JWTVerifier) { v.allowedParties = origins }
}

// WithLeeway sets the allowed clock skew.
func WithLeeway(d time.Duration) JWTOption {
	return func(v *JWTVerifier) { v.leeway = d }
}

// WithTimeFunc overrides the clock used for exp and nbf.
func WithTimeFunc(now func() time.Time) JWTOption {
	return func(v *JWTVerifier) { v.now = now }
}

// NewJWTVerifier builds a verifier from a PEM encoded RSA public key.
func NewJWTVerifier(publicKeyPEM []byte, opts ...JWTOption) (*JWTVerifier, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("auth: parse public key: %w", err)
	}
	v := &JWTVerifier{
		key:    key,
		leeway: DefaultLeeway,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify validates the request's session token and returns its subject.
func (v *JWTVerifier) Verify(r *http.Request) (string, error) {
	raw := tokenFromRequest(r)
	if raw == "" {
		return "", ErrUnauthenticated
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}

	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}, parserOpts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if !token.Valid {
		return "", ErrUnauthenticated
	}

	if claims.AuthorizedParty != "" && len(v.allowedParties) > 0 &&
		!slices.Contains(v.allowedParties, claims.AuthorizedParty) {
		return "", fmt.Errorf("%w: unexpected authorized party %q", ErrUnauthenticated, claims.AuthorizedParty)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return claims.Subject, nil
}

// tokenFromRequest prefers the Authorization header over the cookie.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}
