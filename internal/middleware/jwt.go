// Package middleware holds the HTTP middleware of the run API: bearer-token
// auth for triggering endpoints, per-client rate limiting, and request ids.
package middleware

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// Claims holds the parts of a validated token the API uses.
type Claims struct {
	Subject string
	Issuer  string
}

// TokenValidator validates a bearer token and returns its claims.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*Claims, error)
}

// SharedSecretValidator validates HS256 tokens signed with a shared secret.
type SharedSecretValidator struct {
	secret []byte
}

// NewSharedSecretValidator creates a validator for HS256 tokens.
func NewSharedSecretValidator(secret string) *SharedSecretValidator {
	return &SharedSecretValidator{secret: []byte(secret)}
}

// Validate verifies the signature and expiry of an HS256 token.
func (v *SharedSecretValidator) Validate(_ context.Context, token string) (*Claims, error) {
	tok, err := jwt.Parse(token, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	sub, err := tok.Claims.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}
	iss, _ := tok.Claims.GetIssuer()
	return &Claims{Subject: sub, Issuer: iss}, nil
}

// OIDCValidator validates tokens issued by an OIDC provider.
type OIDCValidator struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCValidator discovers the provider at issuerURL and verifies tokens
// for audience.
func NewOIDCValidator(ctx context.Context, issuerURL, audience string) (*OIDCValidator, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc provider discovery: %w", err)
	}
	return &OIDCValidator{verifier: provider.Verifier(&oidc.Config{ClientID: audience})}, nil
}

// NewOIDCValidatorFromKeySet verifies tokens against a fixed key set, skipping
// discovery.
func NewOIDCValidatorFromKeySet(keys oidc.KeySet, issuerURL, audience string) *OIDCValidator {
	return &OIDCValidator{verifier: oidc.NewVerifier(issuerURL, keys, &oidc.Config{ClientID: audience})}
}

// Validate verifies the token against the provider's keys.
func (v *OIDCValidator) Validate(ctx context.Context, token string) (*Claims, error) {
	idToken, err := v.verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}
	if idToken.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return &Claims{Subject: idToken.Subject, Issuer: idToken.Issuer}, nil
}
