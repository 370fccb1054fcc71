package auth

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL bounds the lifetime of minted tokens.
const DefaultTokenTTL = time.Hour

// Signer mints short-lived tokens with a client private key. It implements
// credentials.PerRPCCredentials so a token is attached to every call.
type Signer struct {
	key     crypto.PrivateKey
	method  jwt.SigningMethod
	issuer  string
	subject string
	ttl     time.Duration
	now     func() time.Time

	// Plaintext connections to the fake server are allowed.
	requireTLS bool
}

// NewSigner parses an RSA or ECDSA private key in PEM form.
func NewSigner(privateKeyPEM []byte, issuer string) (*Signer, error) {
	if issuer == "" {
		return nil, errors.New("issuer is required")
	}
	s := &Signer{issuer: issuer, subject: issuer, ttl: DefaultTokenTTL, now: time.Now}
	if key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM); err == nil {
		s.key, s.method = key, jwt.SigningMethodRS256
		return s, nil
	}
	key, err := jwt.ParseECPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key: not an RSA or ECDSA key: %w", err)
	}
	method, err := ecMethod(key)
	if err != nil {
		return nil, err
	}
	s.key, s.method = key, method
	return s, nil
}

// LoadSigner reads the private key from path.
func LoadSigner(path, issuer string) (*Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key %q: %w", path, err)
	}
	return NewSigner(raw, issuer)
}

// WithTTL sets the lifetime of minted tokens.
func (s *Signer) WithTTL(ttl time.Duration) *Signer {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

// Token mints a new signed token.
func (s *Signer) Token() (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   s.subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(s.method, claims).SignedString(s.key)
}

// GetRequestMetadata implements credentials.PerRPCCredentials.
func (s *Signer) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	token, err := s.Token()
	if err != nil {
		return nil, err
	}
	return map[string]string{"authorization": "Bearer " + token}, nil
}

// RequireTransportSecurity implements credentials.PerRPCCredentials.
func (s *Signer) RequireTransportSecurity() bool { return s.requireTLS }

func ecMethod(key *ecdsa.PrivateKey) (jwt.SigningMethod, error) {
	switch key.Curve.Params().BitSize {
	case 256:
		return jwt.SigningMethodES256, nil
	case 384:
		return jwt.SigningMethodES384, nil
	case 521:
		return jwt.SigningMethodES512, nil
	default:
		return nil, fmt.Errorf("unsupported curve %s", key.Curve.Params().Name)
	}
}
