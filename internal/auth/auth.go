// Package auth gates the fake server behind signed bearer tokens. Clients
// sign a JWT with their private key; the server verifies the signature
// against the matching public key and checks the issuer.
package auth

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/satstream-simulator/internal/logging"
)

type contextKey string

const subjectKey contextKey = "auth_subject"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

var signingMethods = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}

// Verifier checks tokens against one public key and issuer.
type Verifier struct {
	key    crypto.PublicKey
	issuer string
	log    logging.Logger
}

// NewVerifier parses an RSA or ECDSA public key in PEM form.
func NewVerifier(publicKeyPEM []byte, issuer string, log logging.Logger) (*Verifier, error) {
	if log == nil {
		log = logging.Noop()
	}
	if issuer == "" {
		return nil, errors.New("issuer is required")
	}
	var key crypto.PublicKey
	if rsaKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM); err == nil {
		key = rsaKey
	} else if ecKey, ecErr := jwt.ParseECPublicKeyFromPEM(publicKeyPEM); ecErr == nil {
		key = ecKey
	} else {
		return nil, fmt.Errorf("parse public key: not an RSA or ECDSA key: %w", err)
	}
	return &Verifier{key: key, issuer: issuer, log: log}, nil
}

// LoadVerifier reads the public key from path.
func LoadVerifier(path, issuer string, log logging.Logger) (*Verifier, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key %q: %w", path, err)
	}
	return NewVerifier(raw, issuer, log)
}

// Verify validates the signature, expiry and issuer of token.
func (v *Verifier) Verify(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}, jwt.WithValidMethods(signingMethods), jwt.WithIssuer(v.issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authenticate extracts and verifies the bearer token in ctx's incoming
// metadata, returning a context carrying the token subject.
func (v *Verifier) Authenticate(ctx context.Context) (context.Context, error) {
	token, err := bearerToken(ctx)
	if err != nil {
		return ctx, status.Error(codes.Unauthenticated, err.Error())
	}
	claims, err := v.Verify(token)
	if err != nil {
		v.log.Warn(ctx, "rejected bearer token", logging.Err(err))
		return ctx, status.Error(codes.Unauthenticated, ErrInvalidToken.Error())
	}
	return context.WithValue(ctx, subjectKey, claims.Subject), nil
}

// UnaryServerInterceptor rejects unary calls without a valid token.
func (v *Verifier) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := v.Authenticate(ctx)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor rejects streams without a valid token before the
// handler runs.
func (v *Verifier) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := v.Authenticate(ss.Context())
		if err != nil {
			return err
		}
		return handler(srv, &contextStream{ServerStream: ss, ctx: ctx})
	}
}

// SubjectFromContext returns the authenticated token subject.
func SubjectFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(subjectKey).(string)
	return s, ok
}

func bearerToken(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", ErrMissingToken
	}
	for _, v := range md.Get("authorization") {
		if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
			if tok := strings.TrimSpace(v[7:]); tok != "" {
				return tok, nil
			}
		}
	}
	return "", ErrMissingToken
}

type contextStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *contextStream) Context() context.Context { return s.ctx }
