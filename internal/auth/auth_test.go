package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const issuer = "fakeclient@example.com"

type keyPair struct {
	private []byte
	public  []byte
}

func ecKeyPair(t *testing.T) keyPair {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal private key: %v", err)
	}
	return keyPair{
		private: pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}),
		public:  publicPEM(t, &key.PublicKey),
	}
}

func rsaKeyPair(t *testing.T) keyPair {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return keyPair{
		private: pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}),
		public:  publicPEM(t, &key.PublicKey),
	}
}

func publicPEM(t *testing.T, pub any) []byte {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}

func newPair(t *testing.T, kp keyPair, signerIssuer string) (*Verifier, *Signer) {
	t.Helper()
	v, err := NewVerifier(kp.public, issuer, nil)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	s, err := NewSigner(kp.private, signerIssuer)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return v, s
}

func incoming(t *testing.T, s *Signer) context.Context {
	t.Helper()
	md, err := s.GetRequestMetadata(context.Background())
	if err != nil {
		t.Fatalf("GetRequestMetadata: %v", err)
	}
	return metadata.NewIncomingContext(context.Background(), metadata.New(md))
}

func TestSignedTokenVerifies(t *testing.T) {
	for name, kp := range map[string]keyPair{"ecdsa": ecKeyPair(t), "rsa": rsaKeyPair(t)} {
		v, s := newPair(t, kp, issuer)
		token, err := s.Token()
		if err != nil {
			t.Fatalf("%s: Token: %v", name, err)
		}
		claims, err := v.Verify(token)
		if err != nil {
			t.Fatalf("%s: Verify: %v", name, err)
		}
		if claims.Issuer != issuer {
			t.Fatalf("%s: issuer = %q, want %q", name, claims.Issuer, issuer)
		}
	}
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	v, s := newPair(t, ecKeyPair(t), "someone@example.com")
	token, err := s.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	v, _ := newPair(t, ecKeyPair(t), issuer)
	_, other := newPair(t, ecKeyPair(t), issuer)
	token, err := other.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v, s := newPair(t, ecKeyPair(t), issuer)
	s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := s.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if _, err := v.Verify(token); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
}

func TestVerifyRejectsHMAC(t *testing.T) {
	v, _ := newPair(t, ecKeyPair(t), issuer)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Issuer: issuer}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestNewVerifierRejectsGarbage(t *testing.T) {
	if _, err := NewVerifier([]byte("not a key"), issuer, nil); err == nil {
		t.Fatalf("expected error for garbage key")
	}
	if _, err := NewVerifier(ecKeyPair(t).public, "", nil); err == nil {
		t.Fatalf("expected error for empty issuer")
	}
}

func TestLoadVerifierFromFile(t *testing.T) {
	kp := ecKeyPair(t)
	path := filepath.Join(t.TempDir(), "client.pub")
	if err := os.WriteFile(path, kp.public, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	if _, err := LoadVerifier(path, issuer, nil); err != nil {
		t.Fatalf("LoadVerifier: %v", err)
	}
	if _, err := LoadVerifier(filepath.Join(t.TempDir(), "missing.pub"), issuer, nil); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestUnaryInterceptor(t *testing.T) {
	v, s := newPair(t, ecKeyPair(t), issuer)
	interceptor := v.UnaryServerInterceptor()

	called := false
	handler := func(ctx context.Context, req any) (any, error) {
		called = true
		if sub, ok := SubjectFromContext(ctx); !ok || sub != issuer {
			t.Fatalf("subject = %q, %v; want %q", sub, ok, issuer)
		}
		return "ok", nil
	}

	if _, err := interceptor(incoming(t, s), nil, &grpc.UnaryServerInfo{}, handler); err != nil {
		t.Fatalf("authorized call: %v", err)
	}
	if !called {
		t.Fatalf("handler not invoked for authorized call")
	}

	called = false
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{}, handler)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("code = %v, want Unauthenticated", status.Code(err))
	}
	if called {
		t.Fatalf("handler invoked without a token")
	}
}

type stubStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *stubStream) Context() context.Context { return s.ctx }

func TestStreamInterceptor(t *testing.T) {
	v, s := newPair(t, ecKeyPair(t), issuer)
	interceptor := v.StreamServerInterceptor()

	err := interceptor(nil, &stubStream{ctx: incoming(t, s)}, &grpc.StreamServerInfo{}, func(_ any, ss grpc.ServerStream) error {
		if _, ok := SubjectFromContext(ss.Context()); !ok {
			t.Fatalf("stream context lacks subject")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("authorized stream: %v", err)
	}

	bad := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer nope"))
	err = interceptor(nil, &stubStream{ctx: bad}, &grpc.StreamServerInfo{}, func(any, grpc.ServerStream) error {
		t.Fatalf("handler invoked with invalid token")
		return nil
	})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("code = %v, want Unauthenticated", status.Code(err))
	}
}

func TestBearerTokenParsing(t *testing.T) {
	cases := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer  abc ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer ", "", false},
	}
	for _, tc := range cases {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", tc.header))
		got, err := bearerToken(ctx)
		if (err == nil) != tc.ok || got != tc.want {
			t.Errorf("bearerToken(%q) = %q, %v; want %q, ok=%v", tc.header, got, err, tc.want, tc.ok)
		}
	}
}
