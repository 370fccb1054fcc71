package fakeserver

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	stellarstation "github.com/signalsfoundry/satstream-simulator/api/stellarstation/v1"
	"github.com/signalsfoundry/satstream-simulator/internal/auth"
	"github.com/signalsfoundry/satstream-simulator/internal/config"
	"github.com/signalsfoundry/satstream-simulator/internal/logging"
)

var passEpoch = time.Date(2021, 10, 2, 14, 0, 0, 0, time.UTC)

type testEnv struct {
	svc    *Service
	client stellarstation.StellarStationServiceClient
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.FakeServer.TelemetryPublishingInterval = 20 * time.Millisecond
	cfg.FakeServer.TelemetryPayloadSize = 64
	cfg.FakeServer.EventInterval = 20 * time.Millisecond
	cfg.FakeServer.SessionTimeout = 10 * time.Second
	return cfg
}

func newTestEnv(t *testing.T, verifier *auth.Verifier, opts ...grpc.DialOption) *testEnv {
	t.Helper()

	svc, err := NewService(*testConfig(), logging.Noop(), WithClock(func() time.Time { return passEpoch }))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	server := NewGRPCServer(svc, ServerOptions{Verifier: verifier})

	lis := bufconn.Listen(1 << 20)
	go func() { _ = server.Serve(lis) }()

	dialOpts := append([]grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		stellarstation.DialCodecOption(),
	}, opts...)
	conn, err := grpc.NewClient("passthrough:///bufnet", dialOpts...)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		server.Stop()
	})
	return &testEnv{svc: svc, client: stellarstation.NewStellarStationServiceClient(conn)}
}

func drain(stream grpc.BidiStreamingClient[stellarstation.SatelliteStreamRequest, stellarstation.SatelliteStreamResponse]) error {
	for {
		if _, err := stream.Recv(); err != nil {
			return err
		}
	}
}

func TestOpenSatelliteStreamDeliversTelemetry(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := env.client.OpenSatelliteStream(ctx)
	if err != nil {
		t.Fatalf("OpenSatelliteStream: %v", err)
	}
	if err := stream.Send(&stellarstation.SatelliteStreamRequest{SatelliteID: "5"}); err != nil {
		t.Fatalf("send start: %v", err)
	}

	var streamID string
	for i := 0; i < 2; i++ {
		resp, err := stream.Recv()
		if err != nil {
			t.Fatalf("recv frame %d: %v", i, err)
		}
		tel := resp.GetReceiveTelemetryResponse()
		if tel == nil {
			t.Fatalf("frame %d is not telemetry: %+v", i, resp)
		}
		data := tel.GetTelemetry().GetData()
		if len(data) != 64 {
			t.Fatalf("frame %d size = %d, want 64", i, len(data))
		}
		if data[62] != 0 {
			t.Fatalf("frame %d state byte = %d, want 0", i, data[62])
		}
		if tel.GetMessageAckID() != "" {
			t.Fatalf("frame %d carries ack id %q without flow control", i, tel.GetMessageAckID())
		}
		if resp.GetStreamID() == "" || (streamID != "" && resp.GetStreamID() != streamID) {
			t.Fatalf("frame %d stream id = %q, previous %q", i, resp.GetStreamID(), streamID)
		}
		streamID = resp.GetStreamID()
	}

	if err := stream.CloseSend(); err != nil {
		t.Fatalf("CloseSend: %v", err)
	}
	if err := drain(stream); !errors.Is(err, io.EOF) {
		t.Fatalf("stream ended with %v, want clean EOF", err)
	}
}

func TestOpenSatelliteStreamRejectsUnknownSatellite(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := env.client.OpenSatelliteStream(ctx)
	if err != nil {
		t.Fatalf("OpenSatelliteStream: %v", err)
	}
	if err := stream.Send(&stellarstation.SatelliteStreamRequest{SatelliteID: "99"}); err != nil {
		t.Fatalf("send start: %v", err)
	}
	_, err = stream.Recv()
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestStopEndsOpenStreams(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := env.client.OpenSatelliteStream(ctx)
	if err != nil {
		t.Fatalf("OpenSatelliteStream: %v", err)
	}
	if err := stream.Send(&stellarstation.SatelliteStreamRequest{SatelliteID: "5"}); err != nil {
		t.Fatalf("send start: %v", err)
	}
	if _, err := stream.Recv(); err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if got := env.svc.ActiveSessions(); got != 1 {
		t.Fatalf("ActiveSessions = %d, want 1", got)
	}

	env.svc.Stop()
	if code := status.Code(drain(stream)); code != codes.Unavailable {
		t.Fatalf("open stream code = %v, want Unavailable", code)
	}

	late, err := env.client.OpenSatelliteStream(ctx)
	if err != nil {
		t.Fatalf("OpenSatelliteStream after stop: %v", err)
	}
	if _, err := late.Recv(); status.Code(err) != codes.Unavailable {
		t.Fatalf("new stream code = %v, want Unavailable", status.Code(err))
	}
}

func TestGetTle(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	tle, err := env.client.GetTle(ctx, &stellarstation.GetTleRequest{SatelliteID: "5"})
	if err != nil {
		t.Fatalf("GetTle: %v", err)
	}
	if tle.Line1 != config.DefaultTLELine1 || tle.Line2 != config.DefaultTLELine2 {
		t.Fatalf("GetTle = %+v, want the configured element set", tle)
	}

	_, err = env.client.GetTle(ctx, &stellarstation.GetTleRequest{SatelliteID: "6"})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("unknown satellite code = %v, want NotFound", status.Code(err))
	}
}

func TestListUpcomingAvailablePasses(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	first, err := env.client.ListUpcomingAvailablePasses(ctx, &stellarstation.ListUpcomingAvailablePassesRequest{SatelliteID: "5"})
	if err != nil {
		t.Fatalf("ListUpcomingAvailablePasses: %v", err)
	}
	if len(first.Pass) == 0 {
		t.Fatalf("expected at least one pass in 24h")
	}
	for i, p := range first.Pass {
		if p.GroundStationID != "1" {
			t.Fatalf("pass %d ground station = %q, want 1", i, p.GroundStationID)
		}
		if !p.AOSTime.Before(p.LOSTime) {
			t.Fatalf("pass %d AOS %v not before LOS %v", i, p.AOSTime, p.LOSTime)
		}
		if p.MaxElevationDegrees < 10 {
			t.Fatalf("pass %d peaks at %.2f, below the mask", i, p.MaxElevationDegrees)
		}
	}

	second, err := env.client.ListUpcomingAvailablePasses(ctx, &stellarstation.ListUpcomingAvailablePassesRequest{SatelliteID: "5"})
	if err != nil {
		t.Fatalf("second listing: %v", err)
	}
	if len(second.Pass) != len(first.Pass) || second.Pass[0].ID != first.Pass[0].ID {
		t.Fatalf("pass ids are not stable across listings")
	}

	_, err = env.client.ListUpcomingAvailablePasses(ctx, &stellarstation.ListUpcomingAvailablePassesRequest{SatelliteID: "6"})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("unknown satellite code = %v, want NotFound", status.Code(err))
	}
}

func TestAuthenticationGate(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	privDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal private key: %v", err)
	}
	verifier, err := auth.NewVerifier(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}), config.DefaultIssuer, nil)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	signer, err := auth.NewSigner(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privDER}), config.DefaultIssuer)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	env := newTestEnv(t, verifier)
	ctx := context.Background()
	req := &stellarstation.GetTleRequest{SatelliteID: "5"}

	if _, err := env.client.GetTle(ctx, req); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("anonymous GetTle code = %v, want Unauthenticated", status.Code(err))
	}
	if _, err := env.client.GetTle(ctx, req, grpc.PerRPCCredentials(signer)); err != nil {
		t.Fatalf("signed GetTle: %v", err)
	}

	stream, err := env.client.OpenSatelliteStream(ctx)
	if err != nil {
		t.Fatalf("OpenSatelliteStream: %v", err)
	}
	if _, err := stream.Recv(); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("anonymous stream code = %v, want Unauthenticated", status.Code(err))
	}
}

func TestRequestIDInterceptorHonoursIncomingID(t *testing.T) {
	interceptor := RequestIDUnaryServerInterceptor(logging.Noop())
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(requestIDMetadataKey, "req-42"))

	_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: stellarstation.GetTleFullMethodName}, func(ctx context.Context, _ any) (any, error) {
		if got := logging.RequestIDFromContext(ctx); got != "req-42" {
			t.Fatalf("request id = %q, want req-42", got)
		}
		if logging.LoggerFromContext(ctx, nil) == nil {
			t.Fatalf("no logger on context")
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
}

func TestRequestIDStreamInterceptorGeneratesID(t *testing.T) {
	interceptor := RequestIDStreamServerInterceptor(nil)
	ss := &contextStream{ctx: context.Background()}

	err := interceptor(nil, ss, &grpc.StreamServerInfo{FullMethod: stellarstation.OpenSatelliteStreamFullMethodName}, func(_ any, stream grpc.ServerStream) error {
		if logging.RequestIDFromContext(stream.Context()) == "" {
			t.Fatalf("stream context lacks a request id")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
}

func TestPassIDIsDeterministic(t *testing.T) {
	a := passID("5", "1", passEpoch)
	if b := passID("5", "1", passEpoch); a != b {
		t.Fatalf("passID not stable: %q vs %q", a, b)
	}
	if c := passID("5", "1", passEpoch.Add(time.Second)); c == a {
		t.Fatalf("distinct passes share id %q", a)
	}
}
