package fakeserver

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	stellarstation "github.com/signalsfoundry/satstream-simulator/api/stellarstation/v1"
	"github.com/signalsfoundry/satstream-simulator/internal/auth"
	"github.com/signalsfoundry/satstream-simulator/internal/logging"
	"github.com/signalsfoundry/satstream-simulator/internal/observability"
)

// ServerOptions wire the ambient concerns around the service. Nil fields
// switch the matching interceptor off.
type ServerOptions struct {
	Logger    logging.Logger
	Collector *observability.SessionCollector
	Verifier  *auth.Verifier
	// Extra is appended after the built-in options.
	Extra []grpc.ServerOption
}

// NewGRPCServer builds a gRPC server with svc registered. Interceptors run in
// order: request id, tracing, metrics, then authentication, so rejected
// calls are still logged and counted.
func NewGRPCServer(svc *Service, opts ServerOptions) *grpc.Server {
	unary := []grpc.UnaryServerInterceptor{
		RequestIDUnaryServerInterceptor(opts.Logger),
		TracingUnaryServerInterceptor(),
	}
	stream := []grpc.StreamServerInterceptor{
		RequestIDStreamServerInterceptor(opts.Logger),
		TracingStreamServerInterceptor(),
	}
	if opts.Collector != nil {
		unary = append(unary, opts.Collector.UnaryServerInterceptor())
		stream = append(stream, opts.Collector.StreamServerInterceptor())
	}
	if opts.Verifier != nil {
		unary = append(unary, opts.Verifier.UnaryServerInterceptor())
		stream = append(stream, opts.Verifier.StreamServerInterceptor())
	}

	serverOpts := []grpc.ServerOption{
		stellarstation.ServerCodecOption(),
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(stream...),
	}
	serverOpts = append(serverOpts, opts.Extra...)

	server := grpc.NewServer(serverOpts...)
	stellarstation.RegisterStellarStationServiceServer(server, svc)
	return server
}
