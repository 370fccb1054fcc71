package stellarstation

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	ServiceName = "stellarstation.api.v1.StellarStationService"

	OpenSatelliteStreamFullMethodName         = "/" + ServiceName + "/OpenSatelliteStream"
	GetTleFullMethodName                      = "/" + ServiceName + "/GetTle"
	ListUpcomingAvailablePassesFullMethodName = "/" + ServiceName + "/ListUpcomingAvailablePasses"
)

// StellarStationServiceServer is the server API for StellarStationService.
type StellarStationServiceServer interface {
	// OpenSatelliteStream opens a duplex stream to a satellite: telemetry flows
	// down, commands and acknowledgements flow up.
	OpenSatelliteStream(grpc.BidiStreamingServer[SatelliteStreamRequest, SatelliteStreamResponse]) error
	GetTle(context.Context, *GetTleRequest) (*Tle, error)
	ListUpcomingAvailablePasses(context.Context, *ListUpcomingAvailablePassesRequest) (*ListUpcomingAvailablePassesResponse, error)
}

// UnimplementedStellarStationServiceServer can be embedded to stay forward
// compatible with new methods.
type UnimplementedStellarStationServiceServer struct{}

func (UnimplementedStellarStationServiceServer) OpenSatelliteStream(grpc.BidiStreamingServer[SatelliteStreamRequest, SatelliteStreamResponse]) error {
	return status.Error(codes.Unimplemented, "method OpenSatelliteStream not implemented")
}

func (UnimplementedStellarStationServiceServer) GetTle(context.Context, *GetTleRequest) (*Tle, error) {
	return nil, status.Error(codes.Unimplemented, "method GetTle not implemented")
}

func (UnimplementedStellarStationServiceServer) ListUpcomingAvailablePasses(context.Context, *ListUpcomingAvailablePassesRequest) (*ListUpcomingAvailablePassesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListUpcomingAvailablePasses not implemented")
}

// RegisterStellarStationServiceServer registers srv on s. The server must be
// built with ServerCodecOption.
func RegisterStellarStationServiceServer(s grpc.ServiceRegistrar, srv StellarStationServiceServer) {
	s.RegisterService(&StellarStationService_ServiceDesc, srv)
}

func _OpenSatelliteStream_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(StellarStationServiceServer).OpenSatelliteStream(
		&grpc.GenericServerStream[SatelliteStreamRequest, SatelliteStreamResponse]{ServerStream: stream},
	)
}

func _GetTle_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetTleRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StellarStationServiceServer).GetTle(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetTleFullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StellarStationServiceServer).GetTle(ctx, req.(*GetTleRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ListUpcomingAvailablePasses_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListUpcomingAvailablePassesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StellarStationServiceServer).ListUpcomingAvailablePasses(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListUpcomingAvailablePassesFullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StellarStationServiceServer).ListUpcomingAvailablePasses(ctx, req.(*ListUpcomingAvailablePassesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// StellarStationService_ServiceDesc is the grpc.ServiceDesc for StellarStationService.
var StellarStationService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StellarStationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetTle", Handler: _GetTle_Handler},
		{MethodName: "ListUpcomingAvailablePasses", Handler: _ListUpcomingAvailablePasses_Handler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "OpenSatelliteStream",
			Handler:       _OpenSatelliteStream_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "stellarstation/api/v1/stellarstation.proto",
}

// StellarStationServiceClient is the client API for StellarStationService.
// Connections must be dialled with DialCodecOption.
type StellarStationServiceClient interface {
	OpenSatelliteStream(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[SatelliteStreamRequest, SatelliteStreamResponse], error)
	GetTle(ctx context.Context, in *GetTleRequest, opts ...grpc.CallOption) (*Tle, error)
	ListUpcomingAvailablePasses(ctx context.Context, in *ListUpcomingAvailablePassesRequest, opts ...grpc.CallOption) (*ListUpcomingAvailablePassesResponse, error)
}

type stellarStationServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewStellarStationServiceClient(cc grpc.ClientConnInterface) StellarStationServiceClient {
	return &stellarStationServiceClient{cc: cc}
}

func (c *stellarStationServiceClient) OpenSatelliteStream(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[SatelliteStreamRequest, SatelliteStreamResponse], error) {
	stream, err := c.cc.NewStream(ctx, &StellarStationService_ServiceDesc.Streams[0], OpenSatelliteStreamFullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[SatelliteStreamRequest, SatelliteStreamResponse]{ClientStream: stream}, nil
}

func (c *stellarStationServiceClient) GetTle(ctx context.Context, in *GetTleRequest, opts ...grpc.CallOption) (*Tle, error) {
	out := new(Tle)
	if err := c.cc.Invoke(ctx, GetTleFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *stellarStationServiceClient) ListUpcomingAvailablePasses(ctx context.Context, in *ListUpcomingAvailablePassesRequest, opts ...grpc.CallOption) (*ListUpcomingAvailablePassesResponse, error) {
	out := new(ListUpcomingAvailablePassesResponse)
	if err := c.cc.Invoke(ctx, ListUpcomingAvailablePassesFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
