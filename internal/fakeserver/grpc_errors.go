package fakeserver

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/satstream-simulator/internal/session"
)

var (
	// ErrNotFound is returned by the unary APIs for satellites this server
	// does not know.
	ErrNotFound = errors.New("not found")
	// ErrStopping ends open streams when the server shuts down.
	ErrStopping = errors.New("server is shutting down")
)

// ToStatusError maps session and service errors onto gRPC status codes.
// Internal faults are reported with their sentinel text only; the full cause
// is logged by the session.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, session.ErrSessionTimeout):
		return status.Error(codes.Canceled, session.ErrSessionTimeout.Error())

	case errors.Is(err, session.ErrPeerClosed):
		if errors.Is(err, context.DeadlineExceeded) {
			return status.Error(codes.DeadlineExceeded, err.Error())
		}
		return status.Error(codes.Canceled, err.Error())

	case errors.Is(err, session.ErrMissingSatelliteID),
		errors.Is(err, session.ErrInvalidSatellite),
		errors.Is(err, session.ErrSatelliteMismatch):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, ErrNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, ErrStopping):
		return status.Error(codes.Unavailable, err.Error())

	case errors.Is(err, session.ErrPayloadGeneration):
		return status.Error(codes.Internal, session.ErrPayloadGeneration.Error())
	case errors.Is(err, session.ErrSend):
		return status.Error(codes.Internal, session.ErrSend.Error())

	default:
		return status.Error(codes.Internal, "internal error")
	}
}
