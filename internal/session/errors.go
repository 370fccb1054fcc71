package session

import "errors"

var (
	// ErrMissingSatelliteID is returned when the first request names no satellite.
	ErrMissingSatelliteID = errors.New("satellite id is required")
	// ErrInvalidSatellite is returned when the first request names a satellite
	// this server does not serve.
	ErrInvalidSatellite = errors.New("invalid satellite id")
	// ErrSatelliteMismatch is returned when a later request names a different
	// satellite than the one the stream was opened for.
	ErrSatelliteMismatch = errors.New("satellite id does not match stream")
	// ErrSessionTimeout ends every stream once the session timeout elapses.
	ErrSessionTimeout = errors.New("session timeout")
	// ErrPeerClosed wraps receive errors and context cancellation from the peer.
	ErrPeerClosed = errors.New("peer closed stream")

	ErrPayloadGeneration = errors.New("telemetry payload generation failed")
	ErrSend              = errors.New("send failed")
)

// Reason records why a session ended.
type Reason string

const (
	ReasonCompleted  Reason = "completed"
	ReasonPeerClosed Reason = "peer_closed"
	ReasonTimeout    Reason = "timeout"
	ReasonInvalid    Reason = "invalid_argument"
	ReasonInternal   Reason = "internal"
	ReasonStopped    Reason = "server_stopped"
)
