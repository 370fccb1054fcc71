// Package stellarstation holds the wire contract for the satellite stream API:
// request/response messages, their protobuf encoding, and the gRPC service
// descriptor used by both the fake server and the example clients.
package stellarstation

import "time"

// SatelliteStreamRequest is sent by the peer on an open satellite stream. The
// first request on a stream configures it; flow-control and event options in
// later requests are ignored.
type SatelliteStreamRequest struct {
	SatelliteID       string
	StreamID          string
	EnableFlowControl bool
	EnableEvents      bool
	RequestID         string

	// At most one of the following is set.
	SendSatelliteCommandsRequest *SendSatelliteCommandsRequest
	TelemetryReceivedAck         *ReceiveTelemetryAck
}

func (r *SatelliteStreamRequest) GetSatelliteID() string {
	if r == nil {
		return ""
	}
	return r.SatelliteID
}

func (r *SatelliteStreamRequest) GetStreamID() string {
	if r == nil {
		return ""
	}
	return r.StreamID
}

func (r *SatelliteStreamRequest) GetSendSatelliteCommandsRequest() *SendSatelliteCommandsRequest {
	if r == nil {
		return nil
	}
	return r.SendSatelliteCommandsRequest
}

func (r *SatelliteStreamRequest) GetTelemetryReceivedAck() *ReceiveTelemetryAck {
	if r == nil {
		return nil
	}
	return r.TelemetryReceivedAck
}

// SendSatelliteCommandsRequest carries one or more opaque command payloads.
type SendSatelliteCommandsRequest struct {
	Command      [][]byte
	ChannelSetID string
}

func (r *SendSatelliteCommandsRequest) GetCommand() [][]byte {
	if r == nil {
		return nil
	}
	return r.Command
}

// ReceiveTelemetryAck acknowledges a telemetry response sent with a message
// ack id while flow control is enabled.
type ReceiveTelemetryAck struct {
	MessageAckID string
	Received     time.Time
}

func (a *ReceiveTelemetryAck) GetMessageAckID() string {
	if a == nil {
		return ""
	}
	return a.MessageAckID
}

// SatelliteStreamResponse is sent by the server. Exactly one of
// ReceiveTelemetryResponse and StreamEvent is set.
type SatelliteStreamResponse struct {
	StreamID string

	ReceiveTelemetryResponse *ReceiveTelemetryResponse
	StreamEvent              *StreamEvent
}

func (r *SatelliteStreamResponse) GetStreamID() string {
	if r == nil {
		return ""
	}
	return r.StreamID
}

func (r *SatelliteStreamResponse) GetReceiveTelemetryResponse() *ReceiveTelemetryResponse {
	if r == nil {
		return nil
	}
	return r.ReceiveTelemetryResponse
}

func (r *SatelliteStreamResponse) GetStreamEvent() *StreamEvent {
	if r == nil {
		return nil
	}
	return r.StreamEvent
}

// ReceiveTelemetryResponse wraps one telemetry frame. MessageAckID is only
// populated when the stream was opened with flow control.
type ReceiveTelemetryResponse struct {
	Telemetry    *Telemetry
	MessageAckID string
}

func (r *ReceiveTelemetryResponse) GetTelemetry() *Telemetry {
	if r == nil {
		return nil
	}
	return r.Telemetry
}

func (r *ReceiveTelemetryResponse) GetMessageAckID() string {
	if r == nil {
		return ""
	}
	return r.MessageAckID
}

// Telemetry is a downlinked payload with the times its first and last bytes
// were received at the ground station.
type Telemetry struct {
	Data                  []byte
	TimeFirstByteReceived time.Time
	TimeLastByteReceived  time.Time
}

func (t *Telemetry) GetData() []byte {
	if t == nil {
		return nil
	}
	return t.Data
}

// StreamEvent carries out-of-band information about the stream.
type StreamEvent struct {
	RequestID           string
	PlanMonitoringEvent *PlanMonitoringEvent
}

func (e *StreamEvent) GetPlanMonitoringEvent() *PlanMonitoringEvent {
	if e == nil {
		return nil
	}
	return e.PlanMonitoringEvent
}

type PlanMonitoringEvent struct {
	PlanID             string
	GroundStationState *GroundStationState
}

func (e *PlanMonitoringEvent) GetGroundStationState() *GroundStationState {
	if e == nil {
		return nil
	}
	return e.GroundStationState
}

type GroundStationState struct {
	Time    time.Time
	Antenna *AntennaState
}

func (s *GroundStationState) GetAntenna() *AntennaState {
	if s == nil {
		return nil
	}
	return s.Antenna
}

// AntennaState reports commanded and measured pointing angles in degrees.
type AntennaState struct {
	Azimuth   *AngleReading
	Elevation *AngleReading
}

func (s *AntennaState) GetAzimuth() *AngleReading {
	if s == nil {
		return nil
	}
	return s.Azimuth
}

func (s *AntennaState) GetElevation() *AngleReading {
	if s == nil {
		return nil
	}
	return s.Elevation
}

type AngleReading struct {
	Command  float64
	Measured float64
}

func (a *AngleReading) GetCommand() float64 {
	if a == nil {
		return 0
	}
	return a.Command
}

func (a *AngleReading) GetMeasured() float64 {
	if a == nil {
		return 0
	}
	return a.Measured
}

type GetTleRequest struct {
	SatelliteID string
}

// Tle is a two-line element set.
type Tle struct {
	Line1 string
	Line2 string
}

type ListUpcomingAvailablePassesRequest struct {
	SatelliteID string
}

type ListUpcomingAvailablePassesResponse struct {
	Pass []*Pass
}

// Pass is a predicted contact window between a satellite and a ground station.
type Pass struct {
	ID                     string
	AOSTime                time.Time
	LOSTime                time.Time
	GroundStationID        string
	GroundStationLatitude  float64
	GroundStationLongitude float64
	MaxElevationDegrees    float64
	MaxElevationTime       time.Time
}
