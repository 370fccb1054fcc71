package stellarstation

import (
	"bytes"
	"testing"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestSatelliteStreamRequestSkipsUnknownFields(t *testing.T) {
	req := &SatelliteStreamRequest{SatelliteID: "5", EnableEvents: true}
	raw, err := req.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	// Field 99 is not part of the contract and must be ignored.
	raw = protowire.AppendTag(raw, 99, protowire.BytesType)
	raw = protowire.AppendString(raw, "future-field")
	raw = protowire.AppendTag(raw, 98, protowire.VarintType)
	raw = protowire.AppendVarint(raw, 42)

	var got SatelliteStreamRequest
	if err := got.Unmarshal(raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.SatelliteID != "5" || !got.EnableEvents || got.EnableFlowControl {
		t.Fatalf("decoded request = %+v, want satellite 5 with events only", got)
	}
}

func TestSatelliteStreamRequestOneofLastWins(t *testing.T) {
	cmd, err := (&SendSatelliteCommandsRequest{Command: [][]byte{{0x01}}}).Marshal()
	if err != nil {
		t.Fatalf("marshal commands: %v", err)
	}
	ack, err := (&ReceiveTelemetryAck{MessageAckID: "7"}).Marshal()
	if err != nil {
		t.Fatalf("marshal ack: %v", err)
	}

	var raw []byte
	raw = protowire.AppendTag(raw, 5, protowire.BytesType)
	raw = protowire.AppendBytes(raw, cmd)
	raw = protowire.AppendTag(raw, 6, protowire.BytesType)
	raw = protowire.AppendBytes(raw, ack)

	var got SatelliteStreamRequest
	if err := got.Unmarshal(raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.SendSatelliteCommandsRequest != nil {
		t.Fatalf("commands should be cleared by a later ack")
	}
	if got.GetTelemetryReceivedAck().GetMessageAckID() != "7" {
		t.Fatalf("ack id = %q, want 7", got.GetTelemetryReceivedAck().GetMessageAckID())
	}
}

func TestSatelliteStreamRequestRejectsBothCommandAndAck(t *testing.T) {
	req := &SatelliteStreamRequest{
		SatelliteID:                  "5",
		SendSatelliteCommandsRequest: &SendSatelliteCommandsRequest{},
		TelemetryReceivedAck:         &ReceiveTelemetryAck{},
	}
	if _, err := req.Marshal(); err == nil {
		t.Fatalf("expected error when both oneof members are set")
	}
}

func TestCommandsKeepEmptyPayloads(t *testing.T) {
	req := &SendSatelliteCommandsRequest{Command: [][]byte{{}, {0xeb, 0x90}, {}}}
	raw, err := req.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got SendSatelliteCommandsRequest
	if err := got.Unmarshal(raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(got.Command) != 3 {
		t.Fatalf("len(Command) = %d, want 3", len(got.Command))
	}
	if !bytes.Equal(got.Command[1], []byte{0xeb, 0x90}) {
		t.Fatalf("Command[1] = %x, want eb90", got.Command[1])
	}
}

func TestTelemetryResponseThroughCodec(t *testing.T) {
	first := time.Date(2026, time.March, 3, 12, 0, 0, 123000000, time.UTC)
	resp := &SatelliteStreamResponse{
		StreamID: "stream-1",
		ReceiveTelemetryResponse: &ReceiveTelemetryResponse{
			MessageAckID: "3",
			Telemetry: &Telemetry{
				Data:                  []byte{0xde, 0xad, 0x01, 0xff},
				TimeFirstByteReceived: first,
				TimeLastByteReceived:  first.Add(time.Second),
			},
		},
	}

	codec := Codec()
	raw, err := codec.Marshal(resp)
	if err != nil {
		t.Fatalf("codec.Marshal: %v", err)
	}
	var got SatelliteStreamResponse
	if err := codec.Unmarshal(raw, &got); err != nil {
		t.Fatalf("codec.Unmarshal: %v", err)
	}

	// Mutating the input buffer must not leak into decoded payloads.
	for i := range raw {
		raw[i] = 0
	}

	tlm := got.GetReceiveTelemetryResponse().GetTelemetry()
	if !bytes.Equal(tlm.GetData(), []byte{0xde, 0xad, 0x01, 0xff}) {
		t.Fatalf("data = %x, want dead01ff", tlm.GetData())
	}
	if !tlm.TimeFirstByteReceived.Equal(first) {
		t.Fatalf("first byte time = %v, want %v", tlm.TimeFirstByteReceived, first)
	}
	if got := tlm.TimeLastByteReceived.Sub(tlm.TimeFirstByteReceived); got != time.Second {
		t.Fatalf("transmission window = %v, want 1s", got)
	}
	if got.GetStreamEvent() != nil {
		t.Fatalf("stream event should be nil on telemetry response")
	}
}

func TestStreamEventAntennaReadings(t *testing.T) {
	resp := &SatelliteStreamResponse{
		StreamEvent: &StreamEvent{
			PlanMonitoringEvent: &PlanMonitoringEvent{
				GroundStationState: &GroundStationState{
					Antenna: &AntennaState{
						Azimuth:   &AngleReading{Command: 1.0, Measured: 1.02},
						Elevation: &AngleReading{Command: 20.0, Measured: 19.5},
					},
				},
			},
		},
	}
	raw, err := resp.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got SatelliteStreamResponse
	if err := got.Unmarshal(raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	ant := got.GetStreamEvent().GetPlanMonitoringEvent().GetGroundStationState().GetAntenna()
	if ant.GetAzimuth().GetMeasured() != 1.02 || ant.GetElevation().GetCommand() != 20.0 {
		t.Fatalf("antenna = %+v / %+v", ant.GetAzimuth(), ant.GetElevation())
	}
}

func TestCodecRejectsForeignTypes(t *testing.T) {
	codec := Codec()
	if _, err := codec.Marshal(struct{}{}); err == nil {
		t.Fatalf("expected error marshalling a non-message")
	}
	if err := codec.Unmarshal(nil, &struct{}{}); err == nil {
		t.Fatalf("expected error unmarshalling into a non-message")
	}
	if codec.Name() != "proto" {
		t.Fatalf("Name() = %q, want proto", codec.Name())
	}
}

func TestTruncatedInputFails(t *testing.T) {
	raw, err := (&Tle{Line1: "1 25544U", Line2: "2 25544"}).Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got Tle
	if err := got.Unmarshal(raw[:len(raw)-3]); err == nil {
		t.Fatalf("expected parse error on truncated input")
	}
}
