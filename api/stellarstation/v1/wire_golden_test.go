package stellarstation

import (
	"encoding/hex"
	"strings"
	"testing"
	"time"
)

// Each vector is assembled by hand from the field table of the service
// contract: tag byte = field<<3 | wire type, lengths in one byte.
func TestWireGoldenBytes(t *testing.T) {
	cases := []struct {
		name string
		msg  Message
		want string
	}{
		{
			name: "start request",
			msg: &SatelliteStreamRequest{
				SatelliteID:       "5",
				StreamID:          "s1",
				EnableFlowControl: true,
				EnableEvents:      true,
				RequestID:         "r",
			},
			// 1:"5" 2:"s1" 3:true 4:true 7:"r"
			want: "0a0135 12027331 1801 2001 3a0172",
		},
		{
			name: "commands",
			msg: &SatelliteStreamRequest{
				SatelliteID: "5",
				SendSatelliteCommandsRequest: &SendSatelliteCommandsRequest{
					Command:      [][]byte{{0x01}, {}},
					ChannelSetID: "c",
				},
			},
			// 1:"5" 5:{1:01 1:"" 2:"c"}
			want: "0a0135 2a08 0a0101 0a00 120163",
		},
		{
			name: "ack with receipt time",
			msg: &SatelliteStreamRequest{
				TelemetryReceivedAck: &ReceiveTelemetryAck{
					MessageAckID: "7",
					Received:     time.Unix(1, 5).UTC(),
				},
			},
			// 6:{1:"7" 2:Timestamp{1:1 2:5}}
			want: "3209 0a0137 1204 0801 1005",
		},
		{
			name: "telemetry response",
			msg: &SatelliteStreamResponse{
				StreamID: "s",
				ReceiveTelemetryResponse: &ReceiveTelemetryResponse{
					Telemetry:    &Telemetry{Data: []byte{0xde, 0xad}},
					MessageAckID: "1",
				},
			},
			// 1:"s" 2:{1:{1:dead} 2:"1"}
			want: "0a0173 1209 0a04 0a02dead 120131",
		},
		{
			name: "event response",
			msg: &SatelliteStreamResponse{
				StreamID: "s",
				StreamEvent: &StreamEvent{
					RequestID: "r",
					PlanMonitoringEvent: &PlanMonitoringEvent{
						PlanID: "p",
						GroundStationState: &GroundStationState{
							Antenna: &AntennaState{
								Azimuth: &AngleReading{Command: 1, Measured: 0.5},
							},
						},
					},
				},
			},
			// 1:"s" 3:{1:"r" 2:{1:"p" 2:{2:{1:{1:1.0 2:0.5}}}}}
			want: "0a0173 1a20 0a0172 121b 0a0170 1216 1214 0a12 09000000000000f03f 11000000000000e03f",
		},
		{
			name: "tle",
			msg:  &Tle{Line1: "a", Line2: "b"},
			want: "0a0161 120162",
		},
		{
			name: "list passes request",
			msg:  &ListUpcomingAvailablePassesRequest{SatelliteID: "5"},
			want: "0a0135",
		},
		{
			name: "passes",
			msg: &ListUpcomingAvailablePassesResponse{Pass: []*Pass{{
				ID:                    "x",
				GroundStationID:       "g",
				GroundStationLatitude: 1,
				MaxElevationDegrees:   0.5,
			}}},
			// 1:{1:"x" 4:"g" 5:1.0 7:0.5}
			want: "0a18 0a0178 220167 29000000000000f03f 39000000000000e03f",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := tc.msg.Marshal()
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			want := strings.ReplaceAll(tc.want, " ", "")
			if got := hex.EncodeToString(raw); got != want {
				t.Fatalf("encoding = %s, want %s", got, want)
			}
		})
	}
}

func TestWireGoldenDecode(t *testing.T) {
	raw, err := hex.DecodeString("0a0135" + "3209" + "0a0137" + "1204" + "0801" + "1005")
	if err != nil {
		t.Fatalf("hex: %v", err)
	}
	var req SatelliteStreamRequest
	if err := req.Unmarshal(raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	ack := req.GetTelemetryReceivedAck()
	if req.SatelliteID != "5" || ack.GetMessageAckID() != "7" {
		t.Fatalf("decoded = %+v, want satellite 5 acking 7", req)
	}
	if !ack.Received.Equal(time.Unix(1, 5)) {
		t.Fatalf("received = %v, want %v", ack.Received, time.Unix(1, 5))
	}
}
