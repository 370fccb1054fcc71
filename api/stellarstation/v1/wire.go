package stellarstation

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Message is implemented by every type on the wire.
type Message interface {
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}

// ---- encoding helpers ----

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendTimestamp(b []byte, num protowire.Number, t time.Time) ([]byte, error) {
	if t.IsZero() {
		return b, nil
	}
	raw, err := proto.Marshal(timestamppb.New(t))
	if err != nil {
		return nil, fmt.Errorf("marshal timestamp field %d: %w", num, err)
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, raw), nil
}

// appendMessage writes a nested message. A nil sub-message is omitted.
func appendMessage(b []byte, num protowire.Number, m interface{ appendTo([]byte) ([]byte, error) }) ([]byte, error) {
	sub, err := m.appendTo(nil)
	if err != nil {
		return nil, err
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, sub), nil
}

// ---- decoding helpers ----

// fieldFunc consumes the value of one field and reports how many bytes it
// used. Returning handled=false skips the field as unknown.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (n int, handled bool, err error)

func decodeFields(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		used, handled, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if !handled {
			used = protowire.ConsumeFieldValue(num, typ, b)
		}
		if used < 0 {
			return protowire.ParseError(used)
		}
		b = b[used:]
	}
	return nil
}

func consumeString(typ protowire.Type, b []byte, dst *string) (int, bool) {
	if typ != protowire.BytesType {
		return 0, false
	}
	v, n := protowire.ConsumeString(b)
	if n >= 0 {
		*dst = v
	}
	return n, true
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, bool) {
	if typ != protowire.BytesType {
		return nil, 0, false
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, n, true
	}
	// The transport may reuse its receive buffer.
	out := make([]byte, len(v))
	copy(out, v)
	return out, n, true
}

func consumeBool(typ protowire.Type, b []byte, dst *bool) (int, bool) {
	if typ != protowire.VarintType {
		return 0, false
	}
	v, n := protowire.ConsumeVarint(b)
	if n >= 0 {
		*dst = protowire.DecodeBool(v)
	}
	return n, true
}

func consumeDouble(typ protowire.Type, b []byte, dst *float64) (int, bool) {
	if typ != protowire.Fixed64Type {
		return 0, false
	}
	v, n := protowire.ConsumeFixed64(b)
	if n >= 0 {
		*dst = math.Float64frombits(v)
	}
	return n, true
}

func consumeTimestamp(typ protowire.Type, b []byte, dst *time.Time) (int, bool, error) {
	if typ != protowire.BytesType {
		return 0, false, nil
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n, true, nil
	}
	var ts timestamppb.Timestamp
	if err := proto.Unmarshal(v, &ts); err != nil {
		return 0, true, fmt.Errorf("unmarshal timestamp: %w", err)
	}
	if err := ts.CheckValid(); err != nil {
		return 0, true, err
	}
	*dst = ts.AsTime()
	return n, true, nil
}

// consumeMessage decodes a nested message into m.
func consumeMessage(typ protowire.Type, b []byte, m Message) (int, bool, error) {
	if typ != protowire.BytesType {
		return 0, false, nil
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n, true, nil
	}
	if err := m.Unmarshal(v); err != nil {
		return 0, true, err
	}
	return n, true, nil
}

// ---- SatelliteStreamRequest ----

func (r *SatelliteStreamRequest) Marshal() ([]byte, error) { return r.appendTo(nil) }

func (r *SatelliteStreamRequest) appendTo(b []byte) ([]byte, error) {
	var err error
	b = appendString(b, 1, r.SatelliteID)
	b = appendString(b, 2, r.StreamID)
	b = appendBool(b, 3, r.EnableFlowControl)
	b = appendBool(b, 4, r.EnableEvents)
	switch {
	case r.SendSatelliteCommandsRequest != nil && r.TelemetryReceivedAck != nil:
		return nil, fmt.Errorf("satellite stream request: commands and ack are mutually exclusive")
	case r.SendSatelliteCommandsRequest != nil:
		if b, err = appendMessage(b, 5, r.SendSatelliteCommandsRequest); err != nil {
			return nil, err
		}
	case r.TelemetryReceivedAck != nil:
		if b, err = appendMessage(b, 6, r.TelemetryReceivedAck); err != nil {
			return nil, err
		}
	}
	b = appendString(b, 7, r.RequestID)
	return b, nil
}

func (r *SatelliteStreamRequest) Unmarshal(b []byte) error {
	*r = SatelliteStreamRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		switch num {
		case 1:
			n, ok := consumeString(typ, b, &r.SatelliteID)
			return n, ok, nil
		case 2:
			n, ok := consumeString(typ, b, &r.StreamID)
			return n, ok, nil
		case 3:
			n, ok := consumeBool(typ, b, &r.EnableFlowControl)
			return n, ok, nil
		case 4:
			n, ok := consumeBool(typ, b, &r.EnableEvents)
			return n, ok, nil
		case 5:
			cmd := &SendSatelliteCommandsRequest{}
			n, ok, err := consumeMessage(typ, b, cmd)
			if ok && err == nil {
				r.SendSatelliteCommandsRequest, r.TelemetryReceivedAck = cmd, nil
			}
			return n, ok, err
		case 6:
			ack := &ReceiveTelemetryAck{}
			n, ok, err := consumeMessage(typ, b, ack)
			if ok && err == nil {
				r.SendSatelliteCommandsRequest, r.TelemetryReceivedAck = nil, ack
			}
			return n, ok, err
		case 7:
			n, ok := consumeString(typ, b, &r.RequestID)
			return n, ok, nil
		}
		return 0, false, nil
	})
}

// ---- SendSatelliteCommandsRequest ----

func (r *SendSatelliteCommandsRequest) Marshal() ([]byte, error) { return r.appendTo(nil) }

func (r *SendSatelliteCommandsRequest) appendTo(b []byte) ([]byte, error) {
	for _, cmd := range r.Command {
		// Repeated bytes keep empty elements.
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, cmd)
	}
	b = appendString(b, 2, r.ChannelSetID)
	return b, nil
}

func (r *SendSatelliteCommandsRequest) Unmarshal(b []byte) error {
	*r = SendSatelliteCommandsRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		switch num {
		case 1:
			v, n, ok := consumeBytes(typ, b)
			if ok && n >= 0 {
				r.Command = append(r.Command, v)
			}
			return n, ok, nil
		case 2:
			n, ok := consumeString(typ, b, &r.ChannelSetID)
			return n, ok, nil
		}
		return 0, false, nil
	})
}

// ---- ReceiveTelemetryAck ----

func (a *ReceiveTelemetryAck) Marshal() ([]byte, error) { return a.appendTo(nil) }

func (a *ReceiveTelemetryAck) appendTo(b []byte) ([]byte, error) {
	b = appendString(b, 1, a.MessageAckID)
	return appendTimestamp(b, 2, a.Received)
}

func (a *ReceiveTelemetryAck) Unmarshal(b []byte) error {
	*a = ReceiveTelemetryAck{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		switch num {
		case 1:
			n, ok := consumeString(typ, b, &a.MessageAckID)
			return n, ok, nil
		case 2:
			return consumeTimestamp(typ, b, &a.Received)
		}
		return 0, false, nil
	})
}

// ---- SatelliteStreamResponse ----

func (r *SatelliteStreamResponse) Marshal() ([]byte, error) { return r.appendTo(nil) }

func (r *SatelliteStreamResponse) appendTo(b []byte) ([]byte, error) {
	var err error
	b = appendString(b, 1, r.StreamID)
	switch {
	case r.ReceiveTelemetryResponse != nil && r.StreamEvent != nil:
		return nil, fmt.Errorf("satellite stream response: telemetry and event are mutually exclusive")
	case r.ReceiveTelemetryResponse != nil:
		if b, err = appendMessage(b, 2, r.ReceiveTelemetryResponse); err != nil {
			return nil, err
		}
	case r.StreamEvent != nil:
		if b, err = appendMessage(b, 3, r.StreamEvent); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (r *SatelliteStreamResponse) Unmarshal(b []byte) error {
	*r = SatelliteStreamResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		switch num {
		case 1:
			n, ok := consumeString(typ, b, &r.StreamID)
			return n, ok, nil
		case 2:
			tlm := &ReceiveTelemetryResponse{}
			n, ok, err := consumeMessage(typ, b, tlm)
			if ok && err == nil {
				r.ReceiveTelemetryResponse, r.StreamEvent = tlm, nil
			}
			return n, ok, err
		case 3:
			ev := &StreamEvent{}
			n, ok, err := consumeMessage(typ, b, ev)
			if ok && err == nil {
				r.ReceiveTelemetryResponse, r.StreamEvent = nil, ev
			}
			return n, ok, err
		}
		return 0, false, nil
	})
}

// ---- ReceiveTelemetryResponse ----

func (r *ReceiveTelemetryResponse) Marshal() ([]byte, error) { return r.appendTo(nil) }

func (r *ReceiveTelemetryResponse) appendTo(b []byte) ([]byte, error) {
	var err error
	if r.Telemetry != nil {
		if b, err = appendMessage(b, 1, r.Telemetry); err != nil {
			return nil, err
		}
	}
	b = appendString(b, 2, r.MessageAckID)
	return b, nil
}

func (r *ReceiveTelemetryResponse) Unmarshal(b []byte) error {
	*r = ReceiveTelemetryResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		switch num {
		case 1:
			tlm := &Telemetry{}
			n, ok, err := consumeMessage(typ, b, tlm)
			if ok && err == nil {
				r.Telemetry = tlm
			}
			return n, ok, err
		case 2:
			n, ok := consumeString(typ, b, &r.MessageAckID)
			return n, ok, nil
		}
		return 0, false, nil
	})
}

// ---- Telemetry ----

func (t *Telemetry) Marshal() ([]byte, error) { return t.appendTo(nil) }

func (t *Telemetry) appendTo(b []byte) ([]byte, error) {
	var err error
	b = appendBytes(b, 1, t.Data)
	if b, err = appendTimestamp(b, 2, t.TimeFirstByteReceived); err != nil {
		return nil, err
	}
	return appendTimestamp(b, 3, t.TimeLastByteReceived)
}

func (t *Telemetry) Unmarshal(b []byte) error {
	*t = Telemetry{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		switch num {
		case 1:
			v, n, ok := consumeBytes(typ, b)
			if ok && n >= 0 {
				t.Data = v
			}
			return n, ok, nil
		case 2:
			return consumeTimestamp(typ, b, &t.TimeFirstByteReceived)
		case 3:
			return consumeTimestamp(typ, b, &t.TimeLastByteReceived)
		}
		return 0, false, nil
	})
}

// ---- StreamEvent and its children ----

func (e *StreamEvent) Marshal() ([]byte, error) { return e.appendTo(nil) }

func (e *StreamEvent) appendTo(b []byte) ([]byte, error) {
	var err error
	b = appendString(b, 1, e.RequestID)
	if e.PlanMonitoringEvent != nil {
		if b, err = appendMessage(b, 2, e.PlanMonitoringEvent); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (e *StreamEvent) Unmarshal(b []byte) error {
	*e = StreamEvent{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		switch num {
		case 1:
			n, ok := consumeString(typ, b, &e.RequestID)
			return n, ok, nil
		case 2:
			pm := &PlanMonitoringEvent{}
			n, ok, err := consumeMessage(typ, b, pm)
			if ok && err == nil {
				e.PlanMonitoringEvent = pm
			}
			return n, ok, err
		}
		return 0, false, nil
	})
}

func (e *PlanMonitoringEvent) Marshal() ([]byte, error) { return e.appendTo(nil) }

func (e *PlanMonitoringEvent) appendTo(b []byte) ([]byte, error) {
	var err error
	b = appendString(b, 1, e.PlanID)
	if e.GroundStationState != nil {
		if b, err = appendMessage(b, 2, e.GroundStationState); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (e *PlanMonitoringEvent) Unmarshal(b []byte) error {
	*e = PlanMonitoringEvent{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		switch num {
		case 1:
			n, ok := consumeString(typ, b, &e.PlanID)
			return n, ok, nil
		case 2:
			gs := &GroundStationState{}
			n, ok, err := consumeMessage(typ, b, gs)
			if ok && err == nil {
				e.GroundStationState = gs
			}
			return n, ok, err
		}
		return 0, false, nil
	})
}

func (s *GroundStationState) Marshal() ([]byte, error) { return s.appendTo(nil) }

func (s *GroundStationState) appendTo(b []byte) ([]byte, error) {
	b, err := appendTimestamp(b, 1, s.Time)
	if err != nil {
		return nil, err
	}
	if s.Antenna != nil {
		if b, err = appendMessage(b, 2, s.Antenna); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (s *GroundStationState) Unmarshal(b []byte) error {
	*s = GroundStationState{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		switch num {
		case 1:
			return consumeTimestamp(typ, b, &s.Time)
		case 2:
			ant := &AntennaState{}
			n, ok, err := consumeMessage(typ, b, ant)
			if ok && err == nil {
				s.Antenna = ant
			}
			return n, ok, err
		}
		return 0, false, nil
	})
}

func (s *AntennaState) Marshal() ([]byte, error) { return s.appendTo(nil) }

func (s *AntennaState) appendTo(b []byte) ([]byte, error) {
	var err error
	if s.Azimuth != nil {
		if b, err = appendMessage(b, 1, s.Azimuth); err != nil {
			return nil, err
		}
	}
	if s.Elevation != nil {
		if b, err = appendMessage(b, 2, s.Elevation); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (s *AntennaState) Unmarshal(b []byte) error {
	*s = AntennaState{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		switch num {
		case 1, 2:
			reading := &AngleReading{}
			n, ok, err := consumeMessage(typ, b, reading)
			if ok && err == nil {
				if num == 1 {
					s.Azimuth = reading
				} else {
					s.Elevation = reading
				}
			}
			return n, ok, err
		}
		return 0, false, nil
	})
}

func (a *AngleReading) Marshal() ([]byte, error) { return a.appendTo(nil) }

func (a *AngleReading) appendTo(b []byte) ([]byte, error) {
	b = appendDouble(b, 1, a.Command)
	b = appendDouble(b, 2, a.Measured)
	return b, nil
}

func (a *AngleReading) Unmarshal(b []byte) error {
	*a = AngleReading{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		switch num {
		case 1:
			n, ok := consumeDouble(typ, b, &a.Command)
			return n, ok, nil
		case 2:
			n, ok := consumeDouble(typ, b, &a.Measured)
			return n, ok, nil
		}
		return 0, false, nil
	})
}

// ---- unary request/response messages ----

func (r *GetTleRequest) Marshal() ([]byte, error) { return appendString(nil, 1, r.SatelliteID), nil }

func (r *GetTleRequest) Unmarshal(b []byte) error {
	*r = GetTleRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		if num == 1 {
			n, ok := consumeString(typ, b, &r.SatelliteID)
			return n, ok, nil
		}
		return 0, false, nil
	})
}

func (t *Tle) Marshal() ([]byte, error) {
	b := appendString(nil, 1, t.Line1)
	return appendString(b, 2, t.Line2), nil
}

func (t *Tle) Unmarshal(b []byte) error {
	*t = Tle{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		switch num {
		case 1:
			n, ok := consumeString(typ, b, &t.Line1)
			return n, ok, nil
		case 2:
			n, ok := consumeString(typ, b, &t.Line2)
			return n, ok, nil
		}
		return 0, false, nil
	})
}

func (r *ListUpcomingAvailablePassesRequest) Marshal() ([]byte, error) {
	return appendString(nil, 1, r.SatelliteID), nil
}

func (r *ListUpcomingAvailablePassesRequest) Unmarshal(b []byte) error {
	*r = ListUpcomingAvailablePassesRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		if num == 1 {
			n, ok := consumeString(typ, b, &r.SatelliteID)
			return n, ok, nil
		}
		return 0, false, nil
	})
}

func (r *ListUpcomingAvailablePassesResponse) Marshal() ([]byte, error) {
	var (
		b   []byte
		err error
	)
	for _, p := range r.Pass {
		if p == nil {
			continue
		}
		if b, err = appendMessage(b, 1, p); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (r *ListUpcomingAvailablePassesResponse) Unmarshal(b []byte) error {
	*r = ListUpcomingAvailablePassesResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		if num == 1 {
			p := &Pass{}
			n, ok, err := consumeMessage(typ, b, p)
			if ok && err == nil && n >= 0 {
				r.Pass = append(r.Pass, p)
			}
			return n, ok, err
		}
		return 0, false, nil
	})
}

func (p *Pass) Marshal() ([]byte, error) { return p.appendTo(nil) }

func (p *Pass) appendTo(b []byte) ([]byte, error) {
	var err error
	b = appendString(b, 1, p.ID)
	if b, err = appendTimestamp(b, 2, p.AOSTime); err != nil {
		return nil, err
	}
	if b, err = appendTimestamp(b, 3, p.LOSTime); err != nil {
		return nil, err
	}
	b = appendString(b, 4, p.GroundStationID)
	b = appendDouble(b, 5, p.GroundStationLatitude)
	b = appendDouble(b, 6, p.GroundStationLongitude)
	b = appendDouble(b, 7, p.MaxElevationDegrees)
	return appendTimestamp(b, 8, p.MaxElevationTime)
}

func (p *Pass) Unmarshal(b []byte) error {
	*p = Pass{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		switch num {
		case 1:
			n, ok := consumeString(typ, b, &p.ID)
			return n, ok, nil
		case 2:
			return consumeTimestamp(typ, b, &p.AOSTime)
		case 3:
			return consumeTimestamp(typ, b, &p.LOSTime)
		case 4:
			n, ok := consumeString(typ, b, &p.GroundStationID)
			return n, ok, nil
		case 5:
			n, ok := consumeDouble(typ, b, &p.GroundStationLatitude)
			return n, ok, nil
		case 6:
			n, ok := consumeDouble(typ, b, &p.GroundStationLongitude)
			return n, ok, nil
		case 7:
			n, ok := consumeDouble(typ, b, &p.MaxElevationDegrees)
			return n, ok, nil
		case 8:
			return consumeTimestamp(typ, b, &p.MaxElevationTime)
		}
		return 0, false, nil
	})
}
