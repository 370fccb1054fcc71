package session

import "strconv"

// FlowGate tracks the single unacknowledged telemetry frame allowed while
// flow control is enabled. A disabled gate is always open and issues no ids.
type FlowGate struct {
	enabled     bool
	next        uint64
	outstanding string
}

func NewFlowGate(enabled bool) *FlowGate {
	return &FlowGate{enabled: enabled}
}

func (g *FlowGate) Enabled() bool { return g.enabled }

// Open reports whether a frame may be sent now.
func (g *FlowGate) Open() bool {
	return !g.enabled || g.outstanding == ""
}

// Issue closes the gate and returns the ack id to attach to the frame being
// sent. It returns "" when flow control is disabled.
func (g *FlowGate) Issue() string {
	if !g.enabled {
		return ""
	}
	g.next++
	g.outstanding = strconv.FormatUint(g.next, 10)
	return g.outstanding
}

// Ack reopens the gate if id matches the outstanding frame. Late, duplicate
// or unknown ids return false and leave the gate as it was.
func (g *FlowGate) Ack(id string) bool {
	if !g.enabled || g.outstanding == "" || id != g.outstanding {
		return false
	}
	g.outstanding = ""
	return true
}

// Outstanding returns the id awaiting acknowledgment, if any.
func (g *FlowGate) Outstanding() string { return g.outstanding }
