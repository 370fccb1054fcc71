package session

// Mode is the simulated satellite's operating mode.
type Mode uint8

const (
	ModeNormal Mode = 0
	ModeSafe   Mode = 1
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "NORMAL"
	case ModeSafe:
		return "SAFE"
	default:
		return "UNKNOWN"
	}
}

// StateSimulator holds the device mode. Any uplinked command toggles it; the
// command bytes are never inspected.
//
// StateSimulator is not safe for concurrent use. A Session applies commands
// from its loop goroutine only.
type StateSimulator struct {
	mode Mode
}

// Apply toggles the mode and returns the new value.
func (s *StateSimulator) Apply([]byte) Mode {
	if s.mode == ModeNormal {
		s.mode = ModeSafe
	} else {
		s.mode = ModeNormal
	}
	return s.mode
}

func (s *StateSimulator) Mode() Mode { return s.mode }

// StateByteOffset returns where the mode byte lives in a payload of size n.
func StateByteOffset(n int) int { return n - 2 }
