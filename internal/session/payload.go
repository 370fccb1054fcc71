package session

import (
	"crypto/rand"
	"fmt"
	"time"

	stellarstation "github.com/signalsfoundry/satstream-simulator/api/stellarstation/v1"
)

// TransmissionWindow is the nominal time between the first and last byte of
// a frame.
const TransmissionWindow = time.Second

// PayloadSource fills telemetry payloads. Implementations must be safe for
// concurrent use; one source is shared by every session.
type PayloadSource interface {
	Fill(p []byte) error
}

// RandomPayload draws payload bytes from crypto/rand.
type RandomPayload struct{}

func (RandomPayload) Fill(p []byte) error {
	_, err := rand.Read(p)
	return err
}

// NewTelemetryPayload returns size random bytes with mode written at the
// state byte offset.
func NewTelemetryPayload(src PayloadSource, size int, mode Mode) ([]byte, error) {
	if size < 2 {
		return nil, fmt.Errorf("payload size %d leaves no room for the state byte", size)
	}
	data := make([]byte, size)
	if err := src.Fill(data); err != nil {
		return nil, err
	}
	data[StateByteOffset(size)] = byte(mode)
	return data, nil
}

func newTelemetry(data []byte, first time.Time) *stellarstation.Telemetry {
	return &stellarstation.Telemetry{
		Data:                  data,
		TimeFirstByteReceived: first,
		TimeLastByteReceived:  first.Add(TransmissionWindow),
	}
}
