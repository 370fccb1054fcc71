package session

import "time"

// Recorder receives session lifecycle and traffic notifications. All methods
// may be called concurrently from different sessions.
type Recorder interface {
	SessionOpened()
	SessionClosed(reason Reason, lifetime time.Duration)
	TelemetrySent(bytes int)
	TelemetryCoalesced()
	EventSent()
	CommandApplied()
	AckReceived(matched bool)
}

type noopRecorder struct{}

func (noopRecorder) SessionOpened()                      {}
func (noopRecorder) SessionClosed(Reason, time.Duration) {}
func (noopRecorder) TelemetrySent(int)                   {}
func (noopRecorder) TelemetryCoalesced()                 {}
func (noopRecorder) EventSent()                          {}
func (noopRecorder) CommandApplied()                     {}
func (noopRecorder) AckReceived(bool)                    {}
