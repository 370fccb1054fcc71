// Package session implements one fake satellite stream: periodic telemetry,
// command-driven mode toggling, an optional antenna event feed, optional
// ack-based flow control and a hard session lifetime.
//
// Each Session is an actor. A single loop goroutine owns the simulated state
// and the flow gate; timers and the inbound reader only post to it, and a
// writer goroutine drains its outbound frames into the stream. Every way a
// session can end funnels through Shutdown. Run stops all timers and returns
// as soon as the session is done, even while a Send is stuck on a slow peer,
// and the writer never starts a Send once the session is done.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	stellarstation "github.com/signalsfoundry/satstream-simulator/api/stellarstation/v1"
	"github.com/signalsfoundry/satstream-simulator/internal/logging"
	"github.com/signalsfoundry/satstream-simulator/internal/sched"
)

// Phase is a session's lifecycle position. The only transitions are
// AwaitingStart to Active, and either of those to Closed.
type Phase int32

const (
	PhaseAwaitingStart Phase = iota
	PhaseActive
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingStart:
		return "AWAITING_START"
	case PhaseActive:
		return "ACTIVE"
	case PhaseClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Config holds the resolved values a session reads.
type Config struct {
	PublishingInterval  time.Duration
	PayloadSize         int
	SessionTimeout      time.Duration
	EventInterval       time.Duration
	AcceptedSatelliteID string
	// EchoCommands sends every command payload back as a telemetry frame.
	EchoCommands bool
}

// Stream is the server side of an open satellite stream.
type Stream interface {
	Context() context.Context
	Send(*stellarstation.SatelliteStreamResponse) error
	Recv() (*stellarstation.SatelliteStreamRequest, error)
}

// Deps are collaborators that may be shared between sessions. Nil fields get
// production defaults.
type Deps struct {
	Scheduler sched.Scheduler
	Payload   PayloadSource
	Recorder  Recorder
	Logger    logging.Logger
}

type inbound struct {
	req *stellarstation.SatelliteStreamRequest
	err error
}

// Session is one open satellite stream.
type Session struct {
	cfg      Config
	stream   Stream
	sched    sched.Scheduler
	payload  PayloadSource
	rec      Recorder
	log      logging.Logger
	streamID string

	// Owned by the loop goroutine.
	satelliteID string
	requestID   string
	state       StateSimulator
	gate        *FlowGate
	timers      []sched.Timer

	inbound    chan inbound
	outbound   chan *stellarstation.SatelliteStreamResponse
	ticks      chan struct{}
	eventTicks chan struct{}

	// mu orders frame stamping against Shutdown.
	mu       sync.Mutex
	phase    Phase
	openedAt time.Time
	closedAt time.Time
	reason   Reason
	cause    error

	once sync.Once
	done chan struct{}
}

// New prepares a session on stream. Nothing runs until Run is called.
func New(stream Stream, cfg Config, deps Deps) *Session {
	s := &Session{
		cfg:        cfg,
		stream:     stream,
		sched:      deps.Scheduler,
		payload:    deps.Payload,
		rec:        deps.Recorder,
		log:        deps.Logger,
		streamID:   uuid.NewString(),
		gate:       NewFlowGate(false),
		inbound:    make(chan inbound),
		outbound:   make(chan *stellarstation.SatelliteStreamResponse),
		ticks:      make(chan struct{}, 1),
		eventTicks: make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	if s.sched == nil {
		s.sched = sched.Real()
	}
	if s.payload == nil {
		s.payload = RandomPayload{}
	}
	if s.rec == nil {
		s.rec = noopRecorder{}
	}
	if s.log == nil {
		s.log = logging.Noop()
	}
	return s
}

// StreamID is stamped on every response of this session.
func (s *Session) StreamID() string { return s.streamID }

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// ClosedAt returns when Shutdown first ran, or the zero time.
func (s *Session) ClosedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closedAt
}

// Done is closed once the session starts shutting down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Run drives the session until it ends. It returns nil when the peer closed
// its side cleanly, otherwise an error wrapping one of the package sentinels.
func (s *Session) Run() error {
	ctx := s.stream.Context()
	s.log = logging.LoggerFromContext(ctx, s.log).With(logging.String("stream_id", s.streamID))

	s.mu.Lock()
	s.openedAt = s.sched.Now()
	s.mu.Unlock()
	s.rec.SessionOpened()

	// Armed at open so a peer that never starts is still cut off.
	s.timers = append(s.timers, s.sched.AfterFunc(s.cfg.SessionTimeout, func() {
		s.Shutdown(ReasonTimeout, ErrSessionTimeout)
	}))

	go s.receive()
	go s.write(ctx)
	s.loop(ctx)

	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil

	s.mu.Lock()
	reason, cause, lifetime := s.reason, s.cause, s.closedAt.Sub(s.openedAt)
	s.mu.Unlock()

	s.rec.SessionClosed(reason, lifetime)
	trace.SpanFromContext(ctx).AddEvent("session.closed", trace.WithAttributes(
		attribute.String("reason", string(reason)),
	))
	fields := []logging.Field{logging.String("reason", string(reason)), logging.Duration("lifetime", lifetime)}
	if cause != nil {
		fields = append(fields, logging.Err(cause))
	}
	switch reason {
	case ReasonInternal:
		s.log.Error(ctx, "satellite stream failed", fields...)
	case ReasonInvalid:
		s.log.Info(ctx, "satellite stream rejected", fields...)
	default:
		s.log.Info(ctx, "satellite stream closed", fields...)
	}
	return cause
}

// Shutdown ends the session. Only the first call has any effect; it is safe
// to call from any goroutine.
func (s *Session) Shutdown(reason Reason, cause error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.phase = PhaseClosed
		s.closedAt = s.sched.Now()
		s.reason = reason
		s.cause = cause
		s.mu.Unlock()
		close(s.done)
	})
}

// receive forwards inbound requests to the loop. It returns after the first
// receive error or once the session is done; gRPC unblocks Recv when the
// handler returns.
func (s *Session) receive() {
	for {
		req, err := s.stream.Recv()
		select {
		case s.inbound <- inbound{req: req, err: err}:
		case <-s.done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *Session) loop(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			s.Shutdown(ReasonPeerClosed, fmt.Errorf("%w: %w", ErrPeerClosed, ctx.Err()))
			return
		case in := <-s.inbound:
			if in.err != nil {
				if errors.Is(in.err, io.EOF) {
					s.Shutdown(ReasonCompleted, nil)
				} else {
					s.Shutdown(ReasonPeerClosed, fmt.Errorf("%w: %w", ErrPeerClosed, in.err))
				}
				continue
			}
			s.handle(ctx, in.req)
		case <-s.ticks:
			s.publishTelemetry()
		case <-s.eventTicks:
			s.publishEvent()
		}
	}
}

func (s *Session) handle(ctx context.Context, req *stellarstation.SatelliteStreamRequest) {
	switch s.Phase() {
	case PhaseClosed:
		return
	case PhaseAwaitingStart:
		if !s.start(ctx, req) {
			return
		}
	default:
		// Later requests may omit the satellite id.
		if id := req.GetSatelliteID(); id != "" && id != s.satelliteID {
			s.Shutdown(ReasonInvalid, fmt.Errorf("%w: got %q, stream is for %q", ErrSatelliteMismatch, id, s.satelliteID))
			return
		}
	}

	if cmd := req.GetSendSatelliteCommandsRequest(); cmd != nil {
		s.applyCommands(ctx, cmd.GetCommand())
	}
	if ack := req.GetTelemetryReceivedAck(); ack != nil {
		s.ack(ctx, ack)
	}
}

// start validates the first request and activates the session.
func (s *Session) start(ctx context.Context, req *stellarstation.SatelliteStreamRequest) bool {
	id := req.GetSatelliteID()
	switch {
	case id == "":
		s.Shutdown(ReasonInvalid, ErrMissingSatelliteID)
		return false
	case id != s.cfg.AcceptedSatelliteID:
		s.Shutdown(ReasonInvalid, fmt.Errorf("%w: %q", ErrInvalidSatellite, id))
		return false
	}

	s.mu.Lock()
	if s.phase != PhaseAwaitingStart {
		s.mu.Unlock()
		return false
	}
	s.phase = PhaseActive
	s.mu.Unlock()

	s.satelliteID = id
	s.requestID = req.RequestID
	s.gate = NewFlowGate(req.EnableFlowControl)
	s.log = s.log.With(logging.String("satellite_id", id))

	if prev := req.GetStreamID(); prev != "" {
		s.log.Info(ctx, "resume requested, opening a new stream", logging.String("resume_stream_id", prev))
	}
	s.log.Info(ctx, "satellite stream active",
		logging.Bool("flow_control", req.EnableFlowControl),
		logging.Bool("events", req.EnableEvents),
		logging.Duration("interval", s.cfg.PublishingInterval),
		logging.Int("payload_size", s.cfg.PayloadSize),
	)
	trace.SpanFromContext(ctx).AddEvent("session.active", trace.WithAttributes(
		attribute.String("satellite_id", id),
		attribute.Bool("flow_control", req.EnableFlowControl),
		attribute.Bool("events", req.EnableEvents),
	))

	s.timers = append(s.timers, s.sched.Every(s.cfg.PublishingInterval, notify(s.ticks)))
	if req.EnableEvents {
		s.timers = append(s.timers, s.sched.Every(s.cfg.EventInterval, notify(s.eventTicks)))
	}

	// First frame goes out immediately, the rest on the interval.
	s.publishTelemetry()
	return true
}

// notify returns a timer callback that posts to c without blocking. A tick
// that finds c full is merged with the one already pending.
func notify(c chan struct{}) func() {
	return func() {
		select {
		case c <- struct{}{}:
		default:
		}
	}
}

func (s *Session) applyCommands(ctx context.Context, commands [][]byte) {
	for _, payload := range commands {
		mode := s.state.Apply(payload)
		s.rec.CommandApplied()
		s.log.Debug(ctx, "command applied", logging.Int("bytes", len(payload)), logging.String("mode", mode.String()))

		if !s.cfg.EchoCommands {
			continue
		}
		if !s.gate.Open() {
			s.rec.TelemetryCoalesced()
			s.log.Debug(ctx, "echo dropped while awaiting ack", logging.String("message_ack_id", s.gate.Outstanding()))
			continue
		}
		if !s.sendTelemetry(append([]byte(nil), payload...)) {
			return
		}
	}
}

func (s *Session) ack(ctx context.Context, ack *stellarstation.ReceiveTelemetryAck) {
	id := ack.GetMessageAckID()
	matched := s.gate.Ack(id)
	s.rec.AckReceived(matched)
	if !matched {
		s.log.Debug(ctx, "ignoring telemetry ack",
			logging.String("message_ack_id", id),
			logging.String("outstanding", s.gate.Outstanding()),
		)
	}
}

func (s *Session) publishTelemetry() {
	if !s.gate.Open() {
		s.rec.TelemetryCoalesced()
		return
	}
	data, err := NewTelemetryPayload(s.payload, s.cfg.PayloadSize, s.state.Mode())
	if err != nil {
		s.Shutdown(ReasonInternal, fmt.Errorf("%w: %w", ErrPayloadGeneration, err))
		return
	}
	s.sendTelemetry(data)
}

func (s *Session) sendTelemetry(data []byte) bool {
	first, ok := s.stamp()
	if !ok {
		return false
	}
	resp := &stellarstation.SatelliteStreamResponse{
		StreamID: s.streamID,
		ReceiveTelemetryResponse: &stellarstation.ReceiveTelemetryResponse{
			Telemetry:    newTelemetry(data, first),
			MessageAckID: s.gate.Issue(),
		},
	}
	return s.send(resp)
}

func (s *Session) publishEvent() {
	now, ok := s.stamp()
	if !ok {
		return
	}
	resp := &stellarstation.SatelliteStreamResponse{
		StreamID:    s.streamID,
		StreamEvent: EventSample(s.requestID, "plan-"+s.satelliteID, now),
	}
	s.send(resp)
}

// stamp returns the emission time for an outbound message, or false once the
// session has left the active phase.
func (s *Session) stamp() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseActive {
		return time.Time{}, false
	}
	return s.sched.Now(), true
}

// send hands resp to the writer. It returns false once the session is done.
func (s *Session) send(resp *stellarstation.SatelliteStreamResponse) bool {
	select {
	case s.outbound <- resp:
		return true
	case <-s.done:
		return false
	}
}

// write owns stream.Send. A Send that blocks on a slow peer only holds up
// this goroutine; it returns once the transport gives up on the stream.
func (s *Session) write(ctx context.Context) {
	for {
		var resp *stellarstation.SatelliteStreamResponse
		select {
		case <-s.done:
			return
		case resp = <-s.outbound:
		}
		select {
		case <-s.done:
			return
		default:
		}

		if tr := resp.GetReceiveTelemetryResponse(); tr != nil {
			s.rec.TelemetrySent(len(tr.GetTelemetry().GetData()))
		} else {
			s.rec.EventSent()
		}
		if err := s.stream.Send(resp); err != nil {
			if ctx.Err() != nil {
				s.Shutdown(ReasonPeerClosed, fmt.Errorf("%w: %w", ErrPeerClosed, err))
			} else {
				s.Shutdown(ReasonInternal, fmt.Errorf("%w: %w", ErrSend, err))
			}
			return
		}
	}
}
