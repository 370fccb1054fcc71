// Package fakeserver serves the StellarStation satellite API from simulated
// sessions. Each OpenSatelliteStream call runs one session.Session; the unary
// APIs answer from the configured TLE.
package fakeserver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"

	stellarstation "github.com/signalsfoundry/satstream-simulator/api/stellarstation/v1"
	"github.com/signalsfoundry/satstream-simulator/internal/config"
	"github.com/signalsfoundry/satstream-simulator/internal/logging"
	"github.com/signalsfoundry/satstream-simulator/internal/orbit"
	"github.com/signalsfoundry/satstream-simulator/internal/sched"
	"github.com/signalsfoundry/satstream-simulator/internal/session"
)

// Service implements stellarstation.StellarStationServiceServer.
type Service struct {
	stellarstation.UnimplementedStellarStationServiceServer

	sessionCfg session.Config
	deps       session.Deps
	predictor  *orbit.Predictor
	log        logging.Logger
	now        func() time.Time

	mu       sync.Mutex
	sessions map[*session.Session]struct{}
	stopping bool
}

// Option customises a Service.
type Option func(*Service)

// WithScheduler drives every session's timers from sch.
func WithScheduler(sch sched.Scheduler) Option {
	return func(s *Service) { s.deps.Scheduler = sch }
}

// WithPayloadSource replaces the random telemetry payload source.
func WithPayloadSource(src session.PayloadSource) Option {
	return func(s *Service) { s.deps.Payload = src }
}

// WithRecorder reports session activity to rec.
func WithRecorder(rec session.Recorder) Option {
	return func(s *Service) { s.deps.Recorder = rec }
}

// WithClock sets the reference time for pass searches.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService builds the service from a validated configuration.
func NewService(cfg config.Config, log logging.Logger, opts ...Option) (*Service, error) {
	if log == nil {
		log = logging.Noop()
	}
	o := cfg.Orbit
	predictor, err := orbit.NewPredictor(o.TLELine1, o.TLELine2, orbit.GroundStation{
		ID:           o.GroundStation.ID,
		LatitudeDeg:  o.GroundStation.Latitude,
		LongitudeDeg: o.GroundStation.Longitude,
		AltitudeKm:   o.GroundStation.AltitudeKm,
	}, orbit.Options{
		MinElevationDeg: o.MinElevationDegrees,
		Window:          o.SearchWindow,
		Step:            o.Step,
	})
	if err != nil {
		return nil, fmt.Errorf("orbit: %w", err)
	}

	s := &Service{
		sessionCfg: SessionConfig(cfg.FakeServer),
		predictor:  predictor,
		log:        log,
		now:        time.Now,
		sessions:   make(map[*session.Session]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.deps.Logger = log
	return s, nil
}

// SessionConfig resolves the fake server settings a session reads.
func SessionConfig(fs config.FakeServerConfig) session.Config {
	fs = fs.ApplyDefaults()
	return session.Config{
		PublishingInterval:  fs.TelemetryPublishingInterval,
		PayloadSize:         fs.TelemetryPayloadSize.Int(),
		SessionTimeout:      fs.SessionTimeout,
		EventInterval:       fs.EventInterval,
		AcceptedSatelliteID: fs.AcceptedSatelliteID,
		EchoCommands:        fs.EchoCommands,
	}
}

// OpenSatelliteStream runs one session for the lifetime of the stream.
func (s *Service) OpenSatelliteStream(stream grpc.BidiStreamingServer[stellarstation.SatelliteStreamRequest, stellarstation.SatelliteStreamResponse]) error {
	sess := session.New(stream, s.sessionCfg, s.deps)
	if !s.track(sess) {
		return ToStatusError(ErrStopping)
	}
	defer s.untrack(sess)
	return ToStatusError(sess.Run())
}

// GetTle returns the element set of the accepted satellite.
func (s *Service) GetTle(ctx context.Context, req *stellarstation.GetTleRequest) (*stellarstation.Tle, error) {
	if err := s.checkSatellite(req.SatelliteID); err != nil {
		return nil, ToStatusError(err)
	}
	line1, line2 := s.predictor.TLE()
	return &stellarstation.Tle{Line1: line1, Line2: line2}, nil
}

// ListUpcomingAvailablePasses predicts contact windows over the configured
// ground station, starting now.
func (s *Service) ListUpcomingAvailablePasses(ctx context.Context, req *stellarstation.ListUpcomingAvailablePassesRequest) (*stellarstation.ListUpcomingAvailablePassesResponse, error) {
	if err := s.checkSatellite(req.SatelliteID); err != nil {
		return nil, ToStatusError(err)
	}
	gs := s.predictor.GroundStation()
	passes := s.predictor.Passes(s.now())

	resp := &stellarstation.ListUpcomingAvailablePassesResponse{Pass: make([]*stellarstation.Pass, 0, len(passes))}
	for _, p := range passes {
		resp.Pass = append(resp.Pass, &stellarstation.Pass{
			ID:                     passID(req.SatelliteID, gs.ID, p.AOS),
			AOSTime:                p.AOS,
			LOSTime:                p.LOS,
			GroundStationID:        gs.ID,
			GroundStationLatitude:  gs.LatitudeDeg,
			GroundStationLongitude: gs.LongitudeDeg,
			MaxElevationDegrees:    p.MaxElevationDeg,
			MaxElevationTime:       p.MaxElevationTime,
		})
	}
	logging.LoggerFromContext(ctx, s.log).Debug(ctx, "listed passes",
		logging.String("satellite_id", req.SatelliteID),
		logging.Int("count", len(resp.Pass)),
	)
	return resp, nil
}

// Stop ends every open session with Unavailable and refuses new ones, so
// that a graceful server stop does not wait out session timeouts.
func (s *Service) Stop() {
	s.mu.Lock()
	s.stopping = true
	open := make([]*session.Session, 0, len(s.sessions))
	for sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	for _, sess := range open {
		sess.Shutdown(session.ReasonStopped, ErrStopping)
	}
}

// Ready reports whether new streams are accepted.
func (s *Service) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopping
}

// ActiveSessions reports how many streams are open.
func (s *Service) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Service) track(sess *session.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return false
	}
	s.sessions[sess] = struct{}{}
	return true
}

func (s *Service) untrack(sess *session.Session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}

func (s *Service) checkSatellite(id string) error {
	if id != s.sessionCfg.AcceptedSatelliteID {
		return fmt.Errorf("%w: satellite %q", ErrNotFound, id)
	}
	return nil
}

// passID is stable for a given satellite, station and AOS so repeated
// listings agree.
func passID(satelliteID, groundStationID string, aos time.Time) string {
	name := fmt.Sprintf("%s/%s/%d", satelliteID, groundStationID, aos.Unix())
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
