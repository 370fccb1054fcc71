package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/satstream-simulator/internal/session"
)

// SessionCollector bundles Prometheus metrics for the satellite stream
// service. It implements session.Recorder and provides gRPC interceptors and
// a /metrics handler.
type SessionCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	SessionsActive           prometheus.Gauge
	Sessions                 *prometheus.CounterVec
	SessionDuration          prometheus.Histogram
	TelemetryFrames          prometheus.Counter
	TelemetryBytes           prometheus.Counter
	TelemetryFramesCoalesced prometheus.Counter
	Events                   prometheus.Counter
	Commands                 prometheus.Counter
	Acks                     *prometheus.CounterVec
}

var _ session.Recorder = (*SessionCollector)(nil)

// NewSessionCollector registers metrics against reg, defaulting to the
// global Prometheus registry when nil. Registering twice on the same
// registry reuses the existing collectors.
func NewSessionCollector(reg prometheus.Registerer) (*SessionCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	c := &SessionCollector{gatherer: gatherer}

	var err error
	if c.RPCRequests, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "satsim_rpc_requests_total",
		Help: "Total number of handled RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "satsim_rpc_requests_total"); err != nil {
		return nil, err
	}
	if c.RPCDurations, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "satsim_rpc_duration_seconds",
		Help:    "RPC latency in seconds. Streams are measured open to close.",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 60, 300, 600},
	}, []string{"service", "method"}), "satsim_rpc_duration_seconds"); err != nil {
		return nil, err
	}
	if c.SessionsActive, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "satsim_sessions_active",
		Help: "Satellite streams currently open.",
	}), "satsim_sessions_active"); err != nil {
		return nil, err
	}
	if c.Sessions, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "satsim_sessions_total",
		Help: "Satellite streams closed, labeled by outcome.",
	}, []string{"outcome"}), "satsim_sessions_total"); err != nil {
		return nil, err
	}
	if c.SessionDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "satsim_session_duration_seconds",
		Help:    "Lifetime of satellite streams in seconds.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}), "satsim_session_duration_seconds"); err != nil {
		return nil, err
	}
	counters := []struct {
		dst  *prometheus.Counter
		name string
		help string
	}{
		{&c.TelemetryFrames, "satsim_telemetry_frames_total", "Telemetry frames sent."},
		{&c.TelemetryBytes, "satsim_telemetry_bytes_total", "Telemetry payload bytes sent."},
		{&c.TelemetryFramesCoalesced, "satsim_telemetry_frames_coalesced_total", "Telemetry frames skipped while awaiting an ack."},
		{&c.Events, "satsim_events_total", "Stream events sent."},
		{&c.Commands, "satsim_commands_total", "Satellite commands applied."},
	}
	for _, spec := range counters {
		counter, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name: spec.name,
			Help: spec.help,
		}), spec.name)
		if err != nil {
			return nil, err
		}
		*spec.dst = counter
	}
	if c.Acks, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "satsim_acks_total",
		Help: "Telemetry acks received, labeled matched or ignored.",
	}, []string{"result"}), "satsim_acks_total"); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *SessionCollector) SessionOpened() {
	if c == nil {
		return
	}
	c.SessionsActive.Inc()
}

func (c *SessionCollector) SessionClosed(reason session.Reason, lifetime time.Duration) {
	if c == nil {
		return
	}
	c.SessionsActive.Dec()
	c.Sessions.WithLabelValues(string(reason)).Inc()
	c.SessionDuration.Observe(lifetime.Seconds())
}

func (c *SessionCollector) TelemetrySent(bytes int) {
	if c == nil {
		return
	}
	c.TelemetryFrames.Inc()
	c.TelemetryBytes.Add(float64(bytes))
}

func (c *SessionCollector) TelemetryCoalesced() {
	if c == nil {
		return
	}
	c.TelemetryFramesCoalesced.Inc()
}

func (c *SessionCollector) EventSent() {
	if c == nil {
		return
	}
	c.Events.Inc()
}

func (c *SessionCollector) CommandApplied() {
	if c == nil {
		return
	}
	c.Commands.Inc()
}

func (c *SessionCollector) AckReceived(matched bool) {
	if c == nil {
		return
	}
	result := "ignored"
	if matched {
		result = "matched"
	}
	c.Acks.WithLabelValues(result).Inc()
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *SessionCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		c.observe(fullMethod, err, start)
		return resp, err
	}
}

// StreamServerInterceptor records one request per stream, labeled with the
// status the stream ended with.
func (c *SessionCollector) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		c.observe(fullMethod, err, start)
		return err
	}
}

func (c *SessionCollector) observe(fullMethod string, err error, start time.Time) {
	if c == nil {
		return
	}
	service, method := SplitMethod(fullMethod)
	c.RPCRequests.WithLabelValues(service, method, status.Code(err).String()).Inc()
	c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SessionCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return c, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	return register(reg, vec, name)
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	return register(reg, vec, name)
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	return register(reg, gauge, name)
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	return register(reg, hist, name)
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	return register(reg, counter, name)
}
