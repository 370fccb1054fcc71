// Package config loads the fake server configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults mirror the behaviour of the hosted fake endpoint: 1 MiB of
// telemetry every second, streams cancelled after five minutes.
const (
	DefaultGRPCAddr                    = ":8081"
	DefaultAdminAddr                   = ":9090"
	DefaultTelemetryPublishingInterval = time.Second
	DefaultTelemetryPayloadSize        = ByteSize(1 << 20)
	// MaxTelemetryPayloadSize keeps one frame within what the stream
	// client is willing to receive.
	MaxTelemetryPayloadSize            = ByteSize(16 << 20)
	DefaultSessionTimeout              = 5 * time.Minute
	DefaultEventInterval               = time.Second
	DefaultAcceptedSatelliteID         = "5"
	DefaultIssuer                      = "fakeclient@example.com"
	DefaultMinElevationDegrees         = 10.0
	DefaultSearchWindow                = 24 * time.Hour
	DefaultSearchStep                  = 20 * time.Second

	// ISS elements; any valid TLE works for pass prediction.
	DefaultTLELine1 = "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
	DefaultTLELine2 = "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"
)

// Config is the full server configuration.
type Config struct {
	GRPCAddr   string           `yaml:"grpc_addr"`
	AdminAddr  string           `yaml:"admin_addr"`
	FakeServer FakeServerConfig `yaml:"fake_server"`
	Auth       AuthConfig       `yaml:"auth"`
	Orbit      OrbitConfig      `yaml:"orbit"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

// FakeServerConfig holds the values consumed by satellite stream sessions.
type FakeServerConfig struct {
	// Telemetry is published on every expiry of this duration.
	TelemetryPublishingInterval time.Duration `yaml:"telemetry_publishing_interval"`
	// Size of each telemetry payload; must leave room for the state byte.
	TelemetryPayloadSize ByteSize `yaml:"telemetry_payload_size"`
	// Time after which the server cancels the stream.
	SessionTimeout      time.Duration `yaml:"session_timeout"`
	EventInterval       time.Duration `yaml:"event_interval"`
	AcceptedSatelliteID string        `yaml:"accepted_satellite_id"`
	EchoCommands        bool          `yaml:"echo_commands"`
}

type AuthConfig struct {
	Enabled       bool   `yaml:"enabled"`
	PublicKeyFile string `yaml:"public_key_file"`
	Issuer        string `yaml:"issuer"`
}

type GroundStation struct {
	ID         string  `yaml:"id"`
	Latitude   float64 `yaml:"latitude"`
	Longitude  float64 `yaml:"longitude"`
	AltitudeKm float64 `yaml:"altitude_km"`
}

type OrbitConfig struct {
	TLELine1            string        `yaml:"tle_line_1"`
	TLELine2            string        `yaml:"tle_line_2"`
	GroundStation       GroundStation `yaml:"ground_station"`
	MinElevationDegrees float64       `yaml:"min_elevation_degrees"`
	SearchWindow        time.Duration `yaml:"search_window"`
	Step                time.Duration `yaml:"step"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Load reads path (if non-empty), applies SATSIM_* environment overrides and
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.GRPCAddr == "" {
		c.GRPCAddr = DefaultGRPCAddr
	}
	if c.AdminAddr == "" {
		c.AdminAddr = DefaultAdminAddr
	}
	c.FakeServer = c.FakeServer.ApplyDefaults()

	if c.Auth.Issuer == "" {
		c.Auth.Issuer = DefaultIssuer
	}

	o := &c.Orbit
	if o.TLELine1 == "" && o.TLELine2 == "" {
		o.TLELine1, o.TLELine2 = DefaultTLELine1, DefaultTLELine2
	}
	if o.GroundStation.ID == "" {
		// Tokyo, where the original fake ground station lived.
		o.GroundStation = GroundStation{ID: "1", Latitude: 35.6762, Longitude: 139.6503, AltitudeKm: 0.04}
	}
	if o.MinElevationDegrees == 0 {
		o.MinElevationDegrees = DefaultMinElevationDegrees
	}
	if o.SearchWindow == 0 {
		o.SearchWindow = DefaultSearchWindow
	}
	if o.Step == 0 {
		o.Step = DefaultSearchStep
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "satstream-fakeserver"
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = "stdout"
	}
	if c.Tracing.SampleRatio == 0 {
		c.Tracing.SampleRatio = 1.0
	}
}

// ApplyDefaults returns a copy with zero or negative durations and sizes
// replaced by defaults. Explicit values are preserved.
func (c FakeServerConfig) ApplyDefaults() FakeServerConfig {
	if c.TelemetryPublishingInterval <= 0 {
		c.TelemetryPublishingInterval = DefaultTelemetryPublishingInterval
	}
	if c.TelemetryPayloadSize == 0 {
		c.TelemetryPayloadSize = DefaultTelemetryPayloadSize
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = DefaultSessionTimeout
	}
	if c.EventInterval <= 0 {
		c.EventInterval = DefaultEventInterval
	}
	if c.AcceptedSatelliteID == "" {
		c.AcceptedSatelliteID = DefaultAcceptedSatelliteID
	}
	return c
}

// Validate reports configuration errors that defaults cannot repair.
func (c *Config) Validate() error {
	var errs []error
	fs := c.FakeServer
	switch {
	case fs.TelemetryPayloadSize < 2:
		errs = append(errs, fmt.Errorf("fake_server.telemetry_payload_size must be at least 2 bytes, got %d", fs.TelemetryPayloadSize))
	case fs.TelemetryPayloadSize > MaxTelemetryPayloadSize:
		errs = append(errs, fmt.Errorf("fake_server.telemetry_payload_size must be at most %d bytes, got %d", MaxTelemetryPayloadSize, fs.TelemetryPayloadSize))
	}
	if fs.TelemetryPublishingInterval <= 0 {
		errs = append(errs, errors.New("fake_server.telemetry_publishing_interval must be positive"))
	}
	if fs.SessionTimeout <= 0 {
		errs = append(errs, errors.New("fake_server.session_timeout must be positive"))
	}
	if fs.EventInterval <= 0 {
		errs = append(errs, errors.New("fake_server.event_interval must be positive"))
	}
	if strings.TrimSpace(fs.AcceptedSatelliteID) == "" {
		errs = append(errs, errors.New("fake_server.accepted_satellite_id is required"))
	}
	if c.Auth.Enabled && c.Auth.PublicKeyFile == "" {
		errs = append(errs, errors.New("auth.public_key_file is required when auth is enabled"))
	}
	if (c.Orbit.TLELine1 == "") != (c.Orbit.TLELine2 == "") {
		errs = append(errs, errors.New("orbit.tle_line_1 and orbit.tle_line_2 must be set together"))
	}
	if c.Orbit.Step <= 0 || c.Orbit.SearchWindow < c.Orbit.Step {
		errs = append(errs, errors.New("orbit.step must be positive and no longer than orbit.search_window"))
	}
	if r := c.Tracing.SampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio must be within [0,1], got %v", r))
	}
	return errors.Join(errs...)
}

type lookupFunc func(string) (string, bool)

// applyEnv overrides file values with SATSIM_* variables.
func (c *Config) applyEnv(lookup lookupFunc) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("SATSIM_GRPC_ADDR", &c.GRPCAddr)
	str("SATSIM_ADMIN_ADDR", &c.AdminAddr)
	dur("SATSIM_TELEMETRY_PUBLISHING_INTERVAL", &c.FakeServer.TelemetryPublishingInterval)
	if v, ok := lookup("SATSIM_TELEMETRY_PAYLOAD_SIZE"); ok && v != "" {
		size, err := ParseByteSize(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SATSIM_TELEMETRY_PAYLOAD_SIZE: %w", err))
		} else {
			c.FakeServer.TelemetryPayloadSize = size
		}
	}
	dur("SATSIM_SESSION_TIMEOUT", &c.FakeServer.SessionTimeout)
	dur("SATSIM_EVENT_INTERVAL", &c.FakeServer.EventInterval)
	str("SATSIM_ACCEPTED_SATELLITE_ID", &c.FakeServer.AcceptedSatelliteID)
	boolean("SATSIM_ECHO_COMMANDS", &c.FakeServer.EchoCommands)
	boolean("SATSIM_AUTH_ENABLED", &c.Auth.Enabled)
	str("SATSIM_AUTH_PUBLIC_KEY_FILE", &c.Auth.PublicKeyFile)
	str("SATSIM_AUTH_ISSUER", &c.Auth.Issuer)
	boolean("SATSIM_TRACING_ENABLED", &c.Tracing.Enabled)
	str("SATSIM_TRACING_EXPORTER", &c.Tracing.Exporter)
	str("SATSIM_TRACING_SERVICE_NAME", &c.Tracing.ServiceName)
	str("SATSIM_OTLP_ENDPOINT", &c.Tracing.Endpoint)
	if v, ok := lookup("SATSIM_TRACING_SAMPLE_RATIO"); ok && v != "" {
		ratio, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("SATSIM_TRACING_SAMPLE_RATIO: %w", err))
		} else {
			c.Tracing.SampleRatio = ratio
		}
	}

	return errors.Join(errs...)
}
