// Package client drives a satellite stream from the operator side. It sends
// the start request, acknowledges frames under flow control, optionally
// uplinks a command per frame and reconnects with exponential backoff.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	stellarstation "github.com/signalsfoundry/satstream-simulator/api/stellarstation/v1"
	"github.com/signalsfoundry/satstream-simulator/internal/config"
	"github.com/signalsfoundry/satstream-simulator/internal/logging"
	"github.com/signalsfoundry/satstream-simulator/internal/session"
)

const (
	// DefaultMaxElapsedTime bounds how long Run keeps reconnecting.
	DefaultMaxElapsedTime = 60 * time.Second

	// MaxRecvMsgSize admits the largest telemetry frame the server accepts
	// in its configuration, plus room for the response envelope.
	MaxRecvMsgSize = int(config.MaxTelemetryPayloadSize) + 64<<10
)

var errInterrupted = errors.New("stream interrupted")

// Frame is one telemetry response as seen by the client.
type Frame struct {
	StreamID  string
	AckID     string
	Data      []byte
	FirstByte time.Time
	LastByte  time.Time
}

// Mode decodes the simulated satellite state carried in the frame.
func (f Frame) Mode() (session.Mode, bool) {
	return StateOf(f.Data)
}

// StateOf reads the state byte of a telemetry payload. It reports false for
// payloads too short to carry one.
func StateOf(data []byte) (session.Mode, bool) {
	if len(data) < 2 {
		return 0, false
	}
	return session.Mode(data[session.StateByteOffset(len(data))]), true
}

// Options configure a stream client.
type Options struct {
	SatelliteID       string
	EnableFlowControl bool
	EnableEvents      bool

	// Command, when set, is uplinked after every telemetry frame.
	Command []byte

	// Reconnect reopens the stream after retryable failures.
	Reconnect      bool
	MaxElapsedTime time.Duration

	OnTelemetry func(Frame)
	OnEvent     func(*stellarstation.StreamEvent)

	Logger logging.Logger
}

// Client runs satellite streams over one connection.
type Client struct {
	api  stellarstation.StellarStationServiceClient
	opts Options
	log  logging.Logger

	mu       sync.Mutex
	streamID string
	frames   int
}

// New returns a client using conn, which must be dialled with
// stellarstation.DialCodecOption.
func New(conn grpc.ClientConnInterface, opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = logging.Noop()
	}
	if opts.MaxElapsedTime <= 0 {
		opts.MaxElapsedTime = DefaultMaxElapsedTime
	}
	return &Client{
		api:  stellarstation.NewStellarStationServiceClient(conn),
		opts: opts,
		log:  log.With(logging.String("satellite_id", opts.SatelliteID)),
	}
}

// Dial opens a plaintext connection to addr. perRPC, if non-nil, attaches
// credentials to every call.
func Dial(addr string, perRPC credentials.PerRPCCredentials) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, DialOptions(perRPC)...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}

// DialOptions are the options Dial uses, for callers that bring their own
// transport.
func DialOptions(perRPC credentials.PerRPCCredentials) []grpc.DialOption {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(MaxRecvMsgSize)),
		stellarstation.DialCodecOption(),
	}
	if perRPC != nil {
		opts = append(opts, grpc.WithPerRPCCredentials(perRPC))
	}
	return opts
}

// StreamID is the id of the most recent stream, sent back on reconnect.
func (c *Client) StreamID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamID
}

// Frames counts telemetry frames received across all streams.
func (c *Client) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// Run streams until the server ends the stream cleanly, ctx is cancelled or
// a non-retryable status arrives. With Reconnect set, other failures reopen
// the stream with exponential backoff.
func (c *Client) Run(ctx context.Context) error {
	if !c.opts.Reconnect {
		return c.runOnce(ctx)
	}
	for {
		err := c.retry(ctx)
		if !errors.Is(err, errInterrupted) {
			return err
		}
		c.log.Info(ctx, "satellite stream interrupted, reopening", logging.Err(err))
	}
}

// retry reopens the stream until it ends for good or fails after delivering
// telemetry, which restarts the backoff schedule.
func (c *Client) retry(ctx context.Context) error {
	before := c.Frames()
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := c.runOnce(ctx)
		switch {
		case err == nil:
			return struct{}{}, nil
		case ctx.Err() != nil:
			return struct{}{}, backoff.Permanent(ctx.Err())
		case !Retryable(err):
			return struct{}{}, backoff.Permanent(err)
		case c.Frames() > before:
			return struct{}{}, backoff.Permanent(fmt.Errorf("%w: %w", errInterrupted, err))
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(c.opts.MaxElapsedTime),
		backoff.WithNotify(func(err error, d time.Duration) {
			c.log.Warn(ctx, "satellite stream failed, reconnecting",
				logging.Err(err),
				logging.Duration("retry_in", d),
			)
		}),
	)
	return err
}

// Retryable reports whether a stream failure is worth reopening for.
// Session timeouts, rejected requests and missing credentials are final.
func Retryable(err error) bool {
	switch status.Code(err) {
	case codes.Canceled, codes.InvalidArgument, codes.Unauthenticated, codes.NotFound, codes.PermissionDenied:
		return false
	}
	return !errors.Is(err, context.Canceled)
}

func (c *Client) runOnce(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := c.api.OpenSatelliteStream(ctx)
	if err != nil {
		return err
	}
	start := &stellarstation.SatelliteStreamRequest{
		SatelliteID:       c.opts.SatelliteID,
		StreamID:          c.StreamID(),
		EnableFlowControl: c.opts.EnableFlowControl,
		EnableEvents:      c.opts.EnableEvents,
	}
	if err := stream.Send(start); err != nil {
		return finalStatus(stream, err)
	}
	c.log.Debug(ctx, "satellite stream opened", logging.String("resume_stream_id", start.StreamID))

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		c.noteStream(resp.GetStreamID(), resp.GetReceiveTelemetryResponse() != nil)

		if tel := resp.GetReceiveTelemetryResponse(); tel != nil {
			if err := c.onTelemetry(ctx, stream, resp.GetStreamID(), tel); err != nil {
				return finalStatus(stream, err)
			}
			continue
		}
		if ev := resp.GetStreamEvent(); ev != nil && c.opts.OnEvent != nil {
			c.opts.OnEvent(ev)
		}
	}
}

func (c *Client) onTelemetry(ctx context.Context, stream grpc.BidiStreamingClient[stellarstation.SatelliteStreamRequest, stellarstation.SatelliteStreamResponse], streamID string, tel *stellarstation.ReceiveTelemetryResponse) error {
	t := tel.GetTelemetry()
	frame := Frame{
		StreamID: streamID,
		AckID:    tel.GetMessageAckID(),
		Data:     t.GetData(),
	}
	if t != nil {
		frame.FirstByte, frame.LastByte = t.TimeFirstByteReceived, t.TimeLastByteReceived
	}
	if c.opts.OnTelemetry != nil {
		c.opts.OnTelemetry(frame)
	}

	if c.opts.EnableFlowControl && frame.AckID != "" {
		err := stream.Send(&stellarstation.SatelliteStreamRequest{
			SatelliteID: c.opts.SatelliteID,
			TelemetryReceivedAck: &stellarstation.ReceiveTelemetryAck{
				MessageAckID: frame.AckID,
				Received:     time.Now(),
			},
		})
		if err != nil {
			return err
		}
	}
	if c.opts.Command != nil {
		err := stream.Send(&stellarstation.SatelliteStreamRequest{
			SatelliteID:                  c.opts.SatelliteID,
			SendSatelliteCommandsRequest: &stellarstation.SendSatelliteCommandsRequest{Command: [][]byte{c.opts.Command}},
		})
		if err != nil {
			return err
		}
		c.log.Debug(ctx, "uplinked command", logging.Int("bytes", len(c.opts.Command)))
	}
	return nil
}

func (c *Client) noteStream(id string, telemetry bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id != "" {
		c.streamID = id
	}
	if telemetry {
		c.frames++
	}
}

// finalStatus replaces the io.EOF a client Send reports on an aborted stream
// with the status the server ended it with.
func finalStatus(stream grpc.BidiStreamingClient[stellarstation.SatelliteStreamRequest, stellarstation.SatelliteStreamResponse], sendErr error) error {
	if !errors.Is(sendErr, io.EOF) {
		return sendErr
	}
	for {
		if _, err := stream.Recv(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
