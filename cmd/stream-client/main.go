package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc/credentials"

	stellarstation "github.com/signalsfoundry/satstream-simulator/api/stellarstation/v1"
	"github.com/signalsfoundry/satstream-simulator/internal/auth"
	"github.com/signalsfoundry/satstream-simulator/internal/client"
	"github.com/signalsfoundry/satstream-simulator/internal/config"
	"github.com/signalsfoundry/satstream-simulator/internal/logging"
)

func main() {
	addr := flag.String("addr", "localhost"+config.DefaultGRPCAddr, "Fake server gRPC address")
	satelliteID := flag.String("satellite-id", config.DefaultAcceptedSatelliteID, "Satellite to stream from")
	flowControl := flag.Bool("flow-control", false, "Enable flow control and ack every frame")
	events := flag.Bool("events", false, "Request antenna stream events")
	command := flag.String("command", "", "Hex payload uplinked after every telemetry frame")
	reconnect := flag.Bool("reconnect", true, "Reopen the stream after retryable failures")
	keyFile := flag.String("private-key", "", "PEM private key used to sign bearer tokens")
	issuer := flag.String("issuer", config.DefaultIssuer, "Token issuer")
	listPasses := flag.Bool("list-passes", false, "Print upcoming passes and exit")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cmd []byte
	if *command != "" {
		var err error
		if cmd, err = hex.DecodeString(*command); err != nil {
			log.Error(ctx, "invalid command payload", logging.Err(err))
			os.Exit(2)
		}
	}

	var perRPC credentials.PerRPCCredentials
	if *keyFile != "" {
		signer, err := auth.LoadSigner(*keyFile, *issuer)
		if err != nil {
			log.Error(ctx, "failed to load signing key", logging.Err(err))
			os.Exit(1)
		}
		perRPC = signer
	}

	conn, err := client.Dial(*addr, perRPC)
	if err != nil {
		log.Error(ctx, "failed to dial", logging.Err(err))
		os.Exit(1)
	}
	defer conn.Close()

	if *listPasses {
		if err := printPasses(ctx, stellarstation.NewStellarStationServiceClient(conn), *satelliteID, log); err != nil {
			log.Error(ctx, "listing passes failed", logging.Err(err))
			os.Exit(1)
		}
		return
	}

	c := client.New(conn, client.Options{
		SatelliteID:       *satelliteID,
		EnableFlowControl: *flowControl,
		EnableEvents:      *events,
		Command:           cmd,
		Reconnect:         *reconnect,
		Logger:            log,
		OnTelemetry: func(f client.Frame) {
			mode, _ := f.Mode()
			log.Info(ctx, "telemetry",
				logging.String("stream_id", f.StreamID),
				logging.Int("bytes", len(f.Data)),
				logging.String("state", mode.String()),
				logging.String("ack_id", f.AckID),
				logging.Duration("transmission", f.LastByte.Sub(f.FirstByte)),
			)
		},
		OnEvent: func(ev *stellarstation.StreamEvent) {
			antenna := ev.GetPlanMonitoringEvent().GetGroundStationState().GetAntenna()
			log.Info(ctx, "antenna",
				logging.Any("azimuth_measured", antenna.GetAzimuth().GetMeasured()),
				logging.Any("elevation_measured", antenna.GetElevation().GetMeasured()),
			)
		},
	})

	started := time.Now()
	err = c.Run(ctx)
	log.Info(ctx, "stream finished",
		logging.Int("frames", c.Frames()),
		logging.Duration("elapsed", time.Since(started)),
		logging.Err(err),
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		os.Exit(1)
	}
}

func printPasses(ctx context.Context, api stellarstation.StellarStationServiceClient, satelliteID string, log logging.Logger) error {
	resp, err := api.ListUpcomingAvailablePasses(ctx, &stellarstation.ListUpcomingAvailablePassesRequest{SatelliteID: satelliteID})
	if err != nil {
		return err
	}
	for _, p := range resp.Pass {
		log.Info(ctx, "pass",
			logging.String("id", p.ID),
			logging.String("aos", p.AOSTime.Format(time.RFC3339)),
			logging.String("los", p.LOSTime.Format(time.RFC3339)),
			logging.Any("max_elevation", p.MaxElevationDegrees),
		)
	}
	return nil
}
