package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	stellarstation "github.com/signalsfoundry/satstream-simulator/api/stellarstation/v1"
	"github.com/signalsfoundry/satstream-simulator/internal/client"
	"github.com/signalsfoundry/satstream-simulator/internal/config"
	"github.com/signalsfoundry/satstream-simulator/internal/logging"
)

func TestFakeServerStartupSmoke(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcLis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	adminLis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	cfg := config.Default()
	cfg.FakeServer.TelemetryPublishingInterval = 20 * time.Millisecond
	cfg.FakeServer.TelemetryPayloadSize = 128

	runCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	errCh := make(chan error, 1)
	go func() {
		errCh <- run(runCtx, cfg, logging.New(logging.Config{Level: "warn"}), grpcLis, adminLis, prometheus.NewRegistry())
	}()

	conn, err := client.Dial(grpcLis.Addr().String(), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	api := stellarstation.NewStellarStationServiceClient(conn)

	if _, err := api.GetTle(ctx, &stellarstation.GetTleRequest{SatelliteID: "5"}); err != nil {
		t.Fatalf("GetTle: %v", err)
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", adminLis.Addr()))
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/healthz status = %d, want 200", resp.StatusCode)
	}

	stream, err := api.OpenSatelliteStream(ctx)
	if err != nil {
		t.Fatalf("OpenSatelliteStream: %v", err)
	}
	if err := stream.Send(&stellarstation.SatelliteStreamRequest{SatelliteID: "5"}); err != nil {
		t.Fatalf("send start: %v", err)
	}
	first, err := stream.Recv()
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if n := len(first.GetReceiveTelemetryResponse().GetTelemetry().GetData()); n != 128 {
		t.Fatalf("frame size = %d, want 128", n)
	}

	stopServer()
	for {
		if _, err = stream.Recv(); err != nil {
			break
		}
	}
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("open stream ended with %v, want Unavailable", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(8 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
}
