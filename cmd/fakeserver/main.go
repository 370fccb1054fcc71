package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/satstream-simulator/internal/auth"
	"github.com/signalsfoundry/satstream-simulator/internal/config"
	"github.com/signalsfoundry/satstream-simulator/internal/fakeserver"
	"github.com/signalsfoundry/satstream-simulator/internal/logging"
	"github.com/signalsfoundry/satstream-simulator/internal/observability"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (optional)")
	grpcAddr := flag.String("grpc-addr", "", "Override the gRPC listen address")
	adminAddr := flag.String("admin-addr", "", "Override the admin HTTP listen address (/metrics, /healthz, /readyz)")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error(ctx, "failed to load config", logging.String("path", *configPath), logging.Err(err))
		os.Exit(1)
	}
	if *grpcAddr != "" {
		cfg.GRPCAddr = *grpcAddr
	}
	if *adminAddr != "" {
		cfg.AdminAddr = *adminAddr
	}

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.GRPCAddr), logging.Err(err))
		os.Exit(1)
	}
	var adminLis net.Listener
	if cfg.AdminAddr != "" {
		if adminLis, err = net.Listen("tcp", cfg.AdminAddr); err != nil {
			log.Error(ctx, "failed to listen for admin HTTP", logging.String("addr", cfg.AdminAddr), logging.Err(err))
			os.Exit(1)
		}
	}

	if err := run(ctx, cfg, log, grpcLis, adminLis, prometheus.DefaultRegisterer); err != nil {
		log.Error(ctx, "fake server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves until ctx is cancelled, then stops open sessions and drains both
// servers. adminLis may be nil.
func run(ctx context.Context, cfg *config.Config, log logging.Logger, grpcLis, adminLis net.Listener, reg prometheus.Registerer) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewSessionCollector(reg)
	if err != nil {
		return err
	}

	var verifier *auth.Verifier
	if cfg.Auth.Enabled {
		if verifier, err = auth.LoadVerifier(cfg.Auth.PublicKeyFile, cfg.Auth.Issuer, log); err != nil {
			return err
		}
		log.Info(ctx, "bearer token authentication enabled", logging.String("issuer", cfg.Auth.Issuer))
	}

	svc, err := fakeserver.NewService(*cfg, log, fakeserver.WithRecorder(collector))
	if err != nil {
		return err
	}
	server := fakeserver.NewGRPCServer(svc, fakeserver.ServerOptions{
		Logger:    log,
		Collector: collector,
		Verifier:  verifier,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(ctx, "starting fake StellarStation gRPC server",
			logging.String("addr", grpcLis.Addr().String()),
			logging.String("satellite_id", cfg.FakeServer.AcceptedSatelliteID),
			logging.Duration("publishing_interval", cfg.FakeServer.TelemetryPublishingInterval),
			logging.Int64("payload_size", int64(cfg.FakeServer.TelemetryPayloadSize)),
			logging.Duration("session_timeout", cfg.FakeServer.SessionTimeout),
		)
		if err := server.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})

	var adminSrv *http.Server
	if adminLis != nil {
		adminSrv = &http.Server{
			Handler:           fakeserver.NewAdminRouter(svc, collector),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			log.Info(ctx, "serving admin endpoints", logging.String("addr", adminLis.Addr().String()))
			if err := adminSrv.Serve(adminLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info(ctx, "shutting down fake server", logging.Int("open_sessions", svc.ActiveSessions()))

		svc.Stop()
		stopped := make(chan struct{})
		go func() {
			server.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(shutdownTimeout):
			log.Warn(ctx, "graceful stop timed out, forcing")
			server.Stop()
		}

		if adminSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = adminSrv.Shutdown(shutdownCtx)
		}
		return nil
	})

	return g.Wait()
}
