// Package server provides the service lifecycle runner: signal handling,
// config loading, observability init, health checks, and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/aelexs/directchat/internal/config"
	"github.com/aelexs/directchat/internal/domain"
	"github.com/aelexs/directchat/internal/observability"
)

// Params configures a service's lifecycle runner.
type Params struct {
	// Name identifies the service in logs, traces and health responses.
	Name string

	// PortFromConfig extracts the HTTP port for this service from config.
	PortFromConfig func(cfg *config.Config) int

	// GRPCPortFromConfig extracts the gRPC port. Nil disables the gRPC server.
	GRPCPortFromConfig func(cfg *config.Config) int

	// Setup wires the service into the router and gRPC server. The returned
	// cleanup runs after both servers stopped accepting work. Nil serves
	// health checks only.
	Setup func(ctx context.Context, deps SetupDeps) (cleanup func(context.Context) error, err error)
}

// SetupDeps is what Setup receives from the runner.
type SetupDeps struct {
	Config     *config.Config
	Logger     *slog.Logger
	Router     chi.Router
	GRPCServer *grpc.Server
}

// Listeners optionally injects pre-bound listeners, which enables port-0
// testing. Nil fields are bound from config.
type Listeners struct {
	HTTP net.Listener
	GRPC net.Listener
}

// Run executes the full service lifecycle and blocks until ctx is cancelled
// or SIGTERM/SIGINT arrives.
func Run(ctx context.Context, p Params, lns Listeners) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(observability.LogConfig{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: p.Name,
		Environment: cfg.Environment,
	})

	// --- Startup order: telemetry -> service wiring -> servers ---

	telemetry, err := observability.InitTelemetry(ctx, observability.TelemetryConfig{
		ServiceName:    p.Name,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTEL.Endpoint,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}

	var shuttingDown atomic.Bool

	router := chi.NewRouter()
	router.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if shuttingDown.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"shutting_down","service":%q}`, p.Name)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","service":%q}`, p.Name)
	})

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	cleanup := func(context.Context) error { return nil }
	if p.Setup != nil {
		c, err := p.Setup(ctx, SetupDeps{
			Config:     cfg,
			Logger:     logger,
			Router:     router,
			GRPCServer: grpcServer,
		})
		if err != nil {
			_ = telemetry.Shutdown(context.Background())
			return fmt.Errorf("setup %s: %w", p.Name, err)
		}
		if c != nil {
			cleanup = c
		}
	}

	httpLn := lns.HTTP
	if httpLn == nil {
		httpLn, err = (&net.ListenConfig{}).Listen(ctx, "tcp", fmt.Sprintf(":%d", p.PortFromConfig(cfg)))
		if err != nil {
			abort(logger, cleanup, telemetry)
			return fmt.Errorf("listen http: %w", err)
		}
	}

	grpcLn := lns.GRPC
	if grpcLn == nil && p.GRPCPortFromConfig != nil {
		grpcLn, err = (&net.ListenConfig{}).Listen(ctx, "tcp", fmt.Sprintf(":%d", p.GRPCPortFromConfig(cfg)))
		if err != nil {
			_ = httpLn.Close()
			abort(logger, cleanup, telemetry)
			return fmt.Errorf("listen grpc: %w", err)
		}
	}

	// WriteTimeout stays zero: hijacked socket sessions manage their own
	// deadlines.
	httpServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting HTTP server",
			slog.String("addr", httpLn.Addr().String()),
			slog.String("environment", cfg.Environment),
		)
		if serveErr := httpServer.Serve(httpLn); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return serveErr
		}
		return nil
	})

	if grpcLn != nil {
		g.Go(func() error {
			logger.Info("starting gRPC server", slog.String("addr", grpcLn.Addr().String()))
			healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
			if serveErr := grpcServer.Serve(grpcLn); serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
				return serveErr
			}
			return nil
		})
	}

	// Shutdown is the reverse of startup: servers -> service resources -> telemetry.
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("received shutdown signal, starting graceful shutdown")

		shuttingDown.Store(true)
		healthServer.Shutdown()

		// Let load balancers observe the failing health checks.
		time.Sleep(domain.ShutdownDrainDelay)

		httpCtx, httpCancel := context.WithTimeout(context.Background(), domain.ShutdownHTTPTimeout)
		defer httpCancel()
		if shutdownErr := httpServer.Shutdown(httpCtx); shutdownErr != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", shutdownErr.Error()))
		}
		if grpcLn != nil {
			stopGRPC(httpCtx, grpcServer)
		}

		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), domain.GracefulShutdownTimeout)
		defer cleanupCancel()
		if cleanupErr := cleanup(cleanupCtx); cleanupErr != nil {
			logger.Error("service cleanup error", slog.String("error", cleanupErr.Error()))
		}

		otelCtx, otelCancel := context.WithTimeout(context.Background(), domain.ShutdownOTELTimeout)
		defer otelCancel()
		if shutdownErr := telemetry.Shutdown(otelCtx); shutdownErr != nil {
			logger.Error("failed to shutdown telemetry", slog.String("error", shutdownErr.Error()))
		}

		logger.Info("shutdown complete")
		return nil
	})

	return g.Wait()
}

// abort releases what Setup and telemetry acquired when startup fails
// before the servers run.
func abort(logger *slog.Logger, cleanup func(context.Context) error, telemetry *observability.Telemetry) {
	ctx, cancel := context.WithTimeout(context.Background(), domain.ShutdownOTELTimeout)
	defer cancel()
	if err := cleanup(ctx); err != nil {
		logger.Warn("service cleanup after failed startup", slog.String("error", err.Error()))
	}
	if err := telemetry.Shutdown(ctx); err != nil {
		logger.Warn("telemetry shutdown after failed startup", slog.String("error", err.Error()))
	}
}

// stopGRPC drains in-flight RPCs, forcing a stop once ctx expires.
func stopGRPC(ctx context.Context, s *grpc.Server) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.Stop()
		<-done
	}
}
