// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	http_api "exectrack/internal/api/http"
	"exectrack/internal/api/rpc"
	"exectrack/internal/config"
	"exectrack/internal/domain"
	"exectrack/internal/logging"
	"exectrack/internal/scheduler"
	"exectrack/internal/tracing"
	"exectrack/internal/usecase"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("exectrack server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(os.Stdout, logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	slog.SetDefault(logger)

	tracerShutdown, err := tracing.InitTracer("exectrack-server", version, os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		if err := tracerShutdown(context.Background()); err != nil {
			logger.Warn("failed to shutdown tracer", "error", err)
		}
	}()

	logger.Info("starting exectrack server", "node_id", cfg.NodeID, "backend", cfg.Backend, "execution_store", cfg.ExecutionStore)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := buildStores(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	executions := usecase.NewExecutionService(st.executions, st.testCases, st.sessions, st.locker, cfg.LockTimeout, logger)
	catalog := usecase.NewCatalogService(st.testCases, st.sessions, st.reports, logger)
	reports := usecase.NewReportService(executions, st.sessions, st.reports, logger)

	var tasks []domain.ScheduledTask
	if cfg.Reports.Enabled {
		tasks = append(tasks, domain.ScheduledTask{
			Name: "session-reports",
			Spec: cfg.Reports.Schedule,
			Run: func(ctx context.Context) error {
				_, err := reports.GenerateReports(ctx)
				return err
			},
		})
	}
	schedular := usecase.NewSchedularService(st.leader, scheduler.NewCronScheduler(logger), tasks, cfg.NodeID, logger)

	httpServer := &http.Server{
		Addr: cfg.HTTP.ListenAddr,
		Handler: http_api.NewRouter(
			http_api.NewExecutionHandler(executions, logger),
			http_api.NewCatalogHandler(catalog, logger),
		),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	rpc.RegisterTrackerServer(grpcServer, rpc.NewServer(executions, catalog, logger))
	lis, err := net.Listen("tcp", cfg.GRPC.ListenAddr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting HTTP API server", "addr", cfg.HTTP.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("starting gRPC server", "addr", cfg.GRPC.ListenAddr)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		if len(tasks) == 0 {
			return nil
		}
		if err := schedular.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		grpcServer.GracefulStop()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("exectrack server shut down")
	return nil
}
