package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/labreport/internal/async"
	"github.com/joseph-ayodele/labreport/internal/bootstrap"
	"github.com/joseph-ayodele/labreport/internal/common"
	"github.com/joseph-ayodele/labreport/internal/export"
	repo "github.com/joseph-ayodele/labreport/internal/repository"
	svc "github.com/joseph-ayodele/labreport/internal/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := common.LoadConfig()
	if err != nil {
		bootstrap.NewLogger(os.Stderr, "info", true).Error("failed to load config", "error", err)
		return 2
	}
	logger := bootstrap.NewLogger(os.Stdout, cfg.LogLevel, true)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := svc.ConnectDB(ctx, cfg.Store, logger)
	if err != nil {
		return 1
	}
	defer store.Close()

	if err := svc.PingDB(ctx, store, logger, 5*time.Second); err != nil {
		return 1
	}

	creds := common.ResolveCredentials(cfg, logger)
	if !creds.CanExtract() {
		logger.Warn("no OCR credentials configured; requests must supply their own")
	}

	history := repo.NewHistoryRepository(store, logger)
	processor := bootstrap.NewProcessor(cfg, history, logger)

	queue := async.NewProcessorQueue(processor, logger,
		async.WithWorkers(cfg.Pipeline.Workers),
		async.WithQueueSize(cfg.Pipeline.QueueSize),
		async.WithProcessTimeout(cfg.Pipeline.RunTimeout),
	)
	exporter := export.NewService(history, nil, logger)
	reports := svc.NewReportService(queue, history, exporter, creds, logger, svc.WithImageRoot(cfg.Server.ImageRoot))

	// gRPC server
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		return 1
	}
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(svc.UnaryRequestLogger(logger)))
	svc.RegisterReportServiceServer(grpcServer, svc.NewGRPCServer(reports, logger))

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(svc.ReportServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	// HTTP server
	httpServer := &http.Server{
		Addr: cfg.Server.HTTPAddr,
		Handler: svc.NewHTTPHandler(reports, svc.HTTPConfig{
			CORSOrigins: cfg.Server.CORSOrigins,
			UploadDir:   cfg.Server.UploadDir,
			Health:      svc.HealthFromStore(store, logger),
		}, logger),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("labreportd listening", "grpc_addr", cfg.Server.GRPCAddr, "http_addr", cfg.Server.HTTPAddr, "image_root", cfg.Server.ImageRoot)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
			stop()
		}
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP serve error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown error", "error", err)
	}
	queue.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
	logger.Info("stopped")
	return 0
}
