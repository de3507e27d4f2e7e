package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deliveryTracking/internal/config"
	"deliveryTracking/internal/db"
	grpcserver "deliveryTracking/internal/grpc"
	"deliveryTracking/internal/httpapi"
	"deliveryTracking/internal/ingest"
	"deliveryTracking/internal/metrics"
	"deliveryTracking/internal/notify"
	"deliveryTracking/internal/tracking"
	"deliveryTracking/repository"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	logger.Info("configuration loaded", "config", cfg.String())

	metrics.Register()

	d, err := db.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("open db", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Error("close db", "error", err)
		}
	}()

	deliveries := repository.NewDeliveryRepository(d)
	pings := repository.NewPingRepository(d)
	notifications := repository.NewNotificationRepository(d)
	settings := repository.NewSettingsRepository(d)
	feedback := repository.NewFeedbackRepository(d)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var queue notify.RetryQueue
	if cfg.Redis.URL != "" {
		rq, err := notify.NewRedisQueue(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() { _ = rq.Close() }()
		queue = rq
	} else {
		logger.Warn("REDIS_URL not set, using in-process retry queue")
		queue = notify.NewMemoryQueue()
	}

	dispatcher := notify.NewDispatcher(notifications, settings, notify.DefaultSenders(logger), queue, cfg.Notify, logger)
	dispatcher.StartRetryWorker(ctx, cfg.Notify.RetryPollInterval)

	tracker := tracking.NewTracker(deliveries, dispatcher, logger)
	ingestor := ingest.NewIngestor(pings, deliveries, tracker, cfg.Tracking.ProximityMeters, logger)
	ingest.StartRetentionSweeper(ctx, pings, cfg.Tracking.PingRetention, time.Hour, logger)

	grpcShutdown, err := grpcserver.StartGRPC(cfg)
	if err != nil {
		logger.Error("start grpc", "error", err)
		os.Exit(1)
	}
	logger.Info("grpc server listening", "address", cfg.GRPC.Address)

	handler := httpapi.NewHandler(tracker, ingestor, deliveries, pings, notifications, settings, feedback, cfg.Auth.JWTSecret, logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           httpapi.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", "address", cfg.HTTP.Address)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if err := grpcShutdown(shutdownCtx); err != nil {
		logger.Error("grpc shutdown", "error", err)
	}
	dispatcher.Flush()
	logger.Info("shutdown complete")
}
