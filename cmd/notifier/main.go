package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"travel/internal/app"
	"travel/internal/config"
	"travel/internal/logging"
	"travel/internal/metrics"
	"travel/internal/notification"
	internalRedis "travel/internal/redis"
)

func main() {
	cfg, err := config.LoadNotifier()
	if err != nil {
		logger := logging.New(config.LogConfig{}, "travel-notifier")
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := logging.New(cfg.Log, "travel-notifier")
	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	redisClient, err := app.NewRedisClient(connectCtx, cfg.Redis, nil)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()

	worker := notification.NewWorker(
		notification.WorkerConfig{
			URL:         cfg.AMQP.URL,
			Exchange:    cfg.AMQP.Exchange,
			Queue:       cfg.AMQP.Queue,
			DLX:         cfg.AMQP.DLX,
			DLQ:         cfg.AMQP.DLQ,
			Prefetch:    cfg.AMQP.Prefetch,
			MaxAttempts: cfg.AMQP.MaxAttempts,
			Workers:     cfg.AMQP.Workers,
		},
		notification.NewSMTPMailer(cfg.Mail),
		internalRedis.NewNotificationStore(redisClient),
		logger,
	)
	if err := worker.Connect(); err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to rabbitmq")
	}
	defer worker.Close()

	metricsServer := &http.Server{Addr: cfg.Metrics.Addr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	logger.Info().Str("queue", cfg.AMQP.Queue).Msg("notification worker started")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker stopped")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)

	logger.Info().Msg("notification worker exited")
}
