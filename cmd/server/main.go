package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"travel/internal/app"
	"travel/internal/config"
	"travel/internal/gateway"
	"travel/internal/handler"
	"travel/internal/logging"
	"travel/internal/metrics"
	"travel/internal/middleware"
	"travel/internal/notification"
	internalRedis "travel/internal/redis"
	"travel/internal/repository/postgres"
	"travel/internal/service"
)

func main() {
	// Load configuration. Missing required settings stop startup.
	cfg, err := config.Load()
	if err != nil {
		logger := logging.New(config.LogConfig{}, "travel-api")
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := logging.New(cfg.Log, "travel-api")
	metrics.Register()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	nrApp := app.NewNewRelic(cfg.NewRelic, logger)

	// Initialize database with New Relic instrumentation.
	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	logger.Info().Msg("connected to PostgreSQL")

	// Initialize Redis with New Relic instrumentation.
	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	logger.Info().Msg("connected to Redis")

	publisher, err := notification.NewPublisher(notification.PublisherConfig{
		URL:            cfg.AMQP.URL,
		Exchange:       cfg.AMQP.Exchange,
		DialTimeout:    cfg.AMQP.DialTimeout,
		PublishTimeout: cfg.AMQP.PublishTimeout,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to rabbitmq")
	}
	defer publisher.Close()
	logger.Info().Str("exchange", cfg.AMQP.Exchange).Msg("connected to RabbitMQ")

	// Wire dependencies.
	server := wireServer(db, redisClient, publisher, nrApp, cfg, logger)

	// Start server in goroutine.
	go func() {
		logger.Info().Str("port", cfg.Server.Port).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	logger.Info().Msg("server exited")
}

// wireServer wires all dependencies and returns the HTTP server.
func wireServer(
	db *sql.DB,
	redisClient *redis.Client,
	dispatcher notification.Dispatcher,
	nrApp *newrelic.Application,
	cfg *config.Config,
	logger zerolog.Logger,
) *http.Server {
	// Initialize Redis stores.
	lockStore := internalRedis.NewLockStore(redisClient)
	cacheStore := internalRedis.NewCacheStore(redisClient)

	// Initialize repositories.
	userRepo := postgres.NewUserRepository(db)
	listingRepo := postgres.NewListingRepository(db)
	bookingRepo := postgres.NewBookingRepository(db)
	paymentRepo := postgres.NewPaymentRepository(db)
	txManager := postgres.NewTxManager(db)

	// Payment gateway.
	gatewayCfg := gateway.Config{
		BaseURL:   cfg.Gateway.BaseURL,
		SecretKey: cfg.Gateway.SecretKey,
		Timeout:   cfg.Gateway.Timeout,
	}
	if nrApp != nil {
		gatewayCfg.Transport = newrelic.NewRoundTripper(nil)
	}
	chapa := gateway.NewClient(gatewayCfg)

	// Initialize services.
	bookingService := service.NewBookingService(bookingRepo, listingRepo, userRepo, txManager, dispatcher, logger)
	paymentService := service.NewPaymentService(
		bookingRepo, paymentRepo, listingRepo, userRepo, txManager,
		chapa, dispatcher, lockStore, cacheStore,
		service.PaymentConfig{
			Currency:    cfg.Gateway.Currency,
			CallbackURL: cfg.Gateway.CallbackURL,
			ReturnURL:   cfg.Gateway.ReturnURL,
		},
		logger,
	)

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		BookingHandler: handler.NewBookingHandler(bookingService),
		PaymentHandler: handler.NewPaymentHandler(paymentService),
		RedisClient:    redisClient,
		NewRelicApp:    nrApp,
		Logger:         logger,
		JWTSecret:      cfg.Auth.Secret,
		VerifyLimiter:  middleware.NewRateLimiter(cfg.RateLimit.Limit, cfg.RateLimit.Burst, cfg.RateLimit.Idle),
	})

	// Create HTTP server.
	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
