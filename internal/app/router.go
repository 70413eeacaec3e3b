package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"travel/internal/handler"
	"travel/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	BookingHandler *handler.BookingHandler
	PaymentHandler *handler.PaymentHandler
	RedisClient    *redis.Client
	NewRelicApp    *newrelic.Application
	Logger         zerolog.Logger
	JWTSecret      string
	VerifyLimiter  *middleware.RateLimiter
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.CORSMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
		router.Use(middleware.NewRelicAttributes())
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Gateway callback and return URL. Unauthenticated; the verdict always
	// comes from the gateway.
	verify := router.Group("/payments/verify")
	if deps.VerifyLimiter != nil {
		verify.Use(deps.VerifyLimiter.Middleware())
	}
	{
		verify.GET("", deps.PaymentHandler.VerifyPayment)
		verify.POST("", deps.PaymentHandler.VerifyPayment)
	}

	authed := router.Group("/")
	authed.Use(middleware.Auth(deps.JWTSecret))
	authed.Use(middleware.IdempotencyMiddleware(deps.RedisClient))
	{
		// Booking routes.
		bookings := authed.Group("/bookings")
		{
			bookings.POST("", deps.BookingHandler.CreateBooking)
			bookings.GET("", deps.BookingHandler.ListBookings)
			bookings.GET("/:id", deps.BookingHandler.GetBooking)
			bookings.POST("/:id/cancel", deps.BookingHandler.CancelBooking)
			bookings.POST("/:id/initiate-payment", deps.PaymentHandler.InitiatePayment)
		}

		// Payment routes.
		payments := authed.Group("/payments")
		{
			payments.GET("/status/:id", deps.PaymentHandler.GetPaymentStatus)
		}
	}

	return router
}
