package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SMDV/cakravia-v0-sub001/backend"
	"github.com/SMDV/cakravia-v0-sub001/cache"
	"github.com/SMDV/cakravia-v0-sub001/config"
	"github.com/SMDV/cakravia-v0-sub001/database"
	"github.com/SMDV/cakravia-v0-sub001/gateway"
	"github.com/SMDV/cakravia-v0-sub001/handlers"
	"github.com/SMDV/cakravia-v0-sub001/kafka"
	"github.com/SMDV/cakravia-v0-sub001/middleware"
	"github.com/SMDV/cakravia-v0-sub001/models"
	"github.com/SMDV/cakravia-v0-sub001/orders"
	"github.com/SMDV/cakravia-v0-sub001/pricing"
	"github.com/SMDV/cakravia-v0-sub001/reconcile"
	"github.com/SMDV/cakravia-v0-sub001/unlock"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize database
	db, err := database.InitDB(logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()
	store := database.NewStore(db, logger)

	// Initialize Redis (unlock cache); the durable store covers a cache
	// outage, so this is not fatal.
	rdb, err := cache.InitRedis(logger)
	if err != nil {
		logger.Warn("Redis unavailable, serving unlock reads from Postgres", zap.Error(err))
		rdb = nil
	}

	// Initialize Kafka producer
	producer, err := kafka.InitProducer(logger)
	if err != nil {
		logger.Fatal("Failed to initialize Kafka producer", zap.Error(err))
	}
	defer producer.Close()

	// Initialize OpenTelemetry
	shutdownTracing, err := middleware.InitTracing("payment-unlock-service")
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer shutdownTracing()

	// Commerce backend client
	backendClient := backend.NewClient(config.GetEnv("BACKEND_URL", "http://localhost:9000"), logger)

	catalog := config.Products()
	negotiator := pricing.NewNegotiator(backendClient, logger)
	coordinator := orders.NewCoordinator(backendClient, logger)

	unlocks := unlock.NewState()
	topic := config.GetEnv("KAFKA_TOPIC", "payment_events")
	unlocks.OnUnlock(func(order models.Order) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := store.RecordUnlock(ctx, order); err != nil {
			logger.Error("Failed to persist unlock", zap.String("order_id", order.ID), zap.Error(err))
		}
		if rdb != nil {
			if err := cache.SetUnlocked(ctx, rdb, order.ProductRef, order.PayerRef, time.Hour); err != nil {
				logger.Warn("Failed to cache unlock", zap.Error(err))
			}
		}
		event := models.UnlockEvent{
			OrderID:    order.ID,
			ProductRef: order.ProductRef,
			PayerRef:   order.PayerRef,
			Amount:     order.Amount,
			Status:     models.OrderStatusPaid,
			EventType:  "result_unlocked",
		}
		if err := kafka.PublishUnlockEvent(ctx, producer, topic, event, logger); err != nil {
			logger.Error("Failed to publish unlock event", zap.Error(err))
		}
	})

	reconcileCfg := reconcile.Config{
		SuccessDelay:  config.GetEnvDuration("CONFIRM_SUCCESS_DELAY", 2*time.Second),
		PendingDelay:  config.GetEnvDuration("CONFIRM_PENDING_DELAY", 5*time.Second),
		CloseDelay:    config.GetEnvDuration("CONFIRM_CLOSE_DELAY", 1*time.Second),
		PollInterval:  config.GetEnvDuration("POLL_INTERVAL", 10*time.Second),
		MaxPollWindow: config.GetEnvDuration("MAX_POLL_WINDOW", 600*time.Second),
		CheckTimeout:  config.GetEnvDuration("CHECK_TIMEOUT", 8*time.Second),
	}
	reconciler := reconcile.NewReconciler(backendClient, unlocks, reconcile.SystemClock(), reconcileCfg, logger)
	reconciler.OnAttempt(func(attempt models.ConfirmationAttempt) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := store.RecordAttempt(ctx, attempt); err != nil {
			logger.Warn("Failed to record confirmation attempt", zap.Error(err))
		}
	})

	// No widget runs server-side; sessions use the hosted redirect page and
	// the reconciler's bounded poll.
	session := gateway.NewSession(nil, reconciler.StartPolling, logger)

	// Setup REST API with Gin
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("payment-unlock-service"))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", middleware.PrometheusHandler())

	couponHandler := handlers.NewCouponHandler(negotiator, catalog, logger)
	orderHandler := handlers.NewOrderHandler(coordinator, reconciler, session, catalog, logger)
	resultsHandler := handlers.NewResultsHandler(unlocks, store, rdb, catalog, logger)

	api := router.Group("/api", middleware.AuthRequired(logger))
	api.POST("/coupons/validate", couponHandler.ValidateCoupon)
	api.POST("/orders", orderHandler.CreateOrder)
	api.GET("/orders/:id", orderHandler.GetOrder)
	api.POST("/orders/:id/notify", orderHandler.Notify)
	api.POST("/orders/:id/poll", orderHandler.StartPoll)
	api.POST("/orders/:id/payment-token", orderHandler.RefreshToken)
	api.GET("/results/:product_ref", resultsHandler.GetResult)

	srv := &http.Server{
		Addr:    ":" + config.GetEnv("PORT", "8085"),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start REST server", zap.Error(err))
		}
	}()

	logger.Info("Payment Unlock Service started", zap.String("addr", srv.Addr))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	reconciler.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
