package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meal-program/production-service/internal/application"
	"github.com/meal-program/production-service/internal/bootstrap"
	"github.com/meal-program/production-service/internal/config"
	"github.com/meal-program/production-service/pkg/kafka"
	"github.com/meal-program/production-service/pkg/logging"
	"github.com/meal-program/production-service/pkg/metrics"
	"github.com/meal-program/production-service/pkg/middleware"
	"github.com/meal-program/production-service/pkg/outbox"
	"github.com/meal-program/production-service/pkg/tracing"
)

const serviceName = "production-service"

func main() {
	logger := logging.New(logging.DefaultConfig(serviceName))
	logger.SetDefault()

	logger.Info("Starting production-service API")

	cfg, err := config.Load(serviceName, ":8080")
	if err != nil {
		logger.WithError(err).Error("Invalid configuration")
		os.Exit(1)
	}
	ctx := context.Background()

	tracerProvider, err := tracing.Initialize(ctx, tracing.ConfigFromEnv(serviceName, os.Getenv))
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
	}

	m := metrics.New(metrics.DefaultConfig(serviceName))

	rt, err := bootstrap.Build(ctx, cfg, logger, m)
	if err != nil {
		logger.WithError(err).Error("Failed to build production service")
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			logger.WithError(err).Error("Failed to close storage")
		}
	}()
	logger.Info("Production service ready", "storage", cfg.StorageDriver)

	if cfg.PublishEvents {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()

		publisher := outbox.NewPublisher(rt.Outbox, kafka.NewInstrumentedProducer(producer, m, logger), logger, m, &outbox.PublisherConfig{
			PollInterval: cfg.OutboxPollInterval,
			BatchSize:    100,
		})
		if err := publisher.Start(ctx); err != nil {
			logger.WithError(err).Error("Failed to start outbox publisher")
			os.Exit(1)
		}
		defer publisher.Stop()
		logger.Info("Outbox publisher started", "brokers", cfg.Kafka.Brokers)
	}

	router := newRouter(rt.Service, rt.Ready, logger, m)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server error")
		}
	}()
	logger.Info("Server started", "addr", cfg.ServerAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server stopped")
}

func newRouter(service *application.ProductionService, ready func(ctx context.Context) error, logger *logging.Logger, m *metrics.Metrics) *gin.Engine {
	router := gin.New()

	middleware.Setup(router, middleware.DefaultConfig(serviceName, logger.Logger))
	router.Use(middleware.MetricsMiddleware(m))
	router.Use(middleware.TracingMiddleware(middleware.DefaultTracingConfig(serviceName)))

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, ready))
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	registerRoutes(router.Group("/api/v1"), service, logger)

	return router
}
