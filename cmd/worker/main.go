package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/meal-program/production-service/internal/bootstrap"
	"github.com/meal-program/production-service/internal/config"
	"github.com/meal-program/production-service/internal/workflows"
	"github.com/meal-program/production-service/pkg/logging"
	"github.com/meal-program/production-service/pkg/metrics"
	"github.com/meal-program/production-service/pkg/temporal"
	"github.com/meal-program/production-service/pkg/tracing"
)

const serviceName = "production-worker"

func main() {
	logger := logging.New(logging.DefaultConfig(serviceName))
	logger.SetDefault()

	logger.Info("Starting production reconciliation worker")

	cfg, err := config.Load(serviceName, "")
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

	temporalClient, err := temporal.NewClient(ctx, cfg.Temporal, logger.Logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to Temporal")
		os.Exit(1)
	}
	defer temporalClient.Close()
	logger.Info("Connected to Temporal", "namespace", cfg.Temporal.Namespace)

	taskQueue := temporal.TaskQueues.ProductionReconciliation
	w := temporalClient.NewWorker(taskQueue, temporal.DefaultWorkerOptions())
	register(w, workflows.NewReconciliationActivities(rt.Service, logger, m))

	err = temporalClient.EnsureSchedule(ctx,
		workflows.ReconciliationRetryScheduleID,
		taskQueue,
		temporal.WorkflowNames.ReconciliationRetry,
		workflows.ReconciliationRetryInterval,
		workflows.ReconciliationRetryInput{Limit: workflows.DefaultRetryBatchSize},
	)
	if err != nil {
		logger.WithError(err).Error("Failed to ensure reconciliation schedule")
		os.Exit(1)
	}
	logger.Info("Reconciliation schedule ensured",
		"scheduleId", workflows.ReconciliationRetryScheduleID,
		"every", workflows.ReconciliationRetryInterval.String(),
	)

	go func() {
		if err := w.Run(nil); err != nil {
			logger.WithError(err).Error("Worker error")
			os.Exit(1)
		}
	}()
	logger.Info("Worker started", "taskQueue", taskQueue)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down worker...")

	w.Stop()
	logger.Info("Worker stopped")
}

func register(w worker.Registry, activities *workflows.ReconciliationActivities) {
	w.RegisterWorkflowWithOptions(workflows.ReconciliationRetryWorkflow, workflow.RegisterOptions{
		Name: temporal.WorkflowNames.ReconciliationRetry,
	})
	w.RegisterActivity(activities)
}
