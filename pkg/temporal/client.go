// Package temporal connects the worker to Temporal and holds the task queue,
// workflow and activity defaults shared by the reconciliation workflows.
package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

// Config locates the Temporal frontend
type Config struct {
	HostPort  string
	Namespace string
	Identity  string
}

func DefaultConfig() *Config {
	return &Config{
		HostPort:  "localhost:7233",
		Namespace: "default",
		Identity:  "production-worker",
	}
}

// TaskQueues contains the Temporal task queue names
var TaskQueues = struct {
	ProductionReconciliation string
}{
	ProductionReconciliation: "production-reconciliation-queue",
}

// WorkflowNames contains the registered workflow names
var WorkflowNames = struct {
	ReconciliationRetry string
}{
	ReconciliationRetry: "ReconciliationRetryWorkflow",
}

// Client is a connected Temporal client
type Client struct {
	client.Client
}

// NewClient dials the frontend; sdk logs go through logger
func NewClient(ctx context.Context, config *Config, logger *slog.Logger) (*Client, error) {
	options := client.Options{
		HostPort:  config.HostPort,
		Namespace: config.Namespace,
		Identity:  config.Identity,
	}
	if logger != nil {
		options.Logger = log.NewStructuredLogger(logger.With("component", "temporal"))
	}

	c, err := client.DialContext(ctx, options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal at %s: %w", config.HostPort, err)
	}
	return &Client{Client: c}, nil
}

// EnsureSchedule starts workflowName every interval. A run still in progress
// makes the next one skip, and an existing schedule with the same id is kept.
func (c *Client) EnsureSchedule(ctx context.Context, scheduleID, taskQueue, workflowName string, every time.Duration, args ...interface{}) error {
	_, err := c.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID:      scheduleID,
		Spec:    client.ScheduleSpec{Intervals: []client.ScheduleIntervalSpec{{Every: every}}},
		Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
		Action: &client.ScheduleWorkflowAction{
			ID:        scheduleID + "-run",
			Workflow:  workflowName,
			TaskQueue: taskQueue,
			Args:      args,
		},
	})
	if err != nil && !errors.Is(err, temporal.ErrScheduleAlreadyRunning) {
		return fmt.Errorf("failed to create schedule %s: %w", scheduleID, err)
	}
	return nil
}

// DefaultWorkerOptions keeps concurrency low; each reconciliation holds a
// Mongo transaction and two collaborator calls
func DefaultWorkerOptions() worker.Options {
	return worker.Options{
		MaxConcurrentActivityExecutionSize:     20,
		MaxConcurrentWorkflowTaskExecutionSize: 20,
		MaxConcurrentActivityTaskPollers:       2,
		MaxConcurrentWorkflowTaskPollers:       2,
	}
}

// NewWorker creates a worker polling taskQueue
func (c *Client) NewWorker(taskQueue string, opts worker.Options) worker.Worker {
	return worker.New(c.Client, taskQueue, opts)
}

// RetryPolicy builds an exponential policy doubling from initial up to max
func RetryPolicy(attempts int32, initial, max time.Duration, nonRetryable ...string) *temporal.RetryPolicy {
	return &temporal.RetryPolicy{
		InitialInterval:        initial,
		BackoffCoefficient:     2.0,
		MaximumInterval:        max,
		MaximumAttempts:        attempts,
		NonRetryableErrorTypes: nonRetryable,
	}
}

// ActivityOptions bounds each attempt by timeout. A nil policy uses three
// attempts from one second up to a minute.
func ActivityOptions(timeout time.Duration, policy *temporal.RetryPolicy) workflow.ActivityOptions {
	if policy == nil {
		policy = RetryPolicy(3, time.Second, time.Minute)
	}
	return workflow.ActivityOptions{StartToCloseTimeout: timeout, RetryPolicy: policy}
}
