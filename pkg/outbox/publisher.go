package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/meal-program/production-service/pkg/kafka"
	"github.com/meal-program/production-service/pkg/logging"
	"github.com/meal-program/production-service/pkg/metrics"
)

var (
	errAlreadyRunning = errors.New("outbox publisher already running")
	errNotRunning     = errors.New("outbox publisher not running")
)

// PublisherConfig holds configuration for the outbox publisher
type PublisherConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// DefaultPublisherConfig polls every second for up to 100 events
func DefaultPublisherConfig() *PublisherConfig {
	return &PublisherConfig{PollInterval: time.Second, BatchSize: 100}
}

// Stats counts delivery outcomes since the publisher was created
type Stats struct {
	Published int
	Failed    int
	// Held counts events skipped because an earlier event of the same
	// batch failed in the same round
	Held int
}

// Publisher relays outbox events to Kafka. Events of one aggregate are
// delivered in the order they were written: when one fails, the rest of
// that aggregate's events wait for the next round.
type Publisher struct {
	repo      Repository
	producer  kafka.EventPublisher
	logger    *logging.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	batchSize int

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	stats  Stats
}

// NewPublisher creates a publisher; a nil config uses DefaultPublisherConfig
func NewPublisher(repo Repository, producer kafka.EventPublisher, logger *logging.Logger, m *metrics.Metrics, config *PublisherConfig) *Publisher {
	if config == nil {
		config = DefaultPublisherConfig()
	}
	return &Publisher{
		repo:      repo,
		producer:  producer,
		logger:    logger.WithComponent("outbox-publisher"),
		metrics:   m,
		interval:  config.PollInterval,
		batchSize: config.BatchSize,
	}
}

// Start launches the polling loop. It runs until Stop or until ctx ends.
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return errAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	p.logger.Info("Starting outbox publisher", "interval", p.interval.String(), "batchSize", p.batchSize)
	go p.loop(ctx, p.done)
	return nil
}

// Stop cancels the loop and waits for the round in flight
func (p *Publisher) Stop() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return errNotRunning
	}

	cancel()
	<-done

	p.mu.Lock()
	p.cancel, p.done = nil, nil
	stats := p.stats
	p.mu.Unlock()

	p.logger.Info("Outbox publisher stopped", "published", stats.Published, "failed", stats.Failed, "held", stats.Held)
	return nil
}

// IsRunning reports whether the loop is active
func (p *Publisher) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Stats returns a snapshot of the delivery counters
func (p *Publisher) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Publisher) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce relays one round of pending events and returns how many were
// delivered
func (p *Publisher) ProcessOnce(ctx context.Context) int {
	events, err := p.repo.FindUnpublished(ctx, p.batchSize)
	if err != nil {
		p.logger.WithError(err).Error("Failed to find unpublished events")
		return 0
	}
	if p.metrics != nil {
		p.metrics.SetOutboxPending(len(events))
	}

	blocked := make(map[string]struct{})
	var round Stats
	for _, event := range events {
		if _, ok := blocked[event.AggregateID]; ok {
			round.Held++
			continue
		}

		start := time.Now()
		err := p.publish(ctx, event)
		if p.metrics != nil {
			p.metrics.RecordOutboxPublish(event.EventType, err == nil, time.Since(start))
		}

		if err != nil {
			round.Failed++
			blocked[event.AggregateID] = struct{}{}
			p.logger.WithError(err).Warn("Failed to publish event",
				"eventId", event.ID,
				"eventType", event.EventType,
				"aggregateId", event.AggregateID,
				"attempt", event.RetryCount+1,
			)
			if p.metrics != nil {
				p.metrics.RecordOutboxRetry(event.EventType)
			}
			if err := p.repo.IncrementRetry(ctx, event.ID, err.Error()); err != nil {
				p.logger.WithError(err).Error("Failed to record publish failure", "eventId", event.ID)
			}
			continue
		}

		round.Published++
		if err := p.repo.MarkPublished(ctx, event.ID); err != nil {
			p.logger.WithError(err).Error("Failed to mark event as published", "eventId", event.ID)
		}
	}

	p.mu.Lock()
	p.stats.Published += round.Published
	p.stats.Failed += round.Failed
	p.stats.Held += round.Held
	p.mu.Unlock()

	return round.Published
}

func (p *Publisher) publish(ctx context.Context, event *OutboxEvent) error {
	cloudEvent, err := event.ToCloudEvent()
	if err != nil {
		return fmt.Errorf("failed to decode stored event: %w", err)
	}
	if err := p.producer.PublishEvent(ctx, event.Topic, cloudEvent); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", event.Topic, err)
	}
	return nil
}
