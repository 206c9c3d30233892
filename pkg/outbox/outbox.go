// Package outbox implements the transactional outbox: events are stored with
// the state change that raised them and relayed to Kafka afterwards.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/meal-program/production-service/pkg/cloudevents"
)

// DefaultMaxRetries bounds delivery attempts before an event is parked
const DefaultMaxRetries = 10

// OutboxEvent is a stored envelope awaiting delivery. Its ID is the
// CloudEvent id, so consumers can drop a redelivered copy.
type OutboxEvent struct {
	ID            string          `bson:"_id" json:"id"`
	AggregateID   string          `bson:"aggregateId" json:"aggregateId"`
	AggregateType string          `bson:"aggregateType" json:"aggregateType"`
	EventType     string          `bson:"eventType" json:"eventType"`
	Topic         string          `bson:"topic" json:"topic"`
	Payload       json.RawMessage `bson:"payload" json:"payload"`
	CreatedAt     time.Time       `bson:"createdAt" json:"createdAt"`
	PublishedAt   *time.Time      `bson:"publishedAt,omitempty" json:"publishedAt,omitempty"`
	RetryCount    int             `bson:"retryCount" json:"retryCount"`
	LastError     string          `bson:"lastError,omitempty" json:"lastError,omitempty"`
	MaxRetries    int             `bson:"maxRetries" json:"maxRetries"`
}

// NewOutboxEventFromCloudEvent stores event for delivery to topic
func NewOutboxEventFromCloudEvent(aggregateID, aggregateType, topic string, event *cloudevents.CloudEvent) (*OutboxEvent, error) {
	if event.ID == "" {
		return nil, fmt.Errorf("cloud event %s has no id", event.Type)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", event.Type, err)
	}

	createdAt := event.Time.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return &OutboxEvent{
		ID:            event.ID,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     event.Type,
		Topic:         topic,
		Payload:       payload,
		CreatedAt:     createdAt,
		MaxRetries:    DefaultMaxRetries,
	}, nil
}

func (e *OutboxEvent) IsPublished() bool {
	return e.PublishedAt != nil
}

// Parked reports an undelivered event that exhausted its retries
func (e *OutboxEvent) Parked() bool {
	return !e.IsPublished() && e.RetryCount >= e.MaxRetries
}

// ShouldRetry reports whether the publisher should still try the event
func (e *OutboxEvent) ShouldRetry() bool {
	return !e.IsPublished() && !e.Parked()
}

// ToCloudEvent decodes the stored payload
func (e *OutboxEvent) ToCloudEvent() (*cloudevents.CloudEvent, error) {
	var event cloudevents.CloudEvent
	if err := json.Unmarshal(e.Payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
