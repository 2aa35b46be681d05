// Package eventbus publishes catalog events to a message broker.
package eventbus

import (
	"context"
	"time"
)

// Catalog topics.
const (
	TopicProductCreated = "catalog.product.created"
	TopicVariantsLinked = "catalog.variants.linked"
	TopicOrderPlaced    = "catalog.order.placed"
	TopicOrderUpdated   = "catalog.order.updated"
	TopicOfferCreated   = "catalog.offer.created"
	TopicOfferRetired   = "catalog.offer.retired"
	TopicUserCreated    = "catalog.user.created"
)

// Producer defines the interface for publishing messages to topics.
type Producer interface {
	// Publish sends a single message to the specified topic.
	Publish(ctx context.Context, topic string, message *Message) error

	// HealthCheck verifies connectivity to the message broker.
	HealthCheck(ctx context.Context) error

	// Close gracefully shuts down the producer, flushing any pending messages.
	Close() error
}

// Message represents a message to be published to a topic.
type Message struct {
	// ID is a unique identifier for the message.
	ID string

	// Key is used for partitioning in systems like Kafka.
	// Messages with the same key are guaranteed to be delivered to the same partition.
	Key string

	// Value is the serialized message payload.
	Value []byte

	// Headers contains arbitrary key-value metadata for the message.
	Headers map[string]string

	ContentType string

	// Timestamp is when the message was created.
	Timestamp time.Time
}

// NopProducer drops every message. It backs eventbus.type "none".
type NopProducer struct{}

func (NopProducer) Publish(context.Context, string, *Message) error { return nil }
func (NopProducer) HealthCheck(context.Context) error               { return nil }
func (NopProducer) Close() error                                    { return nil }
