package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nimburion/storefront/pkg/middleware"
	"github.com/nimburion/storefront/pkg/observability/logger"
	"github.com/nimburion/storefront/pkg/observability/metrics"
	"github.com/nimburion/storefront/pkg/observability/tracing"
	"github.com/nimburion/storefront/pkg/resilience"
)

// Publisher turns catalog changes into envelopes and hands them to a
// Producer. Publishing is best effort: failures are logged and counted and
// never reach the caller, because the write they describe already happened.
type Publisher struct {
	producer Producer
	system   string
	source   string
	log      logger.Logger
	now      func() time.Time
	breaker  *resilience.CircuitBreaker
	timeout  time.Duration
	observer Observer
}

// Observer receives every envelope before it goes to the broker, whether or
// not the broker accepts it.
type Observer func(ctx context.Context, envelope *EventEnvelope)

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithCircuitBreaker skips publishing while cb is open, so a broker outage
// costs writes nothing once it has been detected.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) PublisherOption {
	return func(p *Publisher) { p.breaker = cb }
}

// WithObserver hands every envelope to obs as well.
func WithObserver(obs Observer) PublisherOption {
	return func(p *Publisher) { p.observer = obs }
}

// WithPublishTimeout bounds every publish call.
func WithPublishTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) { p.timeout = d }
}

// NewPublisher creates a Publisher. system names the broker in spans
// (kafka, rabbitmq, sqs, none) and source is the producer name in envelopes.
func NewPublisher(producer Producer, system, source string, log logger.Logger, opts ...PublisherOption) *Publisher {
	if producer == nil {
		producer = NopProducer{}
		system = "none"
	}
	p := &Publisher{
		producer: producer,
		system:   system,
		source:   source,
		log:      logger.OrNop(log),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit publishes payload on topic as an event about the record aggregateID
// of collection.
func (p *Publisher) Emit(ctx context.Context, topic, collection, aggregateID string, payload any) {
	if p == nil {
		return
	}
	ctx, span := tracing.StartMessagingSpan(ctx, p.system, topic)
	err := p.emit(ctx, topic, collection, aggregateID, payload)
	tracing.End(span, err)
	metrics.RecordEventPublished(topic, err)
	if err != nil {
		p.log.WithContext(ctx).Warn("catalog event not published",
			"topic", topic,
			"aggregate_id", aggregateID,
			"error", err,
		)
	}
}

func (p *Publisher) emit(ctx context.Context, topic, collection, aggregateID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	envelope := &EventEnvelope{
		ID:            uuid.NewString(),
		Type:          topic,
		Version:       EnvelopeVersion,
		Producer:      p.source,
		Collection:    collection,
		AggregateID:   aggregateID,
		CorrelationID: middleware.RequestIDFrom(ctx),
		OccurredAt:    p.now().UTC(),
		Payload:       raw,
	}
	msg, err := envelope.ToMessage()
	if err != nil {
		return err
	}
	if p.observer != nil {
		p.observer(ctx, envelope)
	}
	publish := func() error {
		return resilience.WithTimeout(ctx, p.timeout, func(ctx context.Context) error {
			return p.producer.Publish(ctx, topic, msg)
		})
	}
	if p.breaker == nil {
		return publish()
	}
	return p.breaker.Execute(publish)
}

// Close closes the underlying producer.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.producer.Close()
}

// HealthCheck checks the underlying producer.
func (p *Publisher) HealthCheck(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.producer.HealthCheck(ctx)
}
