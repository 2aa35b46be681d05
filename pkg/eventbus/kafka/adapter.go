package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/nimburion/storefront/pkg/eventbus"
	"github.com/nimburion/storefront/pkg/observability/logger"
)

// writer is the part of *kafka.Writer the adapter uses.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Adapter publishes catalog events to Apache Kafka.
type Adapter struct {
	producer writer
	logger   logger.Logger
	config   Config
	dial     func(ctx context.Context, network, address string) (*kafka.Conn, error)
	mu       sync.RWMutex
	closed   bool
}

var _ eventbus.Producer = (*Adapter)(nil)

// Config holds the configuration for the Kafka adapter.
type Config struct {
	// Brokers is the list of Kafka broker addresses (e.g., ["localhost:9092"])
	Brokers []string

	// OperationTimeout is the timeout for publish operations
	OperationTimeout time.Duration

	// MaxRetries is the maximum number of write attempts per message
	MaxRetries int
}

// NewAdapter creates a Kafka producer. Topics are created by the broker on
// first write when auto creation is enabled; otherwise they must exist.
//
// Cosa fa: prepara un writer sincrono con bilanciamento per chiave.
// Cosa NON fa: non crea topic e non consuma messaggi.
// Esempio minimo: adapter, err := kafka.NewAdapter(kafka.Config{Brokers: []string{"localhost:9092"}}, log)
func NewAdapter(cfg Config, log logger.Logger) (*Adapter, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker address is required")
	}
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	log = logger.OrNop(log)

	producer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		MaxAttempts:            cfg.MaxRetries,
		WriteTimeout:           cfg.OperationTimeout,
		ReadTimeout:            cfg.OperationTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}

	log.Info("kafka adapter initialized",
		"brokers", cfg.Brokers,
		"operation_timeout", cfg.OperationTimeout,
	)

	return newAdapter(producer, cfg, log), nil
}

func newAdapter(producer writer, cfg Config, log logger.Logger) *Adapter {
	return &Adapter{
		producer: producer,
		logger:   logger.OrNop(log),
		config:   cfg,
		dial:     kafka.DialContext,
	}
}

// Publish sends a single message to the specified topic.
func (a *Adapter) Publish(ctx context.Context, topic string, message *eventbus.Message) error {
	a.mu.RLock()
	if a.closed {
		a.mu.RUnlock()
		return fmt.Errorf("kafka adapter is closed")
	}
	a.mu.RUnlock()
	if message == nil {
		return fmt.Errorf("message is required")
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.OperationTimeout)
	defer cancel()

	kafkaMsg := kafka.Message{
		Topic:   topic,
		Key:     []byte(message.Key),
		Value:   message.Value,
		Headers: convertHeaders(message.Headers, message.ContentType),
		Time:    message.Timestamp,
	}

	if err := a.producer.WriteMessages(ctx, kafkaMsg); err != nil {
		a.logger.Error("failed to publish message",
			"topic", topic,
			"message_id", message.ID,
			"error", err,
		)
		return fmt.Errorf("failed to publish message to topic %s: %w", topic, err)
	}

	a.logger.Debug("message published",
		"topic", topic,
		"message_id", message.ID,
		"key", message.Key,
	)
	return nil
}

// Close flushes and closes the writer.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	if err := a.producer.Close(); err != nil {
		return fmt.Errorf("failed to close producer: %w", err)
	}
	a.logger.Info("kafka adapter closed")
	return nil
}

// HealthCheck dials the first broker and fetches its metadata.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	a.mu.RLock()
	if a.closed {
		a.mu.RUnlock()
		return fmt.Errorf("kafka adapter is closed")
	}
	a.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := a.dial(ctx, "tcp", a.config.Brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to kafka broker: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Brokers(); err != nil {
		return fmt.Errorf("failed to fetch broker metadata: %w", err)
	}
	return nil
}

// convertHeaders converts eventbus headers to Kafka headers, adding the
// content type when set.
func convertHeaders(headers map[string]string, contentType string) []kafka.Header {
	if len(headers) == 0 && contentType == "" {
		return nil
	}

	kafkaHeaders := make([]kafka.Header, 0, len(headers)+1)
	for key, value := range headers {
		kafkaHeaders = append(kafkaHeaders, kafka.Header{
			Key:   key,
			Value: []byte(value),
		})
	}
	if contentType != "" {
		kafkaHeaders = append(kafkaHeaders, kafka.Header{Key: "content-type", Value: []byte(contentType)})
	}
	return kafkaHeaders
}
