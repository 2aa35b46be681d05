package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nimburion/storefront/pkg/eventbus"
	"github.com/nimburion/storefront/pkg/observability/logger"
)

// channel is the part of *amqp.Channel the adapter uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// connection is the part of *amqp.Connection the adapter uses.
type connection interface {
	IsClosed() bool
	Close() error
}

// Adapter publishes catalog events to a RabbitMQ exchange, using the topic as
// routing key.
type Adapter struct {
	conn   connection
	pubCh  channel
	logger logger.Logger
	config Config
	mu     sync.RWMutex
	closed bool
}

var _ eventbus.Producer = (*Adapter)(nil)

// Config holds RabbitMQ adapter configuration.
type Config struct {
	URL              string
	Exchange         string
	ExchangeType     string
	OperationTimeout time.Duration
}

// Cosa fa: crea connessione/channel RabbitMQ e dichiara l'exchange durevole.
// Cosa NON fa: non dichiara code né binding, che spettano ai consumer.
// Esempio minimo: adapter, err := rabbitmq.NewAdapter(cfg, log)
func NewAdapter(cfg Config, log logger.Logger) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("rabbitmq URL is required")
	}
	if cfg.Exchange == "" {
		cfg.Exchange = "catalog"
	}
	if cfg.ExchangeType == "" {
		cfg.ExchangeType = "topic"
	}
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = 30 * time.Second
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	pubCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create rabbitmq channel: %w", err)
	}

	if err := pubCh.ExchangeDeclare(cfg.Exchange, cfg.ExchangeType, true, false, false, false, nil); err != nil {
		_ = pubCh.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	logger.OrNop(log).Info("rabbitmq adapter initialized", "exchange", cfg.Exchange, "exchange_type", cfg.ExchangeType)
	return newAdapter(conn, pubCh, cfg, log), nil
}

func newAdapter(conn connection, pubCh channel, cfg Config, log logger.Logger) *Adapter {
	return &Adapter{
		conn:   conn,
		pubCh:  pubCh,
		logger: logger.OrNop(log),
		config: cfg,
	}
}

// Publish sends a persistent message to the exchange with topic as routing key.
func (a *Adapter) Publish(ctx context.Context, topic string, message *eventbus.Message) error {
	a.mu.RLock()
	if a.closed {
		a.mu.RUnlock()
		return fmt.Errorf("rabbitmq adapter is closed")
	}
	a.mu.RUnlock()

	if message == nil {
		return fmt.Errorf("message is required")
	}
	if topic == "" {
		return fmt.Errorf("routing key is required")
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.OperationTimeout)
	defer cancel()

	publishing := amqp.Publishing{
		MessageId:    message.ID,
		ContentType:  message.ContentType,
		DeliveryMode: amqp.Persistent,
		Body:         message.Value,
		Timestamp:    message.Timestamp,
		Headers:      toAMQPHeaders(message.Headers),
	}

	if err := a.pubCh.PublishWithContext(ctx, a.config.Exchange, topic, false, false, publishing); err != nil {
		a.logger.Error("failed to publish message", "routing_key", topic, "message_id", message.ID, "error", err)
		return fmt.Errorf("failed to publish rabbitmq message: %w", err)
	}
	return nil
}

// HealthCheck reports whether the connection and the publish channel are open.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return fmt.Errorf("rabbitmq adapter is closed")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("rabbitmq health check: %w", err)
	}
	if a.conn == nil || a.conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection is closed")
	}
	if a.pubCh == nil || a.pubCh.IsClosed() {
		return fmt.Errorf("rabbitmq publish channel is closed")
	}
	return nil
}

// Close releases the channel and the connection.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	var errs []error
	if a.pubCh != nil {
		if err := a.pubCh.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publish channel: %w", err))
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}
	return errors.Join(errs...)
}

func toAMQPHeaders(headers map[string]string) amqp.Table {
	if len(headers) == 0 {
		return nil
	}
	t := amqp.Table{}
	for k, v := range headers {
		t[k] = v
	}
	return t
}
