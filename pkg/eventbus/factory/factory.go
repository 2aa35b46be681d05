package factory

import (
	"fmt"
	"strings"

	"github.com/nimburion/storefront/pkg/config"
	"github.com/nimburion/storefront/pkg/eventbus"
	"github.com/nimburion/storefront/pkg/eventbus/kafka"
	"github.com/nimburion/storefront/pkg/eventbus/rabbitmq"
	"github.com/nimburion/storefront/pkg/eventbus/sqs"
	"github.com/nimburion/storefront/pkg/observability/logger"
	"github.com/nimburion/storefront/pkg/resilience"
)

// Cosa fa: seleziona e inizializza il producer di eventi in base alla config.
// Cosa NON fa: non supporta multipli bus attivi nella stessa factory call.
// Esempio minimo: producer, system, err := factory.NewProducer(cfg.EventBus, log)
//
// The returned system name labels messaging spans.
func NewProducer(cfg config.EventBusConfig, log logger.Logger) (eventbus.Producer, string, error) {
	system := strings.ToLower(strings.TrimSpace(cfg.Type))
	var (
		producer eventbus.Producer
		err      error
	)

	switch system {
	case "", config.EventBusTypeNone:
		return eventbus.NopProducer{}, config.EventBusTypeNone, nil
	case config.EventBusTypeKafka:
		producer, err = kafka.NewAdapter(kafka.Config{
			Brokers:          cfg.Brokers,
			OperationTimeout: cfg.OperationTimeout,
		}, log)
	case config.EventBusTypeRabbitMQ:
		url := cfg.URL
		if url == "" && len(cfg.Brokers) > 0 {
			url = cfg.Brokers[0]
		}
		producer, err = rabbitmq.NewAdapter(rabbitmq.Config{
			URL:              url,
			Exchange:         cfg.Exchange,
			ExchangeType:     cfg.ExchangeType,
			OperationTimeout: cfg.OperationTimeout,
		}, log)
	case config.EventBusTypeSQS:
		producer, err = sqs.NewAdapter(sqs.Config{
			Region:           cfg.Region,
			QueueURL:         cfg.QueueURL,
			QueueURLs:        cfg.QueueURLs,
			Endpoint:         cfg.Endpoint,
			AccessKeyID:      cfg.AccessKeyID,
			SecretAccessKey:  cfg.SecretAccessKey,
			SessionToken:     cfg.SessionToken,
			OperationTimeout: cfg.OperationTimeout,
		}, log)
	default:
		return nil, "", fmt.Errorf("unsupported eventbus.type %q (supported: none, kafka, rabbitmq, sqs)", cfg.Type)
	}
	if err != nil {
		return nil, "", fmt.Errorf("create %s producer: %w", system, err)
	}
	return producer, system, nil
}

// NewPublisher builds the producer selected by cfg and wraps it in a
// catalog event publisher. extra options are applied last.
func NewPublisher(cfg config.EventBusConfig, source string, log logger.Logger, extra ...eventbus.PublisherOption) (*eventbus.Publisher, error) {
	producer, system, err := NewProducer(cfg, log)
	if err != nil {
		return nil, err
	}
	log = logger.OrNop(log)
	var opts []eventbus.PublisherOption
	if system != config.EventBusTypeNone && cfg.BreakerFailures > 0 {
		opts = append(opts, eventbus.WithCircuitBreaker(resilience.NewCircuitBreaker(
			cfg.BreakerFailures,
			cfg.BreakerCoolDown,
			resilience.OnStateChange(func(from, to resilience.State) {
				log.Warn("event publishing circuit changed state", "system", system, "from", from.String(), "to", to.String())
			}),
		)))
	}
	opts = append(opts, eventbus.WithPublishTimeout(cfg.OperationTimeout))
	opts = append(opts, extra...)
	return eventbus.NewPublisher(producer, system, source, log, opts...), nil
}
