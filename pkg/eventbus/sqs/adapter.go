package sqs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/nimburion/storefront/pkg/eventbus"
	"github.com/nimburion/storefront/pkg/observability/logger"
)

// client is the part of *sqs.Client the adapter uses.
type client interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// Adapter publishes catalog events to AWS SQS queues.
type Adapter struct {
	client client
	logger logger.Logger
	config Config
	mu     sync.RWMutex
	closed bool
}

var _ eventbus.Producer = (*Adapter)(nil)

// Config holds SQS adapter configuration.
type Config struct {
	Region   string
	QueueURL string
	// QueueURLs routes single topics to dedicated queues; other topics go
	// to QueueURL.
	QueueURLs        map[string]string
	Endpoint         string
	AccessKeyID      string
	SecretAccessKey  string
	SessionToken     string
	OperationTimeout time.Duration
}

// Cosa fa: crea adapter SQS con supporto endpoint custom e code per topic.
// Cosa NON fa: non crea code o policy IAM.
// Esempio minimo: adapter, err := sqs.NewAdapter(cfg, log)
func NewAdapter(cfg Config, log logger.Logger) (*Adapter, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("aws region is required")
	}
	if cfg.QueueURL == "" && len(cfg.QueueURLs) == 0 {
		return nil, fmt.Errorf("sqs queue URL is required")
	}
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = 30 * time.Second
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" || cfg.SecretAccessKey != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	var opts []func(*sqs.Options)
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	adapter := newAdapter(sqs.NewFromConfig(awsCfg, opts...), cfg, log)
	if err := adapter.HealthCheck(context.Background()); err != nil {
		return nil, err
	}
	return adapter, nil
}

func newAdapter(c client, cfg Config, log logger.Logger) *Adapter {
	return &Adapter{client: c, logger: logger.OrNop(log), config: cfg}
}

// Publish sends message to the queue of topic. FIFO queues get the message
// key as group id and the message id for deduplication.
func (a *Adapter) Publish(ctx context.Context, topic string, message *eventbus.Message) error {
	a.mu.RLock()
	if a.closed {
		a.mu.RUnlock()
		return fmt.Errorf("sqs adapter is closed")
	}
	a.mu.RUnlock()
	if message == nil {
		return fmt.Errorf("message is required")
	}

	queueURL := a.resolveQueueURL(topic)
	if queueURL == "" {
		return fmt.Errorf("no sqs queue configured for topic %s", topic)
	}
	opCtx, cancel := context.WithTimeout(ctx, a.config.OperationTimeout)
	defer cancel()

	attrs := make(map[string]string, len(message.Headers)+1)
	for k, v := range message.Headers {
		attrs[k] = v
	}
	attrs["topic"] = topic

	input := &sqs.SendMessageInput{
		QueueUrl:          aws.String(queueURL),
		MessageBody:       aws.String(string(message.Value)),
		MessageAttributes: toSQSAttributes(attrs),
	}
	if strings.HasSuffix(queueURL, ".fifo") {
		group := message.Key
		if group == "" {
			group = topic
		}
		input.MessageGroupId = aws.String(group)
		input.MessageDeduplicationId = aws.String(message.ID)
	}

	if _, err := a.client.SendMessage(opCtx, input); err != nil {
		a.logger.Error("failed to publish message", "queue_url", queueURL, "topic", topic, "error", err)
		return fmt.Errorf("failed to publish sqs message: %w", err)
	}
	return nil
}

// HealthCheck reads an attribute of every configured queue.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	a.mu.RLock()
	if a.closed {
		a.mu.RUnlock()
		return fmt.Errorf("sqs adapter is closed")
	}
	a.mu.RUnlock()

	hcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	for _, queueURL := range a.queueURLs() {
		_, err := a.client.GetQueueAttributes(hcCtx, &sqs.GetQueueAttributesInput{
			QueueUrl: aws.String(queueURL),
			AttributeNames: []types.QueueAttributeName{
				types.QueueAttributeNameQueueArn,
			},
		})
		if err != nil {
			return fmt.Errorf("sqs health check failed for %s: %w", queueURL, err)
		}
	}
	return nil
}

// Close marks the adapter closed. The SQS client holds no connections to release.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *Adapter) resolveQueueURL(topic string) string {
	if url, ok := a.config.QueueURLs[topic]; ok && url != "" {
		return url
	}
	return a.config.QueueURL
}

// queueURLs lists the distinct configured queues in a stable order.
func (a *Adapter) queueURLs() []string {
	seen := map[string]bool{}
	var urls []string
	add := func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}
	add(a.config.QueueURL)
	topics := make([]string, 0, len(a.config.QueueURLs))
	for topic := range a.config.QueueURLs {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	for _, topic := range topics {
		add(a.config.QueueURLs[topic])
	}
	return urls
}

func toSQSAttributes(headers map[string]string) map[string]types.MessageAttributeValue {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]types.MessageAttributeValue, len(headers))
	for k, v := range headers {
		out[k] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
	}
	return out
}
