package sqs

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/nimburion/storefront/pkg/eventbus"
)

type fakeClient struct {
	sent    []*sqs.SendMessageInput
	checked []string
	err     error
}

func (c *fakeClient) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.sent = append(c.sent, in)
	return &sqs.SendMessageOutput{MessageId: aws.String("sqs-1")}, nil
}

func (c *fakeClient) GetQueueAttributes(_ context.Context, in *sqs.GetQueueAttributesInput, _ ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.checked = append(c.checked, aws.ToString(in.QueueUrl))
	return &sqs.GetQueueAttributesOutput{}, nil
}

func TestNewAdapter_Validation(t *testing.T) {
	if _, err := NewAdapter(Config{}, nil); err == nil {
		t.Fatal("expected error for empty region and queue URL")
	}
	if _, err := NewAdapter(Config{Region: "eu-west-1"}, nil); err == nil {
		t.Fatal("expected error for empty queue URL")
	}
}

func TestAdapter_PublishRoutesByTopic(t *testing.T) {
	c := &fakeClient{}
	a := newAdapter(c, Config{
		QueueURL:         "https://sqs/default",
		QueueURLs:        map[string]string{eventbus.TopicOrderPlaced: "https://sqs/orders.fifo"},
		OperationTimeout: time.Second,
	}, nil)

	msg := &eventbus.Message{ID: "m1", Key: "order-1", Value: []byte("{}"), Headers: map[string]string{"collection": "orders"}}
	if err := a.Publish(context.Background(), eventbus.TopicOrderPlaced, msg); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := a.Publish(context.Background(), eventbus.TopicUserCreated, msg); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	fifo, std := c.sent[0], c.sent[1]
	if aws.ToString(fifo.QueueUrl) != "https://sqs/orders.fifo" || aws.ToString(fifo.MessageGroupId) != "order-1" || aws.ToString(fifo.MessageDeduplicationId) != "m1" {
		t.Fatalf("unexpected fifo input %+v", fifo)
	}
	if aws.ToString(std.QueueUrl) != "https://sqs/default" || std.MessageGroupId != nil {
		t.Fatalf("unexpected standard input %+v", std)
	}
	if aws.ToString(std.MessageAttributes["topic"].StringValue) != eventbus.TopicUserCreated {
		t.Fatalf("topic attribute missing: %+v", std.MessageAttributes)
	}
	if aws.ToString(std.MessageAttributes["collection"].StringValue) != "orders" {
		t.Fatalf("header attribute missing: %+v", std.MessageAttributes)
	}
}

func TestAdapter_HealthCheckVisitsEveryQueue(t *testing.T) {
	c := &fakeClient{}
	a := newAdapter(c, Config{
		QueueURL:  "q0",
		QueueURLs: map[string]string{"b": "q2", "a": "q1", "c": "q0"},
	}, nil)
	if err := a.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
	if !reflect.DeepEqual(c.checked, []string{"q0", "q1", "q2"}) {
		t.Fatalf("checked %v", c.checked)
	}

	c.err = errors.New("AccessDenied")
	if err := a.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check error")
	}
}

func TestAdapter_ClosedAndMissingQueue(t *testing.T) {
	a := newAdapter(&fakeClient{}, Config{QueueURLs: map[string]string{"x": "qx"}, OperationTimeout: time.Second}, nil)
	if err := a.Publish(context.Background(), "y", &eventbus.Message{ID: "1"}); err == nil {
		t.Fatal("expected error for topic without queue")
	}
	_ = a.Close()
	if err := a.Publish(context.Background(), "x", &eventbus.Message{ID: "1"}); err == nil {
		t.Fatal("publish must fail when closed")
	}
	if err := a.HealthCheck(context.Background()); err == nil {
		t.Fatal("health check must fail when closed")
	}
}
