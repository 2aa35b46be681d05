package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/nimburion/storefront/pkg/eventbus"
)

type fakeWriter struct {
	written []kafka.Message
	err     error
	closed  bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("publish without deadline")
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewAdapter(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"valid configuration", Config{Brokers: []string{"localhost:9092"}, OperationTimeout: time.Second, MaxRetries: 5}, false},
		{"defaults", Config{Brokers: []string{"localhost:9092"}}, false},
		{"missing brokers", Config{OperationTimeout: time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, err := NewAdapter(tt.config, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatal("NewAdapter() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewAdapter() unexpected error: %v", err)
			}
			if adapter.config.OperationTimeout == 0 || adapter.config.MaxRetries == 0 {
				t.Errorf("defaults not applied: %+v", adapter.config)
			}
			if err := adapter.Close(); err != nil {
				t.Errorf("Close() unexpected error: %v", err)
			}
		})
	}
}

func TestAdapter_Publish(t *testing.T) {
	w := &fakeWriter{}
	adapter := newAdapter(w, Config{Brokers: []string{"b:9092"}, OperationTimeout: time.Second}, nil)

	msg := &eventbus.Message{
		ID:          "m1",
		Key:         "product-1",
		Value:       []byte(`{"id":"product-1"}`),
		Headers:     map[string]string{"type": eventbus.TopicProductCreated},
		ContentType: "application/json",
		Timestamp:   time.Unix(1700000000, 0),
	}
	if err := adapter.Publish(context.Background(), eventbus.TopicProductCreated, msg); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(w.written) != 1 {
		t.Fatalf("expected 1 written message, got %d", len(w.written))
	}
	got := w.written[0]
	if got.Topic != eventbus.TopicProductCreated || string(got.Key) != "product-1" || string(got.Value) != `{"id":"product-1"}` {
		t.Fatalf("unexpected kafka message %+v", got)
	}
	headers := map[string]string{}
	for _, h := range got.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["type"] != eventbus.TopicProductCreated || headers["content-type"] != "application/json" {
		t.Fatalf("unexpected headers %v", headers)
	}
}

func TestAdapter_PublishErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	adapter := newAdapter(w, Config{Brokers: []string{"b:9092"}, OperationTimeout: time.Second}, nil)
	msg := &eventbus.Message{ID: "m1", Value: []byte("v")}

	if err := adapter.Publish(context.Background(), "t", msg); err == nil {
		t.Fatal("expected writer error")
	}
	if err := adapter.Publish(context.Background(), "t", nil); err == nil {
		t.Fatal("expected error for nil message")
	}

	if err := adapter.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !w.closed {
		t.Fatal("writer not closed")
	}
	if err := adapter.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if err := adapter.Publish(context.Background(), "t", msg); err == nil {
		t.Fatal("publish must fail after close")
	}
	if err := adapter.HealthCheck(context.Background()); err == nil {
		t.Fatal("health check must fail after close")
	}
}

func TestAdapter_HealthCheckDialFailure(t *testing.T) {
	adapter := newAdapter(&fakeWriter{}, Config{Brokers: []string{"b:9092"}}, nil)
	adapter.dial = func(context.Context, string, string) (*kafka.Conn, error) {
		return nil, errors.New("connection refused")
	}
	if err := adapter.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestConvertHeaders(t *testing.T) {
	if got := convertHeaders(nil, ""); got != nil {
		t.Fatalf("expected nil headers, got %v", got)
	}
	got := convertHeaders(map[string]string{"a": "1"}, "")
	if len(got) != 1 || got[0].Key != "a" || string(got[0].Value) != "1" {
		t.Fatalf("unexpected headers %v", got)
	}
}
