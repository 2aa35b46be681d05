package eventbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// EventEnvelopeContentType is the content type of serialized envelopes
	EventEnvelopeContentType = "application/json"

	// EnvelopeVersion is the schema version of EventEnvelope
	EnvelopeVersion = "1"
)

// EventEnvelope wraps the payload of a catalog event.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Version       string          `json:"version"`
	Producer      string          `json:"producer"`
	Collection    string          `json:"collection"`
	AggregateID   string          `json:"aggregate_id"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// Validate checks whether the envelope contains all required fields.
func (e *EventEnvelope) Validate() error {
	if e == nil {
		return errors.New("event envelope is nil")
	}

	required := []struct{ name, value string }{
		{"id", e.ID},
		{"type", e.Type},
		{"version", e.Version},
		{"producer", e.Producer},
		{"collection", e.Collection},
		{"aggregate_id", e.AggregateID},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Errorf("missing required field: %s", field.name)
		}
	}
	if e.OccurredAt.IsZero() {
		return errors.New("occurred_at is required")
	}
	if len(e.Payload) == 0 {
		return errors.New("payload is required")
	}
	return nil
}

// ToMessage serializes the envelope. The aggregate id is the partition key so
// events about one record stay ordered.
func (e *EventEnvelope) ToMessage() (*Message, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize event envelope: %w", err)
	}

	headers := map[string]string{
		"type":       e.Type,
		"collection": e.Collection,
	}
	if e.CorrelationID != "" {
		headers["correlation_id"] = e.CorrelationID
	}
	return &Message{
		ID:          e.ID,
		Key:         e.AggregateID,
		Value:       data,
		ContentType: EventEnvelopeContentType,
		Timestamp:   e.OccurredAt,
		Headers:     headers,
	}, nil
}

// DeserializeEventEnvelope unmarshals and validates an envelope from JSON.
func DeserializeEventEnvelope(data []byte) (*EventEnvelope, error) {
	if len(data) == 0 {
		return nil, errors.New("cannot deserialize empty envelope")
	}

	var envelope EventEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to deserialize event envelope: %w", err)
	}
	if err := envelope.Validate(); err != nil {
		return nil, err
	}
	return &envelope, nil
}
