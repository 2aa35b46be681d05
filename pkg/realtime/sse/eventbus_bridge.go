package sse

import (
	"context"
	"encoding/json"

	"github.com/nimburion/storefront/pkg/eventbus"
)

// Observe forwards a catalog envelope to the feed channel named after its
// collection. It matches eventbus.Observer, so the manager can be attached
// with eventbus.WithObserver(m.Observe).
func (m *Manager) Observe(ctx context.Context, envelope *eventbus.EventEnvelope) {
	if envelope == nil || !m.Serves(envelope.Collection) {
		return
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		m.log.Warn("feed event not encoded", "type", envelope.Type, "error", err)
		return
	}
	if _, err := m.Publish(ctx, PublishRequest{
		Channel: envelope.Collection,
		Type:    envelope.Type,
		Data:    data,
	}); err != nil {
		m.log.Warn("feed event not published", "type", envelope.Type, "channel", envelope.Collection, "error", err)
	}
}
