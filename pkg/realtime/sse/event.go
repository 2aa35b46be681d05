// Package sse streams catalog changes to browsers as server-sent events.
//
// Every envelope the catalog publishes is also handed to a Manager, which
// fans it out to the clients subscribed to the envelope's collection and
// keeps a short replay history so reconnecting clients resume from their
// Last-Event-ID.
package sse

import (
	"fmt"
	"sync/atomic"
	"time"
)

var eventCounter uint64

// Event is one message on a feed channel.
type Event struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	Type      string    `json:"type,omitempty"`
	Data      []byte    `json:"data"`
	RetryMS   int       `json:"retry_ms,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *Event) normalize(now time.Time) {
	if e.Timestamp.IsZero() {
		e.Timestamp = now.UTC()
	}
	if e.ID == "" {
		e.ID = nextEventID(e.Timestamp)
	}
}

// nextEventID returns ids that sort in publish order within one process.
func nextEventID(now time.Time) string {
	seq := atomic.AddUint64(&eventCounter, 1)
	return fmt.Sprintf("%013d-%010d", now.UTC().UnixMilli(), seq)
}
