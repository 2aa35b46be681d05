package sse

import (
	"bytes"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nimburion/storefront/pkg/server/router"
)

// LastEventIDQueryParam is the query fallback for clients that cannot set
// the Last-Event-ID header.
const LastEventIDQueryParam = "last_event_id"

// ErrStreamingUnsupported is returned when the response cannot be flushed.
var ErrStreamingUnsupported = errors.New("response writer does not support streaming")

// Handler streams one channel of a Manager over HTTP.
type Handler struct {
	manager *Manager
}

// NewHandler creates an SSE HTTP handler.
func NewHandler(manager *Manager) (*Handler, error) {
	if manager == nil {
		return nil, errors.New("sse manager is required")
	}
	return &Handler{manager: manager}, nil
}

// Channels returns the channels the handler can stream, sorted.
func (h *Handler) Channels() []string {
	out := make([]string, 0, len(h.manager.channels))
	for ch := range h.manager.channels {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// Stream subscribes the request to channel and writes events until the
// client goes away or the manager closes. Errors are only returned before
// the stream starts; they are ErrUnknownChannel, ErrTooManyConnections,
// ErrClosed, ErrStreamingUnsupported or a replay store failure.
func (h *Handler) Stream(c router.Context, channel string) error {
	flusher, ok := c.Response().(http.Flusher)
	if !ok {
		return ErrStreamingUnsupported
	}

	client, replay, err := h.manager.Subscribe(c.Request().Context(), channel, lastEventID(c))
	if err != nil {
		return err
	}
	defer h.manager.Disconnect(client.ID())

	// The server write timeout would cut the stream; clients reconnect and
	// replay if clearing it is not supported.
	_ = http.NewResponseController(c.Response()).SetWriteDeadline(time.Time{})

	header := c.Response().Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache, no-transform")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	c.Response().WriteHeader(http.StatusOK)
	flusher.Flush()

	// The client is registered before the replay is read, so an event
	// published in between arrives twice.
	var replayedThrough string
	for _, evt := range replay {
		if err := writeEvent(c.Response(), evt); err != nil {
			return nil
		}
		replayedThrough = evt.ID
	}
	if err := writeComment(c.Response(), "connected"); err != nil {
		return nil
	}
	flusher.Flush()

	ticker := time.NewTicker(h.manager.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case <-client.Done():
			return nil
		case <-ticker.C:
			if err := writeComment(c.Response(), "heartbeat"); err != nil {
				return nil
			}
			flusher.Flush()
		case evt := <-client.Events():
			if replayedThrough != "" && evt.ID <= replayedThrough {
				continue
			}
			if err := writeEvent(c.Response(), evt); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}

func lastEventID(c router.Context) string {
	if id := strings.TrimSpace(c.Request().Header.Get("Last-Event-ID")); id != "" {
		return id
	}
	return strings.TrimSpace(c.Query(LastEventIDQueryParam))
}

func writeComment(w http.ResponseWriter, value string) error {
	_, err := w.Write([]byte(": " + value + "\n\n"))
	return err
}

func writeEvent(w http.ResponseWriter, event Event) error {
	var buffer bytes.Buffer
	if event.ID != "" {
		buffer.WriteString("id: ")
		buffer.WriteString(event.ID)
		buffer.WriteByte('\n')
	}
	if event.Type != "" {
		buffer.WriteString("event: ")
		buffer.WriteString(event.Type)
		buffer.WriteByte('\n')
	}
	if event.RetryMS > 0 {
		buffer.WriteString("retry: ")
		buffer.WriteString(strconv.Itoa(event.RetryMS))
		buffer.WriteByte('\n')
	}
	data := event.Data
	if len(data) == 0 {
		data = []byte("{}")
	}
	for _, line := range strings.Split(string(data), "\n") {
		buffer.WriteString("data: ")
		buffer.WriteString(line)
		buffer.WriteByte('\n')
	}
	buffer.WriteByte('\n')

	_, err := w.Write(buffer.Bytes())
	return err
}
