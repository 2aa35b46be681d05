package sse

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nimburion/storefront/pkg/observability/logger"
)

var (
	// ErrTooManyConnections indicates max local SSE connections reached.
	ErrTooManyConnections = errors.New("too many sse connections")
	// ErrUnknownChannel is returned for a channel the manager does not serve.
	ErrUnknownChannel = errors.New("unknown feed channel")
	// ErrClosed is returned once the manager has been closed.
	ErrClosed = errors.New("feed closed")
)

// ManagerConfig configures the feed manager.
type ManagerConfig struct {
	// Channels lists the collections clients may subscribe to. Events for
	// other collections are dropped.
	Channels          []string
	MaxConnections    int
	ClientBuffer      int
	ReplayLimit       int
	HeartbeatInterval time.Duration
	DefaultRetryMS    int
}

// DefaultManagerConfig returns defaults tuned for browser storefronts.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Channels:          []string{"products", "offers", "orders"},
		MaxConnections:    10000,
		ClientBuffer:      64,
		ReplayLimit:       100,
		HeartbeatInterval: 20 * time.Second,
		DefaultRetryMS:    3000,
	}
}

// Manager fans events out to the local clients of each channel. A client
// whose buffer is full is disconnected rather than slowing publishers down;
// it reconnects and catches up from the replay store.
type Manager struct {
	cfg      ManagerConfig
	channels map[string]bool
	store    Store
	log      logger.Logger

	mu          sync.RWMutex
	closed      bool
	connections map[string]*Client
	byChannel   map[string]map[string]*Client
}

// Client is one connected subscriber.
type Client struct {
	id        string
	channel   string
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// PublishRequest describes an outgoing event.
type PublishRequest struct {
	Channel string
	Type    string
	Data    []byte
	RetryMS int
}

// NewManager creates a feed manager. A nil store keeps replay history in
// memory.
func NewManager(cfg ManagerConfig, store Store, log logger.Logger) *Manager {
	cfg = normalizeManagerConfig(cfg)
	if store == nil {
		store = NewInMemoryStore(cfg.ReplayLimit)
	}
	channels := make(map[string]bool, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		if ch = strings.TrimSpace(ch); ch != "" {
			channels[ch] = true
		}
	}
	return &Manager{
		cfg:         cfg,
		channels:    channels,
		store:       store,
		log:         logger.OrNop(log),
		connections: make(map[string]*Client),
		byChannel:   make(map[string]map[string]*Client),
	}
}

// Serves reports whether channel can be subscribed to.
func (m *Manager) Serves(channel string) bool {
	return m.channels[strings.TrimSpace(channel)]
}

// Subscribe registers a client on channel and returns the events it missed
// since lastEventID.
func (m *Manager) Subscribe(ctx context.Context, channel, lastEventID string) (*Client, []Event, error) {
	channel = strings.TrimSpace(channel)
	if !m.Serves(channel) {
		return nil, nil, ErrUnknownChannel
	}

	client := &Client{
		id:      nextEventID(time.Now()),
		channel: channel,
		events:  make(chan Event, m.cfg.ClientBuffer),
		done:    make(chan struct{}),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, nil, ErrClosed
	}
	if len(m.connections) >= m.cfg.MaxConnections {
		m.mu.Unlock()
		return nil, nil, ErrTooManyConnections
	}
	m.connections[client.id] = client
	if m.byChannel[channel] == nil {
		m.byChannel[channel] = make(map[string]*Client)
	}
	m.byChannel[channel][client.id] = client
	m.mu.Unlock()

	replay, err := m.store.GetSince(ctx, channel, strings.TrimSpace(lastEventID), m.cfg.ReplayLimit)
	if err != nil {
		m.Disconnect(client.id)
		return nil, nil, err
	}
	return client, replay, nil
}

// Publish records an event in the replay store and delivers it to the
// channel's clients. Events for channels the manager does not serve are
// ignored.
func (m *Manager) Publish(ctx context.Context, req PublishRequest) (Event, error) {
	channel := strings.TrimSpace(req.Channel)
	if !m.Serves(channel) {
		return Event{}, ErrUnknownChannel
	}
	event := Event{
		Channel: channel,
		Type:    strings.TrimSpace(req.Type),
		Data:    append([]byte(nil), req.Data...),
		RetryMS: req.RetryMS,
	}
	if event.RetryMS <= 0 {
		event.RetryMS = m.cfg.DefaultRetryMS
	}
	event.normalize(time.Now())

	if err := m.store.Append(ctx, event); err != nil {
		return Event{}, err
	}
	m.deliver(event)
	return event, nil
}

// Connections returns the number of connected clients.
func (m *Manager) Connections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Disconnect removes and closes one client. Unknown ids are ignored.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	client := m.connections[clientID]
	if client == nil {
		m.mu.Unlock()
		return
	}
	delete(m.connections, clientID)
	channelClients := m.byChannel[client.channel]
	delete(channelClients, clientID)
	if len(channelClients) == 0 {
		delete(m.byChannel, client.channel)
	}
	m.mu.Unlock()

	client.close()
}

// Close disconnects every client and closes the replay store.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	clients := make([]*Client, 0, len(m.connections))
	for _, c := range m.connections {
		clients = append(clients, c)
	}
	m.connections = make(map[string]*Client)
	m.byChannel = make(map[string]map[string]*Client)
	m.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	return m.store.Close()
}

func (m *Manager) deliver(event Event) {
	m.mu.RLock()
	clients := m.byChannel[event.Channel]
	snapshot := make([]*Client, 0, len(clients))
	for _, c := range clients {
		snapshot = append(snapshot, c)
	}
	m.mu.RUnlock()

	for _, c := range snapshot {
		if !c.enqueue(event) {
			m.log.Debug("feed client too slow, disconnecting", "client_id", c.id, "channel", c.channel)
			m.Disconnect(c.id)
		}
	}
}

func normalizeManagerConfig(cfg ManagerConfig) ManagerConfig {
	def := DefaultManagerConfig()
	if len(cfg.Channels) == 0 {
		cfg.Channels = def.Channels
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = def.MaxConnections
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = def.ClientBuffer
	}
	if cfg.ReplayLimit <= 0 {
		cfg.ReplayLimit = def.ReplayLimit
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.DefaultRetryMS <= 0 {
		cfg.DefaultRetryMS = def.DefaultRetryMS
	}
	return cfg
}

// ID returns the client id.
func (c *Client) ID() string { return c.id }

// Channel returns the subscribed channel.
func (c *Client) Channel() string { return c.channel }

// Events returns the client's event stream.
func (c *Client) Events() <-chan Event { return c.events }

// Done is closed when the client is disconnected.
func (c *Client) Done() <-chan struct{} { return c.done }

// enqueue never blocks; it reports false when the buffer is full or the
// client is gone.
func (c *Client) enqueue(event Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.events <- event:
		return true
	default:
		return false
	}
}

// close only closes done: deliver may still hold the client and a send on a
// closed events channel would panic.
func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}
