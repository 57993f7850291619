package websocket

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianly1003/changefeed/internal/domain/events"
	"github.com/brianly1003/changefeed/internal/domain/ports"
	"github.com/brianly1003/changefeed/internal/hub"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 15 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 90 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Clients have nothing to say.
	maxMessageSize = 4 * 1024

	// Send buffer size per client.
	sendBufferSize = 64

	// DefaultHeartbeatInterval is the application-level heartbeat period.
	DefaultHeartbeatInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Change hints carry no data, so cross-origin listeners are harmless.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades /ws requests and subscribes each client to the event hub.
type Handler struct {
	hub      ports.EventHub
	rootName string

	mu      sync.RWMutex
	clients map[string]*Client

	heartbeatInterval time.Duration
	heartbeatDone     chan struct{}
	heartbeatSeq      int64
	startTime         time.Time
	stopOnce          sync.Once
}

// NewHandler creates a new WebSocket handler publishing through eventHub.
// rootName is the base name of the watched root, shown to clients on connect.
func NewHandler(eventHub ports.EventHub, rootName string) *Handler {
	return &Handler{
		hub:               eventHub,
		rootName:          rootName,
		clients:           make(map[string]*Client),
		heartbeatInterval: DefaultHeartbeatInterval,
		heartbeatDone:     make(chan struct{}),
		startTime:         time.Now(),
	}
}

// SetHeartbeatInterval overrides the heartbeat period. Call before Start.
func (h *Handler) SetHeartbeatInterval(d time.Duration) {
	if d > 0 {
		h.heartbeatInterval = d
	}
}

// Start starts the heartbeat broadcaster.
func (h *Handler) Start() {
	go h.heartbeatLoop()
}

// Stop stops heartbeats and closes every client connection.
func (h *Handler) Stop() {
	h.stopOnce.Do(func() {
		close(h.heartbeatDone)

		h.mu.Lock()
		clients := h.clients
		h.clients = make(map[string]*Client)
		h.mu.Unlock()

		for _, client := range clients {
			client.Close()
		}
		log.Debug().Int("clients", len(clients)).Msg("websocket handler stopped")
	})
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("failed to upgrade connection")
		return
	}

	client := NewClient(conn, func(id string) {
		h.hub.Unsubscribe(id)
		h.removeClient(id)
	})

	h.mu.Lock()
	h.clients[client.ID()] = client
	h.mu.Unlock()

	// Greet before subscribing so connected is always the first frame.
	if data, err := events.NewConnectedEvent(client.ID(), h.rootName).ToJSON(); err == nil {
		client.Send(data)
	}

	h.hub.Subscribe(hub.NewFilteredSubscriber(NewClientSubscriber(client),
		events.EventTypeChangesAvailable,
		events.EventTypeHeartbeat,
	))

	log.Info().
		Str("client_id", client.ID()).
		Str("remote", conn.RemoteAddr().String()).
		Msg("push client connected")

	client.Start()
}

func (h *Handler) removeClient(id string) {
	h.mu.Lock()
	_, ok := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()
	if ok {
		log.Info().Str("client_id", id).Msg("push client disconnected")
	}
}

// ClientCount returns the number of connected clients.
func (h *Handler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Handler) heartbeatLoop() {
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.heartbeatDone:
			return
		case <-ticker.C:
			if h.ClientCount() == 0 {
				continue
			}
			seq := atomic.AddInt64(&h.heartbeatSeq, 1)
			h.hub.Publish(events.NewHeartbeatEvent(seq, int64(time.Since(h.startTime).Seconds())))
			log.Trace().Int64("seq", seq).Msg("heartbeat published")
		}
	}
}
