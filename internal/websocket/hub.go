package websocket

import (
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrClientNotFound    = errors.New("client not found")
	ErrSourceNotFound    = errors.New("no client registered for source")
	ErrSendBufferFull    = errors.New("send buffer full")
	ErrInvalidMessage    = errors.New("invalid message")
	ErrUnknownMessageTyp = errors.New("unknown message type")
)

// Hub is the single broadcaster of device and gate status. Clients
// register with a source identifier; messages go to everyone or to
// one source. A client whose send buffer is full has that message
// dropped rather than stalling the hub.
type Hub struct {
	clients   map[string]*Client
	clientsMu sync.RWMutex

	sourceClients map[string][]*Client
	sourceMu      sync.RWMutex

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	once       sync.Once

	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:       make(map[string]*Client),
		sourceClients: make(map[string][]*Client),
		broadcast:     make(chan *Message, 256),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		done:          make(chan struct{}),
		logger:        logger,
	}
}

// Run processes registrations and broadcasts until Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop terminates the Run loop.
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	h.clientsMu.Unlock()

	h.logger.Info("status client connected",
		zap.String("client_id", client.ID),
		zap.String("remote", client.Conn.RemoteAddr().String()))
}

func (h *Hub) unregisterClient(client *Client) {
	h.clientsMu.Lock()
	delete(h.clients, client.ID)
	h.clientsMu.Unlock()
	client.closeSend()

	h.detachSource(client)
	h.logger.Info("status client disconnected",
		zap.String("client_id", client.ID),
		zap.String("source", client.Source()))
}

// attachSource binds a client to its registered source identifier.
func (h *Hub) attachSource(client *Client, source string) {
	h.detachSource(client)
	client.setSource(source)

	h.sourceMu.Lock()
	h.sourceClients[source] = append(h.sourceClients[source], client)
	h.sourceMu.Unlock()

	h.logger.Info("client registered",
		zap.String("client_id", client.ID),
		zap.String("source", source))
}

func (h *Hub) detachSource(client *Client) {
	source := client.Source()
	if source == "" {
		return
	}
	h.sourceMu.Lock()
	clients := h.sourceClients[source]
	for i, c := range clients {
		if c.ID == client.ID {
			h.sourceClients[source] = append(clients[:i], clients[i+1:]...)
			break
		}
	}
	if len(h.sourceClients[source]) == 0 {
		delete(h.sourceClients, source)
	}
	h.sourceMu.Unlock()
}

func (h *Hub) broadcastMessage(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("marshal broadcast failed", zap.Error(err))
		return
	}

	h.clientsMu.RLock()
	for _, client := range h.clients {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("send buffer full, message dropped",
				zap.String("client_id", client.ID),
				zap.String("type", message.Type))
		}
	}
	h.clientsMu.RUnlock()
}

// Broadcast queues a message for every connected client.
func (h *Hub) Broadcast(message *Message) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

// SendToSource delivers a message to every client registered under
// the given source identifier.
func (h *Hub) SendToSource(source string, message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.sourceMu.RLock()
	clients := h.sourceClients[source]
	h.sourceMu.RUnlock()

	if len(clients) == 0 {
		return ErrSourceNotFound
	}

	for _, client := range clients {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("send buffer full, message dropped",
				zap.String("client_id", client.ID),
				zap.String("source", source))
		}
	}
	return nil
}

// ClientCount reports connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Sources lists the registered source identifiers.
func (h *Hub) Sources() []string {
	h.sourceMu.RLock()
	defer h.sourceMu.RUnlock()
	sources := make([]string, 0, len(h.sourceClients))
	for source := range h.sourceClients {
		sources = append(sources, source)
	}
	return sources
}

// Register hands a new client to the Run loop.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a client. When the hub has already stopped the
// send stream is closed directly so WritePump still tears down.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		client.closeSend()
	}
}
