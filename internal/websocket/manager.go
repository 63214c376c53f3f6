package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ezbox-project/go-ezcfg/internal/storage"
)

const (
	// eventBuffer is the per-client backlog before events are dropped
	eventBuffer = 64
	writeWait   = 10 * time.Second
)

// Server message types.
const (
	TypeHello = "hello"
	TypeEvent = "event"
	TypeError = "error"
)

// ServerMessage is sent from the daemon to a client.
type ServerMessage struct {
	Type     string         `json:"type"`
	ClientID string         `json:"client_id,omitempty"`
	Event    *storage.Event `json:"event,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// ClientMessage is sent from a client. Filter selects the entry names the
// client receives, with the same syntax as the defaults pattern: a name
// prefix, or "!prefix" to exclude it. An empty filter selects everything.
type ClientMessage struct {
	Filter *string `json:"filter,omitempty"`
}

// clientConnection is one subscribed client
type clientConnection struct {
	id     string
	conn   *websocket.Conn
	cancel func()

	filterMu sync.RWMutex
	filter   string
}

func (c *clientConnection) setFilter(f string) {
	c.filterMu.Lock()
	c.filter = f
	c.filterMu.Unlock()
}

// wants reports whether e passes the client's filter. Events without a
// name, such as commit, always pass.
func (c *clientConnection) wants(e storage.Event) bool {
	c.filterMu.RLock()
	defer c.filterMu.RUnlock()
	if c.filter == "" || e.Name == "" {
		return true
	}
	return storage.MatchPattern(e.Name, c.filter)
}

// Manager streams NVRAM change events to WebSocket clients
type Manager struct {
	broker   *storage.Broker
	logger   *zap.Logger
	upgrader websocket.Upgrader

	clientsMu sync.RWMutex
	clients   map[string]*clientConnection // client id -> connection
}

// NewManager creates a manager publishing the events of broker. Origins
// lists the accepted Origin headers; empty or "*" accepts any.
func NewManager(broker *storage.Broker, origins []string, logger *zap.Logger) *Manager {
	return &Manager{
		broker: broker,
		logger: logger.Named("websocket-manager"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(origins),
		},
		clients: make(map[string]*clientConnection),
	}
}

func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return len(allowed) == 0 || origin == "" || allowed[origin]
	}
}

// HandleConnection upgrades the request and streams events until the client
// goes away.
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	events, cancel := m.broker.Subscribe(eventBuffer)
	client := &clientConnection{
		id:     uuid.New().String(),
		conn:   conn,
		cancel: cancel,
	}

	m.clientsMu.Lock()
	m.clients[client.id] = client
	m.clientsMu.Unlock()

	m.logger.Info("WebSocket client connected", zap.String("client_id", client.id))

	if err := m.write(client, ServerMessage{Type: TypeHello, ClientID: client.id}); err != nil {
		m.remove(client)
		return
	}

	go m.writeLoop(client, events)
	go m.readLoop(client)
}

func (m *Manager) write(c *clientConnection, msg ServerMessage) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

// writeLoop is the only writer after the hello message.
func (m *Manager) writeLoop(c *clientConnection, events <-chan storage.Event) {
	defer m.remove(c)

	for e := range events {
		if !c.wants(e) {
			continue
		}
		ev := e
		if err := m.write(c, ServerMessage{Type: TypeEvent, Event: &ev}); err != nil {
			m.logger.Debug("WebSocket write failed",
				zap.String("client_id", c.id),
				zap.Error(err))
			return
		}
	}
}

func (m *Manager) readLoop(c *clientConnection) {
	defer m.remove(c)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Error("WebSocket read error", zap.Error(err))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			m.logger.Debug("Failed to parse message", zap.Error(err))
			continue
		}
		if msg.Filter != nil {
			c.setFilter(*msg.Filter)
			m.logger.Debug("Client filter updated",
				zap.String("client_id", c.id),
				zap.String("filter", *msg.Filter))
		}
	}
}

// remove unsubscribes c and closes its connection. Safe to call more than
// once.
func (m *Manager) remove(c *clientConnection) {
	m.clientsMu.Lock()
	_, ok := m.clients[c.id]
	delete(m.clients, c.id)
	m.clientsMu.Unlock()

	c.cancel()
	_ = c.conn.Close()
	if ok {
		m.logger.Info("WebSocket client disconnected", zap.String("client_id", c.id))
	}
}

// ConnectedClients returns the number of connected clients.
func (m *Manager) ConnectedClients() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

// Close disconnects every client.
func (m *Manager) Close() {
	m.clientsMu.RLock()
	clients := make([]*clientConnection, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.clientsMu.RUnlock()

	for _, c := range clients {
		m.remove(c)
	}
}
