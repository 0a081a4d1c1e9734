package websocket

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents a single ingest connection from a frontend.
type Client struct {
	ID         string
	Conn       *websocket.Conn
	RemoteAddr string

	ctx      context.Context
	cancel   context.CancelFunc
	messages atomic.Int64
	mu       sync.Mutex
}

// Messages returns how many messages the client has sent.
func (c *Client) Messages() int64 {
	return c.messages.Load()
}

// Close sends a close frame and cancels pending submissions.
func (c *Client) Close(code int, reason string) error {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	deadline := time.Now().Add(time.Second)
	return c.Conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}

// Manager tracks live ingest connections.
type Manager struct {
	clients map[string]*Client
	mu      sync.RWMutex
	total   atomic.Int64
	logger  *slog.Logger
}

// NewManager creates a new WebSocket connection manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// AddConnection registers a new WebSocket connection.
func (m *Manager) AddConnection(conn *websocket.Conn, r *http.Request) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		ID:         generateConnID(),
		Conn:       conn,
		RemoteAddr: r.RemoteAddr,
		ctx:        ctx,
		cancel:     cancel,
	}

	m.mu.Lock()
	m.clients[client.ID] = client
	m.mu.Unlock()
	m.total.Add(1)

	return client
}

// RemoveConnection unregisters a WebSocket connection.
func (m *Manager) RemoveConnection(id string) {
	m.mu.Lock()
	client, exists := m.clients[id]
	delete(m.clients, id)
	m.mu.Unlock()

	if exists {
		client.cancel()
	}
}

// CloseAll asks every connected frontend to go away.
func (m *Manager) CloseAll() {
	m.mu.RLock()
	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.RUnlock()

	for _, c := range clients {
		if err := c.Close(websocket.CloseGoingAway, "shutting down"); err != nil {
			m.logger.Warn("websocket close failed", "conn_id", c.ID, "error", err)
		}
	}
}

// Stats returns current WebSocket statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return ManagerStats{
		ActiveConnections: len(m.clients),
		TotalConnections:  m.total.Load(),
	}
}

// ManagerStats holds WebSocket manager metrics.
type ManagerStats struct {
	ActiveConnections int   `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
}

func generateConnID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
