package websocket

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// Submitter accepts raw Mongrel2 messages for decoding.
type Submitter interface {
	Submit(ctx context.Context, msg []byte) error
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Frontends connect directly, not from browsers.
		return true
	},
}

// Handler upgrades ingest connections. Every text or binary message on the
// connection is one Mongrel2 request message.
type Handler struct {
	manager   *Manager
	submitter Submitter
	maxSize   int64
	logger    *slog.Logger
}

// NewHandler creates a new WebSocket ingest handler. maxSize bounds a single
// message, zero means no limit.
func NewHandler(manager *Manager, submitter Submitter, maxSize int, logger *slog.Logger) *Handler {
	return &Handler{
		manager:   manager,
		submitter: submitter,
		maxSize:   int64(maxSize),
		logger:    logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	if h.maxSize > 0 {
		conn.SetReadLimit(h.maxSize)
	}

	client := h.manager.AddConnection(conn, r)
	h.logger.Debug("websocket connected", "conn_id", client.ID, "remote_addr", client.RemoteAddr)

	go h.readPump(client)
}

func (h *Handler) readPump(client *Client) {
	defer func() {
		h.manager.RemoveConnection(client.ID)
		client.Conn.Close()
		h.logger.Debug("websocket disconnected", "conn_id", client.ID, "messages", client.Messages())
	}()

	for {
		kind, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error", "conn_id", client.ID, "error", err)
			}
			return
		}
		if kind != websocket.BinaryMessage && kind != websocket.TextMessage {
			continue
		}

		client.messages.Add(1)
		if err := h.submitter.Submit(client.ctx, message); err != nil {
			h.logger.Warn("websocket message not queued", "conn_id", client.ID, "error", err)
		}
	}
}
