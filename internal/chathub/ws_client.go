package chathub

import (
	"context"
	"encoding/json"
	"errors"
	"marketchat/backend/internal/models"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 << 10
)

// WebSocketClient implements Client over a gorilla/websocket connection.
type WebSocketClient struct {
	ID     string
	UserID string
	Conn   *websocket.Conn

	send   chan models.Event
	mu     sync.Mutex
	closed bool
	logger *zap.Logger
}

func NewWebSocketClient(conn *websocket.Conn, userID string, buffer int, logger *zap.Logger) *WebSocketClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &WebSocketClient{
		ID:     id,
		UserID: userID,
		Conn:   conn,
		send:   make(chan models.Event, buffer),
		logger: logger.With(zap.String("connection_id", id)),
	}
}

func (c *WebSocketClient) GetID() string     { return c.ID }
func (c *WebSocketClient) GetUserID() string { return c.UserID }

func (c *WebSocketClient) Deliver(ev models.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which then closes the socket.
func (c *WebSocketClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Run starts the pumps. Events are handled by session in arrival order; the
// session is disconnected when the socket goes away.
func (c *WebSocketClient) Run(ctx context.Context, session *Session) {
	go c.writePump()
	go c.readPump(ctx, session)
}

func (c *WebSocketClient) readPump(ctx context.Context, session *Session) {
	defer func() {
		session.Disconnect()
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("error reading message", zap.Error(err))
			}
			return
		}

		var ev models.Event
		if err := json.Unmarshal(message, &ev); err != nil {
			c.logger.Debug("undecodable frame", zap.Error(err))
			session.notify("", CodeBadRequest, nil)
			continue
		}

		if err := session.Handle(ctx, ev); err != nil {
			if errors.Is(err, ErrSessionClosed) {
				return
			}
			c.logger.Debug("event failed", zap.String("event", ev.Event), zap.Error(err))
		}
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteJSON(ev); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
