package websocket

import (
	"encoding/json"
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
	maxMessageSize = 64 * 1024
)

// Client is one connected status subscriber.
type Client struct {
	ID   string
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte

	mu     sync.RWMutex
	source string

	closeOnce sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.New().String(),
		Hub:  hub,
		Conn: conn,
		Send: make(chan []byte, 64),
	}
}

// Source returns the identifier the client registered with.
func (c *Client) Source() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.source
}

func (c *Client) setSource(source string) {
	c.mu.Lock()
	c.source = source
	c.mu.Unlock()
}

// closeSend ends the outbound stream. WritePump flushes what is
// queued, writes the close frame and tears the connection down.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.Send) })
}

// ReadPump consumes inbound messages until the connection drops. The
// protocol is closed: malformed envelopes and unknown types get an
// ERROR reply and the connection is dropped. The connection itself is
// closed by WritePump once the queued reply has been flushed, so the
// peer sees the ERROR and a close frame instead of a torn socket.
func (c *Client) ReadPump() {
	defer c.Hub.Unregister(c)

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Error("websocket read error",
					zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
		if !c.handleMessage(raw) {
			return
		}
	}
}

// WritePump pushes queued messages and keeps the connection alive
// with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
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

// handleMessage processes one inbound envelope; false drops the
// connection.
func (c *Client) handleMessage(raw []byte) bool {
	msg, err := ParseMessage(raw)
	if err != nil {
		c.Hub.logger.Warn("rejecting message",
			zap.String("client_id", c.ID), zap.Error(err))
		c.sendError(err.Error())
		return false
	}

	switch msg.Type {
	case MessageTypeRegister:
		var reg RegisterData
		if msg.Data != nil {
			if err := json.Unmarshal(msg.Data, &reg); err != nil {
				c.sendError("malformed REGISTER payload")
				return false
			}
		}
		if reg.Source == "" && msg.Source != "" {
			reg.Source = msg.Source
		}
		if reg.Source == "" {
			c.sendError("REGISTER requires a source")
			return false
		}
		c.Hub.attachSource(c, reg.Source)
		return true

	case MessageTypeGateStatus, MessageTypePrintStatus, MessageTypeError:
		// status types are server-to-client only
		c.Hub.logger.Warn("client sent server-only type",
			zap.String("client_id", c.ID), zap.String("type", msg.Type))
		c.sendError("type " + msg.Type + " is not accepted from clients")
		return false
	}
	return true
}

func (c *Client) sendError(detail string) {
	msg, err := NewMessage(MessageTypeError, ErrorData{Message: detail})
	if err != nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}
