package realtime

import (
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 << 10
	sendBuffer     = 256
)

// Client is one WebSocket connection of a user.
type Client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte

	mu     sync.Mutex
	closed bool
}

func NewClient(userID string, conn *websocket.Conn) *Client {
	return &Client{userID: userID, conn: conn, send: make(chan []byte, sendBuffer)}
}

func (c *Client) UserID() string { return c.userID }

// enqueue queues payload without blocking. It reports false when the queue
// is full.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// reply queues a message answering a request of this connection only.
func (c *Client) reply(msgType, roomID, requestID string, data any) {
	payload, err := encode(msgType, roomID, requestID, data)
	if err != nil {
		log.Error().Err(err).Str("component", "realtime").Str("type", msgType).Msg("reply not encoded")
		return
	}
	if !c.enqueue(payload) {
		log.Warn().Str("component", "realtime").Str("user_id", c.userID).Str("type", msgType).Msg("reply dropped")
	}
}

// readPump feeds inbound frames to handle until the connection fails.
func (c *Client) readPump(handle func(*Client, []byte)) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Debug().Err(err).Str("component", "realtime").Str("user_id", c.userID).Msg("read failed")
			}
			return
		}
		handle(c, raw)
	}
}

// writePump drains the send queue and keeps the connection alive with
// pings. It returns once the queue is closed or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
