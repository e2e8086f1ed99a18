package eventstream

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// controlMessage is a client-originated frame: subscribe/unsubscribe/ping.
type controlMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
	ID     string   `json:"id,omitempty"`
}

// Client represents one connected WebSocket subscriber to the event stream.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan Message
	logger *logrus.Logger

	mu     sync.RWMutex
	topics map[string]bool // event-type prefixes this client wants, empty = all
}

// NewClient constructs a Client bound to an accepted WebSocket connection.
func NewClient(hub *Hub, conn *websocket.Conn, logger *logrus.Logger) *Client {
	return &Client{
		id:     uuid.New().String(),
		hub:    hub,
		conn:   conn,
		send:   make(chan Message, 256),
		logger: logger,
		topics: make(map[string]bool),
	}
}

func (c *Client) interestedIn(eventType string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.topics) == 0 {
		return true
	}
	for topic := range c.topics {
		if strings.HasPrefix(eventType, topic) {
			return true
		}
	}
	return false
}

func (c *Client) subscribe(topics []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		c.topics[t] = true
	}
}

func (c *Client) unsubscribe(topics []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.topics, t)
	}
}

// ReadPump pumps control frames from the connection until it closes.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Error("event stream read error")
			}
			return
		}
		var msg controlMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.WithError(err).Warn("failed to parse event stream control message")
			continue
		}
		switch msg.Action {
		case "subscribe":
			c.subscribe(msg.Topics)
		case "unsubscribe":
			c.unsubscribe(msg.Topics)
		case "ping":
			select {
			case c.send <- Message{Type: "pong", Timestamp: time.Now().UnixMilli(), ID: msg.ID}:
			default:
			}
		}
	}
}

// WritePump pumps queued messages and periodic pings to the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.WithError(err).Error("failed to write event stream message")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
