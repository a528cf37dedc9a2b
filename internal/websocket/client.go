package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/skills-gamification/internal/auth"
	"github.com/skills-gamification/internal/config"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// client frames are small subscribe/ping commands
	maxMessageSize = 1024

	// user channel plus a handful of leaderboards
	maxSubscriptions = 8

	sendBuffer = 64
)

// NewUpgrader builds an upgrader that accepts same-host requests and
// the configured origins. An empty origin list allows every origin.
func NewUpgrader(cfg config.WebSocketConfig) *websocket.Upgrader {
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = true
	}
	return &websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" || allowed[origin] {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && u.Host == r.Host
		},
	}
}

// Client is one authenticated connection. channels is only touched by
// ServeWs before the pumps start and by readPump afterwards.
type Client struct {
	id       string
	userID   string
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	channels map[string]bool
	logger   *slog.Logger
}

// ClientMessage represents a message from the client
type ClientMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
}

// NewClient creates a client for an authenticated user
func NewClient(hub *Hub, conn *websocket.Conn, userID string, logger *slog.Logger) *Client {
	return &Client{
		id:       uuid.NewString(),
		userID:   userID,
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		channels: make(map[string]bool),
		logger:   logger.With("user_id", userID),
	}
}

// readPump handles client commands until the connection drops
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket closed unexpectedly", "error", err)
			}
			return
		}

		var cmd ClientMessage
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.sendError("invalid message format")
			continue
		}
		c.handleMessage(&cmd)
	}
}

func (c *Client) handleMessage(msg *ClientMessage) {
	switch msg.Type {
	case MessageTypeSubscribe:
		if msg.Channel == "" {
			c.sendError("channel required for subscribe")
			return
		}
		if !canSubscribe(c.userID, msg.Channel) {
			c.sendError("subscription to " + msg.Channel + " is not allowed")
			return
		}
		if !c.channels[msg.Channel] && len(c.channels) >= maxSubscriptions {
			c.sendError("subscription limit reached")
			return
		}
		c.join(msg.Channel)
		c.sendAck(MessageTypeSubscribed, msg.Channel)

	case MessageTypeUnsubscribe:
		if c.channels[msg.Channel] {
			delete(c.channels, msg.Channel)
			c.hub.Unsubscribe(c, msg.Channel)
			c.sendAck(MessageTypeUnsubscribed, msg.Channel)
		}

	case MessageTypePing:
		c.sendPong()

	default:
		c.logger.Debug("unknown message type", "type", msg.Type)
	}
}

// writePump drains the send queue and keeps the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

func (c *Client) join(channel string) {
	c.channels[channel] = true
	c.hub.Subscribe(c, channel)
}

// queue drops the message when the client is not keeping up
func (c *Client) queue(msg Message) {
	data, _ := json.Marshal(msg)
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) sendError(errMsg string) {
	c.queue(Message{
		Type:      MessageTypeError,
		Data:      map[string]string{"error": errMsg},
		Timestamp: time.Now(),
	})
}

func (c *Client) sendAck(action, channel string) {
	c.queue(Message{
		Type:      action,
		Channel:   channel,
		Data:      map[string]string{"status": "ok"},
		Timestamp: time.Now(),
	})
}

func (c *Client) sendPong() {
	c.queue(Message{Type: MessageTypePong, Timestamp: time.Now()})
}

// ServeWs upgrades an authenticated request and subscribes the client
// to its own user channel.
func ServeWs(hub *Hub, upgrader *websocket.Upgrader, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(hub, conn, user.UserID, logger)
	hub.Register(client)
	client.join(UserChannel(user.UserID))

	go client.writePump()
	go client.readPump()

	logger.Debug("new websocket connection", "client_id", client.id, "user_id", user.UserID)
}
