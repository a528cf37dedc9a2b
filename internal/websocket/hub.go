package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/skills-gamification/internal/domain"
)

// Message types
const (
	MessageTypeEvent             = "event"
	MessageTypeLeaderboardUpdate = "leaderboard_update"
	MessageTypeSubscribe         = "subscribe"
	MessageTypeUnsubscribe       = "unsubscribe"
	MessageTypeSubscribed        = "subscribed"
	MessageTypeUnsubscribed      = "unsubscribed"
	MessageTypePing              = "ping"
	MessageTypePong              = "pong"
	MessageTypeError             = "error"
)

// Channel prefixes. A user channel only accepts its own user; a
// leaderboard channel is open to every authenticated client.
const (
	userChannelPrefix        = "user:"
	leaderboardChannelPrefix = "leaderboard:"
)

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	Channel   string      `json:"channel,omitempty"`
	Event     string      `json:"event,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// LeaderboardUpdate tells leaderboard subscribers that a user's balance moved
type LeaderboardUpdate struct {
	Currency domain.Currency `json:"currency"`
	UserID   string          `json:"user_id"`
	Delta    int64           `json:"delta"`
}

// UserChannel names the private channel of a user
func UserChannel(userID string) string {
	return userChannelPrefix + userID
}

// LeaderboardChannel names the public channel of a currency
func LeaderboardChannel(currency domain.Currency) string {
	return leaderboardChannelPrefix + string(currency)
}

// canSubscribe reports whether userID may join channel
func canSubscribe(userID, channel string) bool {
	switch {
	case strings.HasPrefix(channel, userChannelPrefix):
		return channel == UserChannel(userID)
	case strings.HasPrefix(channel, leaderboardChannelPrefix):
		return domain.Currency(strings.TrimPrefix(channel, leaderboardChannelPrefix)).Validate() == nil
	}
	return false
}

// Stats summarises hub occupancy
type Stats struct {
	TotalConnections int            `json:"total_connections"`
	Channels         map[string]int `json:"channels"`
}

// Hub maintains the set of active clients and fans events out to the
// channels they subscribed to.
type Hub struct {
	// Subscribed clients by channel
	channels map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	broadcast   chan *Message
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest

	mu     sync.RWMutex
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client  *Client
	channel string
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		channels:    make(map[string]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id, "user_id", client.userID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				for channel, clients := range h.channels {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.channels, channel)
						}
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.allClients[req.client]; ok {
				if _, ok := h.channels[req.channel]; !ok {
					h.channels[req.channel] = make(map[*Client]bool)
				}
				h.channels[req.channel][req.client] = true
			}
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "channel", req.channel)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.channels[req.channel]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.channels, req.channel)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "channel", req.channel)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// broadcastMessage sends a message to the subscribers of its channel
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	for client := range h.channels[message.Channel] {
		select {
		case client.send <- data:
		default:
			// Client's buffer is full, skip
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

func (h *Hub) enqueue(message *Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "channel", message.Channel)
	}
}

// PublishEvents pushes each event to its user's channel. Points events
// also announce the balance moves on the matching leaderboard channels.
func (h *Hub) PublishEvents(_ context.Context, events []domain.GamificationEvent) error {
	now := time.Now()
	for _, e := range events {
		h.enqueue(&Message{
			Type:      MessageTypeEvent,
			Channel:   UserChannel(e.UserID),
			Event:     string(e.Type),
			Data:      e,
			Timestamp: now,
		})

		points, ok := e.Data.(domain.PointsAwarded)
		if e.Type != domain.EventPointsAwarded || !ok {
			continue
		}
		for currency, delta := range points.ByCategory {
			h.enqueue(&Message{
				Type:    MessageTypeLeaderboardUpdate,
				Channel: LeaderboardChannel(currency),
				Data: LeaderboardUpdate{
					Currency: currency,
					UserID:   e.UserID,
					Delta:    delta,
				},
				Timestamp: now,
			})
		}
	}
	return nil
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe adds a client to a channel
func (h *Hub) Subscribe(client *Client, channel string) {
	h.subscribe <- &subscriptionRequest{client: client, channel: channel}
}

// Unsubscribe removes a client from a channel
func (h *Hub) Unsubscribe(client *Client, channel string) {
	h.unsubscribe <- &subscriptionRequest{client: client, channel: channel}
}

// GetSubscriberCount returns the number of subscribers of a channel
func (h *Hub) GetSubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}

// Stats returns the connection count and subscribers per channel
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	stats := Stats{TotalConnections: len(h.allClients), Channels: make(map[string]int, len(h.channels))}
	for channel, clients := range h.channels {
		stats.Channels[channel] = len(clients)
	}
	return stats
}
