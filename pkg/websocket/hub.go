package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"compengine/pkg/logger"
)

// Hub fans published events out to subscribed clients. Clients join topics;
// an event with an empty topic reaches everyone.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	topics     map[string]map[*Client]bool
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger
}

type Message struct {
	Type      string                 `json:"type"`
	Topic     string                 `json:"topic,omitempty"`
	Timestamp int64                  `json:"timestamp"`
	Data      interface{}            `json:"data,omitempty"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		topics:     make(map[string]map[*Client]bool),
		done:       make(chan struct{}),
		logger:     log.WithField("component", "event_hub"),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			if message.Topic != "" {
				h.sendToTopic(message.Topic, message)
			} else {
				h.sendToAll(message)
			}
		}
	}
}

// Publish queues an event. It never blocks; events are dropped when the hub
// is saturated.
func (h *Hub) Publish(topic, eventType string, data interface{}) {
	message := Message{
		Type:      eventType,
		Topic:     topic,
		Timestamp: getCurrentTimestamp(),
		Data:      data,
	}
	select {
	case h.broadcast <- message:
	default:
		h.logger.WithField("type", eventType).Warn("Event hub saturated, dropping event")
	}
}

// Register adds a client unless the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.clients[client] = true
	h.logger.WithField("client_id", client.ID).Info("Event client registered")

	h.sendToClient(client, Message{
		Type:      "welcome",
		Timestamp: getCurrentTimestamp(),
		Data: map[string]interface{}{
			"message": "Connected successfully",
		},
	})
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.removeClient(client)
}

// removeClient requires h.mutex held for writing.
func (h *Hub) removeClient(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)

	for topic, members := range h.topics {
		if _, exists := members[client]; exists {
			delete(members, client)
			if len(members) == 0 {
				delete(h.topics, topic)
			}
		}
	}
	h.logger.WithField("client_id", client.ID).Info("Event client unregistered")
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		h.removeClient(client)
	}
}

func (h *Hub) sendToAll(message Message) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	data, _ := json.Marshal(message)
	for client := range h.clients {
		h.deliver(client, data)
	}
}

func (h *Hub) sendToTopic(topic string, message Message) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	members, exists := h.topics[topic]
	if !exists {
		return
	}

	data, _ := json.Marshal(message)
	for client := range members {
		h.deliver(client, data)
	}
}

// sendToClient requires h.mutex held for writing.
func (h *Hub) sendToClient(client *Client, message Message) {
	data, _ := json.Marshal(message)
	h.deliver(client, data)
}

// deliver drops a client whose buffer is full.
func (h *Hub) deliver(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		h.removeClient(client)
	}
}

func (h *Hub) join(client *Client, topic string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*Client]bool)
	}
	h.topics[topic][client] = true
}

func (h *Hub) leave(client *Client, topic string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if members, exists := h.topics[topic]; exists {
		delete(members, client)
		if len(members) == 0 {
			delete(h.topics, topic)
		}
	}
}

func getCurrentTimestamp() int64 {
	return time.Now().Unix()
}
