package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kiwari-pos/floor/internal/enum"
	"github.com/kiwari-pos/floor/internal/service"
)

var ErrHubBusy = errors.New("websocket hub broadcast queue full")

// Message is the frame written to websocket clients.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type channelMessage struct {
	Channel string
	Message Message
}

// Hub fans floor events out to websocket clients grouped by channel.
type Hub struct {
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *channelMessage
	done       chan struct{}

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *channelMessage, 256),
		done:       make(chan struct{}),
	}
}

// ValidChannel reports whether clients may subscribe to name.
func ValidChannel(name string) bool {
	return name == enum.ChannelFloor || name == enum.ChannelKitchen
}

// channelsFor returns the channels an event type is delivered to. The floor
// sees everything; the kitchen only sees what changes its ticket rail.
func channelsFor(eventType string) []string {
	switch {
	case strings.HasPrefix(eventType, "items."),
		eventType == enum.EventOrderCreated,
		eventType == enum.EventOrderUpdated,
		eventType == enum.EventOrderDeleted:
		return []string{enum.ChannelFloor, enum.ChannelKitchen}
	default:
		return []string{enum.ChannelFloor}
	}
}

// Run processes registrations and broadcasts until ctx is cancelled, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for name, clients := range h.rooms {
				for client := range clients {
					close(client.send)
				}
				delete(h.rooms, name)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.channel] == nil {
				h.rooms[client.channel] = make(map[*Client]bool)
			}
			h.rooms[client.channel][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			frame, err := json.Marshal(msg.Message)
			if err != nil {
				continue
			}
			h.mu.Lock()
			for client := range h.rooms[msg.Channel] {
				select {
				case client.send <- frame:
				default:
					// slow consumer
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// remove must be called with mu held.
func (h *Hub) remove(client *Client) {
	clients, ok := h.rooms[client.channel]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.channel)
	}
}

// Broadcast queues msg for every client on channel.
func (h *Hub) Broadcast(channel string, msg Message) error {
	select {
	case h.broadcast <- &channelMessage{Channel: channel, Message: msg}:
		return nil
	default:
		return ErrHubBusy
	}
}

// Publish implements service.EventPublisher.
func (h *Hub) Publish(ctx context.Context, e service.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := Message{Type: e.Type, Payload: payload}
	for _, ch := range channelsFor(e.Type) {
		if err := h.Broadcast(ch, msg); err != nil {
			return err
		}
	}
	return nil
}

// Clients returns the number of connected clients on channel.
func (h *Hub) Clients(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[channel])
}
