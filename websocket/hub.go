package websocket

import (
	"encoding/json"
	"log"
	"sync"

	"home-service-server/models"
)

// MessageHandler handles one inbound event type
type MessageHandler func(*Client, json.RawMessage)

// Hub ties the presence registry, the topic router and the event handlers
// together. Connection lifecycle flows through the Register/Unregister
// channels; inbound events are dispatched on each connection's own read
// goroutine and may block on the store.
type Hub struct {
	presence *PresenceRegistry
	router   *TopicRouter

	bookings BookingStore
	ratings  RatingStore
	users    UserStore

	// Registered clients by connection id
	mu      sync.RWMutex
	clients map[string]*Client

	// Register requests from new connections
	Register chan *Client

	// Unregister requests from closing connections
	Unregister chan *Client

	handlers map[string]MessageHandler
}

// NewHub creates a hub backed by the given stores
func NewHub(bookings BookingStore, ratings RatingStore, users UserStore) *Hub {
	hub := &Hub{
		presence:   NewPresenceRegistry(),
		router:     NewTopicRouter(),
		bookings:   bookings,
		ratings:    ratings,
		users:      users,
		clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		handlers:   make(map[string]MessageHandler),
	}

	hub.registerDefaultHandlers()

	return hub
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.register(client)

		case client := <-h.Unregister:
			h.unregister(client)
		}
	}
}

// register admits the connection to the presence registry and subscribes
// it to its topics: the role topic always, and for providers their
// private topic plus one topic per serviced category.
func (h *Hub) register(client *Client) {
	if err := h.presence.Admit(client.ID, client.UserID, client.Role); err != nil {
		log.Printf("❌ Admission failed for connection %s: %v", client.ID, err)
		client.Conn.Close()
		return
	}

	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()

	h.router.Subscribe(RoleTopic(client.Role), client)
	if client.Role == models.RoleProvider {
		h.router.Subscribe(ProviderTopic(client.UserID), client)
		for _, service := range client.Services {
			h.router.Subscribe(ServiceTopic(service), client)
		}
	}

	log.Printf("🔌 Connection registered: id=%s user=%d role=%s", client.ID, client.UserID, client.Role)
}

// unregister removes the connection from the presence registry and drops
// all of its topic subscriptions. Removal is immediate: no publish after
// this point can target the connection.
func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	_, known := h.clients[client.ID]
	if known {
		delete(h.clients, client.ID)
	}
	h.mu.Unlock()

	if !known {
		return
	}

	h.presence.Remove(client.ID)
	h.router.UnsubscribeAll(client.ID)

	// A publisher may have snapshotted this client before the
	// unsubscribe; closeSend keeps its late enqueue from panicking
	client.closeSend()

	log.Printf("🔌 Connection unregistered: id=%s user=%d role=%s", client.ID, client.UserID, client.Role)
}

// dispatch routes one inbound message to its handler. Every inbound event
// yields a reply: unknown or malformed messages get a typed error event.
func (h *Hub) dispatch(client *Client, raw []byte) {
	var message Message
	if err := json.Unmarshal(raw, &message); err != nil {
		log.Printf("❌ Error unmarshaling message from %s: %v", client.ID, err)
		client.SendError(EventUpdateError, "Malformed message", nil)
		return
	}

	handler, exists := h.handlers[message.Type]
	if !exists {
		log.Printf("⚠️ Unknown message type from %s: %s", client.ID, message.Type)
		client.SendError(EventUpdateError, "Unknown event type: "+message.Type, nil)
		return
	}

	handler(client, message.Data)
}

// SendToUser queues an event for one live connection of the given user.
// It reports false if the user has no live connection.
func (h *Hub) SendToUser(userID uint, event string, data interface{}) bool {
	entry, online := h.presence.FindByUser(userID)
	if !online {
		return false
	}

	h.mu.RLock()
	client, exists := h.clients[entry.ConnID]
	h.mu.RUnlock()
	if !exists {
		return false
	}

	client.SendEvent(event, data)
	return true
}

// PublishRole fans an event out to every connection with the given role
func (h *Hub) PublishRole(role models.UserRole, event string, data interface{}) {
	h.router.Publish(RoleTopic(role), event, data)
}

// PublishService fans an event out to the providers of a service category
func (h *Hub) PublishService(category models.ServiceCategory, event string, data interface{}) {
	h.router.Publish(ServiceTopic(category), event, data)
}

// PublishServiceExcept is PublishService minus one connection, used to
// tell the losing providers a booking is gone without echoing the winner
func (h *Hub) PublishServiceExcept(category models.ServiceCategory, excludeConnID string, event string, data interface{}) {
	h.router.PublishExcept(ServiceTopic(category), excludeConnID, event, data)
}

// PublishProvider fans an event out to a provider's private topic
func (h *Hub) PublishProvider(userID uint, event string, data interface{}) {
	h.router.Publish(ProviderTopic(userID), event, data)
}

// IsUserOnline checks if a user currently holds a live connection
func (h *Hub) IsUserOnline(userID uint) bool {
	_, online := h.presence.FindByUser(userID)
	return online
}
