package websocket

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"home-service-server/models"
)

type topicKind string

const (
	topicKindRole     topicKind = "role"
	topicKindService  topicKind = "service"
	topicKindProvider topicKind = "provider"
)

// Topic is a named fanout channel. Topics are first-class values built by
// the constructors below, never string-concatenated at call sites.
type Topic struct {
	kind topicKind
	key  string
}

// RoleTopic is the topic every connection of a role joins
func RoleTopic(role models.UserRole) Topic {
	return Topic{kind: topicKindRole, key: string(role)}
}

// ServiceTopic is the topic providers of a service category join
func ServiceTopic(category models.ServiceCategory) Topic {
	return Topic{kind: topicKindService, key: strings.ToLower(string(category))}
}

// ProviderTopic is a provider's private channel for personal notifications
func ProviderTopic(userID uint) Topic {
	return Topic{kind: topicKindProvider, key: fmt.Sprintf("%d", userID)}
}

func (t Topic) String() string {
	return string(t.kind) + ":" + t.key
}

// TopicRouter manages topic subscriptions and routes outbound events to
// current subscribers. Delivery is at-most-once and best-effort: no queue
// backs a topic, and a subscriber whose send buffer is full has the event
// dropped rather than stalling the publisher.
type TopicRouter struct {
	mu sync.RWMutex

	// subscribers per topic, and the reverse index for disconnect cleanup
	subs   map[Topic]map[string]*Client
	byConn map[string]map[Topic]struct{}
}

// NewTopicRouter creates an empty router
func NewTopicRouter() *TopicRouter {
	return &TopicRouter{
		subs:   make(map[Topic]map[string]*Client),
		byConn: make(map[string]map[Topic]struct{}),
	}
}

// Subscribe adds the client to a topic
func (r *TopicRouter) Subscribe(topic Topic, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.subs[topic] == nil {
		r.subs[topic] = make(map[string]*Client)
	}
	r.subs[topic][client.ID] = client

	if r.byConn[client.ID] == nil {
		r.byConn[client.ID] = make(map[Topic]struct{})
	}
	r.byConn[client.ID][topic] = struct{}{}
}

// Unsubscribe removes the client from a topic
func (r *TopicRouter) Unsubscribe(topic Topic, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dropSubscription(topic, connID)
}

// UnsubscribeAll removes every subscription held by a connection.
// Subscriptions are discarded on disconnect and must be reacquired in
// full on reconnect.
func (r *TopicRouter) UnsubscribeAll(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for topic := range r.byConn[connID] {
		r.dropSubscription(topic, connID)
	}
}

func (r *TopicRouter) dropSubscription(topic Topic, connID string) {
	if members := r.subs[topic]; members != nil {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.subs, topic)
		}
	}
	if topics := r.byConn[connID]; topics != nil {
		delete(topics, topic)
		if len(topics) == 0 {
			delete(r.byConn, connID)
		}
	}
}

// Topics returns a snapshot of the topics a connection is subscribed to
func (r *TopicRouter) Topics(connID string) []Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]Topic, 0, len(r.byConn[connID]))
	for topic := range r.byConn[connID] {
		topics = append(topics, topic)
	}
	return topics
}

// Publish delivers an event to every connection subscribed to the topic
// at publish time
func (r *TopicRouter) Publish(topic Topic, event string, data interface{}) {
	r.PublishExcept(topic, "", event, data)
}

// PublishExcept delivers an event to the topic's subscribers, skipping the
// excluded connection. The payload is marshaled once; each subscriber gets
// an isolated non-blocking send so one slow consumer never delays the rest.
func (r *TopicRouter) PublishExcept(topic Topic, excludeConnID string, event string, data interface{}) {
	payload, err := marshalMessage(event, data)
	if err != nil {
		log.Printf("❌ Error marshaling %s event: %v", event, err)
		return
	}

	r.mu.RLock()
	members := make([]*Client, 0, len(r.subs[topic]))
	for connID, client := range r.subs[topic] {
		if connID == excludeConnID {
			continue
		}
		members = append(members, client)
	}
	r.mu.RUnlock()

	for _, client := range members {
		if !client.enqueue(payload) {
			log.Printf("⚠️ Dropped %s event for connection %s on %s (buffer full)", event, client.ID, topic)
		}
	}
}
