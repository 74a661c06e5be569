package events

import (
	"sync"

	"github.com/Rrens/med-analyzer/internal/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultSubscriberBuffer is the outbox size of one subscription
const DefaultSubscriberBuffer = 64

// Sink receives JSON events. *websocket.Conn satisfies it.
type Sink interface {
	WriteJSON(v any) error
	Close() error
}

// Subscription is one sink attached to a conversation
type Subscription struct {
	ID             uuid.UUID
	ConversationID uuid.UUID

	sink   Sink
	outbox chan any
	done   chan struct{}
	once   sync.Once
}

// Done is closed when the subscription is removed
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Hub fans events out to the live sinks of each conversation.
// Every subscription has its own outbox and writer goroutine, so a slow
// sink never blocks Publish and events reach each sink in publish order.
type Hub struct {
	mu      sync.Mutex
	subs    map[uuid.UUID]map[uuid.UUID]*Subscription
	buffer  int
	closed  bool
	metrics *observability.Metrics
}

// NewHub creates an empty hub
func NewHub(buffer int, metrics *observability.Metrics) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{
		subs:    make(map[uuid.UUID]map[uuid.UUID]*Subscription),
		buffer:  buffer,
		metrics: metrics,
	}
}

// Subscribe attaches sink to a conversation and starts its writer
func (h *Hub) Subscribe(conversationID uuid.UUID, sink Sink) *Subscription {
	sub := &Subscription{
		ID:             uuid.New(),
		ConversationID: conversationID,
		sink:           sink,
		outbox:         make(chan any, h.buffer),
		done:           make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.once.Do(func() { close(sub.done) })
		sink.Close()
		return sub
	}
	set, ok := h.subs[conversationID]
	if !ok {
		set = make(map[uuid.UUID]*Subscription)
		h.subs[conversationID] = set
	}
	set[sub.ID] = sub
	h.mu.Unlock()

	h.metrics.SubscriberAdded()
	go h.writeLoop(sub)

	log.Debug().
		Str("conversation_id", conversationID.String()).
		Str("subscription_id", sub.ID.String()).
		Msg("Subscriber connected")
	return sub
}

// Unsubscribe removes a subscription and closes its sink
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.remove(sub, "closed")
}

// Publish hands payload to every current subscriber of the conversation.
// It never blocks: a subscriber whose outbox is full is removed.
func (h *Hub) Publish(conversationID uuid.UUID, payload any) {
	h.mu.Lock()
	set := h.subs[conversationID]
	snapshot := make([]*Subscription, 0, len(set))
	for _, sub := range set {
		snapshot = append(snapshot, sub)
	}
	h.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}
	h.metrics.EventPublished(eventType(payload))

	for _, sub := range snapshot {
		select {
		case <-sub.done:
		case sub.outbox <- payload:
		default:
			log.Warn().
				Str("conversation_id", conversationID.String()).
				Str("subscription_id", sub.ID.String()).
				Msg("Subscriber outbox full, dropping subscriber")
			h.remove(sub, "overflow")
		}
	}
}

// Count returns the number of live subscribers of a conversation
func (h *Hub) Count(conversationID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[conversationID])
}

// Close removes every subscription
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*Subscription
	for _, set := range h.subs {
		for _, sub := range set {
			all = append(all, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range all {
		h.remove(sub, "shutdown")
	}
}

func (h *Hub) writeLoop(sub *Subscription) {
	for {
		select {
		case <-sub.done:
			return
		case payload := <-sub.outbox:
			if err := sub.sink.WriteJSON(payload); err != nil {
				log.Warn().
					Err(err).
					Str("conversation_id", sub.ConversationID.String()).
					Str("subscription_id", sub.ID.String()).
					Msg("Failed to deliver event, dropping subscriber")
				h.remove(sub, "write_error")
				return
			}
		}
	}
}

func (h *Hub) remove(sub *Subscription, reason string) {
	h.mu.Lock()
	set, ok := h.subs[sub.ConversationID]
	_, present := set[sub.ID]
	if ok && present {
		delete(set, sub.ID)
		if len(set) == 0 {
			delete(h.subs, sub.ConversationID)
		}
	}
	h.mu.Unlock()

	if !present {
		return
	}

	sub.once.Do(func() {
		close(sub.done)
		sub.sink.Close()
	})
	h.metrics.SubscriberRemoved(reason)
}

func eventType(payload any) string {
	if typed, ok := payload.(interface{ EventType() string }); ok {
		return typed.EventType()
	}
	if m, ok := payload.(map[string]any); ok {
		if t, ok := m["type"].(string); ok {
			return t
		}
	}
	return "unknown"
}
