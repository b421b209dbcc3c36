package notify

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HugoP8/whazaaa/internal/logger"
)

// Handler receives a published payload. It runs on the publisher's
// goroutine, so it has to hand slow work off.
type Handler func(topic string, payload any)

// Hub is the in-process topic bus; websocket clients subscribe to it.
type Hub struct {
	mu       sync.RWMutex
	handlers map[string]map[string]Handler
}

func NewHub() *Hub {
	return &Hub{
		handlers: make(map[string]map[string]Handler),
	}
}

// Publish delivers payload to the current subscribers of topic. Events
// with no listener are dropped.
func (h *Hub) Publish(topic string, payload any) {
	h.mu.RLock()
	subs := make([]Handler, 0, len(h.handlers[topic]))
	for _, fn := range h.handlers[topic] {
		subs = append(subs, fn)
	}
	h.mu.RUnlock()

	if len(subs) == 0 {
		logger.Debug("no subscribers for topic", zap.String("topic", topic))
		return
	}
	for _, fn := range subs {
		h.deliver(fn, topic, payload)
	}
}

func (h *Hub) deliver(fn Handler, topic string, payload any) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("⚠️ subscriber panicked", zap.String("topic", topic), zap.Any("panic", r))
		}
	}()
	fn(topic, payload)
}

// Subscribe registers fn for topic and returns the subscription ID.
func (h *Hub) Subscribe(topic string, fn Handler) string {
	id := uuid.NewString()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.handlers[topic] == nil {
		h.handlers[topic] = make(map[string]Handler)
	}
	h.handlers[topic][id] = fn
	return id
}

func (h *Hub) Unsubscribe(topic, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.handlers[topic], id)
	if len(h.handlers[topic]) == 0 {
		delete(h.handlers, topic)
	}
}

// Subscribers returns the number of handlers on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.handlers[topic])
}

var _ Sink = (*Hub)(nil)
