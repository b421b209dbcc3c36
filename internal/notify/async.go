package notify

import (
	"sync"

	"go.uber.org/zap"

	"github.com/HugoP8/whazaaa/internal/logger"
)

const defaultAsyncBacklog = 1024

type asyncEvent struct {
	topic   string
	payload any
}

// Async moves a slow sink (network brokers) off the publisher's goroutine.
// Events are delivered in order by a single worker; when the backlog is
// full new events are dropped.
type Async struct {
	next   Sink
	name   string
	events chan asyncEvent

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewAsync(name string, next Sink, backlog int) *Async {
	if backlog <= 0 {
		backlog = defaultAsyncBacklog
	}
	a := &Async{
		next:   next,
		name:   name,
		events: make(chan asyncEvent, backlog),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for e := range a.events {
		a.next.Publish(e.topic, e.payload)
	}
}

func (a *Async) Publish(topic string, payload any) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.events <- asyncEvent{topic: topic, payload: payload}:
	default:
		logger.Warn("⚠️ event backlog full, dropping event", zap.String("sink", a.name), zap.String("topic", topic))
	}
}

// Close stops accepting events and waits until the backlog is flushed.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
	a.mu.Unlock()
	<-a.done
}

var _ Sink = (*Async)(nil)
