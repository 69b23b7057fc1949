package pipeline

import (
	"sync"
)

// EventBus fans engine events out to handlers and channels.
type EventBus struct {
	subscribers map[*eventSubscription]bool
	mu          sync.RWMutex
}

type eventSubscription struct {
	typeFilter EventType // empty receives every type
	channel    chan Event
	handler    EventHandler
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[*eventSubscription]bool),
	}
}

// Subscribe registers a handler for every event. Returns an unsubscribe function.
func (b *EventBus) Subscribe(handler EventHandler) func() {
	return b.add(&eventSubscription{handler: handler})
}

// SubscribeType registers a handler for one event type.
func (b *EventBus) SubscribeType(t EventType, handler EventHandler) func() {
	return b.add(&eventSubscription{typeFilter: t, handler: handler})
}

func (b *EventBus) add(sub *eventSubscription) func() {
	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subscribers, sub)
		b.mu.Unlock()
	}
}

// SubscribeChannel returns a buffered channel receiving every event and an
// unsubscribe function that closes it.
func (b *EventBus) SubscribeChannel(bufferSize int) (<-chan Event, func()) {
	if bufferSize <= 0 {
		bufferSize = 16
	}

	ch := make(chan Event, bufferSize)
	sub := &eventSubscription{channel: ch}

	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[sub]; ok {
			delete(b.subscribers, sub)
			close(ch)
		}
		b.mu.Unlock()
	}

	return ch, unsubscribe
}

// Publish delivers ev to all subscribers. Handlers run synchronously so hits
// arrive in order; a full channel drops the event for that subscriber only.
func (b *EventBus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		if sub.typeFilter != "" && sub.typeFilter != ev.Type {
			continue
		}
		if sub.handler != nil {
			sub.handler.OnEvent(ev)
		} else if sub.channel != nil {
			select {
			case sub.channel <- ev:
			default:
			}
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close unsubscribes everyone and closes channels.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subscribers {
		if sub.channel != nil {
			close(sub.channel)
		}
		delete(b.subscribers, sub)
	}
}
