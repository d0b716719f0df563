package events

import (
	"sync"
	"time"
)

// Event types published by the planner.
const (
	// AppointmentsChanged fires whenever a cached view's collection is replaced.
	AppointmentsChanged = "appointments.changed"
	// CandidateChanged fires on every pointer update of an active gesture.
	CandidateChanged = "board.candidate_changed"
	// GestureEnded fires when a gesture is cancelled or settles.
	GestureEnded = "board.gesture_ended"
	// SlotSuggested fires when the oracle rejects a position and an open slot is proposed.
	SlotSuggested = "board.slot_suggested"
)

// Event is a lightweight in-process notification.
type Event struct {
	Type          string
	AppointmentID string
	Payload       any
	CreatedAt     time.Time
}

// Handler reacts to an event.
type Handler func(event Event)

// Bus provides in-process pub/sub for planner events.
type Bus struct {
	subscribers map[string][]subscription
	nextID      int
	mu          sync.RWMutex
}

type subscription struct {
	id      int
	handler Handler
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]subscription)}
}

// Subscribe registers a handler for an event type and returns a func that removes it.
func (b *Bus) Subscribe(eventType string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[eventType]
		for i, s := range subs {
			if s.id == id {
				b.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish notifies subscribers of the event type.
func (b *Bus) Publish(event Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := append([]subscription(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	// Handlers run synchronously; caller decides concurrency model.
	for _, s := range subs {
		s.handler(event)
	}
}
