package swarm

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Event is the envelope for the coordinator's observable stream, delivered
// through a typed publish/subscribe sink for coordinator-wide notifications.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventBus fans published events out to explicit subscribers, each with its
// own buffered channel so a slow consumer cannot stall publication.
type EventBus struct {
	logger *logrus.Logger

	mu   sync.RWMutex
	subs map[string]chan Event
}

// NewEventBus constructs an empty event bus.
func NewEventBus(logger *logrus.Logger) *EventBus {
	return &EventBus{logger: logger, subs: make(map[string]chan Event)}
}

// Publish assigns an id/timestamp and delivers the event to every
// subscriber's channel, dropping for any subscriber whose channel is full.
func (b *EventBus) Publish(e Event) {
	e.ID = NewID()
	e.Timestamp = time.Now()
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			if b.logger != nil {
				b.logger.WithFields(logrus.Fields{"subscriber": id, "event": e.Type}).Warn("event subscriber channel full, dropping")
			}
		}
	}
}

// Subscribe registers a new listener and returns its channel plus an
// unsubscribe function.
func (b *EventBus) Subscribe(id string) (<-chan Event, func()) {
	ch := make(chan Event, 256)
	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}
