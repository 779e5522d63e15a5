package chat

import (
	"log"
	"sync"

	"taxpadi-client/internal/models"
)

// EventType names a transcript change
type EventType string

const (
	EventMessage EventType = "message"
	EventCleared EventType = "cleared"
)

// Event is delivered to subscribers whenever the transcript changes.
// Message is set for EventMessage.
type Event struct {
	Type    EventType
	Message *models.ChatMessage
}

// broadcaster fans transcript events out to subscribers
type broadcaster struct {
	mu      sync.RWMutex
	clients map[chan Event]struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{clients: make(map[chan Event]struct{})}
}

func (b *broadcaster) subscribe(buffer int) chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, buffer)
	b.clients[ch] = struct{}{}
	log.Printf("[Chat] Subscriber added total=%d", len(b.clients))
	return ch
}

func (b *broadcaster) unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.clients[ch]; ok {
		delete(b.clients, ch)
		close(ch)
	}
}

// broadcast never blocks; a full subscriber misses the event
func (b *broadcaster) broadcast(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.clients {
		select {
		case ch <- ev:
		default:
			log.Printf("[Chat] Subscriber channel full, skipping event type=%s", ev.Type)
		}
	}
}

func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.clients {
		close(ch)
	}
	b.clients = make(map[chan Event]struct{})
}

func (b *broadcaster) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
