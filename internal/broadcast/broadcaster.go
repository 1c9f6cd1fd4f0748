// Package broadcast fans task status events out to live stream clients.
package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/mr1hm/go-hazard-tasks/internal/metrics"
	"github.com/mr1hm/go-hazard-tasks/internal/models"
)

// subscriberBuffer is how many task events a subscriber may fall behind
// before new events are dropped for it.
const subscriberBuffer = 64

type subscriber struct {
	eventID string // empty receives every event
	ch      chan *models.TaskEvent
}

func (s subscriber) wants(e *models.TaskEvent) bool {
	return s.eventID == "" || s.eventID == e.EventID
}

// Broadcaster delivers task events to subscribers without blocking the
// publisher. Open streams and dropped events are exported as metrics.
type Broadcaster struct {
	subscribers map[uint64]subscriber
	nextID      atomic.Uint64
	dropped     atomic.Uint64
	mu          sync.RWMutex
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]subscriber),
	}
}

// Subscribe registers a stream for eventID's tasks, or for all tasks when
// eventID is empty.
func (b *Broadcaster) Subscribe(eventID string) (uint64, <-chan *models.TaskEvent) {
	id := b.nextID.Add(1)
	ch := make(chan *models.TaskEvent, subscriberBuffer)

	b.mu.Lock()
	b.subscribers[id] = subscriber{eventID: eventID, ch: ch}
	b.mu.Unlock()

	metrics.StreamSubscribed()
	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remove(id)
}

// remove requires b.mu held for writing.
func (b *Broadcaster) remove(id uint64) {
	s, ok := b.subscribers[id]
	if !ok {
		return
	}
	close(s.ch)
	delete(b.subscribers, id)
	metrics.StreamUnsubscribed()
}

func (b *Broadcaster) Broadcast(e *models.TaskEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subscribers {
		if !s.wants(e) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
			metrics.StreamEventDropped()
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns how many events were skipped for slow subscribers.
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

// Close ends every open stream.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id := range b.subscribers {
		b.remove(id)
	}
}
