package bus

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matheus3301/crmchat/internal/metrics"
)

// Bus is an in-process publish/subscribe event bus. Subscribers pick events
// by kind prefix and never block publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
	seq  uint64
}

type subscription struct {
	namespace string
	ch        chan Event
	dropped   atomic.Uint64
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// Publish stamps evt with the next sequence number and hands it to every
// subscriber whose namespace prefixes evt.Kind. Stamping and delivery happen
// under one lock, so every subscriber sees Seq in increasing order. A
// subscriber whose buffer is full misses the event; the miss is counted, so a
// gap in Seq seen by a subscriber means events were lost.
func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	evt.Seq = b.seq
	for _, sub := range b.subs {
		if !strings.HasPrefix(evt.Kind, sub.namespace) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			sub.dropped.Add(1)
			metrics.BusDropped.WithLabelValues(sub.namespace).Inc()
		}
	}
}

// Emit publishes an event of the given kind stamped with the current time.
// A nil bus drops the event, so components can run without one in tests.
func (b *Bus) Emit(kind string, payload any) {
	if b == nil {
		return
	}
	b.Publish(Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

// Subscribe returns a channel of events whose kind starts with namespace
// ("" matches everything) and an unsubscribe function.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{namespace: namespace, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Dropped returns the total number of events missed by current subscribers.
func (b *Bus) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var n uint64
	for _, sub := range b.subs {
		n += sub.dropped.Load()
	}
	return n
}
