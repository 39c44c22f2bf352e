// internal/events/bus.go
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the engine.
const (
	TypeMetricRecorded = "metric.recorded"
	TypeCacheHit       = "cache.hit"
	TypeCacheMiss      = "cache.miss"
	TypeInsightRaised  = "insight.raised"
	TypeSyncCompleted  = "sync.completed"
	TypeSyncFailed     = "sync.failed"
)

// Event is one engine occurrence worth broadcasting.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Bus fans events out to subscribers. Publishing never blocks: a
// subscriber that falls behind loses events rather than stalling the
// publisher.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	nextID  int
	bufSize int
	closed  bool
}

// NewBus creates a bus whose subscriber channels buffer bufSize events.
func NewBus(bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Bus{
		subs:    make(map[int]chan Event),
		bufSize: bufSize,
	}
}

// Subscribe registers a new subscriber. The cancel func removes the
// subscription and closes the channel; it is safe to call twice.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.bufSize)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Publish broadcasts an event, stamping ID and timestamp.
func (b *Bus) Publish(eventType string, fields map[string]any) {
	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Fields:    fields,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			// Subscriber is full; drop rather than block.
		}
	}
}

// Close shuts the bus down and closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
