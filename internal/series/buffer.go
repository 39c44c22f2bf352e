// internal/series/buffer.go
package series

import (
	"sync"
	"time"
)

// Point is a single observation in a metric series. Points are never
// mutated after creation.
type Point struct {
	Timestamp time.Time         `json:"timestamp"`
	Value     float64           `json:"value"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Series is an ordered window of points for one metric, non-decreasing
// by timestamp.
type Series struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// ring is a fixed-capacity circular buffer of points. Appending beyond
// capacity overwrites the oldest point in O(1).
type ring struct {
	points []Point
	next   int
	count  int
}

func newRing(capacity int) *ring {
	return &ring{points: make([]Point, capacity)}
}

func (r *ring) add(p Point) {
	r.points[r.next] = p
	r.next = (r.next + 1) % len(r.points)
	if r.count < len(r.points) {
		r.count++
	}
}

// ordered returns the points oldest-first as a fresh slice.
func (r *ring) ordered() []Point {
	out := make([]Point, 0, r.count)
	start := r.next - r.count
	if start < 0 {
		start += len(r.points)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.points[(start+i)%len(r.points)])
	}
	return out
}

func (r *ring) last() (Point, bool) {
	if r.count == 0 {
		return Point{}, false
	}
	idx := r.next - 1
	if idx < 0 {
		idx += len(r.points)
	}
	return r.points[idx], true
}

// Buffer holds one bounded series per metric name. Writes to the same
// metric are serialized; the per-metric timestamp order is preserved
// even with concurrent producers.
type Buffer struct {
	mu       sync.RWMutex
	capacity int
	series   map[string]*ring
}

// DefaultCapacity is the per-metric point budget when none is given.
const DefaultCapacity = 1000

// NewBuffer creates a buffer with the given per-metric capacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		capacity: capacity,
		series:   make(map[string]*ring),
	}
}

// Add appends an observation stamped with the current time. Timestamps
// are clamped to be non-decreasing within a metric.
func (b *Buffer) Add(metric string, value float64, metadata map[string]string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, exists := b.series[metric]
	if !exists {
		r = newRing(b.capacity)
		b.series[metric] = r
	}

	now := time.Now()
	if last, ok := r.last(); ok && now.Before(last.Timestamp) {
		now = last.Timestamp
	}

	r.add(Point{Timestamp: now, Value: value, Metadata: metadata})
}

// Series returns a copy of the named metric's window, oldest first.
func (b *Buffer) Series(metric string) (*Series, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	r, exists := b.series[metric]
	if !exists {
		return nil, false
	}
	return &Series{Name: metric, Points: r.ordered()}, true
}

// Names returns all tracked metric names.
func (b *Buffer) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.series))
	for name := range b.series {
		names = append(names, name)
	}
	return names
}

// Len returns the number of points held for a metric.
func (b *Buffer) Len(metric string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if r, exists := b.series[metric]; exists {
		return r.count
	}
	return 0
}

// Snapshot returns a copy of every series, keyed by metric name. Used
// by chart consumers that want the raw windows.
func (b *Buffer) Snapshot() map[string][]Point {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string][]Point, len(b.series))
	for name, r := range b.series {
		out[name] = r.ordered()
	}
	return out
}
