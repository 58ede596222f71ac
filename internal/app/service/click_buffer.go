package service

import (
	"sync"
	"sync/atomic"

	"github.com/sifan077/linkgate/internal/app/model"
	infraPrometheus "github.com/sifan077/linkgate/internal/infra/prometheus"
)

// ClickBuffer is a bounded, non-blocking queue between redirect handlers and the
// click persister. A full buffer drops the event instead of parking the caller.
type ClickBuffer struct {
	events  chan model.ClickEvent
	closed  chan struct{}
	dropped atomic.Int64
	metrics *infraPrometheus.Metrics

	// mu orders sends against Close: once Close returns, every accepted event
	// is already in events and every later Publish counts a drop.
	mu       sync.RWMutex
	isClosed bool
}

// NewClickBuffer creates a buffer holding at most capacity pending events.
func NewClickBuffer(capacity int, metrics *infraPrometheus.Metrics) *ClickBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	if metrics == nil {
		metrics = infraPrometheus.NewMetrics(nil)
	}
	return &ClickBuffer{
		events:  make(chan model.ClickEvent, capacity),
		closed:  make(chan struct{}),
		metrics: metrics,
	}
}

// Publish enqueues event without blocking. It returns false and counts a drop
// when the buffer is full or already closed.
func (b *ClickBuffer) Publish(event model.ClickEvent) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.isClosed {
		b.drop()
		return false
	}

	select {
	case b.events <- event:
		return true
	default:
		b.drop()
		return false
	}
}

func (b *ClickBuffer) drop() {
	b.dropped.Add(1)
	b.metrics.ClicksDropped.Inc()
}

// Dropped returns how many events were rejected since creation.
func (b *ClickBuffer) Dropped() int64 {
	return b.dropped.Load()
}

// Len returns the number of events waiting to be persisted.
func (b *ClickBuffer) Len() int {
	return len(b.events)
}

// Cap returns the buffer capacity.
func (b *ClickBuffer) Cap() int {
	return cap(b.events)
}

// Close stops accepting events. Events already queued remain readable.
// It is safe to call multiple times.
func (b *ClickBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isClosed {
		return
	}
	b.isClosed = true
	close(b.closed)
}

// Done is closed once Close has been called.
func (b *ClickBuffer) Done() <-chan struct{} {
	return b.closed
}

// Events exposes the receive side for consumers.
func (b *ClickBuffer) Events() <-chan model.ClickEvent {
	return b.events
}
