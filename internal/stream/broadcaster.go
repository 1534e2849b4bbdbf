package stream

import (
	"log/slog"
	"sync"

	"github.com/skypro1111/stream-diarizer/internal/metrics"
)

const defaultSubscriberBuffer = 64

// Broadcaster fans session events out to any number of subscribers. Each
// subscriber has a bounded queue; events for a full queue are dropped.
type Broadcaster struct {
	subscribers map[uint64]chan Event
	nextID      uint64
	closed      bool

	metrics *metrics.Metrics
	logger  *slog.Logger

	mu sync.RWMutex
}

// NewBroadcaster creates an empty broadcaster. m may be nil.
func NewBroadcaster(m *metrics.Metrics, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[uint64]chan Event),
		metrics:     m,
		logger:      logger,
	}
}

// Subscribe registers a subscriber with a queue of the given size and returns
// its event channel and an unsubscribe function. The channel is closed on
// unsubscribe or when the broadcaster closes.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	b.metrics.SetSubscribers(len(b.subscribers))

	var once sync.Once
	return ch, func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Broadcaster) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[id]
	if !ok {
		return
	}
	delete(b.subscribers, id)
	close(ch)
	b.metrics.SetSubscribers(len(b.subscribers))
}

// Publish delivers e to every subscriber without blocking
func (b *Broadcaster) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
			b.metrics.RecordEventDropped()
			b.logger.Warn("Dropping event for slow subscriber",
				slog.Uint64("subscriber_id", id),
				slog.String("event_type", string(e.Type)),
			)
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes every subscriber channel and rejects new subscribers
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
	b.metrics.SetSubscribers(0)
}
