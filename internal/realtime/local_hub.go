package realtime

import (
	"context"
	"sync"
	"time"
)

// LocalHub fans events out inside one process. It backs the feed when Redis is disabled.
type LocalHub struct {
	mu      sync.RWMutex
	subs    map[string]map[chan Event]struct{}
	metrics eventMetrics
	now     func() time.Time
}

// NewLocalHub builds an empty hub.
func NewLocalHub(metrics eventMetrics) *LocalHub {
	return &LocalHub{subs: make(map[string]map[chan Event]struct{}), metrics: metrics, now: time.Now}
}

// Publish delivers to current subscribers. A subscriber whose buffer is full misses the
// event, which is harmless because bursts are coalesced downstream anyway.
func (h *LocalHub) Publish(_ context.Context, topic, action, id string) {
	event := Event{Topic: topic, Action: action, ID: id, At: h.now().UTC()}
	h.mu.RLock()
	for ch := range h.subs[topic] {
		select {
		case ch <- event:
		default:
		}
	}
	h.mu.RUnlock()
	if h.metrics != nil {
		h.metrics.RecordRealtimeEvent(topic)
	}
}

// Subscribe registers a subscriber removed once ctx is cancelled.
func (h *LocalHub) Subscribe(ctx context.Context, topic string) (<-chan Event, error) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[chan Event]struct{})
	}
	h.subs[topic][ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs[topic], ch)
		if len(h.subs[topic]) == 0 {
			delete(h.subs, topic)
		}
		h.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

// Subscribers returns the number of live subscriptions on topic.
func (h *LocalHub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}
