package realtime

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const subscriberBuffer = 32

// RedisHub carries change events over Redis pub/sub so every API replica sees them.
type RedisHub struct {
	client  redis.UniversalClient
	metrics eventMetrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewRedisHub builds a hub on the given client.
func NewRedisHub(client redis.UniversalClient, metrics eventMetrics, logger *zap.Logger) *RedisHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisHub{client: client, metrics: metrics, logger: logger, now: time.Now}
}

// Publish sends the event. Failures are logged; a missed event only delays a refetch.
func (h *RedisHub) Publish(ctx context.Context, topic, action, id string) {
	payload, err := encodeEvent(Event{Topic: topic, Action: action, ID: id, At: h.now().UTC()})
	if err != nil {
		h.logger.Warn("encode change event failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	if err := h.client.Publish(ctx, Channel(topic), payload).Err(); err != nil {
		h.logger.Warn("publish change event failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	if h.metrics != nil {
		h.metrics.RecordRealtimeEvent(topic)
	}
}

// Subscribe listens on the topic channel until ctx is cancelled.
func (h *RedisHub) Subscribe(ctx context.Context, topic string) (<-chan Event, error) {
	pubsub := h.client.Subscribe(ctx, Channel(topic))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				event, err := decodeEvent(msg.Payload)
				if err != nil {
					h.logger.Debug("dropping malformed change event", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
