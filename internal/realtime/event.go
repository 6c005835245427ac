// Package realtime fans out row-change notifications so list views know when to refetch.
package realtime

import (
	"context"
	"encoding/json"
	"time"
)

// ChannelPrefix namespaces the pub/sub channels of the change feed.
const ChannelPrefix = "portal:changes:"

// Event announces a change of one row under a topic.
type Event struct {
	Topic  string    `json:"topic"`
	Action string    `json:"action"`
	ID     string    `json:"id"`
	At     time.Time `json:"at"`
}

// Channel returns the pub/sub channel for topic.
func Channel(topic string) string {
	return ChannelPrefix + topic
}

// Hub publishes change events and hands out per-topic subscriptions.
// A subscription ends when its context is cancelled.
type Hub interface {
	Publish(ctx context.Context, topic, action, id string)
	Subscribe(ctx context.Context, topic string) (<-chan Event, error)
}

type eventMetrics interface {
	RecordRealtimeEvent(topic string)
}

func encodeEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}

func decodeEvent(payload string) (Event, error) {
	var e Event
	err := json.Unmarshal([]byte(payload), &e)
	return e, err
}
