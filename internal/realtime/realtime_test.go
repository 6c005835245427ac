package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingMetrics struct{ topics []string }

func (m *countingMetrics) RecordRealtimeEvent(topic string) { m.topics = append(m.topics, topic) }

func TestLocalHubDeliversPerTopic(t *testing.T) {
	metrics := &countingMetrics{}
	hub := NewLocalHub(metrics)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messages, err := hub.Subscribe(ctx, "messages")
	require.NoError(t, err)

	hub.Publish(ctx, "news", "insert", "n-1")
	hub.Publish(ctx, "messages", "insert", "m-1")

	select {
	case event := <-messages:
		assert.Equal(t, "m-1", event.ID)
		assert.Equal(t, "insert", event.Action)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	assert.Equal(t, []string{"news", "messages"}, metrics.topics)
}

func TestLocalHubDropsSubscriptionOnCancel(t *testing.T) {
	hub := NewLocalHub(nil)
	ctx, cancel := context.WithCancel(context.Background())

	events, err := hub.Subscribe(ctx, "news")
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Subscribers("news"))

	cancel()
	for range events {
	}
	assert.Equal(t, 0, hub.Subscribers("news"))
	hub.Publish(context.Background(), "news", "update", "n-1")
}

func TestCoalesceCollapsesBurst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	in := make(chan Event)
	bursts := Coalesce(ctx, in, 50*time.Millisecond)

	for i := 0; i < 5; i++ {
		in <- Event{Topic: "messages", ID: string(rune('a' + i))}
	}

	select {
	case burst := <-bursts:
		assert.Equal(t, "messages", burst.Topic)
		assert.Equal(t, 5, burst.Count)
		assert.Equal(t, "e", burst.Last.ID)
	case <-time.After(time.Second):
		t.Fatal("burst not emitted")
	}

	in <- Event{Topic: "messages", ID: "f"}
	select {
	case burst := <-bursts:
		assert.Equal(t, 1, burst.Count)
	case <-time.After(time.Second):
		t.Fatal("second burst not emitted")
	}
}

func TestCoalesceDropsLateEventsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan Event, 1)
	bursts := Coalesce(ctx, in, time.Hour)

	in <- Event{Topic: "news", ID: "n-1"}
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case burst, ok := <-bursts:
		assert.False(t, ok, "unexpected burst %+v", burst)
	case <-time.After(time.Second):
		t.Fatal("output not closed")
	}
}

func TestCoalesceFlushesPendingWhenInputCloses(t *testing.T) {
	in := make(chan Event, 2)
	in <- Event{Topic: "files", ID: "f-1"}
	in <- Event{Topic: "files", ID: "f-2"}
	close(in)

	var got []Burst
	for burst := range Coalesce(context.Background(), in, time.Hour) {
		got = append(got, burst)
	}
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Count)
}

func TestEventCodec(t *testing.T) {
	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	payload, err := encodeEvent(Event{Topic: "news", Action: "delete", ID: "n-9", At: at})
	require.NoError(t, err)

	event, err := decodeEvent(string(payload))
	require.NoError(t, err)
	assert.Equal(t, "n-9", event.ID)
	assert.True(t, at.Equal(event.At))
	assert.Equal(t, "portal:changes:news", Channel("news"))

	_, err = decodeEvent("not json")
	assert.Error(t, err)
}
