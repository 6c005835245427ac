package service

import "context"

// Change topics published after writes.
const (
	TopicFiles    = "files"
	TopicMessages = "messages"
	TopicNews     = "news"
)

// ChangePublisher announces that rows under a topic changed so subscribers can refetch.
type ChangePublisher interface {
	Publish(ctx context.Context, topic, action, id string)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, string, string) {}

func publisherOrNoop(p ChangePublisher) ChangePublisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}
