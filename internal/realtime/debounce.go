package realtime

import (
	"context"
	"time"
)

// Burst is a run of events coalesced into one refetch signal.
type Burst struct {
	Topic string
	Count int
	Last  Event
}

// Coalesce folds events arriving within window of the first event of a burst into a
// single Burst. The output closes when ctx is cancelled or in closes; events still
// pending at cancellation are dropped.
func Coalesce(ctx context.Context, in <-chan Event, window time.Duration) <-chan Burst {
	out := make(chan Burst)
	go func() {
		defer close(out)
		var (
			pending *Burst
			timer   *time.Timer
			fire    <-chan time.Time
		)
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-in:
				if !ok {
					if pending != nil {
						select {
						case out <- *pending:
						case <-ctx.Done():
						}
					}
					return
				}
				if pending == nil {
					pending = &Burst{Topic: event.Topic}
					if window <= 0 {
						fire = closedTick
					} else {
						timer = time.NewTimer(window)
						fire = timer.C
					}
				}
				pending.Count++
				pending.Last = event
			case <-fire:
				burst := *pending
				pending, fire = nil, nil
				select {
				case out <- burst:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

var closedTick = func() <-chan time.Time {
	ch := make(chan time.Time)
	close(ch)
	return ch
}()
