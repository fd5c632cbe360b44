package memory

import (
	"context"
	"sync"

	"trivia-sync-service/internal/broadcast"
)

// Broker is an in-process broadcast.Channel. Each subscription gets a small buffer;
// when a slow subscriber falls behind, its oldest pending event is dropped.
type Broker struct {
	buffer int

	mu     sync.Mutex
	topics map[string]map[chan broadcast.Event]struct{}
}

func NewBroker() *Broker {
	return &Broker{buffer: 16, topics: make(map[string]map[chan broadcast.Event]struct{})}
}

func (b *Broker) Publish(_ context.Context, ev broadcast.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.topics[broadcast.Topic(ev.Code)] {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
	return nil
}

func (b *Broker) Subscribe(_ context.Context, code string, h broadcast.Handler) (broadcast.Subscription, error) {
	topic := broadcast.Topic(code)
	ch := make(chan broadcast.Event, b.buffer)

	b.mu.Lock()
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[chan broadcast.Event]struct{})
		b.topics[topic] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		for ev := range ch {
			h(ev)
		}
	}()

	return broadcast.NewSubscription(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.topics[topic]; ok {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(b.topics, topic)
			}
		}
		close(ch)
	}), nil
}

// Subscribers reports how many subscriptions a session currently has.
func (b *Broker) Subscribers(code string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[broadcast.Topic(code)])
}
