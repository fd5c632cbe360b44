package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"trivia-sync-service/internal/broadcast"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Broadcaster is a broadcast.Channel on Redis Pub/Sub, one channel per session.
// Pub/Sub keeps nothing, so clients that miss a message recover through polling.
type Broadcaster struct {
	client *redis.Client
}

func NewBroadcaster(client *redis.Client) *Broadcaster {
	return &Broadcaster{client: client}
}

func (b *Broadcaster) Publish(ctx context.Context, ev broadcast.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: encode event: %v", broadcast.ErrTransport, err)
	}
	if err := b.client.Publish(ctx, broadcast.Topic(ev.Code), data).Err(); err != nil {
		return fmt.Errorf("%w: %v", broadcast.ErrTransport, err)
	}
	return nil
}

// Subscribe waits for Redis to confirm the subscription before returning.
func (b *Broadcaster) Subscribe(ctx context.Context, code string, h broadcast.Handler) (broadcast.Subscription, error) {
	ps := b.client.Subscribe(ctx, broadcast.Topic(code))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("%w: %v", broadcast.ErrTransport, err)
	}

	messages := ps.Channel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range messages {
			var ev broadcast.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Debug().Err(err).Str("code", code).Msg("dropping malformed broadcast")
				continue
			}
			h(ev)
		}
	}()

	return broadcast.NewSubscription(func() {
		if err := ps.Close(); err != nil {
			log.Debug().Err(err).Str("code", code).Msg("redis unsubscribe")
		}
		<-done
	}), nil
}
