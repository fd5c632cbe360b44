// Package nats carries session broadcasts over core NATS subjects. Core NATS is
// fire-and-forget, which matches the best-effort contract; JetStream is not used.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"trivia-sync-service/internal/broadcast"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Connect dials NATS with reconnect handling logged through zerolog.
func Connect(url string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("trivia-sync-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// Broadcaster is a broadcast.Channel on one NATS subject per session.
type Broadcaster struct {
	nc *nats.Conn
}

func NewBroadcaster(nc *nats.Conn) *Broadcaster {
	return &Broadcaster{nc: nc}
}

func (b *Broadcaster) Publish(_ context.Context, ev broadcast.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: encode event: %v", broadcast.ErrTransport, err)
	}
	if err := b.nc.Publish(broadcast.Topic(ev.Code), data); err != nil {
		return fmt.Errorf("%w: %v", broadcast.ErrTransport, err)
	}
	return nil
}

func (b *Broadcaster) Subscribe(_ context.Context, code string, h broadcast.Handler) (broadcast.Subscription, error) {
	sub, err := b.nc.Subscribe(broadcast.Topic(code), func(msg *nats.Msg) {
		var ev broadcast.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			log.Debug().Err(err).Str("code", code).Msg("dropping malformed broadcast")
			return
		}
		h(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", broadcast.ErrTransport, err)
	}
	return broadcast.NewSubscription(func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Debug().Err(err).Str("code", code).Msg("NATS unsubscribe")
		}
	}), nil
}
