package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"trivia-sync-service/internal/broadcast"
	"trivia-sync-service/internal/codegen"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const handshakeTimeout = 5 * time.Second

// WSSubscriber is a broadcast.Subscriber over the server's /ws stream.
type WSSubscriber struct {
	baseURL string
	dialer  *websocket.Dialer
}

func NewWSSubscriber(baseURL string) *WSSubscriber {
	return &WSSubscriber{baseURL: strings.TrimRight(baseURL, "/"), dialer: websocket.DefaultDialer}
}

type wireMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Subscribe dials the stream and returns once the server has sent its opening
// snapshot, which it does after subscribing on its side. h is then called for every
// event until Unsubscribe or until the connection drops. A dropped stream is not
// redialed; polling covers the gap.
func (s *WSSubscriber) Subscribe(ctx context.Context, code string, h broadcast.Handler) (broadcast.Subscription, error) {
	target, err := s.streamURL(code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", broadcast.ErrTransport, err)
	}
	conn, _, err := s.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", broadcast.ErrTransport, err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	var first wireMessage
	if err := conn.ReadJSON(&first); err != nil || first.Type != "snapshot" {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: no opening snapshot (%v)", broadcast.ErrTransport, err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg wireMessage
			if err := conn.ReadJSON(&msg); err != nil {
				log.Debug().Err(err).Str("code", code).Msg("event stream closed")
				return
			}
			if msg.Type != "event" {
				continue
			}
			var ev broadcast.Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				log.Debug().Err(err).Str("code", code).Msg("dropping malformed event")
				continue
			}
			h(ev)
		}
	}()

	return broadcast.NewSubscription(func() {
		_ = conn.Close()
		<-done
	}), nil
}

func (s *WSSubscriber) streamURL(code string) (string, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"code": {codegen.Normalize(code)}}.Encode()
	return u.String(), nil
}
