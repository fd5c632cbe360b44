package nats

import (
	"context"
	"errors"
	"testing"
	"time"

	"trivia-sync-service/internal/broadcast"

	"github.com/nats-io/nats-server/v2/server"
	natstest "github.com/nats-io/nats-server/v2/test"
)

func runServer(t *testing.T) *server.Server {
	t.Helper()
	opts := natstest.DefaultTestOptions
	opts.Port = server.RANDOM_PORT
	srv := natstest.RunServer(&opts)
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestConnectFailsFastWithoutServer(t *testing.T) {
	nc, err := Connect("nats://127.0.0.1:1")
	if err == nil {
		nc.Close()
		t.Fatalf("expected connect error")
	}
}

func TestBroadcasterRoundTrip(t *testing.T) {
	srv := runServer(t)
	nc, err := Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()

	b := NewBroadcaster(nc)
	ctx := context.Background()

	got := make(chan broadcast.Event, 4)
	sub, err := b.Subscribe(ctx, "ABC234", func(ev broadcast.Event) { got <- ev })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	// A garbage payload on the subject is dropped and does not stop delivery.
	if err := nc.Publish(broadcast.Topic("ABC234"), []byte("{not json")); err != nil {
		t.Fatalf("publish raw: %v", err)
	}
	ev, _ := broadcast.NewEvent("ABC234", broadcast.NewQuestion, broadcast.NewQuestionPayload{CurrentQuestion: 2}, time.Now())
	if err := b.Publish(ctx, ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case received := <-got:
		var p broadcast.NewQuestionPayload
		if err := received.Decode(&p); err != nil || p.CurrentQuestion != 2 || received.Name != broadcast.NewQuestion {
			t.Fatalf("unexpected event %+v (%v)", received, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected broadcast delivery")
	}

	sub.Unsubscribe()
	sub.Unsubscribe()

	if err := b.Publish(ctx, ev); err != nil {
		t.Fatalf("publish after unsubscribe: %v", err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	select {
	case extra := <-got:
		t.Fatalf("expected nothing after unsubscribe, got %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBroadcasterIsolatesSessions(t *testing.T) {
	srv := runServer(t)
	nc, err := Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()

	b := NewBroadcaster(nc)
	ctx := context.Background()

	got := make(chan broadcast.Event, 2)
	sub, err := b.Subscribe(ctx, "ABC234", func(ev broadcast.Event) { got <- ev })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()
	if err := nc.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	other, _ := broadcast.NewEvent("XYZ567", broadcast.GameFinished, broadcast.GameFinishedPayload{}, time.Now())
	mine, _ := broadcast.NewEvent("ABC234", broadcast.GameFinished, broadcast.GameFinishedPayload{}, time.Now())
	for _, ev := range []broadcast.Event{other, mine} {
		if err := b.Publish(ctx, ev); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	select {
	case received := <-got:
		if received.Code != "ABC234" {
			t.Fatalf("received another session's event %+v", received)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected broadcast delivery")
	}
}

func TestBroadcasterReportsTransportFailure(t *testing.T) {
	srv := runServer(t)
	nc, err := Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	b := NewBroadcaster(nc)
	nc.Close()

	ctx := context.Background()
	ev, _ := broadcast.NewEvent("ABC234", broadcast.GameFinished, broadcast.GameFinishedPayload{}, time.Now())
	if err := b.Publish(ctx, ev); !errors.Is(err, broadcast.ErrTransport) {
		t.Fatalf("expected transport error on publish, got %v", err)
	}
	if _, err := b.Subscribe(ctx, "ABC234", func(broadcast.Event) {}); !errors.Is(err, broadcast.ErrTransport) {
		t.Fatalf("expected transport error on subscribe, got %v", err)
	}
}
