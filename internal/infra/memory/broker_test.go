package memory

import (
	"context"
	"testing"
	"time"

	"trivia-sync-service/internal/broadcast"
)

func TestBrokerDeliversToTopicSubscribers(t *testing.T) {
	broker := NewBroker()
	ctx := context.Background()

	got := make(chan broadcast.Event, 1)
	sub, err := broker.Subscribe(ctx, "ABC234", func(ev broadcast.Event) { got <- ev })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	other, _ := broadcast.NewEvent("ZZZ999", broadcast.PlayerLeft, broadcast.PlayerLeftPayload{PlayerID: "x"}, time.Now())
	ev, _ := broadcast.NewEvent("ABC234", broadcast.PlayerLeft, broadcast.PlayerLeftPayload{PlayerID: "p1"}, time.Now())
	if err := broker.Publish(ctx, other); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := broker.Publish(ctx, ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case received := <-got:
		var p broadcast.PlayerLeftPayload
		if err := received.Decode(&p); err != nil || p.PlayerID != "p1" {
			t.Fatalf("expected event for ABC234, got %+v (%v)", p, err)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected event delivery")
	}
}

func TestBrokerUnsubscribeIsIdempotent(t *testing.T) {
	broker := NewBroker()
	sub, _ := broker.Subscribe(context.Background(), "ABC234", func(broadcast.Event) {})
	if broker.Subscribers("ABC234") != 1 {
		t.Fatalf("expected one subscriber")
	}

	sub.Unsubscribe()
	sub.Unsubscribe()
	if broker.Subscribers("ABC234") != 0 {
		t.Fatalf("expected subscriber removed")
	}

	ev, _ := broadcast.NewEvent("ABC234", broadcast.GameFinished, broadcast.GameFinishedPayload{}, time.Now())
	if err := broker.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish after unsubscribe: %v", err)
	}
}

func TestBrokerNeverBlocksOnSlowSubscriber(t *testing.T) {
	broker := NewBroker()
	release := make(chan struct{})
	sub, _ := broker.Subscribe(context.Background(), "ABC234", func(broadcast.Event) { <-release })
	defer sub.Unsubscribe()
	defer close(release)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			ev, _ := broadcast.NewEvent("ABC234", broadcast.AnswerSubmitted, broadcast.AnswerSubmittedPayload{AnsweredCount: i}, time.Now())
			_ = broker.Publish(context.Background(), ev)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on a slow subscriber")
	}
}
