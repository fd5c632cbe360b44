// Package broadcast defines the best-effort publish/subscribe contract used to push
// session events to clients. Delivery is never guaranteed; the store of record is the
// authority and clients poll it regardless.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"trivia-sync-service/internal/domain"
)

// ErrTransport wraps every publish or subscribe failure.
var ErrTransport = errors.New("broadcast transport failure")

// EventName identifies a session event.
type EventName string

const (
	PlayerJoined    EventName = "player_joined"
	PlayerLeft      EventName = "player_left"
	GameStarted     EventName = "game_started"
	NewQuestion     EventName = "new_question"
	AnswerSubmitted EventName = "answer_submitted"
	QuestionResults EventName = "question_results"
	GameFinished    EventName = "game_finished"
)

// Topic is the channel name every transport uses for a session.
func Topic(code string) string {
	return "quiz:" + code
}

// Event is the wire envelope shared by all transports.
type Event struct {
	Name    EventName       `json:"event"`
	Code    string          `json:"code"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

// NewEvent encodes payload into an envelope for the session identified by code.
func NewEvent(code string, name EventName, payload any, now time.Time) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", name, err)
	}
	return Event{Name: name, Code: code, Payload: raw, SentAt: now}, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Name, err)
	}
	return nil
}

// PlayerJoinedPayload is incremental: it carries only the new player.
type PlayerJoinedPayload struct {
	Player domain.Player `json:"player"`
}

// PlayerLeftPayload is incremental: it carries only the departed player.
type PlayerLeftPayload struct {
	PlayerID string `json:"playerId"`
	Nickname string `json:"nickname"`
}

// GameStartedPayload is a snapshot of the session at its first question.
type GameStartedPayload struct {
	CurrentQuestion   int                   `json:"currentQuestion"`
	Question          domain.PublicQuestion `json:"question"`
	QuestionStartedAt time.Time             `json:"questionStartedAt"`
}

// NewQuestionPayload is a snapshot of the session after an advance.
type NewQuestionPayload struct {
	CurrentQuestion   int                   `json:"currentQuestion"`
	Question          domain.PublicQuestion `json:"question"`
	QuestionStartedAt time.Time             `json:"questionStartedAt"`
}

// AnswerSubmittedPayload carries the aggregate count only; it never reveals correctness.
type AnswerSubmittedPayload struct {
	CurrentQuestion int `json:"currentQuestion"`
	AnsweredCount   int `json:"answeredCount"`
}

// QuestionResultsPayload is a snapshot of the revealed question.
type QuestionResultsPayload struct {
	CurrentQuestion int                    `json:"currentQuestion"`
	CorrectAnswer   string                 `json:"correctAnswer"`
	Results         []domain.QuestionScore `json:"results"`
}

// GameFinishedPayload carries the final standings.
type GameFinishedPayload struct {
	CurrentQuestion int                    `json:"currentQuestion"`
	Standings       []domain.ScoreSnapshot `json:"standings"`
}

// Handler receives events of one subscription. Implementations call it from a single
// goroutine per subscription.
type Handler func(Event)

// Publisher sends an event to every current subscriber of the event's session.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Subscriber attaches a handler to a session topic.
type Subscriber interface {
	Subscribe(ctx context.Context, code string, h Handler) (Subscription, error)
}

// Channel is a full transport.
type Channel interface {
	Publisher
	Subscriber
}

// Subscription is an established subscription. Unsubscribe is safe to call more than once.
type Subscription interface {
	Unsubscribe()
}

type onceSubscription struct {
	once sync.Once
	stop func()
}

// NewSubscription wraps stop so that it runs at most once. A nil stop is allowed.
func NewSubscription(stop func()) Subscription {
	return &onceSubscription{stop: stop}
}

func (s *onceSubscription) Unsubscribe() {
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
	})
}

// Discard is a Channel that drops everything. It stands in when no transport is configured.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }

func (Discard) Subscribe(context.Context, string, Handler) (Subscription, error) {
	return NewSubscription(nil), nil
}
