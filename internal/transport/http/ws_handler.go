package http

import (
	"context"
	"encoding/json"
	"net/http"

	"trivia-sync-service/internal/app"
	"trivia-sync-service/internal/broadcast"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Outbound message types on the websocket.
const (
	MessageSnapshot     = "snapshot"
	MessageEvent        = "event"
	MessageAnswerResult = "answerResult"
	MessageError        = "error"
)

// WSHandler streams a session's broadcast events to one client and accepts answers
// from it.
type WSHandler struct {
	games      *app.GameService
	subscriber broadcast.Subscriber
	upgrader   websocket.Upgrader
}

func NewWSHandler(games *app.GameService, subscriber broadcast.Subscriber) *WSHandler {
	if subscriber == nil {
		subscriber = broadcast.Discard{}
	}
	return &WSHandler{
		games:      games,
		subscriber: subscriber,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// InboundMessage is what clients send over the websocket.
type InboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// OutboundMessage is what the server sends over the websocket.
type OutboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
	ElapsedMs  int64  `json:"timeMs"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades /ws?code=XXXXXX[&playerId=...]. The first message is a snapshot of
// the session, followed by every broadcast event published for it. Answers need playerId.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code, err := normalizedCode(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	playerID := r.URL.Query().Get("playerId")

	snap, err := h.games.Snapshot(r.Context(), code)
	if err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Str("code", code).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	events := make(chan broadcast.Event, 32)
	sub, err := h.subscriber.Subscribe(r.Context(), code, func(ev broadcast.Event) {
		select {
		case events <- ev:
		default:
			log.Debug().Str("code", code).Str("event", string(ev.Name)).Msg("ws client lagging, event dropped")
		}
	})
	if err != nil {
		// The client still has its polling path.
		log.Warn().Err(err).Str("code", code).Msg("ws subscribe failed")
		sub = broadcast.NewSubscription(nil)
	}
	defer sub.Unsubscribe()

	send := make(chan OutboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})
	out := outbox{send: send, writerDone: writerDone}

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Str("code", code).Msg("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev := <-events:
				select {
				case send <- OutboundMessage{Type: MessageEvent, Payload: ev}:
				case <-writerDone:
					return
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	if out.put(OutboundMessage{Type: MessageSnapshot, Payload: snap}) {
		h.readLoop(r.Context(), conn, code, playerID, out)
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

// readLoop handles inbound messages until the client goes away or the writer stops.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, code, playerID string, out outbox) {
	for {
		var inbound InboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		if !out.put(h.reply(ctx, code, playerID, inbound)) {
			return
		}
	}
}

func (h *WSHandler) reply(ctx context.Context, code, playerID string, inbound InboundMessage) OutboundMessage {
	if inbound.Type != "answer" {
		return errorMessage("unsupported message type")
	}
	if playerID == "" {
		return errorMessage("playerId is required to answer")
	}
	var payload answerPayload
	if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
		return errorMessage("invalid answer payload")
	}
	result, err := h.games.SubmitAnswer(ctx, code, app.Submission{
		PlayerID:   playerID,
		QuestionID: payload.QuestionID,
		Answer:     payload.Answer,
		ElapsedMs:  payload.ElapsedMs,
	})
	if err != nil {
		return errorMessage(clientMessage(err))
	}
	return OutboundMessage{Type: MessageAnswerResult, Payload: result}
}

func errorMessage(msg string) OutboundMessage {
	return OutboundMessage{Type: MessageError, Payload: errorPayload{Message: msg}}
}

// outbox hands messages to the connection's writer goroutine.
type outbox struct {
	send       chan<- OutboundMessage
	writerDone <-chan struct{}
}

// put reports false once the writer has stopped; the message is then dropped.
func (o outbox) put(msg OutboundMessage) bool {
	select {
	case o.send <- msg:
		return true
	case <-o.writerDone:
		return false
	}
}
