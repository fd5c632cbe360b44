package client_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"trivia-sync-service/internal/app"
	"trivia-sync-service/internal/broadcast"
	"trivia-sync-service/internal/client"
	"trivia-sync-service/internal/domain"
	"trivia-sync-service/internal/game"
	"trivia-sync-service/internal/infra/memory"
	"trivia-sync-service/internal/reconcile"
	transport "trivia-sync-service/internal/transport/http"

	"github.com/stretchr/testify/require"
)

type fixture struct {
	server *httptest.Server
	games  *app.GameService
	code   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	broker := memory.NewBroker()
	quizzes := app.NewQuizService(store, nil)
	games := app.NewGameService(store, store, broker)

	quiz, err := quizzes.Create(ctx, domain.QuizInput{
		Title: "Numbers",
		Questions: []domain.QuestionInput{
			{Type: domain.TrueFalse, Text: "2 is even", CorrectAnswer: "true"},
			{Type: domain.OpenText, Text: "3 + 4?", CorrectAnswer: "7"},
		},
	})
	require.NoError(t, err)
	session, err := games.CreateSession(ctx, quiz.ID)
	require.NoError(t, err)

	server := httptest.NewServer(transport.NewRouter(quizzes, games, broker))
	t.Cleanup(server.Close)
	return &fixture{server: server, games: games, code: session.Code}
}

func TestSnapshotAndNotFound(t *testing.T) {
	f := newFixture(t)
	c := client.New(f.server.URL, time.Second)
	ctx := context.Background()

	snap, err := c.Snapshot(ctx, f.code)
	require.NoError(t, err)
	require.Equal(t, domain.StatusLobby, snap.Session.Status)
	require.Equal(t, 2, snap.QuestionCount)

	_, err = c.Snapshot(ctx, "ZZZZZZ")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	standings, err := c.Leaderboard(ctx, f.code)
	require.NoError(t, err)
	require.Empty(t, standings)
}

func TestWSSubscriberDeliversEvents(t *testing.T) {
	f := newFixture(t)
	sub := client.NewWSSubscriber(f.server.URL)

	got := make(chan broadcast.Event, 4)
	s, err := sub.Subscribe(context.Background(), f.code, func(ev broadcast.Event) { got <- ev })
	require.NoError(t, err)

	_, err = f.games.Join(context.Background(), f.code, "alice")
	require.NoError(t, err)

	select {
	case ev := <-got:
		require.Equal(t, broadcast.PlayerJoined, ev.Name)
	case <-time.After(2 * time.Second):
		t.Fatalf("expected player_joined over the stream")
	}

	s.Unsubscribe()
	s.Unsubscribe()
}

func TestWSSubscriberFailsForUnknownSession(t *testing.T) {
	f := newFixture(t)
	_, err := client.NewWSSubscriber(f.server.URL).Subscribe(context.Background(), "ZZZZZZ", func(broadcast.Event) {})
	require.ErrorIs(t, err, broadcast.ErrTransport)
}

func TestRemoteSessionFollowsGame(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := client.New(f.server.URL, time.Second)

	session := reconcile.Open(ctx, f.code, c, client.NewWSSubscriber(f.server.URL), reconcile.Options{PollInterval: 50 * time.Millisecond})
	defer session.Close()

	alice, err := f.games.Join(ctx, f.code, "alice")
	require.NoError(t, err)
	_, err = f.games.StartGame(ctx, f.code)
	require.NoError(t, err)
	_, err = f.games.SubmitAnswer(ctx, f.code, app.Submission{PlayerID: alice.ID, QuestionID: questionID(t, f, 0), Answer: "True"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v := session.View()
		return v.Phase() == game.PhaseQuestion && v.AnsweredCount == 1 && len(v.Players) == 1
	}, 3*time.Second, 20*time.Millisecond)

	_, err = f.games.ShowResults(ctx, f.code)
	require.NoError(t, err)
	_, err = f.games.NextQuestion(ctx, f.code)
	require.NoError(t, err)
	_, err = f.games.FinishGame(ctx, f.code)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v := session.View()
		return v.Phase() == game.PhaseFinished && len(v.Players) == 1 && v.Players[0].Score == 100
	}, 3*time.Second, 20*time.Millisecond)
}

func questionID(t *testing.T, f *fixture, index int) string {
	t.Helper()
	detail, err := f.games.GetSession(context.Background(), f.code)
	require.NoError(t, err)
	return detail.Quiz.Questions[index].ID
}
