package reconcile

import (
	"math/rand"
	"testing"
	"time"

	"trivia-sync-service/internal/broadcast"
	"trivia-sync-service/internal/domain"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func event(t *testing.T, name broadcast.EventName, payload any) Input {
	t.Helper()
	ev, err := broadcast.NewEvent("ABC234", name, payload, t0)
	require.NoError(t, err)
	return Input{Event: &ev}
}

func question(i int) domain.PublicQuestion {
	return domain.PublicQuestion{ID: "q" + string(rune('0'+i)), Order: i, TimeLimit: 30, Type: domain.OpenText}
}

func snapshot(status domain.SessionStatus, current int, revealed bool, players ...domain.Player) Input {
	q := question(current)
	return Input{Snapshot: &domain.SessionSnapshot{
		Session:  domain.GameSession{Code: "ABC234", Status: status, CurrentQuestion: current, ShowingResults: revealed},
		Players:  players,
		Question: &q,
	}}
}

func TestReduceMonotonicUnderAnyInterleaving(t *testing.T) {
	var inputs []Input
	for _, i := range []int{0, 1, 2} {
		inputs = append(inputs,
			snapshot(domain.StatusInProgress, i, false),
			snapshot(domain.StatusInProgress, i, false),
			event(t, broadcast.NewQuestion, broadcast.NewQuestionPayload{CurrentQuestion: i, Question: question(i), QuestionStartedAt: t0}),
			event(t, broadcast.NewQuestion, broadcast.NewQuestionPayload{CurrentQuestion: i, Question: question(i), QuestionStartedAt: t0}),
		)
	}
	inputs = append(inputs, event(t, broadcast.GameStarted, broadcast.GameStartedPayload{CurrentQuestion: 0, Question: question(0), QuestionStartedAt: t0}))

	rnd := rand.New(rand.NewSource(42))
	for round := 0; round < 500; round++ {
		rnd.Shuffle(len(inputs), func(i, j int) { inputs[i], inputs[j] = inputs[j], inputs[i] })

		v := NewView("ABC234")
		observed := []int{}
		for _, in := range inputs {
			var changed bool
			v, changed = Reduce(v, in)
			if changed {
				observed = append(observed, v.CurrentQuestion)
			}
		}
		for i := 1; i < len(observed); i++ {
			require.LessOrEqual(t, observed[i-1], observed[i], "round %d observed %v", round, observed)
		}
		require.Equal(t, 2, v.CurrentQuestion)
		require.Equal(t, domain.StatusInProgress, v.Status)
	}
}

func TestStaleBroadcastDoesNotRevertPoll(t *testing.T) {
	v, changed := Reduce(NewView("ABC234"), snapshot(domain.StatusFinished, 2, true))
	require.True(t, changed)

	v, changed = Reduce(v, event(t, broadcast.NewQuestion, broadcast.NewQuestionPayload{CurrentQuestion: 1, Question: question(1)}))
	require.False(t, changed)
	require.Equal(t, domain.StatusFinished, v.Status)

	v, changed = Reduce(v, snapshot(domain.StatusInProgress, 2, false))
	require.False(t, changed, "a lagging poll must not regress the view")
	require.Equal(t, 2, v.CurrentQuestion)
}

func TestPollDrivesEveryPhase(t *testing.T) {
	alice := domain.Player{ID: "p1", Nickname: "alice"}
	v := NewView("ABC234")

	steps := []struct {
		in    Input
		phase string
	}{
		{snapshot(domain.StatusLobby, 0, false, alice), "lobby"},
		{snapshot(domain.StatusInProgress, 0, false, alice), "question"},
		{snapshot(domain.StatusInProgress, 0, true, alice), "results"},
		{snapshot(domain.StatusInProgress, 1, false, alice), "question"},
		{snapshot(domain.StatusFinished, 1, false, alice), "finished"},
	}
	for _, step := range steps {
		var changed bool
		v, changed = Reduce(v, step.in)
		require.True(t, changed)
		require.Equal(t, step.phase, string(v.Phase()))
	}
}

func TestJoinAndLeaveAreDeduplicated(t *testing.T) {
	bob := domain.Player{ID: "p2", Nickname: "bob"}
	v := NewView("ABC234")

	v, changed := Reduce(v, event(t, broadcast.PlayerJoined, broadcast.PlayerJoinedPayload{Player: bob}))
	require.True(t, changed)
	v, changed = Reduce(v, event(t, broadcast.PlayerJoined, broadcast.PlayerJoinedPayload{Player: bob}))
	require.False(t, changed)
	require.Len(t, v.Players, 1)

	v, changed = Reduce(v, event(t, broadcast.PlayerLeft, broadcast.PlayerLeftPayload{PlayerID: "p2"}))
	require.True(t, changed)
	_, changed = Reduce(v, event(t, broadcast.PlayerLeft, broadcast.PlayerLeftPayload{PlayerID: "p2"}))
	require.False(t, changed)
}

func TestAnswerCountOnlyGrowsForCurrentQuestion(t *testing.T) {
	v, _ := Reduce(NewView("ABC234"), snapshot(domain.StatusInProgress, 1, false))

	v, changed := Reduce(v, event(t, broadcast.AnswerSubmitted, broadcast.AnswerSubmittedPayload{CurrentQuestion: 1, AnsweredCount: 2}))
	require.True(t, changed)
	v, changed = Reduce(v, event(t, broadcast.AnswerSubmitted, broadcast.AnswerSubmittedPayload{CurrentQuestion: 1, AnsweredCount: 1}))
	require.False(t, changed)
	v, changed = Reduce(v, event(t, broadcast.AnswerSubmitted, broadcast.AnswerSubmittedPayload{CurrentQuestion: 0, AnsweredCount: 5}))
	require.False(t, changed)
	require.Equal(t, 2, v.AnsweredCount)
}

func TestResultsRevealCorrectAnswerAndScores(t *testing.T) {
	alice := domain.Player{ID: "p1", Nickname: "alice"}
	v, _ := Reduce(NewView("ABC234"), snapshot(domain.StatusInProgress, 0, false, alice))

	v, changed := Reduce(v, event(t, broadcast.QuestionResults, broadcast.QuestionResultsPayload{
		CurrentQuestion: 0,
		CorrectAnswer:   "Paris",
		Results:         []domain.QuestionScore{{PlayerID: "p1", Score: 90, PointsEarned: 90, Answered: true, IsCorrect: true}},
	}))
	require.True(t, changed)
	require.Equal(t, "results", string(v.Phase()))
	require.Equal(t, "Paris", v.Question.CorrectAnswer)
	require.Equal(t, 90, v.Players[0].Score)

	poll := snapshot(domain.StatusInProgress, 0, true, domain.Player{ID: "p1", Nickname: "alice", Score: 90})
	poll.Snapshot.Question.CorrectAnswer = "Paris"
	v, changed = Reduce(v, poll)
	require.False(t, changed, "a poll confirming the broadcast is not a change")
	require.Len(t, v.Results, 1)
}

func TestRemaining(t *testing.T) {
	started := t0
	q := question(0)
	v := View{Status: domain.StatusInProgress, QuestionStartedAt: &started, Question: &q}

	require.Equal(t, 20*time.Second, v.Remaining(t0.Add(10*time.Second)))
	require.Zero(t, v.Remaining(t0.Add(time.Minute)))
}
