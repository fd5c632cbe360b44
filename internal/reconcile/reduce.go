// Package reconcile merges broadcast events and store polls into one view per client
// session that only ever moves forward.
package reconcile

import (
	"time"

	"trivia-sync-service/internal/broadcast"
	"trivia-sync-service/internal/domain"
	"trivia-sync-service/internal/game"
)

// View is what a client renders for one session.
type View struct {
	Code              string                 `json:"code"`
	Status            domain.SessionStatus   `json:"status"`
	CurrentQuestion   int                    `json:"currentQuestion"`
	ShowingResults    bool                   `json:"showingResults"`
	QuestionStartedAt *time.Time             `json:"questionStartedAt,omitempty"`
	Question          *domain.PublicQuestion `json:"question,omitempty"`
	Players           []domain.Player        `json:"players"`
	AnsweredCount     int                    `json:"answeredCount"`
	Results           []domain.QuestionScore `json:"results,omitempty"`
	Standings         []domain.ScoreSnapshot `json:"standings,omitempty"`
}

// NewView returns the starting view: a lobby that has not been observed yet.
func NewView(code string) View {
	return View{Code: code}
}

// Phase is the presentation phase of the view.
func (v View) Phase() game.Phase {
	return game.PhaseOf(v.Status, v.ShowingResults)
}

// Progress is the view's position in the session lifecycle.
func (v View) Progress() game.Progress {
	return game.ProgressOf(v.Status, v.CurrentQuestion, v.ShowingResults)
}

// Remaining returns the time left on the current question, or zero.
func (v View) Remaining(now time.Time) time.Duration {
	if v.Status != domain.StatusInProgress || v.ShowingResults || v.QuestionStartedAt == nil || v.Question == nil {
		return 0
	}
	left := v.QuestionStartedAt.Add(time.Duration(v.Question.TimeLimit) * time.Second).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Input is exactly one of a broadcast event or a polled snapshot.
type Input struct {
	Event    *broadcast.Event
	Snapshot *domain.SessionSnapshot
}

// Reduce applies in to v and reports whether the view changed. It never moves the
// view to an earlier progress, and it never mutates v's slices.
func Reduce(v View, in Input) (View, bool) {
	switch {
	case in.Snapshot != nil:
		return applySnapshot(v, *in.Snapshot)
	case in.Event != nil:
		return applyEvent(v, *in.Event)
	}
	return v, false
}

func applySnapshot(v View, snap domain.SessionSnapshot) (View, bool) {
	s := snap.Session
	incoming := game.ProgressOf(s.Status, s.CurrentQuestion, s.ShowingResults)
	cmp := incoming.Compare(v.Progress())
	if cmp < 0 {
		return v, false
	}

	next := v
	next.Status = s.Status
	next.CurrentQuestion = s.CurrentQuestion
	next.ShowingResults = s.ShowingResults
	next.QuestionStartedAt = s.QuestionStartedAt
	next.Players = snap.Players
	if snap.Question != nil || cmp > 0 {
		next.Question = snap.Question
	}
	if cmp > 0 {
		next.AnsweredCount = snap.AnsweredCount
		next.Results = nil
	} else if snap.AnsweredCount > next.AnsweredCount {
		next.AnsweredCount = snap.AnsweredCount
	}
	return next, !sameView(v, next)
}

func applyEvent(v View, ev broadcast.Event) (View, bool) {
	switch ev.Name {
	case broadcast.PlayerJoined:
		var p broadcast.PlayerJoinedPayload
		if ev.Decode(&p) != nil || p.Player.ID == "" || indexOf(v.Players, p.Player.ID) >= 0 {
			return v, false
		}
		players := make([]domain.Player, 0, len(v.Players)+1)
		v.Players = append(append(players, v.Players...), p.Player)
		return v, true

	case broadcast.PlayerLeft:
		var p broadcast.PlayerLeftPayload
		if ev.Decode(&p) != nil {
			return v, false
		}
		i := indexOf(v.Players, p.PlayerID)
		if i < 0 {
			return v, false
		}
		players := make([]domain.Player, 0, len(v.Players)-1)
		players = append(players, v.Players[:i]...)
		v.Players = append(players, v.Players[i+1:]...)
		return v, true

	case broadcast.GameStarted:
		var p broadcast.GameStartedPayload
		if ev.Decode(&p) != nil {
			return v, false
		}
		return openQuestion(v, p.CurrentQuestion, p.Question, p.QuestionStartedAt)

	case broadcast.NewQuestion:
		var p broadcast.NewQuestionPayload
		if ev.Decode(&p) != nil {
			return v, false
		}
		return openQuestion(v, p.CurrentQuestion, p.Question, p.QuestionStartedAt)

	case broadcast.AnswerSubmitted:
		var p broadcast.AnswerSubmittedPayload
		if ev.Decode(&p) != nil {
			return v, false
		}
		if v.Status != domain.StatusInProgress || v.ShowingResults || p.CurrentQuestion != v.CurrentQuestion || p.AnsweredCount <= v.AnsweredCount {
			return v, false
		}
		v.AnsweredCount = p.AnsweredCount
		return v, true

	case broadcast.QuestionResults:
		var p broadcast.QuestionResultsPayload
		if ev.Decode(&p) != nil {
			return v, false
		}
		incoming := game.ProgressOf(domain.StatusInProgress, p.CurrentQuestion, true)
		cmp := incoming.Compare(v.Progress())
		if cmp < 0 || (cmp == 0 && v.Results != nil) {
			return v, false
		}
		if cmp > 0 && v.CurrentQuestion != p.CurrentQuestion {
			v.Question = nil
			v.QuestionStartedAt = nil
		}
		v.Status = domain.StatusInProgress
		v.CurrentQuestion = p.CurrentQuestion
		v.ShowingResults = true
		v.Results = p.Results
		if v.Question != nil {
			q := *v.Question
			q.CorrectAnswer = p.CorrectAnswer
			v.Question = &q
		}
		v.Players = withScores(v.Players, p.Results)
		return v, true

	case broadcast.GameFinished:
		var p broadcast.GameFinishedPayload
		if ev.Decode(&p) != nil {
			return v, false
		}
		if v.Status == domain.StatusFinished && v.Standings != nil {
			return v, false
		}
		v.Status = domain.StatusFinished
		v.CurrentQuestion = p.CurrentQuestion
		v.Standings = p.Standings
		return v, true
	}
	return v, false
}

func openQuestion(v View, index int, q domain.PublicQuestion, startedAt time.Time) (View, bool) {
	incoming := game.ProgressOf(domain.StatusInProgress, index, false)
	if incoming.Compare(v.Progress()) <= 0 {
		return v, false
	}
	v.Status = domain.StatusInProgress
	v.CurrentQuestion = index
	v.ShowingResults = false
	v.Question = &q
	v.QuestionStartedAt = &startedAt
	v.AnsweredCount = 0
	v.Results = nil
	return v, true
}

func withScores(players []domain.Player, results []domain.QuestionScore) []domain.Player {
	if len(results) == 0 {
		return players
	}
	scores := make(map[string]int, len(results))
	for _, r := range results {
		scores[r.PlayerID] = r.Score
	}
	out := make([]domain.Player, len(players))
	for i, p := range players {
		if score, ok := scores[p.ID]; ok {
			p.Score = score
		}
		out[i] = p
	}
	return out
}

func indexOf(players []domain.Player, id string) int {
	for i, p := range players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func sameView(a, b View) bool {
	if a.Progress() != b.Progress() || a.Status != b.Status || a.AnsweredCount != b.AnsweredCount {
		return false
	}
	if (a.Question == nil) != (b.Question == nil) || (a.Question != nil && (a.Question.ID != b.Question.ID || a.Question.CorrectAnswer != b.Question.CorrectAnswer)) {
		return false
	}
	if len(a.Players) != len(b.Players) {
		return false
	}
	for i := range a.Players {
		if a.Players[i].ID != b.Players[i].ID || a.Players[i].Score != b.Players[i].Score || a.Players[i].Nickname != b.Players[i].Nickname {
			return false
		}
	}
	return true
}
