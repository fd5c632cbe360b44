// Package game holds the session state machine: lobby -> in_progress -> finished,
// with the current-question pointer only moving forward.
package game

import (
	"fmt"
	"time"

	"trivia-sync-service/internal/domain"
)

// Transition names a legal host-initiated move.
type Transition string

const (
	None    Transition = "none"
	Start   Transition = "start"
	Reveal  Transition = "reveal"
	Advance Transition = "advance"
	Finish  Transition = "finish"
)

// Phase is what the presentation layer renders.
type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhaseQuestion Phase = "question"
	PhaseResults  Phase = "results"
	PhaseFinished Phase = "finished"
)

// PhaseOf derives the presentation phase of a session.
func PhaseOf(status domain.SessionStatus, showingResults bool) Phase {
	switch status {
	case domain.StatusInProgress:
		if showingResults {
			return PhaseResults
		}
		return PhaseQuestion
	case domain.StatusFinished:
		return PhaseFinished
	}
	return PhaseLobby
}

// Progress is a totally ordered position in a session's lifecycle.
type Progress struct {
	Status   int
	Question int
	Revealed bool
}

// ProgressOf ignores the question pointer outside in_progress, where it carries no meaning.
func ProgressOf(status domain.SessionStatus, current int, revealed bool) Progress {
	p := Progress{Status: status.Rank()}
	if status == domain.StatusInProgress {
		p.Question = current
		p.Revealed = revealed
	}
	return p
}

// Compare returns -1, 0 or +1.
func (p Progress) Compare(o Progress) int {
	switch {
	case p.Status != o.Status:
		return sign(p.Status - o.Status)
	case p.Question != o.Question:
		return sign(p.Question - o.Question)
	case p.Revealed != o.Revealed:
		if p.Revealed {
			return 1
		}
		return -1
	}
	return 0
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}

// Request is a generic status update as sent by a host: every field is optional.
type Request struct {
	Status          *domain.SessionStatus `json:"status,omitempty"`
	CurrentQuestion *int                  `json:"current_question,omitempty"`
	ShowingResults  *bool                 `json:"showing_results,omitempty"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidTransition, fmt.Sprintf(format, args...))
}

// StartGame moves a lobby session to the first question.
func StartGame(s domain.GameSession, playerCount, questionCount int, now time.Time) (domain.GameSession, error) {
	if s.Status != domain.StatusLobby {
		return s, fmt.Errorf("%w: session is %s", domain.ErrAlreadyStarted, s.Status)
	}
	if playerCount < 1 {
		return s, domain.ErrNoPlayers
	}
	if questionCount < 1 {
		return s, invalid("quiz has no questions")
	}
	s.Status = domain.StatusInProgress
	s.CurrentQuestion = 0
	s.ShowingResults = false
	s.QuestionStartedAt = &now
	return s, nil
}

// RevealResults closes the current question and shows its results.
func RevealResults(s domain.GameSession) (domain.GameSession, error) {
	if s.Status != domain.StatusInProgress {
		return s, invalid("cannot show results while %s", s.Status)
	}
	if s.ShowingResults {
		return s, invalid("results for question %d already shown", s.CurrentQuestion)
	}
	s.ShowingResults = true
	return s, nil
}

// AdvanceQuestion moves exactly one question forward. The last question cannot be
// advanced past; FinishGame applies instead.
func AdvanceQuestion(s domain.GameSession, questionCount int, now time.Time) (domain.GameSession, error) {
	if s.Status != domain.StatusInProgress {
		return s, invalid("cannot advance while %s", s.Status)
	}
	if s.CurrentQuestion+1 > questionCount-1 {
		return s, invalid("question %d is the last one", s.CurrentQuestion)
	}
	s.CurrentQuestion++
	s.ShowingResults = false
	s.QuestionStartedAt = &now
	return s, nil
}

// FinishGame ends the session once the last question has been shown.
func FinishGame(s domain.GameSession, questionCount int) (domain.GameSession, error) {
	if s.Status != domain.StatusInProgress {
		return s, invalid("cannot finish while %s", s.Status)
	}
	if s.CurrentQuestion != questionCount-1 {
		return s, invalid("question %d of %d is not the last one", s.CurrentQuestion+1, questionCount)
	}
	s.Status = domain.StatusFinished
	return s, nil
}

// NextStep advances, or finishes when the last question is current.
func NextStep(s domain.GameSession, questionCount int, now time.Time) (domain.GameSession, Transition, error) {
	if s.Status == domain.StatusInProgress && s.CurrentQuestion >= questionCount-1 {
		next, err := FinishGame(s, questionCount)
		return next, Finish, err
	}
	next, err := AdvanceQuestion(s, questionCount, now)
	return next, Advance, err
}

// Resolve maps a generic request onto exactly one legal transition. A request that
// matches the current state is a no-op so that retried updates are harmless.
func Resolve(s domain.GameSession, req Request, playerCount, questionCount int, now time.Time) (domain.GameSession, Transition, error) {
	if matches(s, req) {
		return s, None, nil
	}

	status := s.Status
	if req.Status != nil {
		if !req.Status.Valid() {
			return s, None, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, *req.Status)
		}
		status = *req.Status
	}

	switch {
	case s.Status == domain.StatusLobby && status == domain.StatusInProgress:
		if req.CurrentQuestion != nil && *req.CurrentQuestion != 0 {
			return s, None, invalid("a game starts at question 0")
		}
		next, err := StartGame(s, playerCount, questionCount, now)
		return next, Start, err
	case s.Status == domain.StatusInProgress && status == domain.StatusFinished:
		next, err := FinishGame(s, questionCount)
		return next, Finish, err
	case s.Status == domain.StatusInProgress && status == domain.StatusInProgress:
		if req.CurrentQuestion != nil && *req.CurrentQuestion != s.CurrentQuestion {
			if *req.CurrentQuestion != s.CurrentQuestion+1 {
				return s, None, invalid("question pointer must move by exactly one (at %d, requested %d)", s.CurrentQuestion, *req.CurrentQuestion)
			}
			next, err := AdvanceQuestion(s, questionCount, now)
			return next, Advance, err
		}
		if req.ShowingResults != nil && *req.ShowingResults {
			next, err := RevealResults(s)
			return next, Reveal, err
		}
	}
	return s, None, invalid("cannot move from %s to %s", s.Status, status)
}

func matches(s domain.GameSession, req Request) bool {
	if req.Status == nil && req.CurrentQuestion == nil && req.ShowingResults == nil {
		return false
	}
	if req.Status != nil && *req.Status != s.Status {
		return false
	}
	if req.CurrentQuestion != nil && *req.CurrentQuestion != s.CurrentQuestion {
		return false
	}
	if req.ShowingResults != nil && *req.ShowingResults != s.ShowingResults {
		return false
	}
	return true
}

// Diff returns the store update that turns prev into next.
func Diff(prev, next domain.GameSession) domain.SessionUpdate {
	var upd domain.SessionUpdate
	if next.Status != prev.Status {
		status := next.Status
		upd.Status = &status
	}
	if next.CurrentQuestion != prev.CurrentQuestion {
		current := next.CurrentQuestion
		upd.CurrentQuestion = &current
	}
	if next.ShowingResults != prev.ShowingResults {
		showing := next.ShowingResults
		upd.ShowingResults = &showing
	}
	if next.QuestionStartedAt != nil && (prev.QuestionStartedAt == nil || !next.QuestionStartedAt.Equal(*prev.QuestionStartedAt)) {
		started := *next.QuestionStartedAt
		upd.QuestionStartedAt = &started
	}
	return upd
}
