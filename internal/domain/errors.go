package domain

import "errors"

// ErrValidation is wrapped by every bad-input error.
var ErrValidation = errors.New("validation failed")

var (
	// ErrSessionNotFound is returned for an unknown join code.
	ErrSessionNotFound = errors.New("session not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid for the session.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrPlayerNotFound is returned when a player ID is not part of the session.
	ErrPlayerNotFound = errors.New("player not found")
)

var (
	ErrNicknameTaken     = errors.New("nickname is already taken")
	ErrAlreadyStarted    = errors.New("game has already started")
	ErrDuplicateAnswer   = errors.New("already answered this question")
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrNoPlayers         = errors.New("at least one player is required to start")
	ErrSessionNotActive  = errors.New("session is not in progress")
	ErrQuestionClosed    = errors.New("question is no longer accepting answers")
	ErrLateAnswer        = errors.New("answer submitted after the time limit")
	ErrQuizInUse         = errors.New("quiz is referenced by an active session")
)

// ErrCodeGenerationExhausted means no unused join code was found within the attempt bound.
var ErrCodeGenerationExhausted = errors.New("failed to generate unique session code")

var notFound = []error{ErrSessionNotFound, ErrQuizNotFound, ErrQuestionNotFound, ErrPlayerNotFound}

var conflicts = []error{
	ErrNicknameTaken, ErrAlreadyStarted, ErrDuplicateAnswer, ErrInvalidTransition,
	ErrNoPlayers, ErrSessionNotActive, ErrQuestionClosed, ErrLateAnswer, ErrQuizInUse,
}

// IsNotFound reports whether err refers to a missing quiz, session, question or player.
func IsNotFound(err error) bool {
	return isAny(err, notFound)
}

// IsConflict reports whether err is a state conflict that should be shown to the user as-is.
func IsConflict(err error) bool {
	return isAny(err, conflicts)
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
