package domain

import "time"

const (
	DefaultTimeLimit = 30
	MinTimeLimit     = 5
	MaxTimeLimit     = 120

	DefaultPoints = 100
	MinPoints     = 10
	MaxPoints     = 1000

	MinNicknameLength = 2
	MaxNicknameLength = 20
)

// QuestionType tags which answer-checking rules apply to a question.
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	OpenText       QuestionType = "open_text"
)

// Valid reports whether t is one of the supported question types.
func (t QuestionType) Valid() bool {
	switch t {
	case MultipleChoice, TrueFalse, OpenText:
		return true
	}
	return false
}

// Question is a single prompt of a quiz. Order is zero-based and contiguous within the quiz.
type Question struct {
	ID            string       `json:"id"`
	QuizID        string       `json:"quiz_id"`
	Type          QuestionType `json:"type"`
	Text          string       `json:"text"`
	Options       []string     `json:"options"`
	CorrectAnswer string       `json:"correct_answer"`
	TimeLimit     int          `json:"time_limit"` // seconds
	Points        int          `json:"points"`
	Order         int          `json:"order"`
}

// Public strips the correct answer.
func (q Question) Public() PublicQuestion {
	return PublicQuestion{
		ID:        q.ID,
		QuizID:    q.QuizID,
		Type:      q.Type,
		Text:      q.Text,
		Options:   q.Options,
		TimeLimit: q.TimeLimit,
		Points:    q.Points,
		Order:     q.Order,
	}
}

// PublicQuestion is what players see while a question is open. CorrectAnswer is
// only filled once the question has been revealed.
type PublicQuestion struct {
	ID            string       `json:"id"`
	QuizID        string       `json:"quiz_id"`
	Type          QuestionType `json:"type"`
	Text          string       `json:"text"`
	Options       []string     `json:"options"`
	CorrectAnswer string       `json:"correct_answer,omitempty"`
	TimeLimit     int          `json:"time_limit"`
	Points        int          `json:"points"`
	Order         int          `json:"order"`
}

// Quiz is an ordered collection of questions.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"created_at"`
	Questions []Question `json:"questions"`
}

// QuizSummary is the list view of a quiz.
type QuizSummary struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	CreatedAt     time.Time `json:"created_at"`
	QuestionCount int       `json:"question_count"`
}

// SessionStatus is the coarse lifecycle phase of a game session.
type SessionStatus string

const (
	StatusLobby      SessionStatus = "lobby"
	StatusInProgress SessionStatus = "in_progress"
	StatusFinished   SessionStatus = "finished"
)

// Rank orders statuses along the lifecycle; unknown statuses rank below lobby.
func (s SessionStatus) Rank() int {
	switch s {
	case StatusLobby:
		return 1
	case StatusInProgress:
		return 2
	case StatusFinished:
		return 3
	}
	return 0
}

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	return s.Rank() > 0
}

// GameSession is the store-of-record row for a live game.
type GameSession struct {
	ID                string        `json:"id"`
	QuizID            string        `json:"quiz_id"`
	Code              string        `json:"code"`
	Status            SessionStatus `json:"status"`
	CurrentQuestion   int           `json:"current_question"`
	ShowingResults    bool          `json:"showing_results"`
	QuestionStartedAt *time.Time    `json:"question_started_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

// SessionUpdate carries the fields of a session mutation; nil fields are left untouched.
type SessionUpdate struct {
	Status            *SessionStatus
	CurrentQuestion   *int
	ShowingResults    *bool
	QuestionStartedAt *time.Time
}

// Player is a participant of exactly one session.
type Player struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Nickname  string    `json:"nickname"`
	Score     int       `json:"score"`
	JoinedAt  time.Time `json:"joined_at"`
}

// Answer records a player's submission for one question. At most one exists per (player, question).
type Answer struct {
	ID           string    `json:"id"`
	PlayerID     string    `json:"player_id"`
	QuestionID   string    `json:"question_id"`
	Text         string    `json:"answer"`
	ElapsedMs    int64     `json:"time_ms"`
	IsCorrect    bool      `json:"is_correct"`
	PointsEarned int       `json:"points_earned"`
	CreatedAt    time.Time `json:"created_at"`
}

// AnswerResult summarizes the outcome of a submission for the submitting player.
type AnswerResult struct {
	AnswerID     string `json:"answerId"`
	QuestionID   string `json:"questionId"`
	IsCorrect    bool   `json:"isCorrect"`
	PointsEarned int    `json:"pointsEarned"`
	TotalScore   int    `json:"totalScore"`
}

// ScoreSnapshot is a derived, never persisted standing.
type ScoreSnapshot struct {
	PlayerID string `json:"playerId"`
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
}

// QuestionScore is one row of the per-question results.
type QuestionScore struct {
	PlayerID     string `json:"playerId"`
	Nickname     string `json:"nickname"`
	Score        int    `json:"score"`
	PointsEarned int    `json:"pointsEarned"`
	Answered     bool   `json:"answered"`
	IsCorrect    bool   `json:"isCorrect"`
}

// SessionDetail is the full projection of a session read from the store of record.
type SessionDetail struct {
	Session GameSession `json:"session"`
	Quiz    Quiz        `json:"quiz"`
	Players []Player    `json:"players"`
}

// SessionSnapshot is the lightweight projection clients poll. Question is the current
// question when in progress, with the correct answer only once revealed.
type SessionSnapshot struct {
	Session       GameSession     `json:"session"`
	Players       []Player        `json:"players"`
	Question      *PublicQuestion `json:"question,omitempty"`
	QuestionCount int             `json:"questionCount"`
	AnsweredCount int             `json:"answeredCount"`
}
