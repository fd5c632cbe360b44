package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trivia-sync-service/internal/broadcast"
	"trivia-sync-service/internal/codegen"
	"trivia-sync-service/internal/domain"
	"trivia-sync-service/internal/game"
	"trivia-sync-service/internal/leaderboard"
	"trivia-sync-service/internal/scoring"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// GameStore persists sessions, players and answers in the store of record.
type GameStore interface {
	CodeExists(ctx context.Context, code string) (bool, error)
	InsertSession(ctx context.Context, session domain.GameSession) error
	GetSession(ctx context.Context, code string) (domain.GameSession, error)
	// UpdateSession applies upd only if the row still matches prev's status, question
	// pointer and results flag; otherwise it fails with domain.ErrInvalidTransition.
	UpdateSession(ctx context.Context, prev domain.GameSession, upd domain.SessionUpdate) (domain.GameSession, error)

	ListPlayers(ctx context.Context, sessionID string) ([]domain.Player, error)
	GetPlayer(ctx context.Context, playerID string) (domain.Player, error)
	NicknameTaken(ctx context.Context, sessionID, nickname string) (bool, error)
	// InsertPlayer adds the player only while its session is in the lobby. It fails with
	// domain.ErrNicknameTaken on a duplicate nickname and domain.ErrAlreadyStarted once
	// the session has left the lobby.
	InsertPlayer(ctx context.Context, player domain.Player) error
	DeletePlayer(ctx context.Context, playerID string) error

	AnswerExists(ctx context.Context, playerID, questionID string) (bool, error)
	// RecordAnswer stores the answer and adds its points to the player's score in one
	// step, returning the new total. Nothing is written if either part fails; a second
	// answer for the same pair fails with domain.ErrDuplicateAnswer.
	RecordAnswer(ctx context.Context, answer domain.Answer) (int, error)
	ListAnswers(ctx context.Context, sessionID, questionID string) ([]domain.Answer, error)
	CountAnswers(ctx context.Context, sessionID, questionID string) (int, error)
}

// GameConfig holds the tunables of live sessions.
type GameConfig struct {
	RejectLateAnswers bool
	LateGrace         time.Duration
	PublishTimeout    time.Duration
}

// DefaultGameConfig accepts late answers at the minimum value.
func DefaultGameConfig() GameConfig {
	return GameConfig{LateGrace: 2 * time.Second, PublishTimeout: 2 * time.Second}
}

// Submission is a player's answer as received from a client.
type Submission struct {
	PlayerID   string `json:"playerId"`
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
	ElapsedMs  int64  `json:"timeMs"`
}

// GameService drives live sessions. Every mutation is applied to the store of record
// first; the broadcast that follows is best effort and never fails the call.
type GameService struct {
	store     GameStore
	quizzes   QuizReader
	publisher broadcast.Publisher
	codes     *codegen.Generator
	clock     clockwork.Clock
	cfg       GameConfig
}

// GameOption customizes a GameService.
type GameOption func(*GameService)

// WithClock replaces the wall clock, for tests.
func WithClock(clock clockwork.Clock) GameOption {
	return func(s *GameService) { s.clock = clock }
}

// WithGameConfig overrides DefaultGameConfig.
func WithGameConfig(cfg GameConfig) GameOption {
	return func(s *GameService) { s.cfg = cfg }
}

// WithCodeGenerator replaces the join code generator.
func WithCodeGenerator(g *codegen.Generator) GameOption {
	return func(s *GameService) { s.codes = g }
}

func NewGameService(store GameStore, quizzes QuizReader, publisher broadcast.Publisher, opts ...GameOption) *GameService {
	if publisher == nil {
		publisher = broadcast.Discard{}
	}
	s := &GameService{
		store:     store,
		quizzes:   quizzes,
		publisher: publisher,
		clock:     clockwork.NewRealClock(),
		cfg:       DefaultGameConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.PublishTimeout <= 0 {
		s.cfg.PublishTimeout = DefaultGameConfig().PublishTimeout
	}
	if s.codes == nil {
		s.codes = codegen.NewGenerator(store.CodeExists)
	}
	return s
}

// CreateSession opens a lobby for a quiz under a fresh join code.
func (s *GameService) CreateSession(ctx context.Context, quizID string) (domain.GameSession, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.GameSession{}, err
	}
	if len(quiz.Questions) == 0 {
		return domain.GameSession{}, fmt.Errorf("%w: quiz has no questions", domain.ErrValidation)
	}

	code, err := s.codes.Generate(ctx)
	if err != nil {
		return domain.GameSession{}, err
	}
	session := domain.GameSession{
		ID:        uuid.NewString(),
		QuizID:    quiz.ID,
		Code:      code,
		Status:    domain.StatusLobby,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.store.InsertSession(ctx, session); err != nil {
		return domain.GameSession{}, fmt.Errorf("insert session: %w", err)
	}
	log.Info().Str("code", code).Str("quiz_id", quiz.ID).Msg("session created")
	return session, nil
}

// GetSession returns the session with its quiz and players. Correct answers are
// stripped from every question that has not been revealed yet.
func (s *GameService) GetSession(ctx context.Context, code string) (domain.SessionDetail, error) {
	session, quiz, err := s.load(ctx, code)
	if err != nil {
		return domain.SessionDetail{}, err
	}
	players, err := s.store.ListPlayers(ctx, session.ID)
	if err != nil {
		return domain.SessionDetail{}, fmt.Errorf("list players: %w", err)
	}

	questions := make([]domain.Question, len(quiz.Questions))
	for i, q := range quiz.Questions {
		if !revealed(session, i) {
			q.CorrectAnswer = ""
		}
		questions[i] = q
	}
	quiz.Questions = questions
	return domain.SessionDetail{Session: session, Quiz: quiz, Players: players}, nil
}

// Snapshot is the projection clients poll.
func (s *GameService) Snapshot(ctx context.Context, code string) (domain.SessionSnapshot, error) {
	session, quiz, err := s.load(ctx, code)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	players, err := s.store.ListPlayers(ctx, session.ID)
	if err != nil {
		return domain.SessionSnapshot{}, fmt.Errorf("list players: %w", err)
	}

	snap := domain.SessionSnapshot{Session: session, Players: players, QuestionCount: len(quiz.Questions)}
	if session.Status == domain.StatusInProgress && session.CurrentQuestion < len(quiz.Questions) {
		q := quiz.Questions[session.CurrentQuestion]
		pub := q.Public()
		if session.ShowingResults {
			pub.CorrectAnswer = q.CorrectAnswer
		}
		snap.Question = &pub
		if snap.AnsweredCount, err = s.store.CountAnswers(ctx, session.ID, q.ID); err != nil {
			return domain.SessionSnapshot{}, fmt.Errorf("count answers: %w", err)
		}
	}
	return snap, nil
}

// Join adds a player to a session that is still in its lobby.
func (s *GameService) Join(ctx context.Context, code, nickname string) (domain.Player, error) {
	nickname, err := domain.NormalizeNickname(nickname)
	if err != nil {
		return domain.Player{}, err
	}
	session, err := s.store.GetSession(ctx, codegen.Normalize(code))
	if err != nil {
		return domain.Player{}, err
	}
	if session.Status != domain.StatusLobby {
		return domain.Player{}, domain.ErrAlreadyStarted
	}

	taken, err := s.store.NicknameTaken(ctx, session.ID, nickname)
	if err != nil {
		return domain.Player{}, fmt.Errorf("check nickname: %w", err)
	}
	if taken {
		return domain.Player{}, domain.ErrNicknameTaken
	}

	player := domain.Player{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Nickname:  nickname,
		JoinedAt:  s.clock.Now().UTC(),
	}
	if err := s.store.InsertPlayer(ctx, player); err != nil {
		if errors.Is(err, domain.ErrNicknameTaken) || errors.Is(err, domain.ErrAlreadyStarted) {
			return domain.Player{}, err
		}
		return domain.Player{}, fmt.Errorf("insert player: %w", err)
	}

	s.publish(ctx, session.Code, broadcast.PlayerJoined, broadcast.PlayerJoinedPayload{Player: player})
	return player, nil
}

// Leave removes a player from a session that is still in its lobby.
func (s *GameService) Leave(ctx context.Context, code, playerID string) error {
	session, err := s.store.GetSession(ctx, codegen.Normalize(code))
	if err != nil {
		return err
	}
	if session.Status != domain.StatusLobby {
		return domain.ErrAlreadyStarted
	}
	player, err := s.sessionPlayer(ctx, session, playerID)
	if err != nil {
		return err
	}
	if err := s.store.DeletePlayer(ctx, player.ID); err != nil {
		return fmt.Errorf("delete player: %w", err)
	}

	s.publish(ctx, session.Code, broadcast.PlayerLeft, broadcast.PlayerLeftPayload{PlayerID: player.ID, Nickname: player.Nickname})
	return nil
}

// StartGame moves the lobby to the first question.
func (s *GameService) StartGame(ctx context.Context, code string) (domain.GameSession, error) {
	session, quiz, err := s.load(ctx, code)
	if err != nil {
		return domain.GameSession{}, err
	}
	players, err := s.store.ListPlayers(ctx, session.ID)
	if err != nil {
		return domain.GameSession{}, fmt.Errorf("list players: %w", err)
	}
	next, err := game.StartGame(session, len(players), len(quiz.Questions), s.clock.Now().UTC())
	if err != nil {
		return domain.GameSession{}, err
	}
	return s.commit(ctx, session, next, game.Start, quiz)
}

// ShowResults closes the current question and publishes its per-player results.
func (s *GameService) ShowResults(ctx context.Context, code string) (domain.GameSession, error) {
	session, quiz, err := s.load(ctx, code)
	if err != nil {
		return domain.GameSession{}, err
	}
	next, err := game.RevealResults(session)
	if err != nil {
		return domain.GameSession{}, err
	}
	return s.commit(ctx, session, next, game.Reveal, quiz)
}

// NextQuestion advances one question, or finishes the game after the last one.
func (s *GameService) NextQuestion(ctx context.Context, code string) (domain.GameSession, error) {
	session, quiz, err := s.load(ctx, code)
	if err != nil {
		return domain.GameSession{}, err
	}
	next, tr, err := game.NextStep(session, len(quiz.Questions), s.clock.Now().UTC())
	if err != nil {
		return domain.GameSession{}, err
	}
	return s.commit(ctx, session, next, tr, quiz)
}

// FinishGame ends a session whose last question is current.
func (s *GameService) FinishGame(ctx context.Context, code string) (domain.GameSession, error) {
	session, quiz, err := s.load(ctx, code)
	if err != nil {
		return domain.GameSession{}, err
	}
	next, err := game.FinishGame(session, len(quiz.Questions))
	if err != nil {
		return domain.GameSession{}, err
	}
	return s.commit(ctx, session, next, game.Finish, quiz)
}

// UpdateStatus applies a generic host request after resolving it to one legal transition.
func (s *GameService) UpdateStatus(ctx context.Context, code string, req game.Request) (domain.GameSession, error) {
	session, quiz, err := s.load(ctx, code)
	if err != nil {
		return domain.GameSession{}, err
	}
	players, err := s.store.ListPlayers(ctx, session.ID)
	if err != nil {
		return domain.GameSession{}, fmt.Errorf("list players: %w", err)
	}
	next, tr, err := game.Resolve(session, req, len(players), len(quiz.Questions), s.clock.Now().UTC())
	if err != nil {
		return domain.GameSession{}, err
	}
	if tr == game.None {
		return session, nil
	}
	return s.commit(ctx, session, next, tr, quiz)
}

// SubmitAnswer scores and records a player's answer to the current question. A second
// submission for the same question fails with domain.ErrDuplicateAnswer and leaves the
// score untouched.
func (s *GameService) SubmitAnswer(ctx context.Context, code string, sub Submission) (domain.AnswerResult, error) {
	if sub.ElapsedMs < 0 {
		return domain.AnswerResult{}, fmt.Errorf("%w: elapsed time must not be negative", domain.ErrValidation)
	}
	session, quiz, err := s.load(ctx, code)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	player, err := s.sessionPlayer(ctx, session, sub.PlayerID)
	if err != nil {
		return domain.AnswerResult{}, err
	}

	index := -1
	for i, q := range quiz.Questions {
		if q.ID == sub.QuestionID {
			index = i
			break
		}
	}
	if index < 0 {
		return domain.AnswerResult{}, domain.ErrQuestionNotFound
	}
	question := quiz.Questions[index]

	if session.Status != domain.StatusInProgress {
		return domain.AnswerResult{}, domain.ErrSessionNotActive
	}
	if index != session.CurrentQuestion || session.ShowingResults {
		return domain.AnswerResult{}, domain.ErrQuestionClosed
	}

	exists, err := s.store.AnswerExists(ctx, player.ID, question.ID)
	if err != nil {
		return domain.AnswerResult{}, fmt.Errorf("check answer: %w", err)
	}
	if exists {
		return domain.AnswerResult{}, domain.ErrDuplicateAnswer
	}

	if s.cfg.RejectLateAnswers && scoring.IsLate(question.TimeLimit, sub.ElapsedMs, s.cfg.LateGrace.Milliseconds()) {
		return domain.AnswerResult{}, domain.ErrLateAnswer
	}

	correct := scoring.CheckAnswer(question, sub.Answer)
	points := scoring.CalculatePoints(question.TimeLimit, sub.ElapsedMs, question.Points, correct)
	answer := domain.Answer{
		ID:           uuid.NewString(),
		PlayerID:     player.ID,
		QuestionID:   question.ID,
		Text:         sub.Answer,
		ElapsedMs:    sub.ElapsedMs,
		IsCorrect:    correct,
		PointsEarned: points,
		CreatedAt:    s.clock.Now().UTC(),
	}
	total, err := s.store.RecordAnswer(ctx, answer)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateAnswer) {
			return domain.AnswerResult{}, err
		}
		return domain.AnswerResult{}, fmt.Errorf("record answer: %w", err)
	}

	if count, err := s.store.CountAnswers(ctx, session.ID, question.ID); err != nil {
		log.Warn().Err(err).Str("code", session.Code).Msg("count answers failed")
	} else {
		s.publish(ctx, session.Code, broadcast.AnswerSubmitted, broadcast.AnswerSubmittedPayload{
			CurrentQuestion: index,
			AnsweredCount:   count,
		})
	}

	return domain.AnswerResult{
		AnswerID:     answer.ID,
		QuestionID:   question.ID,
		IsCorrect:    correct,
		PointsEarned: points,
		TotalScore:   total,
	}, nil
}

// Leaderboard ranks the session's players by score.
func (s *GameService) Leaderboard(ctx context.Context, code string) ([]domain.ScoreSnapshot, error) {
	session, err := s.store.GetSession(ctx, codegen.Normalize(code))
	if err != nil {
		return nil, err
	}
	players, err := s.store.ListPlayers(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	return leaderboard.Rank(players), nil
}

// QuestionResults returns per-player results of the current question in rank order.
func (s *GameService) QuestionResults(ctx context.Context, code string) ([]domain.QuestionScore, error) {
	session, quiz, err := s.load(ctx, code)
	if err != nil {
		return nil, err
	}
	if session.Status == domain.StatusLobby || session.CurrentQuestion >= len(quiz.Questions) {
		return nil, domain.ErrSessionNotActive
	}
	return s.questionResults(ctx, session, quiz.Questions[session.CurrentQuestion])
}

func (s *GameService) questionResults(ctx context.Context, session domain.GameSession, q domain.Question) ([]domain.QuestionScore, error) {
	players, err := s.store.ListPlayers(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	answers, err := s.store.ListAnswers(ctx, session.ID, q.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	byPlayer := make(map[string]domain.Answer, len(answers))
	for _, a := range answers {
		byPlayer[a.PlayerID] = a
	}

	standings := leaderboard.Rank(players)
	results := make([]domain.QuestionScore, 0, len(standings))
	for _, st := range standings {
		row := domain.QuestionScore{PlayerID: st.PlayerID, Nickname: st.Nickname, Score: st.Score}
		if a, ok := byPlayer[st.PlayerID]; ok {
			row.Answered = true
			row.IsCorrect = a.IsCorrect
			row.PointsEarned = a.PointsEarned
		}
		results = append(results, row)
	}
	return results, nil
}

// load reads a session by join code together with its quiz.
func (s *GameService) load(ctx context.Context, code string) (domain.GameSession, domain.Quiz, error) {
	session, err := s.store.GetSession(ctx, codegen.Normalize(code))
	if err != nil {
		return domain.GameSession{}, domain.Quiz{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.GameSession{}, domain.Quiz{}, err
	}
	return session, quiz, nil
}

func (s *GameService) sessionPlayer(ctx context.Context, session domain.GameSession, playerID string) (domain.Player, error) {
	player, err := s.store.GetPlayer(ctx, playerID)
	if err != nil {
		return domain.Player{}, err
	}
	if player.SessionID != session.ID {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return player, nil
}

// commit writes the transition to the store of record and then announces it.
func (s *GameService) commit(ctx context.Context, prev, next domain.GameSession, tr game.Transition, quiz domain.Quiz) (domain.GameSession, error) {
	saved, err := s.store.UpdateSession(ctx, prev, game.Diff(prev, next))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return domain.GameSession{}, err
		}
		return domain.GameSession{}, fmt.Errorf("update session: %w", err)
	}
	log.Info().
		Str("code", saved.Code).
		Str("transition", string(tr)).
		Str("status", string(saved.Status)).
		Int("question", saved.CurrentQuestion).
		Msg("session transition")

	if saved.CurrentQuestion >= len(quiz.Questions) {
		return saved, nil
	}
	current := quiz.Questions[saved.CurrentQuestion]
	switch tr {
	case game.Start:
		s.publish(ctx, saved.Code, broadcast.GameStarted, broadcast.GameStartedPayload{
			CurrentQuestion:   saved.CurrentQuestion,
			Question:          current.Public(),
			QuestionStartedAt: startedAt(saved),
		})
	case game.Advance:
		s.publish(ctx, saved.Code, broadcast.NewQuestion, broadcast.NewQuestionPayload{
			CurrentQuestion:   saved.CurrentQuestion,
			Question:          current.Public(),
			QuestionStartedAt: startedAt(saved),
		})
	case game.Reveal:
		results, err := s.questionResults(ctx, saved, current)
		if err != nil {
			log.Warn().Err(err).Str("code", saved.Code).Msg("compute question results failed")
			break
		}
		s.publish(ctx, saved.Code, broadcast.QuestionResults, broadcast.QuestionResultsPayload{
			CurrentQuestion: saved.CurrentQuestion,
			CorrectAnswer:   current.CorrectAnswer,
			Results:         results,
		})
	case game.Finish:
		players, err := s.store.ListPlayers(ctx, saved.ID)
		if err != nil {
			log.Warn().Err(err).Str("code", saved.Code).Msg("list players for standings failed")
			break
		}
		s.publish(ctx, saved.Code, broadcast.GameFinished, broadcast.GameFinishedPayload{
			CurrentQuestion: saved.CurrentQuestion,
			Standings:       leaderboard.Rank(players),
		})
	}
	return saved, nil
}

// publish is best effort: failures are logged and swallowed.
func (s *GameService) publish(ctx context.Context, code string, name broadcast.EventName, payload any) {
	ev, err := broadcast.NewEvent(code, name, payload, s.clock.Now().UTC())
	if err != nil {
		log.Error().Err(err).Str("code", code).Str("event", string(name)).Msg("encode broadcast")
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PublishTimeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("code", code).Str("event", string(name)).Msg("broadcast failed")
	}
}

func revealed(session domain.GameSession, index int) bool {
	switch session.Status {
	case domain.StatusFinished:
		return true
	case domain.StatusInProgress:
		return index < session.CurrentQuestion || (index == session.CurrentQuestion && session.ShowingResults)
	}
	return false
}

func startedAt(session domain.GameSession) time.Time {
	if session.QuestionStartedAt == nil {
		return time.Time{}
	}
	return *session.QuestionStartedAt
}
