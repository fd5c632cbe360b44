// Package memory holds in-process implementations of the store of record, the
// broadcast channel and the quiz cache, used by tests and single-node deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"trivia-sync-service/internal/domain"
)

// Store is an in-memory store of record.
type Store struct {
	mu        sync.RWMutex
	quizzes   map[string]domain.Quiz
	questions map[string][]domain.Question
	sessions  map[string]domain.GameSession // by code
	players   map[string]storedPlayer
	answers   map[answerKey]domain.Answer
	seq       int
}

type storedPlayer struct {
	player domain.Player
	seq    int
}

type answerKey struct {
	playerID   string
	questionID string
}

func NewStore() *Store {
	return &Store{
		quizzes:   make(map[string]domain.Quiz),
		questions: make(map[string][]domain.Question),
		sessions:  make(map[string]domain.GameSession),
		players:   make(map[string]storedPlayer),
		answers:   make(map[answerKey]domain.Answer),
	}
}

func (s *Store) InsertQuiz(_ context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz.Questions = nil
	s.quizzes[quiz.ID] = quiz
	return nil
}

func (s *Store) InsertQuestions(_ context.Context, questions []domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range questions {
		if _, ok := s.quizzes[q.QuizID]; !ok {
			return fmt.Errorf("question %s: %w", q.ID, domain.ErrQuizNotFound)
		}
	}
	for _, q := range questions {
		s.questions[q.QuizID] = append(s.questions[q.QuizID], q)
	}
	return nil
}

func (s *Store) ReplaceQuestions(_ context.Context, quizID, title string, questions []domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.ErrQuizNotFound
	}
	quiz.Title = title
	s.quizzes[quizID] = quiz
	s.questions[quizID] = append([]domain.Question(nil), questions...)
	return nil
}

// DeleteQuiz removes the quiz together with its sessions, players and answers.
func (s *Store) DeleteQuiz(_ context.Context, quizID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.quizzes, quizID)
	delete(s.questions, quizID)
	for code, session := range s.sessions {
		if session.QuizID != quizID {
			continue
		}
		delete(s.sessions, code)
		for id, p := range s.players {
			if p.player.SessionID == session.ID {
				s.deletePlayerLocked(id)
			}
		}
	}
	return nil
}

func (s *Store) GetQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	questions := append([]domain.Question(nil), s.questions[quizID]...)
	sort.SliceStable(questions, func(i, j int) bool { return questions[i].Order < questions[j].Order })
	quiz.Questions = questions
	return quiz, nil
}

func (s *Store) ListQuizzes(_ context.Context) ([]domain.QuizSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.QuizSummary, 0, len(s.quizzes))
	for id, quiz := range s.quizzes {
		out = append(out, domain.QuizSummary{
			ID:            id,
			Title:         quiz.Title,
			CreatedAt:     quiz.CreatedAt,
			QuestionCount: len(s.questions[id]),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) QuizHasActiveSessions(_ context.Context, quizID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		if session.QuizID == quizID && session.Status != domain.StatusFinished {
			return true, nil
		}
	}
	return false, nil
}

// QuizHasSessions reports whether any session, finished or not, refers to the quiz.
func (s *Store) QuizHasSessions(_ context.Context, quizID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		if session.QuizID == quizID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CodeExists(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[code]
	return ok, nil
}

func (s *Store) InsertSession(_ context.Context, session domain.GameSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.Code]; ok {
		return fmt.Errorf("session code %s already in use", session.Code)
	}
	s.sessions[session.Code] = session
	return nil
}

func (s *Store) GetSession(_ context.Context, code string) (domain.GameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[code]
	if !ok {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) UpdateSession(_ context.Context, prev domain.GameSession, upd domain.SessionUpdate) (domain.GameSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[prev.Code]
	if !ok {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	if session.Status != prev.Status || session.CurrentQuestion != prev.CurrentQuestion || session.ShowingResults != prev.ShowingResults {
		return domain.GameSession{}, fmt.Errorf("%w: session changed concurrently", domain.ErrInvalidTransition)
	}
	if upd.Status != nil {
		session.Status = *upd.Status
	}
	if upd.CurrentQuestion != nil {
		session.CurrentQuestion = *upd.CurrentQuestion
	}
	if upd.ShowingResults != nil {
		session.ShowingResults = *upd.ShowingResults
	}
	if upd.QuestionStartedAt != nil {
		started := *upd.QuestionStartedAt
		session.QuestionStartedAt = &started
	}
	s.sessions[prev.Code] = session
	return session, nil
}

// ListPlayers returns the session's players in join order.
func (s *Store) ListPlayers(_ context.Context, sessionID string) ([]domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := make([]storedPlayer, 0)
	for _, p := range s.players {
		if p.player.SessionID == sessionID {
			stored = append(stored, p)
		}
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].seq < stored[j].seq })
	out := make([]domain.Player, len(stored))
	for i, p := range stored {
		out[i] = p.player
	}
	return out, nil
}

func (s *Store) GetPlayer(_ context.Context, playerID string) (domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[playerID]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return p.player, nil
}

func (s *Store) NicknameTaken(_ context.Context, sessionID, nickname string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nicknameTakenLocked(sessionID, nickname), nil
}

func (s *Store) nicknameTakenLocked(sessionID, nickname string) bool {
	for _, p := range s.players {
		if p.player.SessionID == sessionID && p.player.Nickname == nickname {
			return true
		}
	}
	return false
}

func (s *Store) InsertPlayer(_ context.Context, player domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.sessionStatusLocked(player.SessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	if status != domain.StatusLobby {
		return domain.ErrAlreadyStarted
	}
	if s.nicknameTakenLocked(player.SessionID, player.Nickname) {
		return domain.ErrNicknameTaken
	}
	s.seq++
	s.players[player.ID] = storedPlayer{player: player, seq: s.seq}
	return nil
}

func (s *Store) sessionStatusLocked(sessionID string) (domain.SessionStatus, bool) {
	for _, session := range s.sessions {
		if session.ID == sessionID {
			return session.Status, true
		}
	}
	return "", false
}

func (s *Store) DeletePlayer(_ context.Context, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[playerID]; !ok {
		return domain.ErrPlayerNotFound
	}
	s.deletePlayerLocked(playerID)
	return nil
}

func (s *Store) deletePlayerLocked(playerID string) {
	delete(s.players, playerID)
	for key := range s.answers {
		if key.playerID == playerID {
			delete(s.answers, key)
		}
	}
}

func (s *Store) AnswerExists(_ context.Context, playerID, questionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.answers[answerKey{playerID, questionID}]
	return ok, nil
}

func (s *Store) RecordAnswer(_ context.Context, answer domain.Answer) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[answer.PlayerID]
	if !ok {
		return 0, domain.ErrPlayerNotFound
	}
	key := answerKey{answer.PlayerID, answer.QuestionID}
	if _, ok := s.answers[key]; ok {
		return 0, domain.ErrDuplicateAnswer
	}
	s.answers[key] = answer
	p.player.Score += answer.PointsEarned
	s.players[answer.PlayerID] = p
	return p.player.Score, nil
}

func (s *Store) ListAnswers(_ context.Context, sessionID, questionID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.answersLocked(sessionID, questionID)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CountAnswers(_ context.Context, sessionID, questionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.answersLocked(sessionID, questionID)), nil
}

func (s *Store) answersLocked(sessionID, questionID string) []domain.Answer {
	var out []domain.Answer
	for key, a := range s.answers {
		if key.questionID != questionID {
			continue
		}
		if p, ok := s.players[key.playerID]; ok && p.player.SessionID == sessionID {
			out = append(out, a)
		}
	}
	return out
}
