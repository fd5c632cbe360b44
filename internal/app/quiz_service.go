package app

import (
	"context"
	"fmt"

	"trivia-sync-service/internal/domain"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// QuizStore persists quiz content in the store of record.
type QuizStore interface {
	InsertQuiz(ctx context.Context, quiz domain.Quiz) error
	// InsertQuestions is all-or-nothing.
	InsertQuestions(ctx context.Context, questions []domain.Question) error
	// ReplaceQuestions swaps the title and the whole question set in one step.
	ReplaceQuestions(ctx context.Context, quizID, title string, questions []domain.Question) error
	DeleteQuiz(ctx context.Context, quizID string) error
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	ListQuizzes(ctx context.Context) ([]domain.QuizSummary, error)
	QuizHasActiveSessions(ctx context.Context, quizID string) (bool, error)
	QuizHasSessions(ctx context.Context, quizID string) (bool, error)
}

// QuizReader loads quiz content, usually through a cache.
type QuizReader interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizCache is a QuizReader whose entries can be dropped after an edit.
type QuizCache interface {
	QuizReader
	Invalidate(ctx context.Context, quizID string) error
}

// QuizService contains the quiz authoring use cases.
type QuizService struct {
	store QuizStore
	cache QuizCache
	clock clockwork.Clock
}

// NewQuizService wires the store of record and an optional cache.
func NewQuizService(store QuizStore, cache QuizCache) *QuizService {
	return &QuizService{store: store, cache: cache, clock: clockwork.NewRealClock()}
}

// NewQuizServiceWithClock is test-only for deterministic timestamps.
func NewQuizServiceWithClock(store QuizStore, cache QuizCache, clock clockwork.Clock) *QuizService {
	s := NewQuizService(store, cache)
	s.clock = clock
	return s
}

// Create validates the input and stores the quiz and its questions. If the questions
// cannot be stored the quiz row is deleted again.
func (s *QuizService) Create(ctx context.Context, in domain.QuizInput) (domain.Quiz, error) {
	title, questions, err := in.Normalize()
	if err != nil {
		return domain.Quiz{}, err
	}

	quiz := domain.Quiz{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: s.clock.Now().UTC(),
	}
	assignIDs(quiz.ID, questions)

	if err := s.store.InsertQuiz(ctx, quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("insert quiz: %w", err)
	}
	if err := s.store.InsertQuestions(ctx, questions); err != nil {
		if delErr := s.store.DeleteQuiz(ctx, quiz.ID); delErr != nil {
			log.Error().Err(delErr).Str("quiz_id", quiz.ID).Msg("failed to roll back quiz after question insert failure")
		}
		return domain.Quiz{}, fmt.Errorf("insert questions: %w", err)
	}

	quiz.Questions = questions
	log.Info().Str("quiz_id", quiz.ID).Int("questions", len(questions)).Msg("quiz created")
	return quiz, nil
}

// Get returns a quiz with its questions in order.
func (s *QuizService) Get(ctx context.Context, quizID string) (domain.Quiz, error) {
	return s.store.GetQuiz(ctx, quizID)
}

// List returns every quiz, newest first.
func (s *QuizService) List(ctx context.Context) ([]domain.QuizSummary, error) {
	return s.store.ListQuizzes(ctx)
}

// Update replaces the title and the whole question set. A quiz is immutable once any
// session refers to it, finished sessions included.
func (s *QuizService) Update(ctx context.Context, quizID string, in domain.QuizInput) (domain.Quiz, error) {
	current, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	referenced, err := s.store.QuizHasSessions(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("check sessions: %w", err)
	}
	if referenced {
		return domain.Quiz{}, domain.ErrQuizInUse
	}

	title, questions, err := in.Normalize()
	if err != nil {
		return domain.Quiz{}, err
	}
	assignIDs(quizID, questions)

	if err := s.store.ReplaceQuestions(ctx, quizID, title, questions); err != nil {
		return domain.Quiz{}, fmt.Errorf("replace questions: %w", err)
	}
	s.invalidate(ctx, quizID)

	current.Title = title
	current.Questions = questions
	return current, nil
}

// Delete removes a quiz that no lobby or in-progress session references, together
// with its finished sessions.
func (s *QuizService) Delete(ctx context.Context, quizID string) error {
	if _, err := s.store.GetQuiz(ctx, quizID); err != nil {
		return err
	}
	if err := s.ensureNotInUse(ctx, quizID); err != nil {
		return err
	}
	if err := s.store.DeleteQuiz(ctx, quizID); err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	s.invalidate(ctx, quizID)
	return nil
}

func (s *QuizService) ensureNotInUse(ctx context.Context, quizID string) error {
	active, err := s.store.QuizHasActiveSessions(ctx, quizID)
	if err != nil {
		return fmt.Errorf("check active sessions: %w", err)
	}
	if active {
		return domain.ErrQuizInUse
	}
	return nil
}

func (s *QuizService) invalidate(ctx context.Context, quizID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, quizID); err != nil {
		log.Warn().Err(err).Str("quiz_id", quizID).Msg("quiz cache invalidation failed")
	}
}

func assignIDs(quizID string, questions []domain.Question) {
	for i := range questions {
		questions[i].ID = uuid.NewString()
		questions[i].QuizID = quizID
	}
}
