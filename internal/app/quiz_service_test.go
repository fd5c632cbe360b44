package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"trivia-sync-service/internal/app"
	"trivia-sync-service/internal/domain"
	"trivia-sync-service/internal/infra/memory"
)

func sampleInput() domain.QuizInput {
	return domain.QuizInput{
		Title: "Capitals",
		Questions: []domain.QuestionInput{
			{Type: domain.MultipleChoice, Text: "Capital of Spain?", Options: []string{"Madrid", "Lisbon", "Rome"}, CorrectAnswer: "Madrid"},
			{Type: domain.TrueFalse, Text: "Paris is in France", CorrectAnswer: "true", TimeLimit: 10},
			{Type: domain.OpenText, Text: "Capital of France?", CorrectAnswer: "Paris", Points: 200},
		},
	}
}

func TestCreateQuizAssignsOrderAndIDs(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	service := app.NewQuizService(store, nil)

	quiz, err := service.Create(ctx, sampleInput())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, err := service.Get(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(stored.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(stored.Questions))
	}
	for i, q := range stored.Questions {
		if q.Order != i || q.ID == "" || q.QuizID != quiz.ID {
			t.Fatalf("unexpected question %d: %+v", i, q)
		}
	}

	list, _ := service.List(ctx)
	if len(list) != 1 || list[0].QuestionCount != 3 {
		t.Fatalf("expected one summary with 3 questions, got %+v", list)
	}
}

func TestCreateQuizRejectsInvalidInput(t *testing.T) {
	service := app.NewQuizService(memory.NewStore(), nil)

	if _, err := service.Create(context.Background(), domain.QuizInput{Title: " "}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

type failingQuestionsStore struct {
	*memory.Store
}

func (failingQuestionsStore) InsertQuestions(context.Context, []domain.Question) error {
	return errors.New("disk full")
}

func TestCreateQuizRollsBackWhenQuestionsFail(t *testing.T) {
	ctx := context.Background()
	store := failingQuestionsStore{Store: memory.NewStore()}
	service := app.NewQuizService(store, nil)

	if _, err := service.Create(ctx, sampleInput()); err == nil {
		t.Fatalf("expected create to fail")
	}
	list, _ := store.ListQuizzes(ctx)
	if len(list) != 0 {
		t.Fatalf("expected quiz row to be compensated, got %+v", list)
	}
}

func TestUpdateQuizReplacesQuestionsAndInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	cache := memory.NewQuizCache(store, time.Minute)
	service := app.NewQuizService(store, cache)

	quiz, err := service.Create(ctx, sampleInput())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := cache.GetQuiz(ctx, quiz.ID); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	in := sampleInput()
	in.Title = "Only one"
	in.Questions = in.Questions[2:]
	if _, err := service.Update(ctx, quiz.ID, in); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	cached, err := cache.GetQuiz(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if cached.Title != "Only one" || len(cached.Questions) != 1 || cached.Questions[0].Order != 0 {
		t.Fatalf("expected replaced question set, got %+v", cached)
	}
}

func TestQuizInUseCannotChange(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	quizzes := app.NewQuizService(store, nil)
	games := app.NewGameService(store, store, nil)

	quiz, _ := quizzes.Create(ctx, sampleInput())
	if _, err := games.CreateSession(ctx, quiz.ID); err != nil {
		t.Fatalf("create session: %v", err)
	}

	if _, err := quizzes.Update(ctx, quiz.ID, sampleInput()); !errors.Is(err, domain.ErrQuizInUse) {
		t.Fatalf("expected quiz in use on update, got %v", err)
	}
	if err := quizzes.Delete(ctx, quiz.ID); !errors.Is(err, domain.ErrQuizInUse) {
		t.Fatalf("expected quiz in use on delete, got %v", err)
	}
	if err := quizzes.Delete(ctx, "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestQuizOfFinishedSessionStaysImmutable(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	quizzes := app.NewQuizService(store, nil)
	games := app.NewGameService(store, store, nil)

	quiz, _ := quizzes.Create(ctx, sampleInput())
	session, err := games.CreateSession(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := games.Join(ctx, session.Code, "alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := games.StartGame(ctx, session.Code); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := games.FinishGame(ctx, session.Code); err != nil {
		t.Fatalf("finish: %v", err)
	}

	if _, err := quizzes.Update(ctx, quiz.ID, sampleInput()); !errors.Is(err, domain.ErrQuizInUse) {
		t.Fatalf("expected quiz in use on update, got %v", err)
	}
	detail, err := games.GetSession(ctx, session.Code)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if len(detail.Quiz.Questions) != len(quiz.Questions) || detail.Quiz.Questions[0].ID != quiz.Questions[0].ID {
		t.Fatalf("expected finished session to keep its questions, got %+v", detail.Quiz.Questions)
	}

	if err := quizzes.Delete(ctx, quiz.ID); err != nil {
		t.Fatalf("expected finished quiz to be deletable, got %v", err)
	}
}
