// Package postgres is the store of record backed by PostgreSQL through pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trivia-sync-service/internal/domain"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const uniqueViolation = "23505"

// Store implements the quiz and game stores on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) InsertQuiz(ctx context.Context, quiz domain.Quiz) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO quizzes (id, title, created_at) VALUES ($1, $2, $3)`,
		quiz.ID, quiz.Title, quiz.CreatedAt)
	return err
}

// InsertQuestions writes every question in one transaction.
func (s *Store) InsertQuestions(ctx context.Context, questions []domain.Question) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return insertQuestions(ctx, tx, questions)
	})
}

func (s *Store) ReplaceQuestions(ctx context.Context, quizID, title string, questions []domain.Question) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE quizzes SET title = $2 WHERE id = $1`, quizID, title)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrQuizNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE quiz_id = $1`, quizID); err != nil {
			return err
		}
		return insertQuestions(ctx, tx, questions)
	})
}

func insertQuestions(ctx context.Context, tx pgx.Tx, questions []domain.Question) error {
	batch := &pgx.Batch{}
	for _, q := range questions {
		options := q.Options
		if options == nil {
			options = []string{}
		}
		raw, err := json.Marshal(options)
		if err != nil {
			return fmt.Errorf("encode options: %w", err)
		}
		batch.Queue(`
			INSERT INTO questions (id, quiz_id, type, text, options, correct_answer, time_limit, points, order_index)
			VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9)`,
			q.ID, q.QuizID, string(q.Type), q.Text, string(raw), q.CorrectAnswer, q.TimeLimit, q.Points, q.Order)
	}

	results := tx.SendBatch(ctx, batch)
	for range questions {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return err
		}
	}
	return results.Close()
}

func (s *Store) DeleteQuiz(ctx context.Context, quizID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM quizzes WHERE id = $1`, quizID)
	return err
}

func (s *Store) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, created_at FROM quizzes WHERE id = $1`, quizID).
		Scan(&quiz.ID, &quiz.Title, &quiz.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, quiz_id, type, text, options, correct_answer, time_limit, points, order_index
		FROM questions WHERE quiz_id = $1 ORDER BY order_index`, quizID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			q       domain.Question
			qType   string
			options []byte
		)
		if err := rows.Scan(&q.ID, &q.QuizID, &qType, &q.Text, &options, &q.CorrectAnswer, &q.TimeLimit, &q.Points, &q.Order); err != nil {
			return domain.Quiz{}, fmt.Errorf("scan question: %w", err)
		}
		q.Type = domain.QuestionType(qType)
		if err := json.Unmarshal(options, &q.Options); err != nil {
			return domain.Quiz{}, fmt.Errorf("decode options: %w", err)
		}
		if len(q.Options) == 0 {
			q.Options = nil
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	return quiz, rows.Err()
}

func (s *Store) ListQuizzes(ctx context.Context) ([]domain.QuizSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT q.id, q.title, q.created_at, count(qu.id)
		FROM quizzes q LEFT JOIN questions qu ON qu.quiz_id = q.id
		GROUP BY q.id
		ORDER BY q.created_at DESC, q.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.QuizSummary{}
	for rows.Next() {
		var sum domain.QuizSummary
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.CreatedAt, &sum.QuestionCount); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *Store) QuizHasActiveSessions(ctx context.Context, quizID string) (bool, error) {
	var active bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM game_sessions WHERE quiz_id = $1 AND status <> 'finished')`, quizID).
		Scan(&active)
	return active, err
}

func (s *Store) QuizHasSessions(ctx context.Context, quizID string) (bool, error) {
	var referenced bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM game_sessions WHERE quiz_id = $1)`, quizID).
		Scan(&referenced)
	return referenced, err
}

func (s *Store) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM game_sessions WHERE code = $1)`, code).Scan(&exists)
	return exists, err
}

func (s *Store) InsertSession(ctx context.Context, session domain.GameSession) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO game_sessions (id, quiz_id, code, status, current_question, showing_results, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		session.ID, session.QuizID, session.Code, string(session.Status), session.CurrentQuestion, session.ShowingResults, session.CreatedAt)
	return err
}

const sessionColumns = `id, quiz_id, code, status, current_question, showing_results, question_started_at, created_at`

func scanSession(row pgx.Row) (domain.GameSession, error) {
	var (
		session domain.GameSession
		status  string
	)
	err := row.Scan(&session.ID, &session.QuizID, &session.Code, &status, &session.CurrentQuestion,
		&session.ShowingResults, &session.QuestionStartedAt, &session.CreatedAt)
	session.Status = domain.SessionStatus(status)
	return session, err
}

func (s *Store) GetSession(ctx context.Context, code string) (domain.GameSession, error) {
	session, err := scanSession(s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM game_sessions WHERE code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.GameSession{}, fmt.Errorf("load session: %w", err)
	}
	return session, nil
}

// UpdateSession is a conditional write: it only matches the row while it is still in
// the state the caller read.
func (s *Store) UpdateSession(ctx context.Context, prev domain.GameSession, upd domain.SessionUpdate) (domain.GameSession, error) {
	var status *string
	if upd.Status != nil {
		v := string(*upd.Status)
		status = &v
	}
	session, err := scanSession(s.pool.QueryRow(ctx, `
		UPDATE game_sessions SET
			status = COALESCE($2::text, status),
			current_question = COALESCE($3::int, current_question),
			showing_results = COALESCE($4::boolean, showing_results),
			question_started_at = COALESCE($5::timestamptz, question_started_at)
		WHERE code = $1 AND status = $6 AND current_question = $7 AND showing_results = $8
		RETURNING `+sessionColumns,
		prev.Code, status, upd.CurrentQuestion, upd.ShowingResults, upd.QuestionStartedAt,
		string(prev.Status), prev.CurrentQuestion, prev.ShowingResults))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.GetSession(ctx, prev.Code); getErr != nil {
			return domain.GameSession{}, getErr
		}
		return domain.GameSession{}, fmt.Errorf("%w: session changed concurrently", domain.ErrInvalidTransition)
	}
	if err != nil {
		return domain.GameSession{}, fmt.Errorf("update session: %w", err)
	}
	return session, nil
}

const playerColumns = `id, session_id, nickname, score, joined_at`

func scanPlayer(row pgx.Row) (domain.Player, error) {
	var p domain.Player
	err := row.Scan(&p.ID, &p.SessionID, &p.Nickname, &p.Score, &p.JoinedAt)
	return p, err
}

// ListPlayers returns the session's players in join order.
func (s *Store) ListPlayers(ctx context.Context, sessionID string) ([]domain.Player, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+playerColumns+` FROM players WHERE session_id = $1 ORDER BY join_seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Player{}
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetPlayer(ctx context.Context, playerID string) (domain.Player, error) {
	p, err := scanPlayer(s.pool.QueryRow(ctx, `SELECT `+playerColumns+` FROM players WHERE id = $1`, playerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	if err != nil {
		return domain.Player{}, fmt.Errorf("load player: %w", err)
	}
	return p, nil
}

func (s *Store) NicknameTaken(ctx context.Context, sessionID, nickname string) (bool, error) {
	var taken bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM players WHERE session_id = $1 AND nickname = $2)`, sessionID, nickname).
		Scan(&taken)
	return taken, err
}

// InsertPlayer inserts only while the session is still in its lobby.
func (s *Store) InsertPlayer(ctx context.Context, player domain.Player) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO players (id, session_id, nickname, score, joined_at)
		SELECT $1, id, $3, $4, $5 FROM game_sessions WHERE id = $2 AND status = 'lobby'`,
		player.ID, player.SessionID, player.Nickname, player.Score, player.JoinedAt)
	if isUniqueViolation(err, "players_session_nickname_key") {
		return domain.ErrNicknameTaken
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM game_sessions WHERE id = $1)`, player.SessionID).
			Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrSessionNotFound
		}
		return domain.ErrAlreadyStarted
	}
	return nil
}

func (s *Store) DeletePlayer(ctx context.Context, playerID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM players WHERE id = $1`, playerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

func (s *Store) AnswerExists(ctx context.Context, playerID, questionID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM answers WHERE player_id = $1 AND question_id = $2)`, playerID, questionID).
		Scan(&exists)
	return exists, err
}

// RecordAnswer inserts the answer and credits its points in one transaction.
func (s *Store) RecordAnswer(ctx context.Context, a domain.Answer) (int, error) {
	var total int
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO answers (id, player_id, question_id, answer, time_ms, is_correct, points_earned, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			a.ID, a.PlayerID, a.QuestionID, a.Text, a.ElapsedMs, a.IsCorrect, a.PointsEarned, a.CreatedAt)
		if isUniqueViolation(err, "answers_player_question_key") {
			return domain.ErrDuplicateAnswer
		}
		if err != nil {
			return err
		}
		err = tx.QueryRow(ctx,
			`UPDATE players SET score = score + $2 WHERE id = $1 RETURNING score`, a.PlayerID, a.PointsEarned).
			Scan(&total)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrPlayerNotFound
		}
		return err
	})
	return total, err
}

func (s *Store) ListAnswers(ctx context.Context, sessionID, questionID string) ([]domain.Answer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.player_id, a.question_id, a.answer, a.time_ms, a.is_correct, a.points_earned, a.created_at
		FROM answers a JOIN players p ON p.id = a.player_id
		WHERE p.session_id = $1 AND a.question_id = $2
		ORDER BY a.created_at`, sessionID, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Answer{}
	for rows.Next() {
		var a domain.Answer
		if err := rows.Scan(&a.ID, &a.PlayerID, &a.QuestionID, &a.Text, &a.ElapsedMs, &a.IsCorrect, &a.PointsEarned, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) CountAnswers(ctx context.Context, sessionID, questionID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM answers a JOIN players p ON p.id = a.player_id
		WHERE p.session_id = $1 AND a.question_id = $2`, sessionID, questionID).
		Scan(&n)
	return n, err
}

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint
}

// Connect opens a pool and verifies connectivity within timeout.
func Connect(ctx context.Context, url string, timeout time.Duration) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	pool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}
