package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"live-quiz-service/internal/domain"
)

// QuizLoader loads a quiz and its ordered questions from Postgres. It sits
// behind the quiz cache, so it only runs on a miss.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := l.pool.QueryRow(ctx,
		`SELECT id, owner_id, title, gamified, created_at FROM quizzes WHERE id=$1`, quizID,
	).Scan(&quiz.ID, &quiz.OwnerID, &quiz.Title, &quiz.Gamified, &quiz.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	quiz.CreatedAt = quiz.CreatedAt.UTC()

	rows, err := l.pool.Query(ctx, `
		SELECT id, order_index, text, type, options, correct_index, estimate_min, estimate_max, estimate_correct
		FROM questions WHERE quiz_id=$1 ORDER BY order_index`, quizID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			q                 domain.Question
			qType             string
			rawOptions        []byte
			min, max, correct *string
		)
		if err := rows.Scan(&q.ID, &q.OrderIndex, &q.Text, &qType, &rawOptions, &q.CorrectIndex, &min, &max, &correct); err != nil {
			return domain.Quiz{}, fmt.Errorf("scan question: %w", err)
		}
		q.QuizID = quizID
		q.Type = domain.QuestionType(qType)
		if len(rawOptions) > 0 {
			if err := json.Unmarshal(rawOptions, &q.Options); err != nil {
				return domain.Quiz{}, fmt.Errorf("unmarshal options: %w", err)
			}
		}
		if len(q.Options) == 0 {
			q.Options = nil
		}
		if q.Type == domain.Estimate {
			est, err := parseEstimate(min, max, correct)
			if err != nil {
				return domain.Quiz{}, fmt.Errorf("question %s: %w", q.ID, err)
			}
			q.Estimate = est
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	return quiz, nil
}

func parseEstimate(min, max, correct *string) (*domain.EstimateRange, error) {
	if min == nil || max == nil || correct == nil {
		return nil, errors.New("estimate range incomplete")
	}
	var (
		e   domain.EstimateRange
		err error
	)
	if e.Min, err = decimal.NewFromString(*min); err != nil {
		return nil, err
	}
	if e.Max, err = decimal.NewFromString(*max); err != nil {
		return nil, err
	}
	if e.Correct, err = decimal.NewFromString(*correct); err != nil {
		return nil, err
	}
	return &e, nil
}
