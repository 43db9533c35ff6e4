package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"quizbot/internal/domain"

	"github.com/jackc/pgx/v4/pgxpool"
)

// ResultStore persists finished attempts.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) Record(ctx context.Context, result domain.Result) error {
	answers, err := json.Marshal(result.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO results (user_id, quiz_id, quiz_title, raw_score, max_score, percentage, answers, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		result.UserID, result.QuizID, result.QuizTitle,
		result.Raw, result.Max, result.Percentage, answers, result.CompletedAt)
	if err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	return nil
}

func (s *ResultStore) ListByUser(ctx context.Context, userID int64) ([]domain.Result, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, quiz_id, quiz_title, raw_score, max_score, percentage, answers, completed_at
		 FROM results WHERE user_id=$1 ORDER BY completed_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var results []domain.Result
	for rows.Next() {
		var result domain.Result
		var answers []byte
		if err := rows.Scan(&result.UserID, &result.QuizID, &result.QuizTitle,
			&result.Raw, &result.Max, &result.Percentage, &answers, &result.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if err := json.Unmarshal(answers, &result.Answers); err != nil {
			return nil, fmt.Errorf("unmarshal answers: %w", err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}
