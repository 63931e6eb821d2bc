package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examo-id/examo-backend/internal/model"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

const questionColumns = `id, question_type, question_text, options,
	correct_index, correct_indices, true_false_answer, short_answer,
	essay_answer, explanation, points, randomize_options, order_num`

// ListByExam retrieves all questions for a given exam in authored order,
// answer keys included.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+`
		 FROM questions WHERE exam_id = $1
		 ORDER BY order_num`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var shortAnswer, essayAnswer, explanation *string
		if err := rows.Scan(&q.ID, &q.Type, &q.Text, &q.Options,
			&q.CorrectIndex, &q.CorrectIndices, &q.TrueFalseAnswer, &shortAnswer,
			&essayAnswer, &explanation, &q.Points, &q.RandomizeOptions, &q.OrderNum); err != nil {
			return nil, err
		}
		if shortAnswer != nil {
			q.ShortAnswer = *shortAnswer
		}
		if essayAnswer != nil {
			q.EssayAnswer = *essayAnswer
		}
		if explanation != nil {
			q.Explanation = *explanation
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Create inserts a single question.
func (r *QuestionRepository) Create(ctx context.Context, examID uuid.UUID, q *model.Question) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (exam_id, question_type, question_text, options,
		                        correct_index, correct_indices, true_false_answer, short_answer,
		                        essay_answer, explanation, points, randomize_options, order_num)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING id`,
		examID, q.Type, q.Text, q.Options,
		q.CorrectIndex, q.CorrectIndices, q.TrueFalseAnswer, nullIfEmpty(q.ShortAnswer),
		nullIfEmpty(q.EssayAnswer), nullIfEmpty(q.Explanation), q.Points, q.RandomizeOptions, q.OrderNum,
	).Scan(&q.ID)
}

// ReplaceForExam swaps the full question set of a draft exam in one
// transaction. Order numbers are reassigned from slice position.
func (r *QuestionRepository) ReplaceForExam(ctx context.Context, examID uuid.UUID, questions []model.Question) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE exam_id = $1`, examID); err != nil {
		return fmt.Errorf("clear questions: %w", err)
	}

	for i := range questions {
		q := &questions[i]
		q.OrderNum = i + 1
		err := tx.QueryRow(ctx,
			`INSERT INTO questions (exam_id, question_type, question_text, options,
			                        correct_index, correct_indices, true_false_answer, short_answer,
			                        essay_answer, explanation, points, randomize_options, order_num)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			 RETURNING id`,
			examID, q.Type, q.Text, q.Options,
			q.CorrectIndex, q.CorrectIndices, q.TrueFalseAnswer, nullIfEmpty(q.ShortAnswer),
			nullIfEmpty(q.EssayAnswer), nullIfEmpty(q.Explanation), q.Points, q.RandomizeOptions, q.OrderNum,
		).Scan(&q.ID)
		if err != nil {
			return fmt.Errorf("insert question %d: %w", i, err)
		}
	}

	return tx.Commit(ctx)
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
