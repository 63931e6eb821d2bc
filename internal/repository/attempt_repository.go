package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examo-id/examo-backend/internal/model"
)

// AttemptResult combines student identity with their attempt outcome,
// used for the teacher-facing results listing.
type AttemptResult struct {
	StudentID      int                 `json:"student_id"`
	Name           string              `json:"name"`
	NISN           string              `json:"nisn"`
	Grade          string              `json:"grade"`
	Score          *float64            `json:"score"`
	Status         model.AttemptStatus `json:"status"`
	ViolationCount int                 `json:"violation_count"`
	StartedAt      *time.Time          `json:"started_at"`
	SubmittedAt    *time.Time          `json:"submitted_at"`
}

// AttemptRepository handles attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// GetByExamAndStudent retrieves the attempt for one exam-student pair.
func (r *AttemptRepository) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, student_id, status, answers, logs,
		        started_at, submitted_at, score, points_obtained, total_points_possible,
		        correct_count, incorrect_count, unanswered_count, violation_count
		 FROM attempts
		 WHERE exam_id = $1 AND student_id = $2`, examID, studentID,
	).Scan(&a.ID, &a.ExamID, &a.StudentID, &a.Status, &a.Answers, &a.Logs,
		&a.StartedAt, &a.SubmittedAt, &a.Score, &a.PointsObtained, &a.TotalPointsPossible,
		&a.CorrectCount, &a.IncorrectCount, &a.UnansweredCount, &a.ViolationCount)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create inserts a new attempt (student joins the exam). ON CONFLICT makes
// a concurrent double-join surface as pgx.ErrNoRows.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (exam_id, student_id, status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (exam_id, student_id) DO NOTHING
		 RETURNING id, started_at`,
		a.ExamID, a.StudentID, model.AttemptStatusInProgress,
	).Scan(&a.ID, &a.StartedAt)
}

// SaveProgress UPSERTs the autosaved answers and event log of a live
// attempt. Terminal attempts are never touched.
func (r *AttemptRepository) SaveProgress(ctx context.Context, examID uuid.UUID, studentID int, answers model.AnswerMap, logs []model.ExamLog) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET answers = $1, logs = $2, updated_at = NOW()
		 WHERE exam_id = $3 AND student_id = $4 AND status = 'IN_PROGRESS'`,
		answers, logs, examID, studentID)
	return err
}

// Complete writes the terminal result of an attempt.
func (r *AttemptRepository) Complete(ctx context.Context, res *model.Attempt) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, answers = $2, logs = $3,
		     submitted_at = $4, score = $5,
		     points_obtained = $6, total_points_possible = $7,
		     correct_count = $8, incorrect_count = $9, unanswered_count = $10,
		     violation_count = $11, updated_at = NOW()
		 WHERE exam_id = $12 AND student_id = $13 AND status = 'IN_PROGRESS'`,
		res.Status, res.Answers, res.Logs,
		res.SubmittedAt, res.Score,
		res.PointsObtained, res.TotalPointsPossible,
		res.CorrectCount, res.IncorrectCount, res.UnansweredCount,
		res.ViolationCount, res.ExamID, res.StudentID)
	return err
}

// SaveQuestionOrder persists the session question ordering so results can
// be reviewed against what the student actually saw.
func (r *AttemptRepository) SaveQuestionOrder(ctx context.Context, examID uuid.UUID, studentID int, questionIDs []uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts SET question_order = $1, updated_at = NOW()
		 WHERE exam_id = $2 AND student_id = $3`,
		questionIDs, examID, studentID)
	return err
}

// ListByStudent retrieves all attempts for a given student, newest first.
func (r *AttemptRepository) ListByStudent(ctx context.Context, studentID int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, student_id, status, started_at, submitted_at,
		        score, violation_count
		 FROM attempts
		 WHERE student_id = $1
		 ORDER BY started_at DESC`, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(&a.ID, &a.ExamID, &a.StudentID, &a.Status, &a.StartedAt,
			&a.SubmittedAt, &a.Score, &a.ViolationCount); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ListByExam retrieves student results for one exam, with an optional
// grade filter and pagination.
func (r *AttemptRepository) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int, grade *string) ([]AttemptResult, int64, error) {
	offset := (page - 1) * perPage

	baseQuery := `
		FROM attempts a
		JOIN students s ON a.student_id = s.id
		WHERE a.exam_id = $1
	`
	args := []any{examID}

	if grade != nil && *grade != "" {
		args = append(args, *grade)
		baseQuery += fmt.Sprintf(" AND s.grade = $%d", len(args))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) "+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT s.id, s.name, s.nisn, s.grade,
		       a.score, a.status, a.violation_count, a.started_at, a.submitted_at
		` + baseQuery + `
		ORDER BY s.grade ASC, s.name ASC
		LIMIT $` + fmt.Sprintf("%d", len(args)+1) + ` OFFSET $` + fmt.Sprintf("%d", len(args)+2)
	args = append(args, perPage, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []AttemptResult
	for rows.Next() {
		var res AttemptResult
		if err := rows.Scan(
			&res.StudentID, &res.Name, &res.NISN, &res.Grade,
			&res.Score, &res.Status, &res.ViolationCount, &res.StartedAt, &res.SubmittedAt,
		); err != nil {
			return nil, 0, err
		}
		results = append(results, res)
	}

	return results, total, rows.Err()
}
