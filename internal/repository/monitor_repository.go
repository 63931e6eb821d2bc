package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MonitorRepository provides data access for the live exam monitoring feature.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// GetInProgressStudentIDs returns all student IDs with a live attempt for the given exam.
func (r *MonitorRepository) GetInProgressStudentIDs(ctx context.Context, examID uuid.UUID) ([]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id FROM attempts WHERE exam_id = $1 AND status = 'IN_PROGRESS'`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetAnsweredCounts returns, per student, how many questions have a stored
// answer in their autosaved attempt state.
func (r *MonitorRepository) GetAnsweredCounts(ctx context.Context, examID uuid.UUID) (map[int]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id, (SELECT COUNT(*) FROM jsonb_object_keys(answers))
		 FROM attempts
		 WHERE exam_id = $1 AND answers IS NOT NULL`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[int]int64)
	for rows.Next() {
		var sid int
		var count int64
		if err := rows.Scan(&sid, &count); err != nil {
			return nil, err
		}
		result[sid] = count
	}
	return result, rows.Err()
}

// GetViolationCounts returns the number of focus-loss events recorded for
// each student in the given exam.
func (r *MonitorRepository) GetViolationCounts(ctx context.Context, examID uuid.UUID) (map[int]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id, COUNT(*)
		 FROM attempt_violations
		 WHERE exam_id = $1
		 GROUP BY student_id`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var sid int
		var count int64
		if err := rows.Scan(&sid, &count); err != nil {
			return nil, err
		}
		counts[sid] = count
	}
	return counts, rows.Err()
}
