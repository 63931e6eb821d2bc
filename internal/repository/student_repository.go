package repository

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examo-id/examo-backend/internal/model"
)

var ErrDuplicateNISN = errors.New("student with this NISN already exists")

// StudentRepository handles student data access.
type StudentRepository struct {
	pool *pgxpool.Pool
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(pool *pgxpool.Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

// GetByID retrieves a student by ID.
func (r *StudentRepository) GetByID(ctx context.Context, id int) (*model.Student, error) {
	s := &model.Student{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, nisn, name, grade, password_hash, created_at
		 FROM students WHERE id = $1`, id,
	).Scan(&s.ID, &s.NISN, &s.Name, &s.Grade, &s.PasswordHash, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetByNISN retrieves a student by their unique NISN.
func (r *StudentRepository) GetByNISN(ctx context.Context, nisn string) (*model.Student, error) {
	s := &model.Student{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, nisn, name, grade, password_hash, created_at
		 FROM students WHERE nisn = $1`, nisn,
	).Scan(&s.ID, &s.NISN, &s.Name, &s.Grade, &s.PasswordHash, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a new student.
func (r *StudentRepository) Create(ctx context.Context, s *model.Student) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO students (nisn, name, grade, password_hash)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		s.NISN, s.Name, s.Grade, s.PasswordHash,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateNISN
		}
		return err
	}
	return nil
}

// ListPaginated retrieves students with pagination and optional grade filter.
func (r *StudentRepository) ListPaginated(ctx context.Context, grade *string, limit, offset int) ([]model.Student, int, error) {
	countQuery := `SELECT COUNT(*) FROM students`
	var countArgs []interface{}
	if grade != nil && *grade != "" {
		countQuery += ` WHERE grade = $1`
		countArgs = append(countArgs, *grade)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, nisn, name, grade, password_hash, created_at FROM students`
	var args []interface{}
	argIdx := 1
	if grade != nil && *grade != "" {
		query += ` WHERE grade = $1`
		args = append(args, *grade)
		argIdx++
	}
	query += ` ORDER BY name LIMIT $` + strconv.Itoa(argIdx) + ` OFFSET $` + strconv.Itoa(argIdx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var students []model.Student
	for rows.Next() {
		var s model.Student
		if err := rows.Scan(&s.ID, &s.NISN, &s.Name, &s.Grade, &s.PasswordHash, &s.CreatedAt); err != nil {
			return nil, 0, err
		}
		students = append(students, s)
	}
	return students, total, rows.Err()
}

// UpdatePassword updates a student's password hash.
func (r *StudentRepository) UpdatePassword(ctx context.Context, id int, passwordHash string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE students SET password_hash = $1 WHERE id = $2`,
		passwordHash, id)
	return err
}
