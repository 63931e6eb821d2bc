package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examo-id/examo-backend/internal/model"
)

var ErrDuplicateEmail = errors.New("teacher with this email already exists")

// TeacherRepository handles teacher data access.
type TeacherRepository struct {
	pool *pgxpool.Pool
}

// NewTeacherRepository creates a new TeacherRepository.
func NewTeacherRepository(pool *pgxpool.Pool) *TeacherRepository {
	return &TeacherRepository{pool: pool}
}

// GetByID retrieves a teacher by ID.
func (r *TeacherRepository) GetByID(ctx context.Context, id int) (*model.Teacher, error) {
	t := &model.Teacher{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, name, subject, password_hash, created_at
		 FROM teachers WHERE id = $1`, id,
	).Scan(&t.ID, &t.Email, &t.Name, &t.Subject, &t.PasswordHash, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetByEmail retrieves a teacher by their unique email.
func (r *TeacherRepository) GetByEmail(ctx context.Context, email string) (*model.Teacher, error) {
	t := &model.Teacher{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, name, subject, password_hash, created_at
		 FROM teachers WHERE email = $1`, email,
	).Scan(&t.ID, &t.Email, &t.Name, &t.Subject, &t.PasswordHash, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Create inserts a new teacher.
func (r *TeacherRepository) Create(ctx context.Context, t *model.Teacher) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO teachers (email, name, subject, password_hash)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		t.Email, t.Name, t.Subject, t.PasswordHash,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}
