package service

import (
	"context"

	"github.com/examo-id/examo-backend/internal/model"
	"github.com/examo-id/examo-backend/internal/repository"
)

// TeacherService handles teacher accounts.
type TeacherService struct {
	teacherRepo *repository.TeacherRepository
	authService *AuthService
}

// NewTeacherService creates a new TeacherService.
func NewTeacherService(teacherRepo *repository.TeacherRepository, authService *AuthService) *TeacherService {
	return &TeacherService{teacherRepo: teacherRepo, authService: authService}
}

func (s *TeacherService) GetByID(ctx context.Context, id int) (*model.Teacher, error) {
	return s.teacherRepo.GetByID(ctx, id)
}

func (s *TeacherService) GetByEmail(ctx context.Context, email string) (*model.Teacher, error) {
	return s.teacherRepo.GetByEmail(ctx, email)
}

// Create registers a teacher with a bcrypt-hashed password.
func (s *TeacherService) Create(ctx context.Context, teacher *model.Teacher, password string) error {
	hash, err := s.authService.HashPassword(password)
	if err != nil {
		return err
	}
	teacher.PasswordHash = hash
	return s.teacherRepo.Create(ctx, teacher)
}
