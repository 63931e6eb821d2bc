package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/examo-id/examo-backend/internal/model"
	"github.com/examo-id/examo-backend/internal/repository"
	"github.com/examo-id/examo-backend/internal/response"
)

// StudentService handles the student roster.
type StudentService struct {
	studentRepo *repository.StudentRepository
	authService *AuthService
	log         zerolog.Logger
}

// NewStudentService creates a new StudentService.
func NewStudentService(studentRepo *repository.StudentRepository, authService *AuthService, log zerolog.Logger) *StudentService {
	return &StudentService{
		studentRepo: studentRepo,
		authService: authService,
		log:         log.With().Str("component", "student_service").Logger(),
	}
}

func (s *StudentService) GetByID(ctx context.Context, id int) (*model.Student, error) {
	return s.studentRepo.GetByID(ctx, id)
}

func (s *StudentService) GetByNISN(ctx context.Context, nisn string) (*model.Student, error) {
	return s.studentRepo.GetByNISN(ctx, nisn)
}

// Create registers a student with a bcrypt-hashed password.
func (s *StudentService) Create(ctx context.Context, student *model.Student, password string) error {
	hash, err := s.authService.HashPassword(password)
	if err != nil {
		return err
	}
	student.PasswordHash = hash
	return s.studentRepo.Create(ctx, student)
}

func (s *StudentService) List(ctx context.Context, page, perPage int, grade *string) ([]model.Student, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}

	students, total, err := s.studentRepo.ListPaginated(ctx, grade, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if students == nil {
		students = []model.Student{}
	}

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	}
	return students, pagination, nil
}

// ResetPassword sets a new password and invalidates the active session.
func (s *StudentService) ResetPassword(ctx context.Context, studentID int, password string) error {
	hash, err := s.authService.HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.studentRepo.UpdatePassword(ctx, studentID, hash); err != nil {
		return err
	}
	return s.authService.ResetStudentSession(ctx, studentID)
}
