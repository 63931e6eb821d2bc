package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/examo-id/examo-backend/internal/model"
	"github.com/examo-id/examo-backend/internal/repository"
	"github.com/examo-id/examo-backend/internal/response"
	"github.com/examo-id/examo-backend/internal/service"
	"github.com/examo-id/examo-backend/internal/validator"
)

// StudentManagementHandler handles the teacher-side student roster.
type StudentManagementHandler struct {
	studentService *service.StudentService
}

// NewStudentManagementHandler creates a new StudentManagementHandler.
func NewStudentManagementHandler(studentService *service.StudentService) *StudentManagementHandler {
	return &StudentManagementHandler{studentService: studentService}
}

// ListStudents godoc
// GET /api/v1/teacher/students
// Lists students with pagination and optional grade filter.
func (h *StudentManagementHandler) ListStudents(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	var grade *string
	if g := c.Query("grade"); g != "" {
		grade = &g
	}

	students, pagination, err := h.studentService.List(c.Request.Context(), page, perPage, grade)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"students": students}, pagination)
}

// CreateStudent godoc
// POST /api/v1/teacher/students
// Registers a new student account.
func (h *StudentManagementHandler) CreateStudent(c *gin.Context) {
	var req model.CreateStudentRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	student := &model.Student{
		NISN:  req.NISN,
		Name:  req.Name,
		Grade: req.Grade,
	}
	if err := h.studentService.Create(c.Request.Context(), student, req.Password); err != nil {
		if errors.Is(err, repository.ErrDuplicateNISN) {
			response.Fail(c, http.StatusConflict, response.ErrConflict)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"student": student})
}

// ResetStudentPassword godoc
// POST /api/v1/teacher/students/:student_id/reset-password
// Sets a new password and invalidates the student's active session. Also
// the escape hatch when a student is locked out by the single-device rule.
func (h *StudentManagementHandler) ResetStudentPassword(c *gin.Context) {
	studentID, err := strconv.Atoi(c.Param("student_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.ResetPasswordRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if _, err := h.studentService.GetByID(c.Request.Context(), studentID); err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	if err := h.studentService.ResetPassword(c.Request.Context(), studentID, req.Password); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}
