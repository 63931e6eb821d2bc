package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/examo-id/examo-backend/internal/middleware"
	"github.com/examo-id/examo-backend/internal/model"
	"github.com/examo-id/examo-backend/internal/response"
	"github.com/examo-id/examo-backend/internal/service"
	"github.com/examo-id/examo-backend/internal/shuffle"
	"github.com/examo-id/examo-backend/internal/validator"
)

// ExamHandler handles exam management endpoints.
type ExamHandler struct {
	examService    *service.ExamService
	attemptService *service.AttemptService
	shuffleEngine  *shuffle.Engine
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService, attemptService *service.AttemptService, shuffleEngine *shuffle.Engine) *ExamHandler {
	return &ExamHandler{
		examService:    examService,
		attemptService: attemptService,
		shuffleEngine:  shuffleEngine,
	}
}

func failExamLifecycle(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotExamAuthor):
		response.Fail(c, http.StatusForbidden, response.ErrNotExamAuthor)
	case errors.Is(err, service.ErrNoQuestions):
		response.Fail(c, http.StatusBadRequest, response.ErrNoQuestions)
	case errors.Is(err, service.ErrExamNotDraft):
		response.Fail(c, http.StatusBadRequest, response.ErrExamNotDraft)
	case errors.Is(err, service.ErrExamNotPublished):
		response.Fail(c, http.StatusBadRequest, response.ErrExamNotPublished)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// ListExams godoc
// GET /api/v1/teacher/exams
// Lists the teacher's exams with pagination.
func (h *ExamHandler) ListExams(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	exams, pagination, err := h.examService.ListByAuthor(c.Request.Context(), claims.UserID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"exams": exams}, pagination)
}

// CreateExam godoc
// POST /api/v1/teacher/exams
// Creates a new draft exam.
func (h *ExamHandler) CreateExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam := &model.Exam{
		Title:              req.Title,
		Description:        req.Description,
		AuthorID:           claims.UserID,
		DurationMinutes:    req.DurationMinutes,
		RandomizeQuestions: req.Randomize,
		EntryToken:         req.EntryToken,
		ScheduledStart:     req.ScheduledStart,
		ScheduledEnd:       req.ScheduledEnd,
	}

	if err := h.examService.Create(c.Request.Context(), exam); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// GetExam godoc
// GET /api/v1/teacher/exams/:exam_id
// Returns one exam with its questions, answer keys included.
func (h *ExamHandler) GetExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	exam, err := h.examService.GetByID(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if exam.AuthorID != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrNotExamAuthor)
		return
	}

	exam.Questions, err = h.examService.GetExamQuestions(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// UpdateExam godoc
// PUT /api/v1/teacher/exams/:exam_id
// Updates a draft exam's metadata.
func (h *ExamHandler) UpdateExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam := &model.Exam{
		ID:                 examID,
		Title:              req.Title,
		Description:        req.Description,
		DurationMinutes:    req.DurationMinutes,
		RandomizeQuestions: req.Randomize,
		EntryToken:         req.EntryToken,
		ScheduledStart:     req.ScheduledStart,
		ScheduledEnd:       req.ScheduledEnd,
	}

	if err := h.examService.Update(c.Request.Context(), claims.UserID, exam); err != nil {
		failExamLifecycle(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// SetQuestions godoc
// PUT /api/v1/teacher/exams/:exam_id/questions
// Replaces the question list of a draft exam.
func (h *ExamHandler) SetQuestions(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SetQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.examService.SetQuestions(c.Request.Context(), examID, claims.UserID, req.Questions); err != nil {
		if errors.Is(err, service.ErrNotExamAuthor) || errors.Is(err, service.ErrExamNotDraft) {
			failExamLifecycle(c, err)
			return
		}
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{"questions": err.Error()})
		return
	}

	response.Success(c, http.StatusOK, gin.H{"count": len(req.Questions)})
}

// PublishExam godoc
// POST /api/v1/teacher/exams/:exam_id/publish
// Publishes an exam: caches paper + answer key to Redis, changes status.
func (h *ExamHandler) PublishExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.examService.Publish(c.Request.Context(), examID, claims.UserID); err != nil {
		failExamLifecycle(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": model.ExamStatusPublished})
}

// ArchiveExam godoc
// POST /api/v1/teacher/exams/:exam_id/archive
// Archives a published exam so it leaves the student lobby.
func (h *ExamHandler) ArchiveExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.examService.Archive(c.Request.Context(), examID, claims.UserID); err != nil {
		failExamLifecycle(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": model.ExamStatusArchived})
}

// DeleteExam godoc
// DELETE /api/v1/teacher/exams/:exam_id
// Deletes a draft exam.
func (h *ExamHandler) DeleteExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.examService.Delete(c.Request.Context(), examID, claims.UserID); err != nil {
		failExamLifecycle(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// PreviewExam godoc
// GET /api/v1/teacher/exams/:exam_id/preview
// Returns the paper as a student would see it, freshly shuffled. Preview
// never touches the ordering cache and records nothing.
func (h *ExamHandler) PreviewExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	exam, err := h.examService.GetByID(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if exam.AuthorID != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrNotExamAuthor)
		return
	}

	exam.Questions, err = h.examService.GetExamQuestions(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	ordered, err := h.shuffleEngine.SessionOrder(c.Request.Context(), exam, claims.UserID, true)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	questions := make([]model.StudentQuestion, len(ordered))
	for i := range ordered {
		questions[i] = ordered[i].StudentView()
	}

	response.Success(c, http.StatusOK, gin.H{
		"exam_id":   examID,
		"title":     exam.Title,
		"duration":  exam.DurationMinutes,
		"questions": questions,
	})
}

// GetExamResults godoc
// GET /api/v1/teacher/exams/:exam_id/results
// Lists attempt results with pagination and optional grade filter.
func (h *ExamHandler) GetExamResults(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	exam, err := h.examService.GetByID(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if exam.AuthorID != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrNotExamAuthor)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	var grade *string
	if g := c.Query("grade"); g != "" {
		grade = &g
	}

	results, total, err := h.attemptService.GetResults(c.Request.Context(), examID, page, perPage, grade)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"exam_id": examID,
		"total":   total,
		"results": results,
	})
}
