package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/examo-id/examo-backend/internal/middleware"
	"github.com/examo-id/examo-backend/internal/model"
	"github.com/examo-id/examo-backend/internal/response"
	"github.com/examo-id/examo-backend/internal/service"
	"github.com/examo-id/examo-backend/internal/shuffle"
	"github.com/examo-id/examo-backend/internal/validator"
)

// StudentPortalHandler handles student-facing endpoints (lobby, exam taking).
type StudentPortalHandler struct {
	attemptService *service.AttemptService
	examService    *service.ExamService
	shuffleEngine  *shuffle.Engine
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(
	attemptService *service.AttemptService,
	examService *service.ExamService,
	shuffleEngine *shuffle.Engine,
) *StudentPortalHandler {
	return &StudentPortalHandler{
		attemptService: attemptService,
		examService:    examService,
		shuffleEngine:  shuffleEngine,
	}
}

// GetLobby godoc
// GET /api/v1/student/lobby
// Returns published exams with the student's attempt overlaid.
func (h *StudentPortalHandler) GetLobby(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	lobby, err := h.attemptService.GetLobby(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if lobby == nil {
		lobby = []service.LobbyExam{}
	}

	response.Success(c, http.StatusOK, gin.H{"exams": lobby})
}

// JoinExam godoc
// POST /api/v1/student/exams/:exam_id/join
// Validates entry token and creates an attempt (idempotent).
func (h *StudentPortalHandler) JoinExam(c *gin.Context) {
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

	var req model.JoinExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attemptService.Join(c.Request.Context(), examID, claims.UserID, req.EntryToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidEntryToken):
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidEntryToken)
		case errors.Is(err, service.ErrExamNotAvailable):
			response.Fail(c, http.StatusBadRequest, response.ErrExamNotAvailable)
		case errors.Is(err, service.ErrAttemptFinished):
			response.Fail(c, http.StatusConflict, response.ErrAttemptFinished)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// GetExamPaper godoc
// GET /api/v1/student/exams/:exam_id/paper
// Returns the exam payload in this student's session ordering, answer
// keys stripped. Requires an active attempt for this exam.
func (h *StudentPortalHandler) GetExamPaper(c *gin.Context) {
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

	if _, err := h.attemptService.VerifyActive(c.Request.Context(), examID, claims.UserID); err != nil {
		response.Fail(c, http.StatusForbidden, response.ErrNoActiveAttempt)
		return
	}

	payload, err := h.examService.GetExamPayload(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrExamNotPublished)
		return
	}

	exam, err := h.examService.GetByID(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	exam.Questions, err = h.examService.GetExamQuestions(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	ordered, err := h.shuffleEngine.SessionOrder(c.Request.Context(), exam, claims.UserID, false)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	order := make([]uuid.UUID, len(ordered))
	questions := make([]model.StudentQuestion, len(ordered))
	for i := range ordered {
		order[i] = ordered[i].ID
		questions[i] = ordered[i].StudentView()
	}
	h.attemptService.EnqueueQuestionOrder(c.Request.Context(), examID, claims.UserID, order)

	payload.Questions = questions
	response.Success(c, http.StatusOK, payload)
}

// GetExamState godoc
// GET /api/v1/student/exams/:exam_id/state
// Resume payload for a page reload: autosaved answers, event log and
// the wall-clock-anchored remaining time.
func (h *StudentPortalHandler) GetExamState(c *gin.Context) {
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

	if _, err := h.attemptService.VerifyActive(c.Request.Context(), examID, claims.UserID); err != nil {
		response.Fail(c, http.StatusForbidden, response.ErrNoActiveAttempt)
		return
	}

	state, err := h.attemptService.GetState(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// GetMyResult godoc
// GET /api/v1/student/exams/:exam_id/result
// Returns the student's finished attempt for the exam.
func (h *StudentPortalHandler) GetMyResult(c *gin.Context) {
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

	attempt, err := h.attemptService.GetAttempt(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if !attempt.Status.Terminal() {
		response.Fail(c, http.StatusConflict, response.ErrConflict)
		return
	}

	// The raw answer sheet stays server-side.
	attempt.Answers = nil
	attempt.Logs = nil
	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}
